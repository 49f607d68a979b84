// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	// Embedded zone database: container images often ship without one.
	_ "time/tzdata"

	"github.com/tomtom215/trackersync/internal/logging"
)

// LoadLocation resolves a configured zone name. Empty means "ask the tracker".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return loc, nil
}

// Location returns the zone JQL date literals are interpreted in: the
// profile zone of the credential's user. It is fetched once and cached.
//
// A profile without a usable zone falls back to UTC. Request failures are
// returned uncached so the next call asks again.
func (c *HTTPClient) Location(ctx context.Context) (*time.Location, error) {
	c.zoneMu.Lock()
	defer c.zoneMu.Unlock()
	if c.zone != nil {
		return c.zone, nil
	}

	var me userDTO
	if err := c.do(ctx, string(ResourceUsers), http.MethodGet, c.version.prefix()+"/myself", nil, nil, &me); err != nil {
		return nil, fmt.Errorf("failed to read profile time zone: %w", err)
	}

	loc := time.UTC
	if me.TimeZone != "" {
		parsed, err := time.LoadLocation(me.TimeZone)
		if err != nil {
			logging.Ctx(ctx).Warn().Str("time_zone", me.TimeZone).Msg("Unknown profile time zone, using UTC for date filters")
		} else {
			loc = parsed
		}
	}
	c.zone = loc
	logging.Ctx(ctx).Debug().Str("time_zone", loc.String()).Msg("Resolved tracker time zone")
	return loc, nil
}
