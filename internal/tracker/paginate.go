// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package tracker

import (
	"context"
	"fmt"

	"github.com/tomtom215/trackersync/internal/syncerr"
)

// DefaultMaxPages is the pagination safety ceiling used when none is configured.
const DefaultMaxPages = 10000

// PageFunc receives each page together with the offset of its first record.
// Returning an error stops pagination.
type PageFunc func(page *Page, offset int) error

// Paginate drives offset pagination from startOffset until a short page is
// returned or the offset reaches the advertised total. More than maxPages
// iterations fail with syncerr.ErrPaginationLimit.
func Paginate(ctx context.Context, c Client, resource Resource, q Query, startOffset, maxPages int, fn PageFunc) error {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	offset := startOffset

	for pages := 0; ; pages++ {
		if pages >= maxPages {
			return syncerr.Permanent(string(resource),
				fmt.Errorf("%w: %d pages fetched, next offset %d", syncerr.ErrPaginationLimit, pages, offset))
		}

		page, err := c.FetchPage(ctx, resource, q, OffsetToken(offset))
		if err != nil {
			return err
		}
		if len(page.Records) > 0 {
			if err := fn(page, offset); err != nil {
				return err
			}
		}

		offset += len(page.Records)
		requested := page.PageSize
		if requested <= 0 {
			requested = q.PageSize
		}
		if len(page.Records) == 0 || len(page.Records) < requested || offset >= page.Total {
			return nil
		}
	}
}

// Count returns the remote total for q without fetching records.
func Count(ctx context.Context, c Client, resource Resource, q Query) (int, error) {
	q.CountOnly = true
	page, err := c.FetchPage(ctx, resource, q, "")
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}
