// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

package logging

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronAdapter routes robfig/cron logs through zerolog.
type CronAdapter struct {
	logger zerolog.Logger
}

// NewCronAdapter returns a cron.Logger tagged with component.
func NewCronAdapter(component string) *CronAdapter {
	return &CronAdapter{logger: WithComponent(component)}
}

// Info logs scheduler bookkeeping at debug level; cron is chatty.
func (c *CronAdapter) Info(msg string, keysAndValues ...interface{}) {
	addKeyValues(c.logger.Debug(), keysAndValues).Msg(msg)
}

func (c *CronAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	addKeyValues(c.logger.Error().Err(err), keysAndValues).Msg(msg)
}

func addKeyValues(event *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		event = event.Interface(key, keysAndValues[i+1])
	}
	return event
}

var _ cron.Logger = (*CronAdapter)(nil)
