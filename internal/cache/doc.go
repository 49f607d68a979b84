// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package cache memoizes read-only tracker responses.

The sync engine only ever treats the cache as an optimization: a miss (or a
backend error, which is reported as a miss) means "fetch fresh". Keys are
namespaced so that everything belonging to one project can be dropped with a
single prefix invalidation after that project is synchronized:

	project:{KEY}:detail
	user:{accountId}

Two backends implement Store:

  - Memory: TTL map with hit/miss statistics and a background cleanup loop
  - Redis: go-redis client, prefix invalidation via SCAN + DEL

Select one with New(Config).
*/
package cache
