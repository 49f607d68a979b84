// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package services adapts components that do not already implement
// suture.Service. The bus consumer, progress bridge and scheduler implement
// Serve themselves and are added to the tree directly.
package services
