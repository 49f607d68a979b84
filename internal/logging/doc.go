// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

// Package logging provides centralized zerolog-based logging.
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Msg("Server starting")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Retrying request")
//
// Ctx attaches the correlation ID, run ID and project key stored in the
// context. Adapters route slog (supervisor) and Watermill (pub/sub) output
// through the same logger.
//
// Always terminate log chains with .Msg() or .Send(); an unterminated event is
// never written.
package logging
