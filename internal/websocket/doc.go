// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package websocket broadcasts sync progress to connected observers.

The Hub owns the client set and fans out messages without ever blocking
the caller: a full broadcast queue drops the message, and a client whose
send buffer is full is disconnected. Bridge subscribes to the progress topic
on the message bus so every instance's observers see every run, not only
the runs executing locally.

Message types:

	sync_progress   models.ProgressEvent for an executing run
	run_status      models.SyncRun when a run changes lifecycle state
	ping / pong     client keepalive
*/
package websocket
