// Trackersync - Issue Tracker Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackersync

/*
Package config loads Trackersync configuration.

Configuration is layered with Koanf v2:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/trackersync/config.yaml)
 3. Environment variables, mapped explicitly in envTransformFunc

Unknown environment variables are ignored. Validate runs after unmarshaling
and rejects incomplete or out-of-range settings.

Example YAML:

	tracker:
	  base_url: https://tracker.example.com
	  credential: ${TRACKER_TOKEN}
	  requests_per_second: 10
	sync:
	  projects: [OPS, WEB]
	  schedule: "@every 30m"
	validation:
	  threshold_pct: 5
*/
package config
