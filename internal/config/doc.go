// Package config handles configuration loading for coven-planner and
// fake-planner.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Empty fields take defaults and the result is validated.
//
// # Configuration File
//
// Locations (first match wins):
//
//  1. Path given with -config
//  2. Path from COVEN_PLANNER_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/coven-planner/config.yaml (~/.config when unset)
//
// Only the last location may be missing; defaults are used then.
// Files ending in .toml are parsed as TOML, anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token: "${COVEN_PLANNER_TOKEN}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Client:
//
//	service:
//	  base_url: "http://127.0.0.1:5000/api"
//	  timeout: "60s"
//	auth:
//	  token: ""            # bearer token sent to the service
//	  token_file: ""       # read when token is empty
//	session:
//	  user_id: ""          # prompt when empty
//
// Fake dialogue service:
//
//	planner:
//	  addr: "127.0.0.1:5000"
//	  jwt_secret: ""       # auth disabled when empty
//	  session_ttl: "24h"
//	  reply_delay: "0s"
//	  idempotency_ttl: "10m"
//	  idempotency_max: 10000
//
// Shared:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//	  addr: "127.0.0.1:9464"  # client only
//
// # Usage
//
//	cfg, path, err := config.LoadOrDefault(*configPath)
//	if err != nil {
//	    return err
//	}
package config
