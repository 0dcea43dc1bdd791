// Package config handles configuration loading for assist-gateway.
//
// # Overview
//
// Configuration is loaded once at startup from a YAML file with environment
// variable expansion. Every required value is checked up front; a missing
// value is a startup-fatal error, never a runtime lookup failure.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	assistant:
//	  api_key: "${ASSIST_API_KEY}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	assistant:
//	  poll_interval: "1s"
//	  run_timeout: "2m"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: ":8080"
//
// Remote assistant service:
//
//	assistant:
//	  base_url: "https://api.openai.com/v1"
//	  api_key: "${ASSIST_API_KEY}"       # required
//	  assistant_id: "asst_..."           # required
//	  poll_interval: "1s"
//	  run_timeout: "2m"
//
// Document source (optional; the Documents tab is hidden when absent):
//
//	docs:
//	  base_url: "https://files.example.com"
//	  api_key: "${ASSIST_DOCS_KEY}"
//
// Authentication:
//
//	auth:
//	  password: "${ASSIST_PASSWORD}"     # or password_hash (bcrypt)
//	  jwt_secret: "${ASSIST_JWT_SECRET}" # generated at startup when absent
//	  token_ttl: "12h"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
