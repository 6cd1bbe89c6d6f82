// Package config handles configuration loading for photoid-gateway.
//
// # Overview
//
// Configuration comes from an optional YAML or TOML file, overlaid with
// environment variables, then filled with defaults and validated. Only the
// LINE channel credentials are required; everything else has a default.
//
// # Configuration File
//
// The CLI reads the path from PHOTOID_CONFIG. Without it, configuration is
// taken from the environment alone. The file format is chosen by extension
// (.yaml, .yml or .toml).
//
// # Environment Variable Expansion
//
// File values can reference environment variables:
//
//	line:
//	  channel_secret: "${LINE_CHANNEL_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Environment Overrides
//
// These variables win over the file when set:
//
//	LINE_CHANNEL_ACCESS_TOKEN    line.channel_access_token
//	LINE_CHANNEL_SECRET          line.channel_secret
//	HOST, PORT                   server.host, server.port
//	STORAGE_BACKEND              storage.backend (auto, local, drive)
//	IMAGE_DIR                    storage.local_dir
//	GOOGLE_DRIVE_FOLDER_ID       storage.drive_folder_id
//	GOOGLE_SERVICE_ACCOUNT_JSON  storage.drive_credentials_json (JSON or a file path)
//	TZ_NAME                      storage.timezone
//	PHOTOID_DB_PATH              database.path
//	PHOTOID_JWT_SECRET           auth.jwt_secret
//	TS_AUTHKEY                   tailscale.auth_key
//	LOG_LEVEL, LOG_FORMAT        logging.level, logging.format
//
// # Configuration Sections
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8000
//	line:
//	  max_content_bytes: 20971520
//	storage:
//	  backend: "auto"      # drive when folder and credentials are set
//	  local_dir: "images"
//	  timezone: "Asia/Tokyo"
//	database:
//	  path: "data/photoid.db"
//	tailscale:
//	  enabled: false
//	  hostname: "photoid-gateway"
//	  funnel: true
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//	dedupe:
//	  ttl: "10m"
//
// # Validation
//
// Load() rejects a missing channel token or secret, an unknown storage
// backend, a drive backend without folder and credentials, an unknown
// timezone, and a JWT secret shorter than 32 bytes.
package config
