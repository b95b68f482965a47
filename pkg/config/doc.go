// Package config provides configuration management for the tracker.
//
// Configuration is loaded from a YAML file, completed with defaults and
// optionally overridden by environment variables:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention TRACKER_SECTION_FIELD:
//
//   - TRACKER_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - TRACKER_STORE_BACKEND overrides store.backend
//   - TRACKER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton
//
// The CLI stores the loaded configuration with Initialize and reads it with
// GetConfig. Library code takes an explicit *Config.
//
// # Hot Reload
//
// With watch: true the run command starts a Watcher. A reload replaces the
// global configuration and applies the new log level and tracking limits;
// settings that bind sockets or open stores need a restart.
package config
