// Package config loads runtime configuration for the accountsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. ACCOUNTSYNC_* environment variables (see the env tags on Config).
//  4. Command-line flags, which override everything else.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "3s" or
// integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_path": "accountsync.db",
//	  "gateway_timeout": "5s",
//	  "keystore_driver": "redis",
//	  "redis_addr": "127.0.0.1:6379",
//	  "prefer_offline": false
//	}
package config
