package config

import "github.com/caarlos0/env/v11"

// EnvPrefix is prepended to every variable name in the Config env tags.
const EnvPrefix = "ACCOUNTSYNC_"

// parseEnv overlays cfg with ACCOUNTSYNC_* environment variables. Unset
// variables leave the field alone. Panics on malformed values, like the
// other loaders.
func parseEnv(cfg *Config) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		panic(err)
	}
}
