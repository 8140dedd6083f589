package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/accountsync/internal/flagx"
	"github.com/dmitrijs2005/accountsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// keep the value already in Config, so booleans are pointers.
type JsonConfig struct {
	ServerEndpointAddr         string         `json:"server_endpoint_addr"`
	AccessToken                string         `json:"access_token"`
	DatabasePath               string         `json:"database_path"`
	ReachabilityProbe          string         `json:"reachability_probe"`
	PingTimeout                timex.Duration `json:"ping_timeout"`
	GatewayTimeout             timex.Duration `json:"gateway_timeout"`
	StatusInterval             timex.Duration `json:"status_interval"`
	KeystoreDriver             string         `json:"keystore_driver"`
	KeystoreTimeout            timex.Duration `json:"keystore_timeout"`
	RedisAddr                  string         `json:"redis_addr"`
	RedisPassword              string         `json:"redis_password"`
	RedisDB                    *int           `json:"redis_db"`
	RedisPrefix                string         `json:"redis_prefix"`
	SessionSecret              string         `json:"session_secret"`
	SessionTTL                 timex.Duration `json:"session_ttl"`
	AutoLogin                  *bool          `json:"auto_login"`
	PreferOffline              *bool          `json:"prefer_offline"`
	AllowGoogleWithoutPassword *bool          `json:"allow_google_without_password"`
	LogLevel                   string         `json:"log_level"`
	OTelEndpoint               string         `json:"otel_endpoint"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag nothing happens. Panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.AccessToken, jc.AccessToken)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.ReachabilityProbe, jc.ReachabilityProbe)
	setString(&cfg.KeystoreDriver, jc.KeystoreDriver)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.RedisPassword, jc.RedisPassword)
	setString(&cfg.RedisPrefix, jc.RedisPrefix)
	setString(&cfg.SessionSecret, jc.SessionSecret)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.OTelEndpoint, jc.OTelEndpoint)

	if jc.PingTimeout.Duration != 0 {
		cfg.PingTimeout = jc.PingTimeout.Duration
	}
	if jc.GatewayTimeout.Duration != 0 {
		cfg.GatewayTimeout = jc.GatewayTimeout.Duration
	}
	if jc.StatusInterval.Duration != 0 {
		cfg.StatusInterval = jc.StatusInterval.Duration
	}
	if jc.KeystoreTimeout.Duration != 0 {
		cfg.KeystoreTimeout = jc.KeystoreTimeout.Duration
	}
	if jc.SessionTTL.Duration != 0 {
		cfg.SessionTTL = jc.SessionTTL.Duration
	}

	if jc.RedisDB != nil {
		cfg.RedisDB = *jc.RedisDB
	}
	if jc.AutoLogin != nil {
		cfg.AutoLogin = *jc.AutoLogin
	}
	if jc.PreferOffline != nil {
		cfg.PreferOffline = *jc.PreferOffline
	}
	if jc.AllowGoogleWithoutPassword != nil {
		cfg.AllowGoogleWithoutPassword = *jc.AllowGoogleWithoutPassword
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
