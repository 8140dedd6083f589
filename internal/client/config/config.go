package config

import "time"

// Reachability probe names.
const (
	ProbePing    = "ping"
	ProbeTCP     = "tcp"
	ProbeOnline  = "online"
	ProbeOffline = "offline"
)

// Config holds runtime settings for the accountsync CLI.
//
// Durations are time.Duration values; flags take whole seconds.
type Config struct {
	ServerEndpointAddr string `env:"SERVER_ADDR"`
	// AccessToken is sent to the backend with every call when set.
	AccessToken  string `env:"ACCESS_TOKEN"`
	DatabasePath string `env:"DB_PATH"`

	// ReachabilityProbe is one of ping, tcp, online or offline.
	ReachabilityProbe string        `env:"REACHABILITY"`
	PingTimeout       time.Duration `env:"PING_TIMEOUT"`
	GatewayTimeout    time.Duration `env:"GATEWAY_TIMEOUT"`
	// StatusInterval is how often the CLI re-checks connectivity.
	StatusInterval time.Duration `env:"STATUS_INTERVAL"`

	// KeystoreDriver is sqlite, redis or none.
	KeystoreDriver  string        `env:"KEYSTORE"`
	KeystoreTimeout time.Duration `env:"KEYSTORE_TIMEOUT"`
	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB"`
	RedisPrefix     string        `env:"REDIS_PREFIX"`

	// SessionSecret signs session tokens. When empty a random secret is
	// generated once and kept in the client database.
	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL"`

	AutoLogin                  bool `env:"AUTO_LOGIN"`
	PreferOffline              bool `env:"PREFER_OFFLINE"`
	AllowGoogleWithoutPassword bool `env:"ALLOW_GOOGLE_WITHOUT_PASSWORD"`

	LogLevel     string `env:"LOG_LEVEL"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabasePath = "accountsync.db"
	c.ReachabilityProbe = ProbePing
	c.PingTimeout = 2 * time.Second
	c.GatewayTimeout = 5 * time.Second
	c.StatusInterval = 10 * time.Second
	c.KeystoreDriver = "sqlite"
	c.KeystoreTimeout = 2 * time.Second
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisPrefix = "accountsync:credential:"
	c.SessionTTL = 24 * time.Hour
	c.AllowGoogleWithoutPassword = true
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
