package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   address and port of the backend server
//	-t string   access token sent to the backend
//	-d string   path of the client database
//	-r string   reachability probe: ping, tcp, online or offline
//	-i int      ping timeout (seconds)
//	-g int      gateway call timeout (seconds)
//	-s string   keystore driver: sqlite, redis or none
//	-R string   redis address for the redis keystore
//	-l string   log level
//	-o string   OTLP/HTTP trace endpoint
//	-offline    never contact the backend during login
//	-auto       resume the saved session at startup
//
// Flags owned by other components are skipped (flagx.ParseKnown). Panics on
// malformed values.
func parseFlags(cfg *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token for the server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "client database path")
	fs.StringVar(&cfg.ReachabilityProbe, "r", cfg.ReachabilityProbe, "reachability probe (ping|tcp|online|offline)")
	pingTimeout := fs.Int("i", int(cfg.PingTimeout.Seconds()), "ping timeout (in seconds)")
	gatewayTimeout := fs.Int("g", int(cfg.GatewayTimeout.Seconds()), "gateway timeout (in seconds)")
	fs.StringVar(&cfg.KeystoreDriver, "s", cfg.KeystoreDriver, "keystore driver (sqlite|redis|none)")
	fs.StringVar(&cfg.RedisAddr, "R", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.OTelEndpoint, "o", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint")
	fs.BoolVar(&cfg.PreferOffline, "offline", cfg.PreferOffline, "log in offline only")
	fs.BoolVar(&cfg.AutoLogin, "auto", cfg.AutoLogin, "resume the saved session at startup")

	if err := flagx.ParseKnown(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	// Only touch durations given on the command line; sub-second values
	// from other sources would not survive the round trip through seconds.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.PingTimeout = time.Duration(*pingTimeout) * time.Second
		case "g":
			cfg.GatewayTimeout = time.Duration(*gatewayTimeout) * time.Second
		}
	})
}
