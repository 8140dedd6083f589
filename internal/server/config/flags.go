package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/accountsync/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN, or "memory"
//	-s string   API token HMAC secret key
//	-t int      token validity, minutes
//	-l string   log level
//	-o string   OTLP/HTTP trace endpoint
//	-auth       require an API token for writes
//
// Notes:
//   - Only the flags defined here are parsed (flagx.ParseKnown); anything
//     else in os.Args, such as a subcommand, is skipped.
//   - The duration flag is accepted as an integer in minutes and only
//     applied when given.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenTTL := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "token validity (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.OTelEndpoint, "o", config.OTelEndpoint, "OTLP/HTTP trace endpoint")
	fs.BoolVar(&config.RequireToken, "auth", config.RequireToken, "require an API token for writes")

	if err := flagx.ParseKnown(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.AccessTokenValidityDuration = time.Duration(*tokenTTL) * time.Minute
		}
	})
}
