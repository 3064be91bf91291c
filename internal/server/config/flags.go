package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/decksync/internal/flagx"
)

var serverFlags = []string{
	"-a", "-d", "-s", "-u", "-p", "-b", "-g", "-e",
	"-i", "-r", "-n", "-m", "-l", "-f", "-k", "-o", "-t",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-i int      purge interval, minutes (0 disables)
//	-r int      purge retention, days
//	-n int      purge batch size
//	-m string   redis address for the purge lease
//	-l string   log level (debug, info, warn, error)
//	-f string   log format (json, text, auto)
//	-k string   log backend (slog, zap)
//	-o string   log file, rotated
//	-t bool     export traces to stdout
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, so -c/-config and flags of other components pass through.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	purgeInterval := fs.Int("i", int(config.PurgeInterval.Minutes()), "purge interval (in minutes, 0 disables)")
	fs.IntVar(&config.PurgeRetentionDays, "r", config.PurgeRetentionDays, "purge retention (in days)")
	fs.IntVar(&config.PurgeBatchSize, "n", config.PurgeBatchSize, "purge batch size")
	fs.StringVar(&config.RedisAddr, "m", config.RedisAddr, "redis address for the purge lease")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format: json, text or auto")
	fs.StringVar(&config.LogBackend, "k", config.LogBackend, "log backend: slog or zap")
	fs.StringVar(&config.LogFile, "o", config.LogFile, "log file")
	fs.BoolVar(&config.TracingEnabled, "t", config.TracingEnabled, "export traces to stdout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PurgeInterval = time.Duration(*purgeInterval) * time.Minute
}
