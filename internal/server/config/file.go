package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/decksync/internal/flagx"
	"github.com/dmitrijs2005/decksync/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration, read from JSON or
// YAML. Intervals use timex.Duration so both "1h" and integer nanoseconds
// are accepted. Zero values leave the current setting alone.
type FileConfig struct {
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN        string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey          string         `json:"secret_key" yaml:"secret_key"`
	S3RootUser         string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region           string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	PurgeInterval      timex.Duration `json:"purge_interval" yaml:"purge_interval"`
	PurgeRetentionDays *int           `json:"purge_retention_days" yaml:"purge_retention_days"`
	PurgeBatchSize     int            `json:"purge_batch_size" yaml:"purge_batch_size"`
	RedisAddr          string         `json:"redis_addr" yaml:"redis_addr"`
	LogLevel           string         `json:"log_level" yaml:"log_level"`
	LogFormat          string         `json:"log_format" yaml:"log_format"`
	LogBackend         string         `json:"log_backend" yaml:"log_backend"`
	LogFile            string         `json:"log_file" yaml:"log_file"`
	TracingEnabled     bool           `json:"tracing_enabled" yaml:"tracing_enabled"`
}

// parseFile loads configuration values from the file named by -c/-config.
// The format follows the extension: .yaml and .yml are YAML, anything else
// is JSON. A missing flag loads nothing; an unreadable or malformed file
// panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	if flagx.ConfigFormat(path) == "yaml" {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogFile, c.LogFile)

	if c.PurgeInterval.Duration != 0 {
		config.PurgeInterval = c.PurgeInterval.Duration
	}
	// retention 0 is meaningful, so only an absent key keeps the default
	if c.PurgeRetentionDays != nil {
		config.PurgeRetentionDays = *c.PurgeRetentionDays
	}
	if c.PurgeBatchSize != 0 {
		config.PurgeBatchSize = c.PurgeBatchSize
	}
	if c.TracingEnabled {
		config.TracingEnabled = true
	}
}
