// Package config assembles runtime settings for the mediasync CLI from
// defaults, an optional JSON file, and command-line flags, in that order of
// precedence.
package config

import "time"

// Config holds runtime settings for the mediasync CLI.
//
// DatabasePath is the local SQLite queue file, SpoolDir the directory media
// files are staged into before upload. CatalogDSN points at the shared
// Postgres media catalog. The S3 fields configure the blob store; with
// S3BaseEndpoint set they target a MinIO-style endpoint instead of AWS.
type Config struct {
	DatabasePath string
	SpoolDir     string
	CatalogDSN   string

	IdentitySecret string

	S3Region       string
	S3BaseEndpoint string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string

	UploadWorkers int
	MaxRetries    int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	PollInterval  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "mediasync.db"
	c.SpoolDir = "spool"
	c.CatalogDSN = ""
	c.IdentitySecret = ""
	c.S3Region = "us-east-1"
	c.S3Bucket = "media"
	c.UploadWorkers = 2
	c.MaxRetries = 5
	c.BackoffBase = 500 * time.Millisecond
	c.BackoffCap = 30 * time.Second
	c.PollInterval = 2 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
