package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/vendora/mediasync/internal/flagx"
	"github.com/vendora/mediasync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s"
// or as integer nanoseconds. After parsing, set values are copied into the
// runtime Config (which uses time.Duration).
type JsonConfig struct {
	DatabasePath   string         `json:"database_path"`
	SpoolDir       string         `json:"spool_dir"`
	CatalogDSN     string         `json:"catalog_dsn"`
	IdentitySecret string         `json:"identity_secret"`
	S3Region       string         `json:"s3_region"`
	S3BaseEndpoint string         `json:"s3_base_endpoint"`
	S3Bucket       string         `json:"s3_bucket"`
	S3AccessKey    string         `json:"s3_access_key"`
	S3SecretKey    string         `json:"s3_secret_key"`
	UploadWorkers  int            `json:"upload_workers"`
	MaxRetries     int            `json:"max_retries"`
	BackoffBase    timex.Duration `json:"backoff_base"`
	BackoffCap     timex.Duration `json:"backoff_cap"`
	PollInterval   timex.Duration `json:"poll_interval"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// The file path comes from the -c or -config flags via
// flagx.JsonConfigFlags(); if neither is set, nothing is loaded. Fields
// absent from the file keep their earlier values. Read or unmarshal errors
// panic, since the process cannot run on a half-read config.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.SpoolDir, jc.SpoolDir)
	setString(&cfg.CatalogDSN, jc.CatalogDSN)
	setString(&cfg.IdentitySecret, jc.IdentitySecret)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	if jc.UploadWorkers > 0 {
		cfg.UploadWorkers = jc.UploadWorkers
	}
	if jc.MaxRetries > 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	setDuration(&cfg.BackoffBase, jc.BackoffBase.Duration)
	setDuration(&cfg.BackoffCap, jc.BackoffCap.Duration)
	setDuration(&cfg.PollInterval, jc.PollInterval.Duration)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
