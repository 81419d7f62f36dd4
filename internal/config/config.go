package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// MiB is one mebibyte
	MiB = 1024 * 1024

	// MinPartSize is the smallest part S3-compatible stores accept
	MinPartSize = 5 * MiB

	envAccessKey = "ARTIFACTPUSH_ACCESS_KEY"
	envSecretKey = "ARTIFACTPUSH_SECRET_KEY"
)

// ErrInvalidConfig is wrapped by every ValidationError
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError reports a configuration problem found before any transfer starts
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Config represents the application configuration
type Config struct {
	Target      TargetConfig `yaml:"target"`
	Upload      Upload       `yaml:"upload"`
	MetricsAddr string       `yaml:"metrics_addr"`
	LogLevel    string       `yaml:"log_level"`
}

// TargetConfig describes the remote S3-compatible bucket
type TargetConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
}

// Upload represents upload-specific configuration
type Upload struct {
	// Prefix is prepended to every remote key
	Prefix string `yaml:"prefix"`
	// OutputRoot is the build output directory candidates are relative to
	OutputRoot string `yaml:"output_root"`
	// Include lists glob patterns relative to OutputRoot; empty means every file
	Include []string `yaml:"include"`

	Concurrency        int           `yaml:"concurrency"`
	Retries            int           `yaml:"retries"`
	RetryBackoffMs     int           `yaml:"retry_backoff_ms"`
	MultipartThreshold int64         `yaml:"multipart_threshold"`
	PartSize           int64         `yaml:"part_size"`
	Timeout            time.Duration `yaml:"timeout"`

	Overwrite      bool   `yaml:"overwrite"`
	NoCache        bool   `yaml:"no_cache"`
	AutoDelete     bool   `yaml:"auto_delete"`
	PruneEmptyDirs bool   `yaml:"prune_empty_dirs"`
	FailOnError    bool   `yaml:"fail_on_error"`
	StorageClass   string `yaml:"storage_class"`
	ACL            string `yaml:"acl"`
	ShowProgress   bool   `yaml:"show_progress"`
	History        string `yaml:"history"`
}

// Default returns a configuration populated with documented defaults
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Target: TargetConfig{
			Secure: true,
		},
		Upload: Upload{
			OutputRoot:         "dist",
			Concurrency:        10,
			Retries:            3,
			RetryBackoffMs:     1000,
			MultipartThreshold: 10 * MiB,
			PartSize:           MinPartSize,
			Timeout:            60 * time.Second,
			PruneEmptyDirs:     true,
			FailOnError:        true,
			ShowProgress:       true,
			History:            "./upload-history.db",
		},
	}
}

// Load loads configuration from file, environment and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if flags != nil {
		if err := loadFromFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	if cfg.Target.AccessKey == "" {
		cfg.Target.AccessKey = os.Getenv(envAccessKey)
	}
	if cfg.Target.SecretKey == "" {
		cfg.Target.SecretKey = os.Getenv(envSecretKey)
	}
}

// RegisterFlags declares every flag Load understands
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()

	flags.String("endpoint", "", "Object store endpoint (host:port or URL)")
	flags.String("access-key", "", "Access key (or "+envAccessKey+")")
	flags.String("secret-key", "", "Secret key (or "+envSecretKey+")")
	flags.Bool("secure", d.Target.Secure, "Use HTTPS")
	flags.String("region", "", "Bucket region")
	flags.String("bucket", "", "Target bucket (required)")

	flags.String("prefix", "", "Remote key prefix")
	flags.String("output-root", d.Upload.OutputRoot, "Local build output directory")
	flags.StringSlice("include", nil, "Glob patterns relative to the output root")
	flags.Int("concurrency", d.Upload.Concurrency, "Number of concurrent uploads")
	flags.Int("retries", d.Upload.Retries, "Maximum attempts per file")
	flags.Int("retry-backoff-ms", d.Upload.RetryBackoffMs, "Linear retry backoff step in milliseconds")
	flags.Int64("multipart-threshold", d.Upload.MultipartThreshold, "Size in bytes at which multipart upload is used")
	flags.Int64("part-size", d.Upload.PartSize, "Multipart part size in bytes")
	flags.Duration("timeout", d.Upload.Timeout, "Timeout for a single transfer attempt")
	flags.Bool("overwrite", false, "Allow overwriting existing objects")
	flags.Bool("no-cache", false, "Upload with Cache-Control: no-cache")
	flags.Bool("auto-delete", false, "Delete local files after successful upload")
	flags.Bool("prune-empty-dirs", d.Upload.PruneEmptyDirs, "Remove empty directories after auto-delete")
	flags.Bool("fail-on-error", d.Upload.FailOnError, "Exit with an error when any file fails")
	flags.String("storage-class", "", "Storage class for uploaded objects")
	flags.String("acl", "", "Canned ACL for uploaded objects")
	flags.Bool("show-progress", d.Upload.ShowProgress, "Show progress display")
	flags.String("history", d.Upload.History, "Upload history database file (empty disables)")
	flags.String("metrics-addr", "", "Address for the Prometheus /metrics endpoint (empty disables)")
	flags.String("log-level", d.LogLevel, "Log level (debug/info/warn/error)")
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || flags.Lookup(name) == nil || !flags.Changed(name) {
			return
		}
		if applyErr := apply(); applyErr != nil {
			err = fmt.Errorf("flag --%s: %w", name, applyErr)
		}
	}
	str := func(name string, dst *string) {
		set(name, func() (e error) { *dst, e = flags.GetString(name); return })
	}
	boolean := func(name string, dst *bool) {
		set(name, func() (e error) { *dst, e = flags.GetBool(name); return })
	}
	integer := func(name string, dst *int) {
		set(name, func() (e error) { *dst, e = flags.GetInt(name); return })
	}
	int64Flag := func(name string, dst *int64) {
		set(name, func() (e error) { *dst, e = flags.GetInt64(name); return })
	}

	str("endpoint", &cfg.Target.Endpoint)
	str("access-key", &cfg.Target.AccessKey)
	str("secret-key", &cfg.Target.SecretKey)
	boolean("secure", &cfg.Target.Secure)
	str("region", &cfg.Target.Region)
	str("bucket", &cfg.Target.Bucket)

	str("prefix", &cfg.Upload.Prefix)
	str("output-root", &cfg.Upload.OutputRoot)
	set("include", func() (e error) { cfg.Upload.Include, e = flags.GetStringSlice("include"); return })
	integer("concurrency", &cfg.Upload.Concurrency)
	integer("retries", &cfg.Upload.Retries)
	integer("retry-backoff-ms", &cfg.Upload.RetryBackoffMs)
	int64Flag("multipart-threshold", &cfg.Upload.MultipartThreshold)
	int64Flag("part-size", &cfg.Upload.PartSize)
	set("timeout", func() (e error) { cfg.Upload.Timeout, e = flags.GetDuration("timeout"); return })
	boolean("overwrite", &cfg.Upload.Overwrite)
	boolean("no-cache", &cfg.Upload.NoCache)
	boolean("auto-delete", &cfg.Upload.AutoDelete)
	boolean("prune-empty-dirs", &cfg.Upload.PruneEmptyDirs)
	boolean("fail-on-error", &cfg.Upload.FailOnError)
	str("storage-class", &cfg.Upload.StorageClass)
	str("acl", &cfg.Upload.ACL)
	boolean("show-progress", &cfg.Upload.ShowProgress)
	str("history", &cfg.Upload.History)
	str("metrics-addr", &cfg.MetricsAddr)
	str("log-level", &cfg.LogLevel)

	return err
}

// Validate checks required fields and numeric bounds
func (c *Config) Validate() error {
	switch {
	case c.Target.Endpoint == "":
		return &ValidationError{Field: "target.endpoint", Reason: "is required"}
	case c.Target.AccessKey == "":
		return &ValidationError{Field: "target.access_key", Reason: "is required"}
	case c.Target.SecretKey == "":
		return &ValidationError{Field: "target.secret_key", Reason: "is required"}
	case c.Target.Bucket == "":
		return &ValidationError{Field: "target.bucket", Reason: "is required"}
	case c.Upload.OutputRoot == "":
		return &ValidationError{Field: "upload.output_root", Reason: "is required"}
	case c.Upload.Concurrency < 1:
		return &ValidationError{Field: "upload.concurrency", Reason: "must be at least 1"}
	case c.Upload.Retries < 1:
		return &ValidationError{Field: "upload.retries", Reason: "must be at least 1"}
	case c.Upload.RetryBackoffMs < 0:
		return &ValidationError{Field: "upload.retry_backoff_ms", Reason: "must not be negative"}
	case c.Upload.MultipartThreshold <= 0:
		return &ValidationError{Field: "upload.multipart_threshold", Reason: "must be positive"}
	case c.Upload.PartSize < MinPartSize:
		return &ValidationError{Field: "upload.part_size", Reason: "must be at least 5MB"}
	case c.Upload.Timeout <= 0:
		return &ValidationError{Field: "upload.timeout", Reason: "must be positive"}
	}

	return nil
}

// RetryBackoff returns the linear backoff step
func (u Upload) RetryBackoff() time.Duration {
	return time.Duration(u.RetryBackoffMs) * time.Millisecond
}
