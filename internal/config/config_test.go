package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Target = TargetConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "artifacts",
	}
	return cfg
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, int64(10*MiB), cfg.Upload.MultipartThreshold)
	assert.Equal(t, int64(MinPartSize), cfg.Upload.PartSize)
	assert.Equal(t, 3, cfg.Upload.Retries)
	assert.True(t, cfg.Upload.FailOnError)
	assert.False(t, cfg.Upload.Overwrite)
	assert.True(t, cfg.Target.Secure)
	assert.Equal(t, time.Second, cfg.Upload.RetryBackoff())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Target.Endpoint = "" }, field: "target.endpoint"},
		{name: "missing access key", mutate: func(c *Config) { c.Target.AccessKey = "" }, field: "target.access_key"},
		{name: "missing secret key", mutate: func(c *Config) { c.Target.SecretKey = "" }, field: "target.secret_key"},
		{name: "missing bucket", mutate: func(c *Config) { c.Target.Bucket = "" }, field: "target.bucket"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Upload.Concurrency = 0 }, field: "upload.concurrency"},
		{name: "zero retries", mutate: func(c *Config) { c.Upload.Retries = 0 }, field: "upload.retries"},
		{name: "zero threshold", mutate: func(c *Config) { c.Upload.MultipartThreshold = 0 }, field: "upload.multipart_threshold"},
		{name: "small part size", mutate: func(c *Config) { c.Upload.PartSize = MiB }, field: "upload.part_size"},
		{name: "negative backoff", mutate: func(c *Config) { c.Upload.RetryBackoffMs = -1 }, field: "upload.retry_backoff_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoadFileThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
target:
  endpoint: s3.example.com
  access_key: file-ak
  secret_key: file-sk
  bucket: from-file
upload:
  prefix: releases/v1
  concurrency: 4
  timeout: 30s
  include:
    - "*.js"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := newFlags(t, "--bucket", "from-flag", "--retries", "7", "--no-cache")

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "s3.example.com", cfg.Target.Endpoint)
	assert.Equal(t, "from-flag", cfg.Target.Bucket)
	assert.Equal(t, "releases/v1", cfg.Upload.Prefix)
	assert.Equal(t, 4, cfg.Upload.Concurrency)
	assert.Equal(t, 7, cfg.Upload.Retries)
	assert.Equal(t, 30*time.Second, cfg.Upload.Timeout)
	assert.Equal(t, []string{"*.js"}, cfg.Upload.Include)
	assert.True(t, cfg.Upload.NoCache)
	// Unchanged flags keep file/default values.
	assert.Equal(t, int64(10*MiB), cfg.Upload.MultipartThreshold)
}

func TestLoadCredentialsFromEnv(t *testing.T) {
	t.Setenv(envAccessKey, "env-ak")
	t.Setenv(envSecretKey, "env-sk")

	flags := newFlags(t, "--endpoint", "localhost:9000", "--bucket", "b")

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "env-ak", cfg.Target.AccessKey)
	assert.Equal(t, "env-sk", cfg.Target.SecretKey)
}

func TestLoadSecure(t *testing.T) {
	base := []string{"--endpoint", "localhost:9000", "--access-key", "a", "--secret-key", "s", "--bucket", "b"}

	flags := newFlags(t, base...)
	secure, err := flags.GetBool("secure")
	require.NoError(t, err)
	assert.True(t, secure)

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.True(t, cfg.Target.Secure, "loaded value matches the flag default")

	cfg, err = Load("", newFlags(t, append(base, "--secure=false")...))
	require.NoError(t, err)
	assert.False(t, cfg.Target.Secure)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target:\n  secure: false\n"), 0o600))
	cfg, err = Load(path, newFlags(t, base...))
	require.NoError(t, err)
	assert.False(t, cfg.Target.Secure)
}

func TestLoadRejectsInvalid(t *testing.T) {
	flags := newFlags(t, "--endpoint", "localhost:9000", "--access-key", "a", "--secret-key", "s", "--bucket", "b", "--concurrency", "0")

	_, err := Load("", flags)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
}
