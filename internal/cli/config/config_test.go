package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, 1_000_000, cfg.BatchBytes)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, "data", cfg.DumpDir)
	assert.Equal(t, DefaultStateFile, cfg.StatePath)
	assert.Equal(t, "not executed due to a failed transaction", cfg.SecondaryErrorPhrase)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_File(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, `endpoint: http://db.internal:8000/
namespace: prod
database: main
workers: 4
batch_bytes: 2000000
timeout: 90s
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://db.internal:8000", cfg.Endpoint, "trailing slash is trimmed")
	assert.Equal(t, "prod", cfg.Namespace)
	assert.Equal(t, "main", cfg.Database)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2_000_000, cfg.BatchBytes)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, path, GetConfigFileUsed())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	ResetConfig()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadConfig_SurrealDBEnv(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	t.Setenv("SURREALDB_ENDPOINT", "http://localhost:8000")
	t.Setenv("SURREALDB_USERNAME", "root")
	t.Setenv("SURREALDB_PASSWORD", "root-pass")
	t.Setenv("SURREALDB_NAMESPACE", "ns")
	t.Setenv("SURREALDB_DATABASE", "db")
	t.Setenv("SURREALDB_WORKERS", "99") // not a connection key

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Endpoint)
	assert.Equal(t, "root", cfg.Username)
	assert.Equal(t, "root-pass", cfg.Password)
	assert.Equal(t, "ns", cfg.Namespace)
	assert.Equal(t, "db", cfg.Database)
	assert.Equal(t, 10, cfg.Workers)
}

func TestLoadConfig_PrefixedEnvOverridesSurrealDB(t *testing.T) {
	ResetConfig()
	t.Chdir(t.TempDir())
	t.Setenv("SURREALDB_NAMESPACE", "from_surreal")
	t.Setenv("DUMPIMPORT_NAMESPACE", "from_dumpimport")
	t.Setenv("DUMPIMPORT_BATCH_BYTES", "4096")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from_dumpimport", cfg.Namespace)
	assert.Equal(t, 4096, cfg.BatchBytes)
}

func TestLoadConfig_FlagPrecedence(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "workers: 2\nnamespace: from_file\n")
	t.Setenv("DUMPIMPORT_WORKERS", "3")
	t.Setenv("DUMPIMPORT_NAMESPACE", "from_env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 10, "workers")
	flags.String("namespace", "", "namespace")
	flags.String("state", "", "state path")
	require.NoError(t, flags.Set("workers", "7"))
	require.NoError(t, flags.Set("state", "/tmp/ckpt.db"))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Workers, "flag value should override config file and env var")
	assert.Equal(t, "from_env", cfg.Namespace, "env var should be used when flag is not set")
	assert.Equal(t, "/tmp/ckpt.db", cfg.StatePath, "--state maps to state_path")
}

func TestLoadConfig_EnvPrecedenceOverFile(t *testing.T) {
	ResetConfig()
	path := writeConfig(t, "database: from_file\n")
	t.Setenv("SURREALDB_DATABASE", "from_env")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Database, "env var should override config file")
}

func TestLoadConfig_ExpandsPassword(t *testing.T) {
	ResetConfig()
	t.Setenv("IMPORT_TEST_SECRET", "s3cret")
	path := writeConfig(t, "password: ${IMPORT_TEST_SECRET}\nusername: ${IMPORT_TEST_UNSET}\n")

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "${IMPORT_TEST_UNSET}", cfg.Username)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR_ONE", "value_one")
	t.Setenv("TEST_VAR_TWO", "value_two")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "single variable", input: "${TEST_VAR_ONE}", expected: "value_one"},
		{name: "multiple variables", input: "${TEST_VAR_ONE}/${TEST_VAR_TWO}", expected: "value_one/value_two"},
		{name: "unset variable stays as-is", input: "${UNSET_VARIABLE}", expected: "${UNSET_VARIABLE}"},
		{name: "no variables", input: "plain string", expected: "plain string"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandEnvVars(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Endpoint:   "http://localhost:8000",
			Namespace:  "ns",
			Database:   "db",
			Workers:    10,
			BatchBytes: 1_000_000,
			LogFormat:  "text",
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }, errSubstr: "endpoint is required"},
		{name: "relative endpoint", mutate: func(c *Config) { c.Endpoint = "localhost:8000" }, errSubstr: "not an absolute URL"},
		{name: "missing namespace", mutate: func(c *Config) { c.Namespace = "" }, errSubstr: "namespace is required"},
		{name: "missing database", mutate: func(c *Config) { c.Database = "" }, errSubstr: "database is required"},
		{name: "zero workers", mutate: func(c *Config) { c.Workers = 0 }, errSubstr: "workers must be positive"},
		{name: "negative batch", mutate: func(c *Config) { c.BatchBytes = -1 }, errSubstr: "batch_bytes must be positive"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, errSubstr: "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, GetLogger(ctx))
	assert.Equal(t, 10, GetConfig(ctx).Workers, "defaults without a loaded config")

	cfg := &Config{Namespace: "ns"}
	ctx = WithConfig(ctx, cfg)
	assert.Same(t, cfg, GetConfig(ctx))

	var buf bytes.Buffer
	logger := NewLogger(&Config{LogFormat: "json", Verbose: true}, &buf)
	ctx = WithLogger(ctx, logger)
	GetLogger(ctx).Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestConfig_Conversions(t *testing.T) {
	cfg := &Config{
		Endpoint: "http://x", Username: "u", Password: "p", Namespace: "n", Database: "d",
		Timeout: time.Second, BatchBytes: 5, Workers: 2, DumpDir: "out", SecondaryErrorPhrase: "cascade",
	}

	sc := cfg.SinkConfig()
	assert.Equal(t, "http://x", sc.Endpoint)
	assert.Equal(t, time.Second, sc.Timeout)

	ic := cfg.ImporterConfig("src", true)
	assert.Equal(t, "src", ic.Source)
	assert.True(t, ic.Resume)
	assert.Equal(t, "cascade", ic.SecondaryPhrase)
	assert.Equal(t, 2, ic.Workers)
}
