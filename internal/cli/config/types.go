// Package config loads the dumpimport configuration.
//
// Values are layered with koanf: built-in defaults, then the YAML config file,
// then environment variables, then explicitly set command-line flags.
package config

import (
	"time"

	"github.com/leapstack-labs/dumpimport/internal/importer"
	"github.com/leapstack-labs/dumpimport/internal/sink"
	"github.com/leapstack-labs/dumpimport/pkg/dump"
)

// Default configuration values.
const (
	DefaultConfigFile = "dumpimport.yaml"
	DefaultStateFile  = ".dumpimport/state.db"
	DefaultLogFormat  = "text"
)

// Config holds all configuration options.
type Config struct {
	// Target database
	Endpoint  string `koanf:"endpoint"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Namespace string `koanf:"namespace"`
	Database  string `koanf:"database"`

	// Import tuning
	BatchBytes           int           `koanf:"batch_bytes"`
	Workers              int           `koanf:"workers"`
	DumpDir              string        `koanf:"dump_dir"`
	StatePath            string        `koanf:"state_path"`
	SecondaryErrorPhrase string        `koanf:"secondary_error_phrase"`
	Timeout              time.Duration `koanf:"timeout"`

	Verbose   bool   `koanf:"verbose"`
	LogFormat string `koanf:"log_format"`
}

// Defaults returns the built-in configuration as a koanf map.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"batch_bytes":            dump.DefaultBatchBytes,
		"workers":                importer.DefaultWorkers,
		"dump_dir":               importer.DefaultDumpDir,
		"state_path":             DefaultStateFile,
		"secondary_error_phrase": importer.DefaultSecondaryPhrase,
		"timeout":                sink.DefaultTimeout.String(),
		"verbose":                false,
		"log_format":             DefaultLogFormat,
	}
}

// SinkConfig returns the HTTP client configuration.
func (c *Config) SinkConfig() sink.Config {
	return sink.Config{
		Endpoint:  c.Endpoint,
		Username:  c.Username,
		Password:  c.Password,
		Namespace: c.Namespace,
		Database:  c.Database,
		Timeout:   c.Timeout,
	}
}

// ImporterConfig returns the orchestrator configuration for the dump
// identified by source.
func (c *Config) ImporterConfig(source string, resume bool) importer.Config {
	return importer.Config{
		BatchBytes:      c.BatchBytes,
		Workers:         c.Workers,
		DumpDir:         c.DumpDir,
		SecondaryPhrase: c.SecondaryErrorPhrase,
		Source:          source,
		Resume:          resume,
	}
}
