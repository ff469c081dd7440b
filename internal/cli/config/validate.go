package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks if the configuration is complete enough to import.
func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required (set SURREALDB_ENDPOINT or --endpoint)"))
	} else if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q is not an absolute URL", c.Endpoint))
	}
	if c.Namespace == "" {
		errs = append(errs, errors.New("namespace is required (set SURREALDB_NAMESPACE or --namespace)"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required (set SURREALDB_DATABASE or --database)"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.BatchBytes <= 0 {
		errs = append(errs, fmt.Errorf("batch_bytes must be positive, got %d", c.BatchBytes))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
