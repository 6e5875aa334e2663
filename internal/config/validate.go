package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	if err := c.Backup.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if c.Jobs.Workers < 1 {
		errs = append(errs, fmt.Errorf("jobs.workers must be at least 1, got %d", c.Jobs.Workers))
	}
	if c.Jobs.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("jobs.buffer_size must be at least 1, got %d", c.Jobs.BufferSize))
	}
	if c.Jobs.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("jobs.max_retries must not be negative, got %d", c.Jobs.MaxRetries))
	}

	return errors.Join(errs...)
}

// Validate checks backend-specific settings.
func (c BackupConfig) Validate() error {
	if strings.TrimSpace(c.FileName) == "" || strings.ContainsAny(c.FileName, `/\`) {
		return fmt.Errorf("backup.file_name %q must be a plain file name", c.FileName)
	}
	if c.StatusTTL < 0 {
		return fmt.Errorf("backup.status_ttl must not be negative")
	}

	switch c.Backend {
	case BackendDrive:
		if c.CredentialsFile == "" || c.TokenFile == "" {
			return errors.New("backup: drive backend needs credentials_file and token_file")
		}
	case BackendGCS:
		if c.Bucket == "" {
			return errors.New("backup: gcs backend needs bucket")
		}
	case BackendDir:
		if c.Dir == "" {
			return errors.New("backup: dir backend needs dir")
		}
	default:
		return fmt.Errorf("backup: unknown backend %q", c.Backend)
	}

	return nil
}
