package config

import (
	"net"
	"strconv"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Backup BackupConfig `yaml:"backup"`
	Server ServerConfig `yaml:"server"`
	Jobs   JobsConfig   `yaml:"jobs"`
	Log    LogConfig    `yaml:"log"`
	Export ExportConfig `yaml:"export"`
}

// StoreConfig holds the local database location.
type StoreConfig struct {
	Path string `yaml:"path" env:"STORE_PATH" env-default:"./data/piggyflow.db"`
}

// Backend names accepted by BackupConfig.Backend.
const (
	BackendDrive = "drive"
	BackendGCS   = "gcs"
	BackendDir   = "dir"
)

// BackupConfig holds remote backup settings.
type BackupConfig struct {
	Backend   string        `yaml:"backend"    env:"BACKUP_BACKEND"    env-default:"drive"`
	FileName  string        `yaml:"file_name"  env:"BACKUP_FILE_NAME"  env-default:"piggyflow_backup.db"`
	StatusTTL time.Duration `yaml:"status_ttl" env:"BACKUP_STATUS_TTL" env-default:"4s"`

	// Drive: OAuth client secrets and the token saved by the sign-in flow.
	CredentialsFile string `yaml:"credentials_file" env:"BACKUP_CREDENTIALS_FILE"`
	TokenFile       string `yaml:"token_file"       env:"BACKUP_TOKEN_FILE"`
	Endpoint        string `yaml:"endpoint"         env:"BACKUP_ENDPOINT"`

	// GCS.
	Bucket string `yaml:"bucket" env:"BACKUP_BUCKET"`
	Prefix string `yaml:"prefix" env:"BACKUP_PREFIX" env-default:"piggyflow/"`

	// Local directory backend.
	Dir string `yaml:"dir" env:"BACKUP_DIR" env-default:"./data/remote"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"30s"`
}

// JobsConfig holds background worker settings.
type JobsConfig struct {
	Workers    int `yaml:"workers"     env:"JOBS_WORKERS"     env-default:"2"`
	BufferSize int `yaml:"buffer_size" env:"JOBS_BUFFER_SIZE" env-default:"16"`
	MaxRetries int `yaml:"max_retries" env:"JOBS_MAX_RETRIES" env-default:"3"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}

// ExportConfig holds the BigQuery analytics export target.
type ExportConfig struct {
	ProjectID string `yaml:"project_id" env:"EXPORT_PROJECT_ID"`
	Dataset   string `yaml:"dataset"    env:"EXPORT_DATASET"    env-default:"piggyflow"`
	Table     string `yaml:"table"      env:"EXPORT_TABLE"      env-default:"transactions"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
