package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the per-invocation configuration loaded from a YAML file.
type Config struct {
	Database    DBConfig `yaml:"database"`
	LedgerTable string   `yaml:"ledger_table"`
	LogLevel    string   `yaml:"log_level"`
}

// DBConfig points the runner at the scheduling database.
type DBConfig struct {
	Provider string `yaml:"provider"`
	DSN      string `yaml:"dsn"`
}

const defaultLedgerTable = "schedule_schema_migrations"

// Load reads the config file at path. SCHED_MIGRATOR_DB_DSN overrides the
// DSN so credentials can stay out of the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if dsn := os.Getenv("SCHED_MIGRATOR_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if cfg.LedgerTable == "" {
		cfg.LedgerTable = defaultLedgerTable
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Provider == "" {
		return errors.New("database.provider is required (postgres or mysql)")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (or set SCHED_MIGRATOR_DB_DSN)")
	}
	return nil
}
