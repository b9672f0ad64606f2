// Package config loads foodspend settings from an optional JSON file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when present and no explicit config path is given.
const DefaultFile = "foodspend.json"

// EnvPrefix is stripped from environment variables before they are matched to keys.
const EnvPrefix = "FOODSPEND_"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	// Driver selects the store backend.
	// Environment variable: FOODSPEND_DB_DRIVER
	Driver string `koanf:"db_driver" validate:"required,oneof=sqlite postgres"`

	// DBPath is the SQLite database file.
	// Environment variable: FOODSPEND_DB_PATH
	DBPath string `koanf:"db_path" validate:"required_if=Driver sqlite"`

	// PostgreSQL connection settings, used when Driver is postgres.
	PostgresHost     string `koanf:"postgres_host" validate:"required_if=Driver postgres"`
	PostgresPort     int    `koanf:"postgres_port" validate:"gte=0,lte=65535"`
	PostgresDB       string `koanf:"postgres_db" validate:"required_if=Driver postgres"`
	PostgresUser     string `koanf:"postgres_user" validate:"required_if=Driver postgres"`
	PostgresPassword string `koanf:"postgres_password"`
	PostgresSSLMode  string `koanf:"postgres_sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`

	// ConnectAttempts bounds how often the store connection is retried on startup.
	ConnectAttempts uint `koanf:"connect_attempts"`

	// Timezone is used to read dates printed in emails and to bucket orders
	// into calendar years and months.
	Timezone string `koanf:"timezone" validate:"required"`

	// Locale drives currency formatting in reports (BCP 47 tag).
	Locale string `koanf:"locale" validate:"required,bcp47_language_tag"`

	// Services lists extractor names in the order they are tried.
	// Empty means every enabled rule in file order.
	Services []string `koanf:"services"`

	// RulesFile replaces the embedded extraction rules when set.
	RulesFile string `koanf:"rules_file" validate:"omitempty,file"`

	LogLevel string `koanf:"log_level"`
	LogJSON  bool   `koanf:"log_json"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Driver:          DriverSQLite,
		DBPath:          "foodspend.db",
		PostgresPort:    5432,
		PostgresSSLMode: "disable",
		ConnectAttempts: 5,
		Timezone:        "Asia/Kolkata",
		Locale:          "en-IN",
	}
}

// Load reads configuration from path (or DefaultFile when path is empty and
// the file exists), then overlays FOODSPEND_* environment variables.
// Unset keys keep their Default values.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if explicit {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// envKey maps FOODSPEND_DB_PATH to db_path.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate checks the configuration for missing or inconsistent values.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// Location returns the configured time zone. Validate first.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
