// Package config assembles the command line's runtime configuration from
// flags, environment variables, an optional config file and a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"golang-redflag-service/internal/reporter"
	"golang-redflag-service/internal/store"
	"golang-redflag-service/pkg/errors"
	"golang-redflag-service/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. REDFLAG_STORE_DSN.
const EnvPrefix = "REDFLAG"

// Config is the complete runtime configuration.
type Config struct {
	Log       logger.Config   `mapstructure:"log"`
	Store     store.Config    `mapstructure:"store"`
	Server    ServerConfig    `mapstructure:"server"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RulesConfig points at an optional YAML rule book.
type RulesConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// NormalizeConfig configures row normalization.
type NormalizeConfig struct {
	// Timezone applies to source timestamps without an explicit zone.
	Timezone string `mapstructure:"timezone"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", string(logger.InfoLevel))
	v.SetDefault("log.format", string(logger.TextFormat))
	v.SetDefault("log.output", string(logger.StderrOutput))
	v.SetDefault("store.driver", store.DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.cache_items", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("rules.file", "")
	v.SetDefault("rules.watch", false)
	v.SetDefault("normalize.timezone", "UTC")
}

// BindEnv makes every key readable from REDFLAG_ prefixed variables, with
// dots replaced by underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads path into the process environment when it exists.
// Variables already set are not overridden.
func LoadDotEnv(fs afero.Fs, path string) error {
	if path == "" {
		return nil
	}
	exists, err := afero.Exists(fs, path)
	if err != nil || !exists {
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "dotenv", path, err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", nil, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log.Level, err)
	}

	switch strings.ToLower(c.Store.Driver) {
	case store.DriverMemory:
	case store.DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "store.dsn", "", nil).
				WithSuggestion("set REDFLAG_STORE_DSN to a PostgreSQL connection string")
		}
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "store.driver", c.Store.Driver, nil).
			WithSuggestion("use memory or postgres")
	}
	if c.Store.CacheItems < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "store.cache_items", c.Store.CacheItems, nil)
	}

	if c.Rules.Watch && c.Rules.File == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "rules.file", "", nil).
			WithSuggestion("rules.watch needs a rule book file")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the normalization timezone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Normalize.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Normalize.Timezone)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "normalize.timezone", c.Normalize.Timezone, err)
	}
	return loc, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format string) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()

	switch reporter.OutputFormat(format) {
	case reporter.FormatConsole:
		config.Format = reporter.FormatConsole
	case reporter.FormatJSON:
		config.Format = reporter.FormatJSON
	case reporter.FormatCSV:
		config.Format = reporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeCounterparties = false // CSV is for alert rows
		config.IncludeMethods = false
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format,
			fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", format))
	}

	return config, nil
}
