// Package config loads configuration from a YAML file and environment
// variables. Environment variables (EV_EXTRACTOR_*) win over the file, and
// every setting has a default, so the file is optional.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the extractor.
type Config struct {
	DBPath string `yaml:"db_path"`

	EmailDir        string `yaml:"email_dir"`
	EmailSearchDays int    `yaml:"email_search_days"`

	TeslaPDFDir string `yaml:"tesla_pdf_dir"`

	EVCCEnabled bool   `yaml:"evcc_enabled"`
	EVCCURL     string `yaml:"evcc_url"`

	HomeElectricityRate float64 `yaml:"home_electricity_rate"` // $/kWh for home sessions
	DefaultCurrency     string  `yaml:"default_currency"`
	MinimumCost         float64 `yaml:"minimum_cost"`

	CSVPath string `yaml:"csv_path"`
	Workers int    `yaml:"workers"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DBPath:              "ev_charging.db",
		EmailSearchDays:     30,
		EVCCURL:             "http://localhost:7070",
		HomeElectricityRate: 0.25,
		DefaultCurrency:     "AUD",
		MinimumCost:         0.10,
		CSVPath:             "ev_charging_receipts.csv",
		Workers:             4,
	}
}

// Load reads the YAML file at path (skipped when empty or missing) and then
// applies EV_EXTRACTOR_* environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// optional file
		case err != nil:
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config YAML: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "AUD"
	}
	cfg.DefaultCurrency = strings.ToUpper(cfg.DefaultCurrency)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.EmailSearchDays < 1 {
		cfg.EmailSearchDays = 1
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DBPath, "EV_EXTRACTOR_DB_PATH")
	setString(&cfg.EmailDir, "EV_EXTRACTOR_EMAIL_DIR")
	setInt(&cfg.EmailSearchDays, "EV_EXTRACTOR_EMAIL_SEARCH_DAYS")
	setString(&cfg.TeslaPDFDir, "EV_EXTRACTOR_TESLA_PDF_DIR")
	setBool(&cfg.EVCCEnabled, "EV_EXTRACTOR_EVCC_ENABLED")
	setString(&cfg.EVCCURL, "EV_EXTRACTOR_EVCC_URL")
	setFloat(&cfg.HomeElectricityRate, "EV_EXTRACTOR_HOME_RATE")
	setString(&cfg.DefaultCurrency, "EV_EXTRACTOR_CURRENCY")
	setFloat(&cfg.MinimumCost, "EV_EXTRACTOR_MINIMUM_COST")
	setString(&cfg.CSVPath, "EV_EXTRACTOR_CSV_PATH")
	setInt(&cfg.Workers, "EV_EXTRACTOR_WORKERS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
