// Package currency maintains the exchange-rate snapshot the pricing
// views divide by.
package currency

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines the currency refresh job settings.
type Config struct {
	SourceURL string `yaml:"source_url"`
	Base      string `yaml:"base"`
	DailyAt   string `yaml:"daily_at"`
}

// LoadConfig loads config from yaml or env. A CURRENCY_CONFIG yaml file
// overrides the defaults, env fills the remaining blanks.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("CURRENCY_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.SourceURL == "" {
		cfg.SourceURL = getenvDefault("CURRENCY_SOURCE_URL", "https://api.exchangerate-api.com/v4/latest")
	}
	if cfg.Base == "" {
		cfg.Base = getenvDefault("CURRENCY_BASE", "USD")
	}
	if cfg.DailyAt == "" {
		cfg.DailyAt = getenvDefault("CURRENCY_DAILY_AT", "00:00")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
