// Package config loads and validates the workspace configuration.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wlwd13303/panda-quantflow/internal/types"
	"github.com/wlwd13303/panda-quantflow/pkg/errors"
)

// Config is the workspace configuration, normally loaded from a YAML file.
type Config struct {
	// ServerURL is the base URL of the QuantFlow backend.
	ServerURL string `yaml:"server_url" json:"server_url" jsonschema:"title=Server URL,description=Base URL of the backtest backend" validate:"required,url"`
	// PollIntervalMs is the progress poll period in milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms" jsonschema:"title=Poll Interval,description=Backtest progress poll period in milliseconds,minimum=100" validate:"gte=100"`
	// TimeoutSeconds bounds each backend request.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds" jsonschema:"title=Request Timeout,description=Per-request timeout in seconds,minimum=1" validate:"gte=1"`
	// Backtest holds the default run parameters for new backtests.
	Backtest types.BacktestConfig `yaml:"backtest" json:"backtest" jsonschema:"title=Backtest Defaults,description=Default parameters for new backtest runs"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		ServerURL:      "http://127.0.0.1:8000",
		PollIntervalMs: 2000,
		TimeoutSeconds: 30,
		Backtest: types.BacktestConfig{
			StartCapital:   10000000,
			StartDate:      "20240101",
			EndDate:        "20240331",
			Frequency:      "1d",
			CommissionRate: 1,
			StandardSymbol: "000300.SH",
			MatchingType:   0,
		},
	}
}

// LoadConfig reads a YAML config file, filling unset fields from the
// defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes over the defaults and validates the
// result.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	return nil
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GenerateSchema generates a JSON schema for the Config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.Reflect(c)
	schema.Title = "panda-quantflow-workspace-config"
	schema.Description = "Configuration schema for the backtest workspace"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the Config.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
