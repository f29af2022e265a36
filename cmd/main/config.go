package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/Pronostico/pkg/dataset"
	"github.com/CTAG07/Pronostico/pkg/markov"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the API server and the database.
type ServerConfig struct {
	ApiAddr        string `json:"api_addr"`
	LogLevel       string `json:"log_level"`
	DatabaseDriver string `json:"database_driver"`
	DatabasePath   string `json:"database_path"`
	MetricsEnabled bool   `json:"metrics_enabled"`
}

// DataConfig holds the settings used to read and generate observation logs.
type DataConfig struct {
	Source  string               `json:"source"`
	Columns dataset.Columns      `json:"columns"`
	Seed    uint64               `json:"seed"`
	Days    int                  `json:"days"`
	Weights []markov.StateWeight `json:"weights"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig     `json:"server_config"`
	Data   *DataConfig       `json:"data_config"`
	S3     *dataset.S3Config `json:"s3_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:        ":7278",
		LogLevel:       "info",
		DatabaseDriver: "sqlite",
		DatabasePath:   "./data/pronostico.db?_journal_mode=WAL&_busy_timeout=5000",
		MetricsEnabled: true,
	}
}

// DefaultDataConfig generates 100 days into datos.csv with the default weights.
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		Source:  "datos.csv",
		Columns: dataset.DefaultColumns(),
		Seed:    0,
		Days:    100,
		Weights: markov.DefaultWeights(),
	}
}

// DefaultConfig returns a full configuration with every section set to its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfig(),
		Data:   DefaultDataConfig(),
		S3:     &dataset.S3Config{Region: "us-east-1"},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Still usable with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	// A file may omit whole sections.
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Data == nil {
		config.Data = DefaultDataConfig()
	}
	if config.S3 == nil {
		config.S3 = DefaultConfig().S3
	}
	return config, nil
}

// sourceOptions builds the dataset options shared by every command that loads a log.
func (c *Config) sourceOptions() dataset.Options {
	return dataset.Options{Columns: c.Data.Columns, S3: *c.S3}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
