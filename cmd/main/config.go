package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/charlm/pkg/ngram"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the process-level settings: logging, storage and the optional API.
type ServerConfig struct {
	LogLevel     string `json:"log_level"`
	DatabasePath string `json:"database_path"`
	ApiAddr      string `json:"api_addr"`
}

// ModelConfig describes which model to use and how to train it when it is missing.
type ModelConfig struct {
	Name             string `json:"name"`
	CorpusPath       string `json:"corpus_path"`
	Order            int    `json:"order"`
	TrainConcurrency int    `json:"train_concurrency"`
	Retrain          bool   `json:"retrain"`
}

// GenerationConfig holds the settings for the text printed at startup.
type GenerationConfig struct {
	Length     int    `json:"length"`
	Seed       string `json:"seed"`
	Selector   string `json:"selector"`
	RandomSeed uint64 `json:"random_seed"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config"`
	Model      *ModelConfig      `json:"model_config"`
	Generation *GenerationConfig `json:"generation_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			LogLevel:     "info",
			DatabasePath: "./data/charlm.db?_journal_mode=WAL&_busy_timeout=5000",
			ApiAddr:      "",
		},
		Model: &ModelConfig{
			Name:             "titles",
			CorpusPath:       "./data/titles.txt",
			Order:            5,
			TrainConcurrency: 0,
			Retrain:          false,
		},
		Generation: &GenerationConfig{
			Length:     20,
			Seed:       "star w",
			Selector:   "argmax",
			RandomSeed: 1,
		},
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
				// The process can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

// Validate rejects configurations the driver cannot act on.
func (c *Config) Validate() error {
	if c.Server == nil || c.Model == nil || c.Generation == nil {
		return fmt.Errorf("server_config, model_config and generation_config are required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.Order <= 0 {
		return fmt.Errorf("model order %d: %w", c.Model.Order, ngram.ErrInvalidOrder)
	}
	if c.Generation.Length < 0 {
		return fmt.Errorf("generation length %d: %w", c.Generation.Length, ngram.ErrInvalidLength)
	}
	if _, err := newSelector(c.Generation.Selector, c.Generation.RandomSeed); err != nil {
		return err
	}
	return nil
}

// newSelector maps a configured policy name to its implementation.
func newSelector(name string, seed uint64) (ngram.Selector, error) {
	switch strings.ToLower(name) {
	case "", "argmax":
		return ngram.ArgMax{}, nil
	case "weighted":
		return ngram.NewWeightedRandom(seed), nil
	default:
		return nil, fmt.Errorf("unknown selector %q, expected \"argmax\" or \"weighted\"", name)
	}
}

// parseLogLevel maps a configured level name to a slog.Level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
