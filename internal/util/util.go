package util

import (
	"encoding/json"
	"os"
	"time"

	"github.com/gymstack/presenced/internal/logger"
)

// MongoConfig holds the training-records database settings.
type MongoConfig struct {
	URI            string `json:"uri"`
	Database       string `json:"database"`
	Collection     string `json:"collection"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout returns the per-operation deadline for Mongo calls.
func (m MongoConfig) Timeout() time.Duration {
	if m.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// Config is the full server configuration.
type Config struct {
	Addr    string           `json:"addr"`
	NatsURL string           `json:"nats_url"`
	Mongo   MongoConfig      `json:"mongo"`
	Logger  logger.LogConfig `json:"logger"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Addr:    ":8080",
		NatsURL: "nats://127.0.0.1:4222",
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "gymstack",
			Collection:     "training_records",
			TimeoutSeconds: 5,
		},
		Logger: logger.DefaultLogConfig(),
	}
}

// LoadConfig loads the server configuration from a JSON file. A missing file
// is not an error; defaults are returned. Environment variables NATS_URL and
// MONGO_URI override the file values when set.
func LoadConfig(filePath string) (Config, error) {
	config := DefaultConfig()
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&config)
			return config, nil
		}
		return config, err
	}
	defer file.Close()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return config, err
	}
	applyEnvOverrides(&config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if url := os.Getenv("NATS_URL"); url != "" {
		config.NatsURL = url
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		config.Mongo.URI = uri
	}
}
