package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	defaults := DefaultConfig()
	if config.Addr != defaults.Addr || config.Mongo.Database != defaults.Mongo.Database {
		t.Errorf("LoadConfig() = %+v, want defaults", config)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		"addr": ":9090",
		"nats_url": "nats://nats.internal:4222",
		"mongo": {"uri": "mongodb://db:27017", "database": "gym", "collection": "records"},
		"logger": {"level": "debug"}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", config.Addr)
	}
	if config.Mongo.Collection != "records" {
		t.Errorf("Mongo.Collection = %q, want records", config.Mongo.Collection)
	}
	if config.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", config.Logger.Level)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("NATS_URL", "nats://override:4222")
	t.Setenv("MONGO_URI", "mongodb://override:27017")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if config.NatsURL != "nats://override:4222" {
		t.Errorf("NatsURL = %q, want env override", config.NatsURL)
	}
	if config.Mongo.URI != "mongodb://override:27017" {
		t.Errorf("Mongo.URI = %q, want env override", config.Mongo.URI)
	}
}
