package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validYAML = `
core:
  http_addr: "127.0.0.1:9090"
netatmo:
  username: user@example.com
  password_file: /run/secrets/netatmo-password
  client_id: client-id
  client_secret_file: /run/secrets/netatmo-secret
mqtt:
  broker: tcp://broker.local:1883
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Core.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("unexpected http addr: %s", cfg.Core.HTTPAddr)
	}
	if cfg.Core.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level, got %s", cfg.Core.LogLevel)
	}
	if cfg.Netatmo.StatePath != DefaultStatePath {
		t.Fatalf("expected default state path, got %s", cfg.Netatmo.StatePath)
	}
	if cfg.MQTT.TopicPrefix != DefaultMQTTTopicPrefix {
		t.Fatalf("expected default topic prefix, got %s", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.ResetSeconds != DefaultMQTTResetSeconds {
		t.Fatalf("expected default reset seconds, got %d", cfg.MQTT.ResetSeconds)
	}
	if cfg.Blob != nil {
		t.Fatalf("blob should be absent")
	}
}

func TestParseRejectsIncompleteNetatmo(t *testing.T) {
	_, err := Parse([]byte(`
netatmo:
  username: user@example.com
`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseRejectsUnknownLogLevel(t *testing.T) {
	_, err := Parse([]byte(`
core:
  log_level: loud
netatmo:
  username: user@example.com
  password_file: /run/secrets/netatmo-password
  client_id: client-id
  client_secret_file: /run/secrets/netatmo-secret
`))
	if err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestParseRejectsMissingNetatmo(t *testing.T) {
	if _, err := Parse([]byte(`core: {http_addr: ":8080"}`)); err == nil {
		t.Fatalf("expected error for missing netatmo block")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReadSecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	secret, err := ReadSecretFile(path)
	if err != nil {
		t.Fatalf("read secret: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("unexpected secret: %q", secret)
	}

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte(" \n"), 0o600); err != nil {
		t.Fatalf("write empty: %v", err)
	}
	if _, err := ReadSecretFile(empty); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
