package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPath      = "/etc/intercomd/config.yaml"
	DefaultHTTPAddr  = "0.0.0.0:8080"
	DefaultLogLevel  = "info"
	DefaultStatePath = "/var/lib/intercomd/auth/netatmo.json"

	DefaultMQTTTopicPrefix  = "intercomd"
	DefaultMQTTResetSeconds = 2
)

// Config is the daemon configuration loaded from YAML.
type Config struct {
	Core    CoreConfig     `yaml:"core"`
	Netatmo *NetatmoConfig `yaml:"netatmo"`
	Blob    *BlobConfig    `yaml:"blob"`
	MQTT    *MQTTConfig    `yaml:"mqtt"`
}

type CoreConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
}

// NetatmoConfig configures the intercom account. Secrets come through file
// indirection so the YAML itself stays free of credentials.
type NetatmoConfig struct {
	Username         string `yaml:"username"`
	PasswordFile     string `yaml:"password_file"`
	ClientID         string `yaml:"client_id"`
	ClientSecretFile string `yaml:"client_secret_file"`
	AuthURL          string `yaml:"auth_url"`
	APIURL           string `yaml:"api_url"`
	SetStateURL      string `yaml:"setstate_url"`
	StatePath        string `yaml:"state_path"`
}

// BlobConfig enables the S3 mirror for refresh-token state.
type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	Region        string `yaml:"region"`
	AccessKeyFile string `yaml:"access_key_file"`
	SecretKeyFile string `yaml:"secret_key_file"`
}

// MQTTConfig enables the Home Assistant bridge.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	TopicPrefix  string `yaml:"topic_prefix"`
	ResetSeconds int    `yaml:"reset_seconds"`
}

// Load parses the YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}
	if cfg.Netatmo != nil && cfg.Netatmo.StatePath == "" {
		cfg.Netatmo.StatePath = DefaultStatePath
	}
	if cfg.MQTT != nil {
		if cfg.MQTT.TopicPrefix == "" {
			cfg.MQTT.TopicPrefix = DefaultMQTTTopicPrefix
		}
		if cfg.MQTT.ResetSeconds == 0 {
			cfg.MQTT.ResetSeconds = DefaultMQTTResetSeconds
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	switch cfg.Core.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("core.log_level %q is not one of debug, info, warn, error", cfg.Core.LogLevel)
	}

	if cfg.Netatmo == nil {
		return fmt.Errorf("netatmo config is required")
	}
	if cfg.Netatmo.Username == "" {
		return fmt.Errorf("netatmo.username is required")
	}
	if cfg.Netatmo.PasswordFile == "" {
		return fmt.Errorf("netatmo.password_file is required")
	}
	if cfg.Netatmo.ClientID == "" {
		return fmt.Errorf("netatmo.client_id is required")
	}
	if cfg.Netatmo.ClientSecretFile == "" {
		return fmt.Errorf("netatmo.client_secret_file is required")
	}

	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required")
		}
		if cfg.MQTT.ResetSeconds < 0 {
			return fmt.Errorf("mqtt.reset_seconds must not be negative")
		}
	}

	return nil
}

// ReadSecretFile resolves a *_file indirection to its trimmed contents.
func ReadSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}
