package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the OTA orchestrator.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Artifacts ArtifactConfig
	MQTT      MQTTConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Host       string
	Port       int
	PublicBase string
	Env        string
}

type AuthConfig struct {
	ValidateURL     string
	RequiredService string
	Timeout         time.Duration
}

type ArtifactConfig struct {
	Dir string
}

type MQTTConfig struct {
	URL               string
	Host              string
	Port              int
	Username          string
	Password          string
	ClientID          string
	TopicPrefix       string
	CAPath            string
	CertPath          string
	KeyPath           string
	KeepAlive         time.Duration
	PublishTimeout    time.Duration
	ReconnectInterval time.Duration
}

type RedisConfig struct {
	URL            string
	RequestsPerMin int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:       envString("OTAHUB_HOST", "0.0.0.0"),
			Port:       envInt("OTAHUB_PORT", 8090),
			PublicBase: envString("OTAHUB_PUBLIC_BASE", "http://localhost:8090"),
			Env:        envString("OTAHUB_ENV", "development"),
		},
		Auth: AuthConfig{
			ValidateURL:     os.Getenv("AUTH_VALIDATE_URL"),
			RequiredService: envString("AUTH_REQUIRED_SERVICE", "otahub"),
			Timeout:         envDuration("AUTH_TIMEOUT", 10*time.Second),
		},
		Artifacts: ArtifactConfig{
			Dir: os.Getenv("OTAHUB_ARTIFACT_DIR"),
		},
		MQTT: MQTTConfig{
			URL:               os.Getenv("MQTT_URL"),
			Host:              envString("MQTT_HOST", "localhost"),
			Port:              envInt("MQTT_PORT", 1883),
			Username:          os.Getenv("MQTT_USERNAME"),
			Password:          os.Getenv("MQTT_PASSWORD"),
			ClientID:          envString("MQTT_CLIENT_ID", "otahub"),
			TopicPrefix:       envString("MQTT_TOPIC_PREFIX", "devices/"),
			CAPath:            os.Getenv("MQTT_CA_PATH"),
			CertPath:          os.Getenv("MQTT_CERT_PATH"),
			KeyPath:           os.Getenv("MQTT_KEY_PATH"),
			KeepAlive:         envDuration("MQTT_KEEPALIVE", 30*time.Second),
			PublishTimeout:    envDuration("MQTT_PUBLISH_TIMEOUT", 10*time.Second),
			ReconnectInterval: envDuration("MQTT_RECONNECT_INTERVAL", 2*time.Second),
		},
		Redis: RedisConfig{
			URL:            os.Getenv("REDIS_URL"),
			RequestsPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
	}

	// Topic prefix must end with a slash so <prefix><device_id> splits cleanly.
	if !strings.HasSuffix(cfg.MQTT.TopicPrefix, "/") {
		cfg.MQTT.TopicPrefix += "/"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.ValidateURL == "" {
		return fmt.Errorf("AUTH_VALIDATE_URL is required")
	}
	if !strings.HasPrefix(c.Auth.ValidateURL, "http://") && !strings.HasPrefix(c.Auth.ValidateURL, "https://") {
		return fmt.Errorf("AUTH_VALIDATE_URL must start with http:// or https://, got %q", c.Auth.ValidateURL)
	}

	if c.Artifacts.Dir == "" {
		return fmt.Errorf("OTAHUB_ARTIFACT_DIR is required")
	}

	if c.MQTT.URL != "" {
		if _, err := url.Parse(c.MQTT.URL); err != nil {
			return fmt.Errorf("MQTT_URL is not a valid URL: %v", err)
		}
	}

	return nil
}

// BrokerURL returns the broker address for the MQTT client. MQTT_URL wins when
// set; otherwise the address is assembled from host, port, and whether a CA
// bundle is configured (TLS implies the ssl scheme).
func (m MQTTConfig) BrokerURL() string {
	if m.URL != "" {
		return m.URL
	}
	scheme := "tcp"
	if m.CAPath != "" {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, m.Host, m.Port)
}

func envString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
