package config_test

import (
	"testing"
	"time"

	"github.com/otahub/otahub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv is a helper that sets environment variables for a test and restores them after.
func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

// validEnv returns the minimum set of valid environment variables.
func validEnv() map[string]string {
	return map[string]string{
		"AUTH_VALIDATE_URL":   "http://localhost:8080/auth/token/validate",
		"OTAHUB_ARTIFACT_DIR": "/artifacts",
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setEnv(t, validEnv())

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "http://localhost:8080/auth/token/validate", cfg.Auth.ValidateURL)
	assert.Equal(t, "otahub", cfg.Auth.RequiredService)
	assert.Equal(t, "/artifacts", cfg.Artifacts.Dir)
	assert.Equal(t, "devices/", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 10*time.Second, cfg.MQTT.PublishTimeout)
	assert.Equal(t, 2*time.Second, cfg.MQTT.ReconnectInterval)
}

func TestLoad_CustomPort(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("OTAHUB_PORT", "9191")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_TopicPrefixGetsTrailingSlash(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("MQTT_TOPIC_PREFIX", "fleet/devices")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "fleet/devices/", cfg.MQTT.TopicPrefix)
}

func TestLoad_MissingValidateURL(t *testing.T) {
	setEnv(t, map[string]string{"OTAHUB_ARTIFACT_DIR": "/artifacts"})

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_VALIDATE_URL")
}

func TestLoad_BadValidateURLScheme(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("AUTH_VALIDATE_URL", "ftp://auth.internal/validate")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http://")
}

func TestLoad_MissingArtifactDir(t *testing.T) {
	setEnv(t, map[string]string{"AUTH_VALIDATE_URL": "http://localhost:8080/validate"})

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTAHUB_ARTIFACT_DIR")
}

func TestLoad_PublishTimeout(t *testing.T) {
	setEnv(t, validEnv())
	t.Setenv("MQTT_PUBLISH_TIMEOUT", "3s")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.MQTT.PublishTimeout)
}

func TestBrokerURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MQTTConfig
		want string
	}{
		{
			name: "plain tcp from host and port",
			cfg:  config.MQTTConfig{Host: "mqtt", Port: 1883},
			want: "tcp://mqtt:1883",
		},
		{
			name: "ssl when a CA bundle is configured",
			cfg:  config.MQTTConfig{Host: "mqtt", Port: 8883, CAPath: "/certs/ca.crt"},
			want: "ssl://mqtt:8883",
		},
		{
			name: "explicit URL wins",
			cfg:  config.MQTTConfig{URL: "ssl://broker.example:8883", Host: "mqtt", Port: 1883},
			want: "ssl://broker.example:8883",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.BrokerURL())
		})
	}
}
