package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults_Succeeds(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DISPATCH_DATABASE__PATH", "DISPATCH_GRPC__ADDRESS", "DISPATCH_AUTH__JWT_SECRET"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	cfg, err := LoadWithDefaults("")
	require.NoError(t, err)
	assert.Equal(t, ":50051", cfg.GRPC.Address)
	assert.Equal(t, "dispatch.db", cfg.Database.Path)
	assert.Equal(t, 35.0, cfg.Dispatch.MaxDistanceKm)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISPATCH_AUTH__JWT_SECRET", "")
	os.Unsetenv("DISPATCH_AUTH__JWT_SECRET")
	t.Setenv("DISPATCH_DATABASE__PATH", "test.db")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("DISPATCH_AUTH__JWT_SECRET", "x")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "test.db", cfg.Database.Path)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "dispatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grpc:
  address: ":6000"
auth:
  jwt_secret: from-file
dispatch:
  max_distance_km: 20
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`), 0o600))
	t.Setenv("DISPATCH_GRPC__ADDRESS", ":7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.GRPC.Address)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 20.0, cfg.Dispatch.MaxDistanceKm)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "inspections", cfg.MQTT.TopicPrefix)
}

func TestLoadWithDefaults_EnvSecretWinsOverDevSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISPATCH_AUTH__JWT_SECRET", "prod-secret")
	t.Setenv("DISPATCH_DISPATCH__MAX_DISTANCE_KM", "10")
	t.Setenv("DISPATCH_DISPATCH__DEFAULT_REGION", "Southern")

	cfg, err := LoadWithDefaults("")
	require.NoError(t, err)
	assert.Equal(t, "prod-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10.0, cfg.Dispatch.MaxDistanceKm)
	assert.Equal(t, "Southern", cfg.Dispatch.DefaultRegion)
}

func TestLoad_RejectsUnknownFormat(t *testing.T) {
	_, err := LoadWithDefaults("dispatch.toml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	cfg.Logging.Level = "chatty"
	require.Error(t, cfg.Validate())
}

func TestString_MasksSecret(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{JWTSecret: "super-secret"}}
	cfg.SetDefaults()
	assert.NotContains(t, cfg.String(), "super-secret")
}
