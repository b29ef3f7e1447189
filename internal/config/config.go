package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"inspectionDispatch/internal/geo"
)

// EnvPrefix prefixes every environment override, e.g. DISPATCH_GRPC__ADDRESS.
const EnvPrefix = "DISPATCH_"

const devJWTSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	GRPC     GRPCConfig     `json:"grpc"`
	HTTP     HTTPConfig     `json:"http"`
	Auth     AuthConfig     `json:"auth"`
	Dispatch DispatchConfig `json:"dispatch"`
	Logging  LoggingConfig  `json:"logging"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Redis    RedisConfig    `json:"redis"`
}

// DatabaseConfig contains database-related settings.
type DatabaseConfig struct {
	Path string `json:"path"` // SQLite database file path
}

// GRPCConfig contains gRPC server settings.
type GRPCConfig struct {
	Address string `json:"address"` // e.g. ":50051"
}

// HTTPConfig contains the websocket/metrics listener settings.
type HTTPConfig struct {
	Address string `json:"address"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// DispatchConfig tunes the proximity constraint and region labels.
type DispatchConfig struct {
	MaxDistanceKm float64 `json:"max_distance_km"`
	DefaultRegion string  `json:"default_region"`
}

// LoggingConfig selects the log level and optional rotating file.
type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// MQTTConfig enables the notification bridge when Broker is set.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// RedisConfig enables the distributed locker when Addr is set.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	LockTTL  int    `json:"lock_ttl_seconds"`
}

// Load reads configuration from an optional YAML/JSON file, a .env file and
// DISPATCH_* environment variables, in that order of precedence (env wins).
// A JWT secret is mandatory.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("%sAUTH__JWT_SECRET is not set; required for production", EnvPrefix)
	}
	return cfg, cfg.Validate()
}

// LoadWithDefaults is like Load but falls back to a development JWT secret.
// WARNING: Only use in development! Use Load() in production.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = devJWTSecret
	}
	return cfg, cfg.Validate()
}

func load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults applies sane defaults to unset fields.
func (c *Config) SetDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "dispatch.db"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":50051"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Dispatch.MaxDistanceKm == 0 {
		c.Dispatch.MaxDistanceKm = geo.DefaultMaxDistanceKm
	}
	if c.Dispatch.DefaultRegion == "" {
		c.Dispatch.DefaultRegion = geo.DefaultRegion
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "inspections"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "inspection-dispatch"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 10
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	if c.Dispatch.MaxDistanceKm < 0 {
		return fmt.Errorf("dispatch.max_distance_km must be positive, got %v", c.Dispatch.MaxDistanceKm)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DB: %s, gRPC: %s, HTTP: %s, MaxDistanceKm: %v, MQTT: %q, Redis: %q, Auth: *** (masked) ***}",
		c.Database.Path, c.GRPC.Address, c.HTTP.Address, c.Dispatch.MaxDistanceKm, c.MQTT.Broker, c.Redis.Addr)
}
