package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/redbco/redb-sqlgateway/internal/database"
	"github.com/redbco/redb-sqlgateway/pkg/keyring"
)

// Environment variables honored by Load.
const (
	// EnvConfigPath points at the YAML config file.
	EnvConfigPath = "SQLGATEWAY_CONFIG"

	// EnvConnection holds a single connection descriptor registered
	// under the name "default", letting the gateway run with no config
	// file at all.
	EnvConnection = "SQLGATEWAY_CONNECTION"
)

// Supported transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Duration is a time.Duration that unmarshals from YAML either as a
// Go duration string ("30s", "2m") or as a bare integer number of
// seconds, matching the descriptor timeout convention.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if seconds, err := strconv.Atoi(value.Value); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Connections map[string]string `yaml:"connections"`
	Query       QueryConfig       `yaml:"query"`
	Cache       CacheConfig       `yaml:"cache"`
	Keyring     KeyringConfig     `yaml:"keyring"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Descriptors is the parsed form of Connections, keyed by name.
	// Populated by Load after keyring resolution.
	Descriptors map[string]*database.TargetDescriptor `yaml:"-"`
}

type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | http
	Listen    string `yaml:"listen"`
}

type QueryConfig struct {
	DefaultMaxRows  int      `yaml:"default_max_rows"`
	AbsoluteMaxRows int      `yaml:"absolute_max_rows"`
	MaxQueryLength  int      `yaml:"max_query_length"`
	CommandTimeout  Duration `yaml:"command_timeout"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
}

type CacheConfig struct {
	Enabled       bool     `yaml:"enabled"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	TTL           Duration `yaml:"ttl"`
}

type KeyringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads the gateway configuration. An empty path falls back to
// SQLGATEWAY_CONFIG; with neither, the gateway runs on defaults plus
// the SQLGATEWAY_CONNECTION descriptor. At least one connection must
// come out of the combination.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Set defaults
	if config.Server.Transport == "" {
		config.Server.Transport = TransportStdio
	}
	if config.Server.Listen == "" {
		config.Server.Listen = ":8480"
	}
	if config.Query.DefaultMaxRows == 0 {
		config.Query.DefaultMaxRows = 1000
	}
	if config.Query.AbsoluteMaxRows == 0 {
		config.Query.AbsoluteMaxRows = 10000
	}
	if config.Query.MaxQueryLength == 0 {
		config.Query.MaxQueryLength = 50000
	}
	if config.Query.CommandTimeout == 0 {
		config.Query.CommandTimeout = Duration(database.DefaultCommandTimeout)
	}
	if config.Query.ConnectTimeout == 0 {
		config.Query.ConnectTimeout = Duration(database.DefaultConnectTimeout)
	}
	if config.Cache.RedisAddr == "" {
		config.Cache.RedisAddr = "localhost:6379"
	}
	if config.Cache.TTL == 0 {
		config.Cache.TTL = Duration(60 * time.Second)
	}
	if config.Keyring.Service == "" {
		config.Keyring.Service = "redb-sqlgateway"
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	if config.Server.Transport != TransportStdio && config.Server.Transport != TransportHTTP {
		return nil, database.NewConfigurationError("server.transport",
			fmt.Sprintf("unknown transport %q (expected stdio or http)", config.Server.Transport))
	}

	if config.Connections == nil {
		config.Connections = make(map[string]string)
	}
	if raw := os.Getenv(EnvConnection); raw != "" {
		if _, exists := config.Connections["default"]; !exists {
			config.Connections["default"] = raw
		}
	}
	if len(config.Connections) == 0 {
		return nil, database.NewConfigurationError("connections",
			"no connections configured; provide a config file or set "+EnvConnection)
	}

	if err := config.parseConnections(); err != nil {
		return nil, err
	}

	return &config, nil
}

// parseConnections resolves keyring passwords and parses every
// descriptor. Config-level timeouts apply only where the descriptor
// does not set its own.
func (c *Config) parseConnections() error {
	var secrets *keyring.Manager
	if c.Keyring.Enabled {
		path := c.Keyring.Path
		if path == "" {
			path = keyring.GetDefaultKeyringPath()
		}
		secrets = keyring.NewManager(path, keyring.GetMasterPasswordFromEnv())
	}

	c.Descriptors = make(map[string]*database.TargetDescriptor, len(c.Connections))
	for name, raw := range c.Connections {
		if secrets != nil && !database.HasDescriptorField(raw, "password") {
			password, err := secrets.Get(c.Keyring.Service, name)
			if err != nil {
				return database.NewConfigurationError("connections."+name,
					"descriptor has no password and the keyring lookup failed")
			}
			raw = raw + ";password=" + password
		}

		desc, err := database.ParseDescriptor(raw)
		if err != nil {
			return fmt.Errorf("connection %q: %w", name, err)
		}

		if !database.HasDescriptorField(raw, "connect timeout") {
			desc.ConnectTimeout = c.Query.ConnectTimeout.Std()
		}
		if !database.HasDescriptorField(raw, "command timeout") {
			desc.CommandTimeout = c.Query.CommandTimeout.Std()
		}

		c.Descriptors[name] = desc
	}

	return nil
}
