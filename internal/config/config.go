package config

import "time"

// ConnectorConfig is the root configuration for one connector process.
type ConnectorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Connection ConnectionConfig `yaml:"connection"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// InstanceConfig identifies this process in logs and archive rows.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// GatewayConfig is the iKommunicate endpoint. Field names match the plugin
// schema so a host can hand the same object through unchanged.
type GatewayConfig struct {
	IPAddress string `yaml:"ipaddress"`
	Port      int    `yaml:"port"`
}

// ConnectionConfig holds reconnect and transport settings.
type ConnectionConfig struct {
	RetryInterval      time.Duration `yaml:"retry_interval"`
	RetryOnDialFailure bool          `yaml:"retry_on_dial_failure"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// ArchiveConfig controls the optional TimescaleDB archive of forwarded deltas.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	MaxBufferSize int           `yaml:"max_buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds the HTTP listener for /metrics, /health and /plugin.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
