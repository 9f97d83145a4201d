package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Recording RecordingConfig `yaml:"recording"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// SensorConfig represents the sensor connection configuration
type SensorConfig struct {
	// Port is the serial port of the USB receiver (COM3, /dev/ttyUSB0).
	Port string `yaml:"port"`
	// Device is the sensor name to connect to (e.g. HARU2-001).
	Device string `yaml:"device"`
	// LibraryPath optionally points at the vendor library file or the
	// directory containing it. Empty means the default search locations.
	LibraryPath string `yaml:"library_path"`

	ComTimeout  time.Duration `yaml:"com_timeout"`
	ScanTimeout time.Duration `yaml:"scan_timeout"`
	// DeviceScanTimeout bounds the discovery loop when connecting.
	DeviceScanTimeout time.Duration `yaml:"device_scan_timeout"`

	// Channels selects the channel indices to enable (0..7). Empty
	// enables all hardware channels.
	Channels []int `yaml:"channels"`
}

// RecordingConfig represents recording output configuration
type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"`
	// StoreMetadata writes recording rows and events to the database.
	StoreMetadata bool `yaml:"store_metadata"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// AuthConfig represents API authentication configuration
type AuthConfig struct {
	// Username and PasswordHash (bcrypt) of the single operator account.
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`

	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// MQTTConfig represents the optional MQTT forwarder configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	if err := cfg.setDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.Auth.JWTSecret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if port := os.Getenv("SENSOR_PORT"); port != "" {
		c.Sensor.Port = port
	}

	if dll := os.Getenv("SENSOR_LIBRARY_PATH"); dll != "" {
		c.Sensor.LibraryPath = dll
	}
}

// setDefaults validates required fields and fills in defaults.
func (c *Config) setDefaults() error {
	if c.Sensor.Port == "" {
		return fmt.Errorf("sensor.port is required")
	}
	if c.Sensor.Device == "" {
		return fmt.Errorf("sensor.device is required")
	}

	if c.Sensor.ComTimeout == 0 {
		c.Sensor.ComTimeout = 2 * time.Second
	}
	if c.Sensor.ScanTimeout == 0 {
		c.Sensor.ScanTimeout = 5 * time.Second
	}
	if c.Sensor.DeviceScanTimeout == 0 {
		c.Sensor.DeviceScanTimeout = 10 * time.Second
	}

	for _, ch := range c.Sensor.Channels {
		if ch < 0 || ch > 7 {
			return fmt.Errorf("sensor.channels: index %d out of range 0..7", ch)
		}
	}

	if c.Recording.OutputDir == "" {
		c.Recording.OutputDir = "."
	}

	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 24 * time.Hour
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "eeg"
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 10
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when the forwarder is enabled")
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "pitaeeg-forwarder"
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = "pitaeeg"
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	return nil
}

// PrintConfigSummary prints a human-readable configuration summary
func (c *Config) PrintConfigSummary() {
	fmt.Printf("Server:    %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("Sensor:    device=%s port=%s channels=%v\n", c.Sensor.Device, c.Sensor.Port, c.Sensor.Channels)
	fmt.Printf("Timeouts:  com=%s scan=%s device_scan=%s\n", c.Sensor.ComTimeout, c.Sensor.ScanTimeout, c.Sensor.DeviceScanTimeout)
	fmt.Printf("Recording: dir=%s store_metadata=%v\n", c.Recording.OutputDir, c.Recording.StoreMetadata)
	fmt.Printf("API:       %s:%d\n", c.API.Host, c.API.Port)
	fmt.Printf("NATS:      %s prefix=%s\n", c.NATS.URL, c.NATS.SubjectPrefix)
	if c.MQTT.Enabled {
		fmt.Printf("MQTT:      %s prefix=%s qos=%d\n", c.MQTT.Broker, c.MQTT.TopicPrefix, c.MQTT.QoS)
	}
	fmt.Printf("Log:       level=%s\n", c.Log.Level)
}
