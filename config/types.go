package config

import (
	"errors"
	"fmt"
)

type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	CasbinDatabase DatabaseConfig       `mapstructure:"casbin_database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Server         ServerConfig         `mapstructure:"server"`
	Authentication AuthenticationConfig `mapstructure:"authentication"`
	Authorization  AuthorizationConfig  `mapstructure:"authorization"`
	Email          EmailConfig          `mapstructure:"email"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Nats           NatsConfig           `mapstructure:"nats"`
	Messaging      MessagingConfig      `mapstructure:"messaging"`
	Directory      DirectoryConfig      `mapstructure:"directory"`
	Notifications  NotificationsConfig  `mapstructure:"notifications"`
}

type NatsConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

type DatabaseConfig struct {
	Host       string                  `mapstructure:"host"`
	Port       int                     `mapstructure:"port"`
	User       string                  `mapstructure:"user"`
	Password   string                  `mapstructure:"password"`
	DBName     string                  `mapstructure:"dbname"`
	SSLMode    string                  `mapstructure:"sslmode"`
	Pool       DatabasePoolConfig      `mapstructure:"pool"`
	Migrations DatabaseMigrationConfig `mapstructure:"migrations"`
}

type DatabasePoolConfig struct {
	MaxOpenConns       int `mapstructure:"max_open_conns"`
	MaxIdleConns       int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int `mapstructure:"conn_max_lifetime_minutes"`
}

type DatabaseMigrationConfig struct {
	AutoMigrate bool `mapstructure:"auto_migrate"`
	// SafeMode keeps migrations additive: no column or index drops.
	SafeMode bool `mapstructure:"safe_mode"`
}

type RedisConfig struct {
	Addr                string `mapstructure:"addr"`
	DB                  int    `mapstructure:"db"`
	Username            string `mapstructure:"username"`
	Password            string `mapstructure:"password"`
	PoolSize            int    `mapstructure:"pool_size"`
	MinIdleConns        int    `mapstructure:"min_idle_conns"`
	DialTimeoutSeconds  int    `mapstructure:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	Environment    string          `mapstructure:"environment"`
	Domain         string          `mapstructure:"domain"`
	CORS           CORSConfig      `mapstructure:"cors"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAgeSeconds    int      `mapstructure:"max_age_seconds"`
}

type AuthenticationConfig struct {
	Paseto PasetoConfig `mapstructure:"paseto"`
}

type PasetoConfig struct {
	Mode             string `mapstructure:"mode"`
	LocalKeyHex      string `mapstructure:"local_key_hex"`
	SecretKeyHex     string `mapstructure:"secret_key_hex"`
	PublicKeyHex     string `mapstructure:"public_key_hex"`
	Issuer           string `mapstructure:"issuer"`
	Audience         string `mapstructure:"audience"`
	AccessTTLMinutes int    `mapstructure:"access_ttl_minutes"`
}

type AuthorizationConfig struct {
	// CasbinModelPath is optional; the built-in model is used when empty.
	CasbinModelPath string `mapstructure:"casbin_model_path"`
	// Persist stores policies in casbin_database instead of memory.
	Persist          bool `mapstructure:"persist"`
	EnableAudit      bool `mapstructure:"enable_audit"`
	SuperadminBypass bool `mapstructure:"superadmin_bypass"`
}

type EmailConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type SMTPConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	UseTLS         bool   `mapstructure:"use_tls"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type ObservabilityConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	ServiceVersion string        `mapstructure:"service_version"`
	Tracing        TracingConfig `mapstructure:"tracing"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string       `mapstructure:"level"`  // debug, info, warn, error
	Format string       `mapstructure:"format"` // text, json
	Output OutputConfig `mapstructure:"output"`
}

type OutputConfig struct {
	Stdout bool          `mapstructure:"stdout"`
	File   FileLogConfig `mapstructure:"file"`
	Loki   LokiConfig    `mapstructure:"loki"`
}

type FileLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`        // e.g. "logs/app.log"
	MaxSizeMB  int    `mapstructure:"max_size_mb"` // rotate after N MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type LokiConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // e.g. "http://localhost:3100"
	Username string `mapstructure:"username"` // for Grafana Cloud basic auth
	Password string `mapstructure:"password"`
}

const (
	BackplaneLocal = "local"
	BackplaneNats  = "nats"
	BackplaneRedis = "redis"
)

type MessagingConfig struct {
	PageSize           int    `mapstructure:"page_size"`
	MaxPageSize        int    `mapstructure:"max_page_size"`
	SubscriberBuffer   int    `mapstructure:"subscriber_buffer"`
	ReorderWindow      int    `mapstructure:"reorder_window"`
	GapTimeoutMs       int    `mapstructure:"gap_timeout_ms"`
	Backplane          string `mapstructure:"backplane"`            // local, nats, redis
	BackplanePrefix    string `mapstructure:"backplane_prefix"`     // NATS subject or Redis channel namespace
	PresenceTTLSeconds int    `mapstructure:"presence_ttl_seconds"` // viewer lifetime in Redis without a refresh
	MaxGroupSize       int    `mapstructure:"max_group_size"`
	Store              string `mapstructure:"store"` // postgres, memory
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

const (
	DirectoryPostgres = "postgres"
	DirectoryStatic   = "static"
)

type DirectoryConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, static
	StaticPath      string `mapstructure:"static_path"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

type NotificationsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Workers   int    `mapstructure:"workers"`
	QueueSize int    `mapstructure:"queue_size"`
	BaseURL   string `mapstructure:"base_url"`
}

// Validate fills defaults and rejects settings the server cannot start with.
func (c *Config) Validate() error {
	m := &c.Messaging
	if m.PageSize <= 0 {
		m.PageSize = 50
	}
	if m.MaxPageSize <= 0 {
		m.MaxPageSize = 200
	}
	if m.PageSize > m.MaxPageSize {
		return fmt.Errorf("messaging.page_size %d exceeds max_page_size %d", m.PageSize, m.MaxPageSize)
	}
	if m.SubscriberBuffer <= 0 {
		m.SubscriberBuffer = 64
	}
	if m.ReorderWindow <= 0 {
		m.ReorderWindow = 32
	}
	if m.GapTimeoutMs <= 0 {
		m.GapTimeoutMs = 3000
	}
	if m.MaxGroupSize <= 0 {
		m.MaxGroupSize = 50
	}
	switch m.Backplane {
	case "":
		m.Backplane = BackplaneLocal
	case BackplaneLocal, BackplaneNats, BackplaneRedis:
	default:
		return fmt.Errorf("messaging.backplane: unknown value %q", m.Backplane)
	}
	if m.Backplane == BackplaneNats && c.Nats.URL == "" {
		return errors.New("messaging.backplane is nats but nats.url is empty")
	}
	switch m.Store {
	case "":
		m.Store = StorePostgres
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("messaging.store: unknown value %q", m.Store)
	}
	if m.BackplanePrefix == "" {
		m.BackplanePrefix = "carelink"
	}
	if m.PresenceTTLSeconds <= 0 {
		m.PresenceTTLSeconds = 30
	}

	d := &c.Directory
	switch d.Driver {
	case "":
		d.Driver = DirectoryPostgres
	case DirectoryPostgres:
	case DirectoryStatic:
		if d.StaticPath == "" {
			return errors.New("directory.static_path is required for the static driver")
		}
	default:
		return fmt.Errorf("directory.driver: unknown value %q", d.Driver)
	}

	n := &c.Notifications
	if n.Workers <= 0 {
		n.Workers = 2
	}
	if n.QueueSize <= 0 {
		n.QueueSize = 256
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = 30
	}
	if c.Authentication.Paseto.AccessTTLMinutes <= 0 {
		c.Authentication.Paseto.AccessTTLMinutes = 60
	}
	return nil
}

// NeedsDatabase reports whether any configured component reads the main
// database.
func (c *Config) NeedsDatabase() bool {
	return c.Messaging.Store == StorePostgres ||
		c.Directory.Driver == DirectoryPostgres
}
