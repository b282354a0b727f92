package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GRPC struct {
	Addr string `yaml:"addr"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|stage|prod
	Service   string `yaml:"service"`   // chat-service
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Postgres struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	ApplicationName   string        `yaml:"applicationName"`
	Migrate           bool          `yaml:"migrate"`
	SlowQuery         time.Duration `yaml:"slowQuery"` // 0: off
}

// NATS is optional; without a URL the realtime feed runs in-process.
type NATS struct {
	URL           string        `yaml:"url"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Name          string        `yaml:"name"`
	ConnectTries  int           `yaml:"connectTries"`
	ReconnectWait time.Duration `yaml:"reconnectWait"`
}

type Auth struct {
	PublicKeyPath string        `yaml:"publicKeyPath"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clockSkew"`
}

type Chat struct {
	DefaultRoomName  string        `yaml:"defaultRoomName"`
	PageSize         int           `yaml:"pageSize"`
	MaxMessageLength int           `yaml:"maxMessageLength"`
	MaxGroupMembers  int64         `yaml:"maxGroupMembers"`
	TypingTimeout    time.Duration `yaml:"typingTimeout"`
	TypingTTL        time.Duration `yaml:"typingTTL"`
	CleanupInterval  time.Duration `yaml:"cleanupInterval"`
}

type Push struct {
	Subject          string        `yaml:"subject"`
	Timeout          time.Duration `yaml:"timeout"`
	PreviewLength    int           `yaml:"previewLength"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"serviceName"`
}

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	GRPC      GRPC      `yaml:"grpc"`
	Logging   Logging   `yaml:"logging"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Auth      Auth      `yaml:"auth"`
	Chat      Chat      `yaml:"chat"`
	Push      Push      `yaml:"push"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// LoadConfig reads .env (if present), then the YAML file at CONFIG_PATH.
// ${VAR} references inside the YAML are expanded from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.GRPC.Addr == "" {
		return errors.New("grpc.addr is required")
	}
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if c.Auth.PublicKeyPath == "" {
		return errors.New("auth.publicKeyPath is required")
	}
	if c.Auth.ClockSkew < 0 || c.Auth.ClockSkew > time.Minute {
		return errors.New("auth.clockSkew must be in [0..1m]")
	}
	if c.Chat.TypingTimeout < 0 || c.Chat.TypingTTL < 0 {
		return errors.New("chat typing durations must be positive")
	}

	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "chat-service"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	if c.NATS.Name == "" {
		c.NATS.Name = c.Logging.Service
	}
	if c.NATS.ConnectTries <= 0 {
		c.NATS.ConnectTries = 30
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
	if c.Chat.DefaultRoomName == "" {
		c.Chat.DefaultRoomName = "General"
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = 50
	}
	if c.Chat.PageSize > domain.MaxPageSize {
		return fmt.Errorf("chat.pageSize must not exceed %d", domain.MaxPageSize)
	}
	if c.Chat.MaxMessageLength <= 0 {
		c.Chat.MaxMessageLength = 4000
	}
	if c.Chat.MaxGroupMembers <= 0 {
		c.Chat.MaxGroupMembers = 50
	}
	if c.Chat.TypingTimeout == 0 {
		c.Chat.TypingTimeout = 3 * time.Second
	}
	if c.Chat.TypingTTL == 0 {
		c.Chat.TypingTTL = 10 * time.Second
	}
	if c.Chat.CleanupInterval == 0 {
		c.Chat.CleanupInterval = 5 * time.Second
	}
	if c.Push.Subject == "" {
		c.Push.Subject = "push.deliver"
	}
	if c.Push.Timeout == 0 {
		c.Push.Timeout = 3 * time.Second
	}
	if c.Push.PreviewLength <= 0 {
		c.Push.PreviewLength = 100
	}
	if c.Push.BreakerThreshold <= 0 {
		c.Push.BreakerThreshold = 5
	}
	if c.Push.BreakerCooldown == 0 {
		c.Push.BreakerCooldown = 30 * time.Second
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Logging.Service
	}
	return nil
}
