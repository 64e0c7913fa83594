package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

const (
	defaultReplicateBaseURL = "https://api.replicate.com/v1"
	defaultEnhanceVersion   = "tencentarc/gfpgan:9283608cc6b7be6b65a8e44983db012355fde4132009bf99d976b2f0896856a3"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Worker    WorkerConfig    `yaml:"worker"`
	Replicate ReplicateConfig `yaml:"replicate"`
	Quota     QuotaConfig     `yaml:"quota"`
	Redis     RedisConfig     `yaml:"redis"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Auth      AuthConfig      `yaml:"auth"`
	Prompts   PromptsConfig   `yaml:"prompts"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPolls        int           `yaml:"max_polls"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ReplicateConfig holds generation provider settings
type ReplicateConfig struct {
	APIToken       string        `yaml:"api_token"`
	BaseURL        string        `yaml:"base_url"`
	EnhanceVersion string        `yaml:"enhance_version"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	EnhanceTimeout time.Duration `yaml:"enhance_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// QuotaConfig holds usage limits
type QuotaConfig struct {
	Cap               int  `yaml:"cap"`
	MaxPerRequest     int  `yaml:"max_per_request"`
	LaunchConcurrency int  `yaml:"launch_concurrency"`
	SerializePerUser  bool `yaml:"serialize_per_user"`
}

// RedisConfig holds Redis connection and lock settings
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// ArtifactsConfig selects where enhanced images are stored
type ArtifactsConfig struct {
	Driver    string         `yaml:"driver"`
	Bucket    string         `yaml:"bucket"`
	BasePath  string         `yaml:"base_path"`
	Extension string         `yaml:"extension"`
	S3        S3Config       `yaml:"s3"`
	Supabase  SupabaseConfig `yaml:"supabase"`
}

// S3Config holds S3 credentials and endpoint
type S3Config struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// SupabaseConfig holds Supabase Storage settings
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Audience  string `yaml:"audience"`
}

// PromptsConfig holds the theme catalogue
type PromptsConfig struct {
	Themes        map[string]string `yaml:"themes"`
	Negative      string            `yaml:"negative"`
	InstanceToken string            `yaml:"instance_token"`
}

// Load reads and parses the configuration file, then applies environment
// overrides and defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	config.ApplyDefaults()

	return &config, nil
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"DATABASE_PASSWORD", &c.Database.Password},
		{"RABBITMQ_PASSWORD", &c.RabbitMQ.Password},
		{"REPLICATE_API_TOKEN", &c.Replicate.APIToken},
		{"AUTH_JWT_SECRET", &c.Auth.JWTSecret},
		{"AWS_ACCESS_KEY_ID", &c.Artifacts.S3.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", &c.Artifacts.S3.SecretAccessKey},
		{"SUPABASE_URL", &c.Artifacts.Supabase.URL},
		{"SUPABASE_SERVICE_KEY", &c.Artifacts.Supabase.ServiceKey},
		{"REDIS_PASSWORD", &c.Redis.Password},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && strings.TrimSpace(v) != "" {
			*o.target = v
		}
	}
}

// ApplyDefaults fills settings that were left empty
func (c *Config) ApplyDefaults() {
	if c.Quota.Cap <= 0 {
		c.Quota.Cap = 100
	}
	if c.Quota.MaxPerRequest <= 0 {
		c.Quota.MaxPerRequest = 8
	}
	if c.Quota.LaunchConcurrency <= 0 {
		c.Quota.LaunchConcurrency = 4
	}
	if c.Replicate.BaseURL == "" {
		c.Replicate.BaseURL = defaultReplicateBaseURL
	}
	if c.Replicate.EnhanceVersion == "" {
		c.Replicate.EnhanceVersion = defaultEnhanceVersion
	}
	if c.Replicate.PollInterval <= 0 {
		c.Replicate.PollInterval = time.Second
	}
	if c.Replicate.EnhanceTimeout <= 0 {
		c.Replicate.EnhanceTimeout = 2 * time.Minute
	}
	if c.Replicate.RequestTimeout <= 0 {
		c.Replicate.RequestTimeout = 30 * time.Second
	}
	if c.Artifacts.Driver == "" {
		c.Artifacts.Driver = "filesystem"
	}
	if c.Artifacts.Bucket == "" {
		c.Artifacts.Bucket = "photos-generated"
	}
	if c.Artifacts.BasePath == "" {
		c.Artifacts.BasePath = "data/artifacts"
	}
	if c.Artifacts.Extension == "" {
		c.Artifacts.Extension = ".jpg"
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = "authenticated"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.MaxPolls <= 0 {
		c.Worker.MaxPolls = 120
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
}

func (c *Config) validateShared() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Replicate.APIToken == "" {
		return fmt.Errorf("replicate api_token is required")
	}

	switch c.Artifacts.Driver {
	case "s3":
		if c.Artifacts.S3.Region == "" {
			return fmt.Errorf("artifacts s3 region is required")
		}
	case "supabase":
		if c.Artifacts.Supabase.URL == "" || c.Artifacts.Supabase.ServiceKey == "" {
			return fmt.Errorf("artifacts supabase url and service_key are required")
		}
	case "filesystem":
	default:
		return fmt.Errorf("unknown artifacts driver: %q", c.Artifacts.Driver)
	}

	return nil
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}

	if c.Quota.SerializePerUser && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when quota.serialize_per_user is enabled")
	}

	if budget := c.ReconcileBudget(); c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= budget {
		return fmt.Errorf("server write_timeout %s must exceed %s (replicate enhance_timeout plus two request_timeout)",
			c.Server.WriteTimeout, budget)
	}

	return nil
}

// ReconcileBudget is the longest a status request may take: the provider
// status call, the enhancement run and the download of its result.
func (c *Config) ReconcileBudget() time.Duration {
	return c.Replicate.EnhanceTimeout + 2*c.Replicate.RequestTimeout
}

// ValidateWorkerConfig checks the settings the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateShared(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	return nil
}
