package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// APIConfig describes the remote booking API. BaseURL is the only required setting.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url" envconfig:"API_BASE_URL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"API_TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"API_MAX_RETRIES"`
	RefreshRPS   float64       `yaml:"refresh_rps"`
	RefreshBurst int           `yaml:"refresh_burst"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// BookingConfig is the operating-hours policy plus the occupancy tolerance.
type BookingConfig struct {
	Open        string        `yaml:"open"`
	Close       string        `yaml:"close"`
	StepMinutes int           `yaml:"step_minutes"`
	SlotMinutes int           `yaml:"slot_minutes"`
	Tolerance   time.Duration `yaml:"tolerance" envconfig:"BOOKING_TOLERANCE"`
	Timezone    string        `yaml:"timezone" envconfig:"BOOKING_TIMEZONE"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Path   string `yaml:"path" envconfig:"STORAGE_PATH"`
}

type RedisConfig struct {
	Address  string `yaml:"address" envconfig:"REDIS_ADDRESS"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type CatalogConfig struct {
	FallbackPath string `yaml:"fallback_path"`
}

const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// EnvPrefix is the prefix of environment overrides, e.g. PETSHOP_API_BASE_URL.
const EnvPrefix = "PETSHOP"

func Load(configPath string) (*Config, error) {
	// .env is optional for the engine
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	if err := envconfig.Process(EnvPrefix, &c.API); err != nil {
		return err
	}
	if err := envconfig.Process(EnvPrefix, &c.Booking); err != nil {
		return err
	}
	if err := envconfig.Process(EnvPrefix, &c.Storage); err != nil {
		return err
	}
	return envconfig.Process(EnvPrefix, &c.Redis)
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api base url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url %q", c.API.BaseURL)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for sqlite storage")
		}
	case StorageRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Booking.Tolerance < 0 {
		return errors.New("booking.tolerance must not be negative")
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			return fmt.Errorf("booking.timezone: %w", err)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "petshop"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:3000"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = 2
	}
	if c.API.RefreshRPS == 0 {
		c.API.RefreshRPS = 5
	}
	if c.API.RefreshBurst == 0 {
		c.API.RefreshBurst = 5
	}
	if c.API.CacheTTL == 0 {
		c.API.CacheTTL = 10 * time.Minute
	}

	if c.Booking.Open == "" {
		c.Booking.Open = "08:00"
	}
	if c.Booking.Close == "" {
		c.Booking.Close = "17:30"
	}
	if c.Booking.StepMinutes == 0 {
		c.Booking.StepMinutes = 30
	}
	if c.Booking.SlotMinutes == 0 {
		c.Booking.SlotMinutes = 60
	}
	if c.Booking.Tolerance == 0 {
		c.Booking.Tolerance = time.Minute
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

// Location resolves the booking timezone, falling back to the process local zone.
func (b BookingConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
