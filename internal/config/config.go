package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort string `yaml:"server_port"`
	LogMode    string `yaml:"log_mode"`
	// StoreDriver selects "postgres" or "memory".
	StoreDriver string `yaml:"store_driver"`

	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBMigrate  bool   `yaml:"db_migrate"`

	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	JWTSecret string `yaml:"jwt_secret"`

	StorageTimeout time.Duration `yaml:"storage_timeout"`
	RetryDelay     time.Duration `yaml:"retry_delay"`

	// Per-user write rate limit; zero disables it.
	WriteRatePerSec float64 `yaml:"write_rate_per_sec"`
	WriteBurst      int     `yaml:"write_burst"`
}

// Load reads .env (if present), the environment, and an optional YAML file
// named by CONFIG_FILE whose values override the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		LogMode:         getEnv("LOG_MODE", "dev"),
		StoreDriver:     getEnv("STORE_DRIVER", "postgres"),
		DBHost:          getEnv("DB_HOST", "localhost"),
		DBPort:          getEnv("DB_PORT", "5432"),
		DBUser:          getEnv("DB_USER", "pulse"),
		DBPassword:      getEnv("DB_PASSWORD", "pulse_dev_password"),
		DBName:          getEnv("DB_NAME", "pulse"),
		DBMigrate:       getBool("DB_MIGRATE", true),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisChannel:    getEnv("REDIS_CHANNEL", "pulse.events"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		StorageTimeout:  getDuration("STORAGE_TIMEOUT", 3*time.Second),
		RetryDelay:      getDuration("STORAGE_RETRY_DELAY", 50*time.Millisecond),
		WriteRatePerSec: getFloat("WRITE_RATE_PER_SEC", 10),
		WriteBurst:      getInt("WRITE_BURST", 20),
	}

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.StorageTimeout <= 0 {
		return fmt.Errorf("storage timeout must be positive")
	}
	if c.RetryDelay < 0 || c.RetryDelay >= c.StorageTimeout {
		return fmt.Errorf("retry delay must be shorter than the storage timeout")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
