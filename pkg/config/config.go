package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultJWTSecret = "dev-jwt-secret-change-in-prod"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Functions FunctionsConfig `yaml:"functions"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Economy   EconomyConfig   `yaml:"economy"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           string        `yaml:"port" validate:"required,numeric"`
	FunctionsPort  string        `yaml:"functions_port" validate:"required,numeric"`
	Env            string        `yaml:"env" validate:"oneof=development test production"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gt=0"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Type string `yaml:"type" validate:"oneof=sqlite postgres"` // "sqlite" or "postgres"
	DSN  string `yaml:"dsn" validate:"required"`
	Path string `yaml:"path"` // For SQLite: file path
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 tokens issued by the auth provider.
	JWTSecret   string        `yaml:"jwt_secret" validate:"required"`
	Issuer      string        `yaml:"issuer"`
	SessionTTL  time.Duration `yaml:"session_ttl" validate:"gt=0"`
	AdminSecret string        `yaml:"admin_secret"`
	SweepEvery  time.Duration `yaml:"sweep_every" validate:"gt=0"`
}

type FunctionsConfig struct {
	CronSecret        string        `yaml:"cron_secret"`
	ServiceKey        string        `yaml:"service_key"`
	ProcessLeaguesURL string        `yaml:"process_leagues_url" validate:"required,url"`
	ExecuteCodeURL    string        `yaml:"execute_code_url" validate:"required,url"`
	PistonURL         string        `yaml:"piston_url" validate:"required,url"`
	Language          string        `yaml:"language" validate:"required"`
	Version           string        `yaml:"version" validate:"required"`
	ExecTimeout       time.Duration `yaml:"exec_timeout" validate:"gt=0"`
	ForwardTimeout    time.Duration `yaml:"forward_timeout" validate:"gt=0"`
}

type SchedulerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron" validate:"required"`
	TriggerURL string `yaml:"trigger_url" validate:"required,url"`
}

type EconomyConfig struct {
	MaxHearts        int `yaml:"max_hearts" validate:"min=1,max=5"`
	HeartRefillCost  int `yaml:"heart_refill_cost" validate:"min=0"`
	StreakFreezeCost int `yaml:"streak_freeze_cost" validate:"min=0"`
	MaxStreakFreezes int `yaml:"max_streak_freezes" validate:"min=0"`
	GemsPerStar      int `yaml:"gems_per_star" validate:"min=0"`
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE
// (default config.yaml), then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := getEnv("CONFIG_FILE", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	dsn, dbPath := buildDSN("sqlite")
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          "8080",
			FunctionsPort: "8081",
			Env:           "development",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  dsn,
			Path: dbPath,
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
		Auth: AuthConfig{
			JWTSecret:  defaultJWTSecret,
			SessionTTL: 12 * time.Hour,
			SweepEvery: 5 * time.Minute,
		},
		Functions: FunctionsConfig{
			ProcessLeaguesURL: "http://localhost:8081/process-weekly-leagues",
			ExecuteCodeURL:    "http://localhost:8081/execute-code",
			PistonURL:         "https://emkc.org/api/v2/piston/execute",
			Language:          "python",
			Version:           "3.10.0",
			ExecTimeout:       10 * time.Second,
			ForwardTimeout:    60 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Cron:       "0 0 * * 0",
			TriggerURL: "http://localhost:8081/weekly-league-trigger",
		},
		Economy: EconomyConfig{
			MaxHearts:        5,
			HeartRefillCost:  350,
			StreakFreezeCost: 200,
			MaxStreakFreezes: 2,
			GemsPerStar:      5,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.FunctionsPort = getEnv("FUNCTIONS_PORT", c.Server.FunctionsPort)
	c.Server.Env = getEnv("ENV", c.Server.Env)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}

	if dbType, ok := os.LookupEnv("DB_TYPE"); ok && dbType != c.Database.Type {
		c.Database.Type = dbType
		c.Database.DSN, c.Database.Path = buildDSN(dbType)
	}
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.SessionTTL = getEnvDuration("SESSION_TTL", c.Auth.SessionTTL)
	c.Auth.AdminSecret = getEnv("ADMIN_SECRET", c.Auth.AdminSecret)

	c.Functions.CronSecret = getEnv("CRON_SECRET", c.Functions.CronSecret)
	c.Functions.ServiceKey = getEnv("SERVICE_KEY", c.Functions.ServiceKey)
	c.Functions.ProcessLeaguesURL = getEnv("PROCESS_LEAGUES_URL", c.Functions.ProcessLeaguesURL)
	c.Functions.ExecuteCodeURL = getEnv("EXECUTE_CODE_URL", c.Functions.ExecuteCodeURL)
	c.Functions.PistonURL = getEnv("PISTON_URL", c.Functions.PistonURL)
	c.Functions.Language = getEnv("PISTON_LANGUAGE", c.Functions.Language)
	c.Functions.Version = getEnv("PISTON_VERSION", c.Functions.Version)
	c.Functions.ExecTimeout = getEnvDuration("EXEC_TIMEOUT", c.Functions.ExecTimeout)

	c.Scheduler.Enabled = getEnvBool("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.Cron = getEnv("SCHEDULER_CRON", c.Scheduler.Cron)
	c.Scheduler.TriggerURL = getEnv("TRIGGER_URL", c.Scheduler.TriggerURL)

	c.Economy.MaxHearts = getEnvInt("MAX_HEARTS", c.Economy.MaxHearts)
	c.Economy.HeartRefillCost = getEnvInt("HEART_REFILL_COST", c.Economy.HeartRefillCost)
	c.Economy.StreakFreezeCost = getEnvInt("STREAK_FREEZE_COST", c.Economy.StreakFreezeCost)
	c.Economy.GemsPerStar = getEnvInt("GEMS_PER_STAR", c.Economy.GemsPerStar)
}

// Validate checks field constraints and production safety rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Server.Env == "production" && c.Auth.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	return nil
}

// Address returns the API listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// FunctionsAddress returns the functions service listen address.
func (c *Config) FunctionsAddress() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.FunctionsPort)
}

func buildDSN(dbType string) (string, string) {
	if dbType == "postgres" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "codeowl")
		sslMode := getEnv("DB_SSLMODE", "disable")

		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			dbHost, dbPort, dbUser, dbPassword, dbName, sslMode,
		)
		return dsn, ""
	}

	dbPath := getEnv("SQLITE_PATH", "./data/codeowl.db")
	dsn := dbPath + "?_busy_timeout=5000&_foreign_keys=on"
	return dsn, dbPath
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
