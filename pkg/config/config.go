package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Notification drivers accepted by NOTIFY_DRIVER.
const (
	NotifyDriverMemory = "memory"
	NotifyDriverKafka  = "kafka"
	NotifyDriverNATS   = "nats"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Grading       GradingConfig
	Deadlines     DeadlineConfig
	Scheduler     SchedulerConfig
	Notifications NotificationConfig
	Artifacts     ArtifactConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// GradingConfig holds the grading scale used by the average engine.
type GradingConfig struct {
	PassThreshold    float64
	ScaleMax         float64
	DefaultDelayDays int
}

// DeadlineConfig tunes the deadline sweep.
type DeadlineConfig struct {
	UrgentWindow    time.Duration
	AdminRecipients []string
}

// SchedulerConfig governs the automation loop and task execution.
type SchedulerConfig struct {
	Enabled      bool
	TickInterval time.Duration
	TaskTimeout  time.Duration
	StaleAfter   time.Duration
	LockTTL      time.Duration
}

// NotificationConfig selects the deadline notification transport.
type NotificationConfig struct {
	Driver       string
	Topic        string
	KafkaBrokers []string
	NATSURL      string
}

// ArtifactConfig configures summary artifact storage and download links.
type ArtifactConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Formats         []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grading = GradingConfig{
		PassThreshold:    v.GetFloat64("GRADING_PASS_THRESHOLD"),
		ScaleMax:         v.GetFloat64("GRADING_SCALE_MAX"),
		DefaultDelayDays: v.GetInt("GRADING_DEFAULT_DELAY_DAYS"),
	}

	cfg.Deadlines = DeadlineConfig{
		UrgentWindow:    parseDuration(v.GetString("DEADLINE_URGENT_WINDOW"), 72*time.Hour),
		AdminRecipients: splitAndTrim(v.GetString("DEADLINE_ADMIN_RECIPIENTS")),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:      v.GetBool("SCHEDULER_ENABLED"),
		TickInterval: parseDuration(v.GetString("SCHEDULER_TICK_INTERVAL"), 15*time.Minute),
		TaskTimeout:  parseDuration(v.GetString("SCHEDULER_TASK_TIMEOUT"), 10*time.Minute),
		StaleAfter:   parseDuration(v.GetString("SCHEDULER_STALE_AFTER"), time.Hour),
		LockTTL:      parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 30*time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Driver:       strings.ToLower(v.GetString("NOTIFY_DRIVER")),
		Topic:        v.GetString("NOTIFY_TOPIC"),
		KafkaBrokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		NATSURL:      v.GetString("NATS_URL"),
	}

	cfg.Artifacts = ArtifactConfig{
		StorageDir:      v.GetString("ARTIFACTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("ARTIFACTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("ARTIFACTS_SIGNED_URL_TTL"), 24*time.Hour),
		Formats:         splitAndTrim(v.GetString("ARTIFACTS_FORMATS")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academic_records")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRADING_PASS_THRESHOLD", 10.0)
	v.SetDefault("GRADING_SCALE_MAX", 20.0)
	v.SetDefault("GRADING_DEFAULT_DELAY_DAYS", 14)

	v.SetDefault("DEADLINE_URGENT_WINDOW", "72h")
	v.SetDefault("DEADLINE_ADMIN_RECIPIENTS", "")

	v.SetDefault("SCHEDULER_ENABLED", false)
	v.SetDefault("SCHEDULER_TICK_INTERVAL", "15m")
	v.SetDefault("SCHEDULER_TASK_TIMEOUT", "10m")
	v.SetDefault("SCHEDULER_STALE_AFTER", "1h")
	v.SetDefault("SCHEDULER_LOCK_TTL", "30m")

	v.SetDefault("NOTIFY_DRIVER", NotifyDriverMemory)
	v.SetDefault("NOTIFY_TOPIC", "records.deadline-notifications")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("NATS_URL", "nats://localhost:4222")

	v.SetDefault("ARTIFACTS_STORAGE_DIR", "./artifacts")
	v.SetDefault("ARTIFACTS_SIGNED_URL_SECRET", "dev_artifacts_secret")
	v.SetDefault("ARTIFACTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("ARTIFACTS_FORMATS", "json,xlsx,pdf")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
