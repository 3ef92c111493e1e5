package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Telegram  TelegramConfig
	Staff     StaffConfig
	Routing   RoutingConfig
	Catalog   CatalogConfig
	Workflow  WorkflowConfig
	Scheduler SchedulerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	Timezone              string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines ops API authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	Token              string
	PollTimeoutSeconds int
	Debug              bool
}

// StaffConfig is the static allow-list of support staff chat IDs.
type StaffConfig struct {
	IDs   []string
	Names map[string]string
}

// RoutingConfig maps branches to destination chats.
type RoutingConfig struct {
	BranchChannels    map[string]string
	LegacyChannel     string
	MonitoringChannel string
	MonitoringEnabled bool
}

// CatalogConfig lists the values accepted by the ticket wizard.
type CatalogConfig struct {
	Branches    []string
	Departments []string
	Categories  []string
	Urgencies   []string
}

// WorkflowConfig holds expiry windows for ephemeral state and confirmations.
type WorkflowConfig struct {
	ConversationIdleMinutes int
	RemarksMaxAgeMinutes    int
	AutoConfirmAfterHours   int
}

// SchedulerConfig holds cron specs for the timer-driven jobs.
type SchedulerConfig struct {
	Enabled          bool
	SessionSweepSpec string
	RemarksSweepSpec string
	AutoConfirmSpec  string
	DailyDigestSpec  string
	WeeklyDigestSpec string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	branchChannels, err := parsePairs(os.Getenv("BRANCH_CHANNELS"))
	if err != nil {
		return nil, fmt.Errorf("invalid BRANCH_CHANNELS: %w", err)
	}
	staffNames, err := parsePairs(os.Getenv("STAFF_NAMES"))
	if err != nil {
		return nil, fmt.Errorf("invalid STAFF_NAMES: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			Timezone:              getEnv("APP_TIMEZONE", "UTC"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Telegram: TelegramConfig{
			Token:              os.Getenv("TELEGRAM_BOT_TOKEN"),
			PollTimeoutSeconds: getEnvAsInt("TELEGRAM_POLL_TIMEOUT_SECONDS", 30),
			Debug:              getEnvAsBool("TELEGRAM_DEBUG", false),
		},
		Staff: StaffConfig{
			IDs:   getEnvAsList("STAFF_IDS", nil),
			Names: staffNames,
		},
		Routing: RoutingConfig{
			BranchChannels:    branchChannels,
			LegacyChannel:     os.Getenv("LEGACY_CHANNEL_ID"),
			MonitoringChannel: os.Getenv("MONITORING_CHANNEL_ID"),
			MonitoringEnabled: getEnvAsBool("MONITORING_ENABLED", true),
		},
		Catalog: CatalogConfig{
			Branches:    getEnvAsList("CATALOG_BRANCHES", []string{"HQ"}),
			Departments: getEnvAsList("CATALOG_DEPARTMENTS", []string{"Finance", "Operations", "Sales", "HR", "IT"}),
			Categories:  getEnvAsList("CATALOG_CATEGORIES", []string{"Hardware", "Software", "Network", "Account", "Other"}),
			Urgencies:   getEnvAsList("CATALOG_URGENCIES", []string{"Low", "Medium", "High", "Critical"}),
		},
		Workflow: WorkflowConfig{
			ConversationIdleMinutes: getEnvAsInt("CONVERSATION_IDLE_MINUTES", 30),
			RemarksMaxAgeMinutes:    getEnvAsInt("REMARKS_MAX_AGE_MINUTES", 15),
			AutoConfirmAfterHours:   getEnvAsInt("AUTO_CONFIRM_AFTER_HOURS", 7*24),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvAsBool("SCHEDULER_ENABLED", true),
			SessionSweepSpec: getEnv("SCHEDULE_SESSION_SWEEP", "@every 1m"),
			RemarksSweepSpec: getEnv("SCHEDULE_REMARKS_SWEEP", "@every 1m"),
			AutoConfirmSpec:  getEnv("SCHEDULE_AUTO_CONFIRM", "@every 1h"),
			DailyDigestSpec:  getEnv("SCHEDULE_DAILY_DIGEST", "0 18 * * *"),
			WeeklyDigestSpec: getEnv("SCHEDULE_WEEKLY_DIGEST", "0 9 * * 1"),
		},
	}

	if _, err := cfg.App.Location(); err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Location resolves the timezone used for calendar-day boundaries.
func (a AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(a.Timezone)
}

// ConversationIdle returns the wizard inactivity window.
func (w WorkflowConfig) ConversationIdle() time.Duration {
	return minutesOr(w.ConversationIdleMinutes, 30)
}

// RemarksMaxAge returns how long a pending remarks prompt stays valid.
func (w WorkflowConfig) RemarksMaxAge() time.Duration {
	return minutesOr(w.RemarksMaxAgeMinutes, 15)
}

// AutoConfirmAfter returns the age after which resolved tickets are confirmed by the system.
func (w WorkflowConfig) AutoConfirmAfter() time.Duration {
	if w.AutoConfirmAfterHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(w.AutoConfirmAfterHours) * time.Hour
}

// IsStaff reports whether the chat user ID is on the allow-list.
func (s StaffConfig) IsStaff(id string) bool {
	for _, candidate := range s.IDs {
		if candidate == id {
			return true
		}
	}
	return false
}

func minutesOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePairs reads "KEY:value,KEY2:value2". Only the first ':' separates key from value.
func parsePairs(raw string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("malformed pair %q", part)
		}
		out[key] = value
	}
	return out, nil
}
