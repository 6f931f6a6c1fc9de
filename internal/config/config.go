// Package config загружает конфигурацию сервиса из переменных окружения.
// Сначала подхватывается .env (если есть), затем envconfig маппит переменные на поля.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"serotonyl.ru/habit-tracker/internal/gamification"
)

// Драйверы хранилища.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- HTTP ---
	HTTPAddr       string   `envconfig:"HTTP_ADDR" default:":8080"`
	CORSOriginsRaw string   `envconfig:"CORS_ORIGINS" default:"*"`
	CORSOrigins    []string `envconfig:"-"` // заполним вручную

	// --- Storage ---
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`

	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), локально DB_HOST=localhost.
	DBHost           string `envconfig:"DB_HOST" default:"postgres"`
	DBPort           int    `envconfig:"DB_PORT" default:"5432"`
	DBUser           string `envconfig:"DB_USER" default:"habits"`
	DBPassword       string `envconfig:"DB_PASSWORD"`
	DBName           string `envconfig:"DB_NAME" default:"habit_tracker"`
	DBSSLMode        string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns       int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns       int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	DBConnectRetries int    `envconfig:"DB_CONNECT_RETRIES" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`

	// --- Auth ---
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`
	AdminUsername string        `envconfig:"ADMIN_USERNAME" default:"admin"`

	// --- Progression ---
	XPPerCompletion    int64   `envconfig:"XP_PER_COMPLETION" default:"15"`
	LevelThresholdsRaw string  `envconfig:"LEVEL_THRESHOLDS"`
	LevelThresholds    []int64 `envconfig:"-"` // пусто, если таблица по умолчанию
	AchievementsFile   string  `envconfig:"ACHIEVEMENTS_FILE"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Telegram ---
	TelegramBotToken        string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ReminderStreakThreshold int    `envconfig:"REMINDER_STREAK_THRESHOLD" default:"7"`
	ReminderHour            int    `envconfig:"REMINDER_HOUR" default:"18"`

	// --- Feature Flags ---
	FeatureRemindersEnabled   bool `envconfig:"FEATURE_REMINDERS_ENABLED" default:"true"`
	FeatureCommunitiesEnabled bool `envconfig:"FEATURE_COMMUNITIES_ENABLED" default:"true"`
	MetricsEnabled            bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RemindersActive — напоминания включены и есть токен бота.
func (c *Config) RemindersActive() bool {
	return c.FeatureRemindersEnabled && c.TelegramBotToken != ""
}

// Validate проверяет диапазоны значений.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD обязателен при STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("неизвестный STORAGE_DRIVER %q (postgres|memory)", c.StorageDriver)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.DBConnectRetries < 0 {
		return fmt.Errorf("DB_CONNECT_RETRIES должен быть >= 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL должен быть > 0")
	}
	if c.XPPerCompletion <= 0 {
		return fmt.Errorf("XP_PER_COMPLETION должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.ReminderStreakThreshold <= 0 {
		return fmt.Errorf("REMINDER_STREAK_THRESHOLD должен быть > 0")
	}
	if c.ReminderHour < 0 || c.ReminderHour > 23 {
		return fmt.Errorf("REMINDER_HOUR должен быть в диапазоне 0..23")
	}
	if len(c.LevelThresholds) > 0 {
		if _, err := gamification.NewLevelTable(c.LevelThresholds); err != nil {
			return fmt.Errorf("LEVEL_THRESHOLDS: %w", err)
		}
	}
	return nil
}

// Load читает .env и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	thresholds, err := parseInt64CSV(cfg.LevelThresholdsRaw)
	if err != nil {
		return nil, fmt.Errorf("LEVEL_THRESHOLDS parse: %w", err)
	}
	cfg.LevelThresholds = thresholds
	cfg.CORSOrigins = parseCSV(cfg.CORSOriginsRaw)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	parts := parseCSV(s)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
