// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
//
// ВСЕ пороги эвристик (фильтр качества, окно реакций, аномалии, голосовые
// чекпоинты) собраны здесь, а не разбросаны по коду — их можно крутить
// без пересборки логики.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Discord ---
	DiscordBotToken string   `envconfig:"DISCORD_BOT_TOKEN" required:"true"`
	AdminIDsRaw     string   `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs        []string `envconfig:"-"` // заполним вручную

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"aetherguard"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Admin ---
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Event queue ---
	QueueCapacity int           `envconfig:"QUEUE_CAPACITY" default:"10000"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"5s"`

	// --- Quality filter ---
	QualityMinLength       int           `envconfig:"QUALITY_MIN_LENGTH" default:"3"`
	QualityCooldown        time.Duration `envconfig:"QUALITY_COOLDOWN" default:"10s"`
	QualityBurstLimit      int           `envconfig:"QUALITY_BURST_LIMIT" default:"50"`
	QualityBurstWindow     time.Duration `envconfig:"QUALITY_BURST_WINDOW" default:"60s"`
	QualityHistorySize     int           `envconfig:"QUALITY_HISTORY_SIZE" default:"10"`
	QualitySimilarityLimit float64       `envconfig:"QUALITY_SIMILARITY_LIMIT" default:"0.75"`

	// --- Reaction guard ---
	ReactionWindow       time.Duration `envconfig:"REACTION_WINDOW" default:"5m"`
	ReactionWindowLimit  int           `envconfig:"REACTION_WINDOW_LIMIT" default:"30"`
	ReactionFarmMinCount int           `envconfig:"REACTION_FARM_MIN_COUNT" default:"10"`
	ReactionFarmRatio    float64       `envconfig:"REACTION_FARM_RATIO" default:"0.3"`

	// --- Voice tracker ---
	VoiceCheckpointInterval time.Duration `envconfig:"VOICE_CHECKPOINT_INTERVAL" default:"5m"`
	VoiceMaxMinutesPerTick  int           `envconfig:"VOICE_MAX_MINUTES_PER_TICK" default:"240"`

	// --- Anomaly detector ---
	AnomalyHistorySize     int     `envconfig:"ANOMALY_HISTORY_SIZE" default:"7"`
	AnomalyMinHistory      int     `envconfig:"ANOMALY_MIN_HISTORY" default:"3"`
	AnomalySpikeMultiplier float64 `envconfig:"ANOMALY_SPIKE_MULTIPLIER" default:"5.0"`

	// --- Sybil detector ---
	SybilWindow         time.Duration `envconfig:"SYBIL_WINDOW" default:"10m"`
	SybilMinCommunities int           `envconfig:"SYBIL_MIN_COMMUNITIES" default:"5"`

	// --- Trackers (in-memory) ---
	// Верхняя граница числа акторов, по которым держим состояние в памяти.
	// LRU вытесняет давно неактивных — это и есть периодическая чистка трекеров.
	TrackerCapacity int `envconfig:"TRACKER_CAPACITY" default:"65536"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) Validate() error {
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY должен быть > 0")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("FLUSH_INTERVAL должен быть > 0")
	}
	if c.QualitySimilarityLimit <= 0 || c.QualitySimilarityLimit > 1 {
		return fmt.Errorf("QUALITY_SIMILARITY_LIMIT должен быть в (0, 1]")
	}
	if c.ReactionFarmRatio <= 0 || c.ReactionFarmRatio >= 1 {
		return fmt.Errorf("REACTION_FARM_RATIO должен быть в (0, 1)")
	}
	if c.AnomalyMinHistory > c.AnomalyHistorySize {
		return fmt.Errorf("ANOMALY_MIN_HISTORY не может превышать ANOMALY_HISTORY_SIZE")
	}
	if c.TrackerCapacity <= 0 {
		return fmt.Errorf("TRACKER_CAPACITY должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.AdminIDs = parseCSV(cfg.AdminIDsRaw)
	for _, id := range cfg.AdminIDs {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("ADMIN_IDS: %q не похож на snowflake: %w", id, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
