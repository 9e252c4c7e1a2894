// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, фильтры,
// движок, гейтвей и планировщик, и собирает всё в один объект App.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/config"
	"github.com/xka0085-byte/AetherGuard/internal/db/postgres"
	"github.com/xka0085-byte/AetherGuard/internal/engine"
	"github.com/xka0085-byte/AetherGuard/internal/features/admin"
	"github.com/xka0085-byte/AetherGuard/internal/features/anomaly"
	"github.com/xka0085-byte/AetherGuard/internal/features/leaderboard"
	"github.com/xka0085-byte/AetherGuard/internal/features/penalty"
	"github.com/xka0085-byte/AetherGuard/internal/features/quality"
	"github.com/xka0085-byte/AetherGuard/internal/features/reactions"
	"github.com/xka0085-byte/AetherGuard/internal/features/scoring"
	"github.com/xka0085-byte/AetherGuard/internal/features/voice"
	"github.com/xka0085-byte/AetherGuard/internal/gateway"
	"github.com/xka0085-byte/AetherGuard/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Gateway   *gateway.Gateway
	Engine    *engine.Engine
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Репозитории ===
	scoringRepo := scoring.NewRepository(pool)
	penaltyRepo := penalty.NewRepository(pool)
	boardRepo := leaderboard.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 3. Реестр штрафов и скоринг ===
	ledger := penalty.NewLedger(penaltyRepo)
	scoringService := scoring.NewService(scoringRepo, ledger)
	boardService := leaderboard.NewService(boardRepo)
	adminService := admin.NewService(adminRepo, cfg)

	// === 4. Фильтры и детекторы ===
	qualityFilter, err := quality.NewFilter(quality.Thresholds{
		MinLength:       cfg.QualityMinLength,
		Cooldown:        cfg.QualityCooldown,
		BurstLimit:      cfg.QualityBurstLimit,
		BurstWindow:     cfg.QualityBurstWindow,
		HistorySize:     cfg.QualityHistorySize,
		SimilarityLimit: cfg.QualitySimilarityLimit,
	}, cfg.TrackerCapacity)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания фильтра качества: %w", err)
	}

	reactionGuard, err := reactions.NewGuard(reactions.Thresholds{
		Window:       cfg.ReactionWindow,
		WindowLimit:  cfg.ReactionWindowLimit,
		FarmMinCount: cfg.ReactionFarmMinCount,
		FarmRatio:    cfg.ReactionFarmRatio,
	}, cfg.TrackerCapacity)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания гейта реакций: %w", err)
	}

	voiceTracker := voice.NewTracker(voice.Thresholds{
		CheckpointInterval: cfg.VoiceCheckpointInterval,
		MaxMinutesPerTick:  cfg.VoiceMaxMinutesPerTick,
	})

	spikeDetector, err := anomaly.NewDetector(anomaly.Thresholds{
		HistorySize:     cfg.AnomalyHistorySize,
		MinHistory:      cfg.AnomalyMinHistory,
		SpikeMultiplier: cfg.AnomalySpikeMultiplier,
	}, cfg.TrackerCapacity)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания детектора аномалий: %w", err)
	}

	sybilTracker, err := anomaly.NewSybilTracker(anomaly.SybilThresholds{
		Window:         cfg.SybilWindow,
		MinCommunities: cfg.SybilMinCommunities,
	}, cfg.TrackerCapacity)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания трекера мультиаккаунтов: %w", err)
	}

	// === 5. Движок ===
	eng, err := engine.New(
		engine.Options{
			FlushInterval:      cfg.FlushInterval,
			CheckpointInterval: cfg.VoiceCheckpointInterval,
		},
		engine.NewQueue(cfg.QueueCapacity),
		qualityFilter,
		reactionGuard,
		voiceTracker,
		ledger,
		scoringService,
		spikeDetector,
		sybilTracker,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания движка: %w", err)
	}

	// === 6. Гейтвей и админка ===
	gw, err := gateway.New(cfg.DiscordBotToken, eng)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания гейтвея: %w", err)
	}
	gw.SetAdminHandler(admin.NewHandler(adminService, ledger, boardService, gw))

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(scoringService, adminService)

	log.Info("Приложение инициализировано")

	return &App{
		Gateway:   gw,
		Engine:    eng,
		Scheduler: scheduler,
		DB:        pool,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if err := postgres.EnsureMigrationsTable(ctx, pool); err != nil {
		return err
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Settings},
		{2, migration002Counters},
		{3, migration003Holdings},
		{4, migration004Flags},
		{5, migration005Admin},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Settings = `
CREATE TABLE IF NOT EXISTS community_settings (
    community_id TEXT PRIMARY KEY,
    enabled BOOLEAN DEFAULT TRUE,
    weight_message DOUBLE PRECISION DEFAULT 1.0,
    weight_reply DOUBLE PRECISION DEFAULT 1.5,
    weight_reaction DOUBLE PRECISION DEFAULT 0.5,
    weight_voice_minute DOUBLE PRECISION DEFAULT 0.2,
    cap_messages INTEGER DEFAULT 100,
    cap_replies INTEGER DEFAULT 50,
    cap_reactions INTEGER DEFAULT 50,
    cap_voice_minutes INTEGER DEFAULT 480,
    multiplier_tiers JSONB DEFAULT '[]',
    tracked_channels TEXT[] DEFAULT '{}',
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
`

var migration002Counters = `
CREATE TABLE IF NOT EXISTS actor_counters (
    community_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    total_score NUMERIC(14,2) DEFAULT 0,
    weekly_score NUMERIC(14,2) DEFAULT 0,
    total_messages INTEGER DEFAULT 0,
    total_replies INTEGER DEFAULT 0,
    total_reactions INTEGER DEFAULT 0,
    total_voice_minutes INTEGER DEFAULT 0,
    daily_messages INTEGER DEFAULT 0,
    daily_replies INTEGER DEFAULT 0,
    daily_reactions INTEGER DEFAULT 0,
    daily_voice_minutes INTEGER DEFAULT 0,
    reset_date DATE NOT NULL DEFAULT CURRENT_DATE,
    updated_at TIMESTAMP DEFAULT NOW(),
    PRIMARY KEY (community_id, actor_id)
);
CREATE INDEX IF NOT EXISTS idx_actor_counters_score
    ON actor_counters (community_id, total_score DESC);
`

var migration003Holdings = `
CREATE TABLE IF NOT EXISTS holdings (
    community_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    verified_count INTEGER DEFAULT 0,
    verified_at TIMESTAMP DEFAULT NOW(),
    PRIMARY KEY (community_id, actor_id)
);
`

var migration004Flags = `
CREATE TABLE IF NOT EXISTS actor_flags (
    id BIGSERIAL PRIMARY KEY,
    community_id TEXT NOT NULL,
    actor_id TEXT NOT NULL,
    reason VARCHAR(64) NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    UNIQUE (community_id, actor_id, reason)
);
CREATE INDEX IF NOT EXISTS idx_actor_flags_actor
    ON actor_flags (community_id, actor_id);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMP DEFAULT NOW(),
    expires_at TIMESTAMP,
    last_activity TIMESTAMP DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT,
    attempt_time TIMESTAMP DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`
