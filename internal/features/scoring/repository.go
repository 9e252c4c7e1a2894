// repository.go выполняет операции с таблицами community_settings,
// actor_counters и holdings. Все мутации счётчиков одной пары
// (сообщество, актор) сериализуются на уровне базы: пакетная запись
// держит строки под FOR UPDATE, а декремент — одиночный атомарный UPDATE.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

// Repository предоставляет доступ к хранилищу скоринга.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий скоринга.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetSettings возвращает настройки сообщества.
// Отсутствие записи — это common.ErrSettingsNotFound: сообщество не трекается.
func (r *Repository) GetSettings(ctx context.Context, communityID string) (*CommunitySettings, error) {
	query := `
		SELECT community_id, enabled,
		       weight_message, weight_reply, weight_reaction, weight_voice_minute,
		       cap_messages, cap_replies, cap_reactions, cap_voice_minutes,
		       multiplier_tiers, tracked_channels
		FROM community_settings WHERE community_id = $1
	`
	var s CommunitySettings
	err := r.db.QueryRow(ctx, query, communityID).Scan(
		&s.CommunityID, &s.Enabled,
		&s.WeightMessage, &s.WeightReply, &s.WeightReaction, &s.WeightVoiceMinute,
		&s.CapMessages, &s.CapReplies, &s.CapReactions, &s.CapVoiceMinutes,
		&s.Tiers, &s.TrackedChannels,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("ошибка чтения настроек сообщества: %w", err)
	}
	return &s, nil
}

// GetHoldingCounts возвращает верифицированные количества NFT по акторам.
// Записи в holdings ведёт внешний верификатор; отсутствие записи = 0.
func (r *Repository) GetHoldingCounts(ctx context.Context, communityID string, actorIDs []string) (map[string]int, error) {
	query := `
		SELECT actor_id, verified_count FROM holdings
		WHERE community_id = $1 AND actor_id = ANY($2)
	`
	rows, err := r.db.Query(ctx, query, communityID, actorIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения холдингов: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int, len(actorIDs))
	for rows.Next() {
		var actorID string
		var count int
		if err := rows.Scan(&actorID, &count); err != nil {
			return nil, fmt.Errorf("ошибка чтения холдингов: %w", err)
		}
		counts[actorID] = count
	}
	return counts, rows.Err()
}

// ApplyBatch применяет обновления счётчиков пакета в одной транзакции.
// Строки акторов создаются при первом касании (upsert) и берутся под
// FOR UPDATE; compute вызывается для каждой строки и возвращает nil,
// если актору в этом пакете ничего не начисляется.
// Любая ошибка откатывает весь пакет сообщества.
func (r *Repository) ApplyBatch(
	ctx context.Context,
	communityID string,
	actorIDs []string,
	compute func(actorID string, c *ActorDailyCounters) (*CounterUpdate, error),
) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Первое касание актора создаёт нулевую строку
	_, err = tx.Exec(ctx, `
		INSERT INTO actor_counters (community_id, actor_id, reset_date)
		SELECT $1, unnest($2::text[]), CURRENT_DATE
		ON CONFLICT (community_id, actor_id) DO NOTHING
	`, communityID, actorIDs)
	if err != nil {
		return fmt.Errorf("ошибка создания счётчиков: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT community_id, actor_id, total_score, weekly_score,
		       total_messages, total_replies, total_reactions, total_voice_minutes,
		       daily_messages, daily_replies, daily_reactions, daily_voice_minutes,
		       reset_date, updated_at
		FROM actor_counters
		WHERE community_id = $1 AND actor_id = ANY($2)
		FOR UPDATE
	`, communityID, actorIDs)
	if err != nil {
		return fmt.Errorf("ошибка чтения счётчиков: %w", err)
	}

	counters := make([]*ActorDailyCounters, 0, len(actorIDs))
	for rows.Next() {
		var c ActorDailyCounters
		if err := rows.Scan(
			&c.CommunityID, &c.ActorID, &c.TotalScore, &c.WeeklyScore,
			&c.TotalMessages, &c.TotalReplies, &c.TotalReactions, &c.TotalVoiceMinutes,
			&c.DailyMessages, &c.DailyReplies, &c.DailyReactions, &c.DailyVoiceMinutes,
			&c.ResetDate, &c.UpdatedAt,
		); err != nil {
			rows.Close()
			return fmt.Errorf("ошибка чтения счётчиков: %w", err)
		}
		counters = append(counters, &c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ошибка чтения счётчиков: %w", err)
	}

	for _, c := range counters {
		update, err := compute(c.ActorID, c)
		if err != nil {
			return err
		}
		if update == nil {
			continue
		}

		if update.ResetDaily {
			_, err = tx.Exec(ctx, `
				UPDATE actor_counters
				SET daily_messages = 0, daily_replies = 0,
				    daily_reactions = 0, daily_voice_minutes = 0,
				    reset_date = $3
				WHERE community_id = $1 AND actor_id = $2
			`, communityID, c.ActorID, update.ResetDate)
			if err != nil {
				return fmt.Errorf("ошибка отката дневных счётчиков: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE actor_counters
			SET total_score = ROUND((total_score + $3)::numeric, 2),
			    weekly_score = ROUND((weekly_score + $3)::numeric, 2),
			    daily_messages = daily_messages + $4,
			    daily_replies = daily_replies + $5,
			    daily_reactions = daily_reactions + $6,
			    daily_voice_minutes = daily_voice_minutes + $7,
			    total_messages = total_messages + $4,
			    total_replies = total_replies + $5,
			    total_reactions = total_reactions + $6,
			    total_voice_minutes = total_voice_minutes + $7,
			    updated_at = NOW()
			WHERE community_id = $1 AND actor_id = $2
		`, communityID, c.ActorID,
			update.Delta, update.AddMessages, update.AddReplies,
			update.AddReactions, update.AddVoiceMinutes)
		if err != nil {
			return fmt.Errorf("ошибка записи счётчиков: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DecrementMessage откатывает одно удалённое сообщение: дневной и
// накопительный счётчики и вес сообщения из очков, всё с полом в нуле.
// Одиночный UPDATE — атомарный, с пакетной записью не гоняется.
func (r *Repository) DecrementMessage(ctx context.Context, communityID, actorID string, weight float64) error {
	query := `
		UPDATE actor_counters
		SET daily_messages = GREATEST(0, daily_messages - 1),
		    total_messages = GREATEST(0, total_messages - 1),
		    total_score = GREATEST(0, ROUND((total_score - $3)::numeric, 2)),
		    weekly_score = GREATEST(0, ROUND((weekly_score - $3)::numeric, 2)),
		    updated_at = NOW()
		WHERE community_id = $1 AND actor_id = $2
	`
	_, err := r.db.Exec(ctx, query, communityID, actorID, weight)
	if err != nil {
		return fmt.Errorf("ошибка отката сообщения: %w", err)
	}
	return nil
}

// ResetWeeklyScores обнуляет недельные очки всех сообществ.
// Вызывается кроном в понедельник в полночь.
func (r *Repository) ResetWeeklyScores(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE actor_counters SET weekly_score = 0 WHERE weekly_score <> 0`)
	if err != nil {
		return 0, fmt.Errorf("ошибка недельного сброса: %w", err)
	}
	return tag.RowsAffected(), nil
}
