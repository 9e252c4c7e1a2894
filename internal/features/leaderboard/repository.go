// repository.go — запросы к actor_counters только на чтение.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

// Repository читает таблицу actor_counters.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий таблицы лидеров.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetScore возвращает очки актора и его место по total_score.
func (r *Repository) GetScore(ctx context.Context, communityID, actorID string) (*ActorScore, error) {
	query := `
		SELECT actor_id, total_score, weekly_score,
		       (SELECT COUNT(*) + 1 FROM actor_counters b
		        WHERE b.community_id = a.community_id AND b.total_score > a.total_score)
		FROM actor_counters a
		WHERE community_id = $1 AND actor_id = $2
	`
	var s ActorScore
	err := r.db.QueryRow(ctx, query, communityID, actorID).Scan(
		&s.ActorID, &s.TotalScore, &s.WeeklyScore, &s.Rank,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrCountersNotFound
		}
		return nil, fmt.Errorf("ошибка чтения очков: %w", err)
	}
	return &s, nil
}

// GetTop возвращает срез таблицы лидеров по total_score.
func (r *Repository) GetTop(ctx context.Context, communityID string, limit int) ([]Entry, error) {
	query := `
		SELECT actor_id, total_score, weekly_score
		FROM actor_counters
		WHERE community_id = $1
		ORDER BY total_score DESC, actor_id
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения таблицы лидеров: %w", err)
	}
	defer rows.Close()

	var out []Entry
	rank := 0
	for rows.Next() {
		rank++
		e := Entry{Rank: rank}
		if err := rows.Scan(&e.ActorID, &e.TotalScore, &e.WeeklyScore); err != nil {
			return nil, fmt.Errorf("ошибка чтения таблицы лидеров: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
