// repository.go выполняет операции с таблицей actor_flags.
// Флаги долговечны: множитель штрафа переживает рестарт процесса.
package penalty

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository работает с таблицей actor_flags.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий флагов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetFlags возвращает причины флагов актора в порядке постановки.
func (r *Repository) GetFlags(ctx context.Context, communityID, actorID string) ([]string, error) {
	query := `
		SELECT reason FROM actor_flags
		WHERE community_id = $1 AND actor_id = $2
		ORDER BY created_at
	`
	rows, err := r.db.Query(ctx, query, communityID, actorID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения флагов: %w", err)
	}
	defer rows.Close()

	var reasons []string
	for rows.Next() {
		var reason string
		if err := rows.Scan(&reason); err != nil {
			return nil, fmt.Errorf("ошибка чтения флагов: %w", err)
		}
		reasons = append(reasons, reason)
	}
	return reasons, rows.Err()
}

// AddFlag ставит флаг. Повторная постановка той же причины — no-op;
// возвращает true, если флаг действительно новый.
func (r *Repository) AddFlag(ctx context.Context, communityID, actorID, reason string) (bool, error) {
	query := `
		INSERT INTO actor_flags (community_id, actor_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (community_id, actor_id, reason) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, communityID, actorID, reason)
	if err != nil {
		return false, fmt.Errorf("ошибка записи флага: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveFlag снимает флаг (административное действие).
// Возвращает true, если флаг существовал.
func (r *Repository) RemoveFlag(ctx context.Context, communityID, actorID, reason string) (bool, error) {
	query := `
		DELETE FROM actor_flags
		WHERE community_id = $1 AND actor_id = $2 AND reason = $3
	`
	tag, err := r.db.Exec(ctx, query, communityID, actorID, reason)
	if err != nil {
		return false, fmt.Errorf("ошибка снятия флага: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListFlagged возвращает всех помеченных акторов сообщества.
func (r *Repository) ListFlagged(ctx context.Context, communityID string) ([]ActorFlags, error) {
	query := `
		SELECT actor_id, array_agg(reason ORDER BY created_at)
		FROM actor_flags
		WHERE community_id = $1
		GROUP BY actor_id
		ORDER BY actor_id
	`
	rows, err := r.db.Query(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения помеченных акторов: %w", err)
	}
	defer rows.Close()

	var out []ActorFlags
	for rows.Next() {
		af := ActorFlags{CommunityID: communityID}
		if err := rows.Scan(&af.ActorID, &af.Reasons); err != nil {
			return nil, fmt.Errorf("ошибка чтения помеченных акторов: %w", err)
		}
		out = append(out, af)
	}
	return out, rows.Err()
}
