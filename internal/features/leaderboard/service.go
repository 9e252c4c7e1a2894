// service.go — тонкий сервис над репозиторием: валидация лимитов.
package leaderboard

import "context"

const maxTopSize = 25

// Service отдаёт данные для отображения рейтингов.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис таблицы лидеров.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// GetScore — очки и место актора.
func (s *Service) GetScore(ctx context.Context, communityID, actorID string) (*ActorScore, error) {
	return s.repo.GetScore(ctx, communityID, actorID)
}

// GetTop — верхушка таблицы, максимум 25 строк.
func (s *Service) GetTop(ctx context.Context, communityID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxTopSize {
		limit = 10
	}
	return s.repo.GetTop(ctx, communityID, limit)
}
