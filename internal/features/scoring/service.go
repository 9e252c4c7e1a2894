// service.go содержит бизнес-логику начисления очков: ленивый откат
// дневных счётчиков, зажим лимитами, множители штрафа и холдинга.
package scoring

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

// Store — хранилище счётчиков. Реализуется *Repository (PostgreSQL),
// в тестах — in-memory подделкой.
type Store interface {
	GetSettings(ctx context.Context, communityID string) (*CommunitySettings, error)
	GetHoldingCounts(ctx context.Context, communityID string, actorIDs []string) (map[string]int, error)
	ApplyBatch(ctx context.Context, communityID string, actorIDs []string,
		compute func(actorID string, c *ActorDailyCounters) (*CounterUpdate, error)) error
	DecrementMessage(ctx context.Context, communityID, actorID string, weight float64) error
	ResetWeeklyScores(ctx context.Context) (int64, error)
}

// PenaltyProvider отдаёт штрафной множитель актора (1.0 / 0.5 / 0.0).
type PenaltyProvider interface {
	Multiplier(ctx context.Context, communityID, actorID string) (float64, error)
}

// Service — движок начисления очков.
type Service struct {
	store   Store
	penalty PenaltyProvider

	// подменяется в тестах
	now func() time.Time
}

// NewService создаёт сервис скоринга.
func NewService(store Store, penalty PenaltyProvider) *Service {
	return &Service{
		store:   store,
		penalty: penalty,
		now:     common.GetMoscowTime,
	}
}

// GetSettings проксирует чтение настроек (используется агрегатором,
// который кеширует их на один цикл сброса).
func (s *Service) GetSettings(ctx context.Context, communityID string) (*CommunitySettings, error) {
	return s.store.GetSettings(ctx, communityID)
}

// ApplyBatch применяет агрегаты одного сообщества за цикл сброса.
// Для каждого актора:
//  1. ленивый откат дневных счётчиков, если сменились сутки;
//  2. зажим каждого вида активности остатком дневного лимита;
//  3. штрафной множитель (0 — актор пропускается целиком);
//  4. множитель за холдинг;
//  5. дельта = round(Σ(зажатое × вес) × холдинг × штраф, 2).
//
// Ошибка хранилища откатывает весь пакет сообщества — события уйдут
// на повторную попытку в следующем цикле.
func (s *Service) ApplyBatch(ctx context.Context, communityID string, aggs []ActorAggregate, settings *CommunitySettings) ([]Applied, error) {
	if len(aggs) == 0 {
		return nil, nil
	}

	byActor := make(map[string]ActorAggregate, len(aggs))
	actorIDs := make([]string, 0, len(aggs))
	for _, a := range aggs {
		byActor[a.ActorID] = a
		actorIDs = append(actorIDs, a.ActorID)
	}

	holdings, err := s.store.GetHoldingCounts(ctx, communityID, actorIDs)
	if err != nil {
		return nil, err
	}

	today := common.DateOf(s.now())
	var applied []Applied

	err = s.store.ApplyBatch(ctx, communityID, actorIDs, func(actorID string, c *ActorDailyCounters) (*CounterUpdate, error) {
		agg, ok := byActor[actorID]
		if !ok {
			return nil, nil
		}

		reset := !common.SameDay(today, c.ResetDate)
		usedMessages := c.DailyMessages
		usedReplies := c.DailyReplies
		usedReactions := c.DailyReactions
		usedVoice := c.DailyVoiceMinutes
		if reset {
			usedMessages, usedReplies, usedReactions, usedVoice = 0, 0, 0, 0
		}

		addMessages := clampToCap(agg.Messages, settings.CapMessages, usedMessages)
		addReplies := clampToCap(agg.Replies, settings.CapReplies, usedReplies)
		addReactions := clampToCap(agg.Reactions, settings.CapReactions, usedReactions)
		addVoice := clampToCap(agg.VoiceMinutes, settings.CapVoiceMinutes, usedVoice)

		if addMessages == 0 && addReplies == 0 && addReactions == 0 && addVoice == 0 {
			// всё упёрлось в лимиты — ни записи, ни дельты
			return nil, nil
		}

		penalty, err := s.penalty.Multiplier(ctx, communityID, actorID)
		if err != nil {
			return nil, err
		}
		if penalty == 0 {
			// заблокированный актор: нулевую запись не делаем вовсе
			log.WithFields(log.Fields{
				"community_id": communityID,
				"actor_id":     actorID,
			}).Debug("Актор заблокирован штрафом, пакет пропущен")
			return nil, nil
		}

		tier := settings.TierMultiplier(holdings[actorID])

		delta := common.Round2((float64(addMessages)*settings.WeightMessage +
			float64(addReplies)*settings.WeightReply +
			float64(addReactions)*settings.WeightReaction +
			float64(addVoice)*settings.WeightVoiceMinute) * tier * penalty)

		applied = append(applied, Applied{ActorID: actorID, Delta: delta})

		return &CounterUpdate{
			ResetDaily:      reset,
			AddMessages:     addMessages,
			AddReplies:      addReplies,
			AddReactions:    addReactions,
			AddVoiceMinutes: addVoice,
			Delta:           delta,
			ResetDate:       today,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return applied, nil
}

// HandleMessageDelete откатывает удалённое сообщение.
// Неразрешимые ситуации (сообщество не трекается) — молча no-op.
func (s *Service) HandleMessageDelete(ctx context.Context, communityID, actorID string) error {
	settings, err := s.store.GetSettings(ctx, communityID)
	if err != nil {
		if err == common.ErrSettingsNotFound {
			return nil
		}
		return err
	}
	if !settings.Enabled {
		return nil
	}
	return s.store.DecrementMessage(ctx, communityID, actorID, settings.WeightMessage)
}

// ResetWeeklyScores — недельный сброс очков (крон, понедельник 00:00).
func (s *Service) ResetWeeklyScores(ctx context.Context) error {
	n, err := s.store.ResetWeeklyScores(ctx)
	if err != nil {
		return err
	}
	log.WithField("rows", n).Info("Недельные очки сброшены")
	return nil
}

// clampToCap зажимает прирост остатком дневного лимита.
// Лимит <= 0 трактуется как «без лимита».
func clampToCap(add, cap, used int) int {
	if add <= 0 {
		return 0
	}
	if cap <= 0 {
		return add
	}
	left := cap - used
	if left <= 0 {
		return 0
	}
	if add > left {
		return left
	}
	return add
}
