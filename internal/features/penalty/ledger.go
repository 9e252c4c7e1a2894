// ledger.go — прогрессивный штраф: чистая функция от числа флагов.
// 0 флагов — 1.0; 1 — 1.0 с предупреждением в лог; 2 — 0.5; от 3 — 0.0,
// и такой актор отсекается ещё на входе в конвейер фильтров.
// Поверх репозитория держим кеш: Multiplier зовётся на каждый пакет,
// IsBlocked — на каждое входящее событие.
package penalty

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// FlagStore — долговечное хранилище флагов. Реализуется *Repository,
// в тестах — in-memory подделкой.
type FlagStore interface {
	GetFlags(ctx context.Context, communityID, actorID string) ([]string, error)
	AddFlag(ctx context.Context, communityID, actorID, reason string) (bool, error)
	RemoveFlag(ctx context.Context, communityID, actorID, reason string) (bool, error)
	ListFlagged(ctx context.Context, communityID string) ([]ActorFlags, error)
}

// Ledger — реестр флагов с кешем множителей.
type Ledger struct {
	store FlagStore

	mu    sync.RWMutex
	cache map[string][]string
}

// NewLedger создаёт реестр штрафов.
func NewLedger(store FlagStore) *Ledger {
	return &Ledger{
		store: store,
		cache: make(map[string][]string),
	}
}

// flags возвращает флаги актора, поднимая их из базы при первом запросе.
// Кешируется и пустой список: большинство акторов чисты.
func (l *Ledger) flags(ctx context.Context, communityID, actorID string) ([]string, error) {
	key := communityID + "/" + actorID

	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	reasons, err := l.store.GetFlags(ctx, communityID, actorID)
	if err != nil {
		return nil, err
	}
	if reasons == nil {
		reasons = []string{}
	}

	l.mu.Lock()
	l.cache[key] = reasons
	l.mu.Unlock()
	return reasons, nil
}

// Multiplier возвращает штрафной множитель актора.
func (l *Ledger) Multiplier(ctx context.Context, communityID, actorID string) (float64, error) {
	reasons, err := l.flags(ctx, communityID, actorID)
	if err != nil {
		return 0, err
	}

	switch len(reasons) {
	case 0:
		return 1.0, nil
	case 1:
		log.WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
			"flags":        reasons,
		}).Warn("Актор с одним флагом — пока без штрафа")
		return 1.0, nil
	case 2:
		return 0.5, nil
	default:
		return 0.0, nil
	}
}

// IsBlocked: от трёх флагов актор не допускается даже до фильтров.
// Ошибку базы трактуем как «не заблокирован», чтобы сбой хранилища
// не остановил весь учёт; сам сбой уходит в лог.
func (l *Ledger) IsBlocked(ctx context.Context, communityID, actorID string) bool {
	reasons, err := l.flags(ctx, communityID, actorID)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
		}).Error("Не удалось прочитать флаги актора")
		return false
	}
	return len(reasons) >= 3
}

// AddFlag ставит флаг и логирует security-событие.
// Повтор той же причины — no-op.
func (l *Ledger) AddFlag(ctx context.Context, communityID, actorID, reason string) error {
	added, err := l.store.AddFlag(ctx, communityID, actorID, reason)
	if err != nil {
		return err
	}
	if !added {
		return nil
	}

	l.mu.Lock()
	key := communityID + "/" + actorID
	if cached, ok := l.cache[key]; ok {
		l.cache[key] = append(cached, reason)
	}
	l.mu.Unlock()

	log.WithFields(log.Fields{
		"component":    "penalty",
		"community_id": communityID,
		"actor_id":     actorID,
		"reason":       reason,
	}).Warn("Поставлен флаг антиабуза")
	return nil
}

// RemoveFlag снимает флаг (только из админки).
func (l *Ledger) RemoveFlag(ctx context.Context, communityID, actorID, reason string) (bool, error) {
	removed, err := l.store.RemoveFlag(ctx, communityID, actorID, reason)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	delete(l.cache, communityID+"/"+actorID)
	l.mu.Unlock()

	if removed {
		log.WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
			"reason":       reason,
		}).Info("Флаг снят администратором")
	}
	return removed, nil
}

// ListFlagged — все помеченные акторы сообщества (для админки).
func (l *Ledger) ListFlagged(ctx context.Context, communityID string) ([]ActorFlags, error) {
	return l.store.ListFlagged(ctx, communityID)
}
