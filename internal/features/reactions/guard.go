// Package reactions ограничивает пропускную способность реакций.
// guard.go держит скользящее 5-минутное окно по каждой паре
// (сообщество, актор): счётчик реакций и множество целевых сообщений.
// Массовые реакции по одним и тем же сообщениям — фарм.
package reactions

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Thresholds — пороги гейта реакций. Заполняются из config.
type Thresholds struct {
	Window       time.Duration
	WindowLimit  int
	FarmMinCount int
	FarmRatio    float64
}

type reaction struct {
	at       time.Time
	targetID string
}

type actorWindow struct {
	reactions []reaction
	// чтобы не сыпать reaction_farming на каждую реакцию подряд
	farmFlagged bool
}

// Guard — гейт реакций. Окна по акторам живут в LRU.
type Guard struct {
	mu     sync.Mutex
	th     Thresholds
	actors *lru.Cache[string, *actorWindow]

	// подменяется в тестах
	now func() time.Time
}

// NewGuard создаёт гейт реакций.
func NewGuard(th Thresholds, trackerCapacity int) (*Guard, error) {
	cache, err := lru.New[string, *actorWindow](trackerCapacity)
	if err != nil {
		return nil, err
	}
	return &Guard{
		th:     th,
		actors: cache,
		now:    time.Now,
	}, nil
}

// Admit решает, засчитывать ли реакцию.
// Возвращает (admitted, farming): farming=true означает, что надо
// поднять флаг reaction_farming. Реакция на собственное сообщение
// не считается вовсе — ни в окно, ни в счёт.
// Отклонённые реакции В ОКНЕ ОСТАЮТСЯ: спамящий не получает свежий
// лимит, просто переждав счётчик.
func (g *Guard) Admit(communityID, actorID, targetMessageID, targetAuthorID string) (bool, bool) {
	if actorID == targetAuthorID {
		return false, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := communityID + "/" + actorID
	w, ok := g.actors.Get(key)
	if !ok {
		w = &actorWindow{}
		g.actors.Add(key, w)
	}

	g.prune(w, now)
	w.reactions = append(w.reactions, reaction{at: now, targetID: targetMessageID})

	count := len(w.reactions)
	if count > g.th.WindowLimit {
		log.WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
			"count":        count,
		}).Warn("Лимит реакций в окне превышен")
		return false, false
	}

	if count > g.th.FarmMinCount {
		distinct := make(map[string]struct{}, count)
		for _, r := range w.reactions {
			distinct[r.targetID] = struct{}{}
		}
		ratio := float64(len(distinct)) / float64(count)
		if ratio < g.th.FarmRatio {
			farming := !w.farmFlagged
			w.farmFlagged = true
			log.WithFields(log.Fields{
				"community_id": communityID,
				"actor_id":     actorID,
				"count":        count,
				"distinct":     len(distinct),
			}).Warn("Обнаружен фарм реакций")
			return false, farming
		}
	}

	return true, false
}

// prune выбрасывает реакции старше окна.
func (g *Guard) prune(w *actorWindow, now time.Time) {
	cutoff := now.Add(-g.th.Window)
	i := 0
	for i < len(w.reactions) && !w.reactions[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		w.reactions = w.reactions[i:]
	}
	if len(w.reactions) == 0 {
		w.farmFlagged = false
	}
}
