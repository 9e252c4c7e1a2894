// sybil.go — эвристика мультиаккаунт-фарма по сообществам:
// один актор, одновременно «активный» во многих сообществах за короткое
// окно, почти наверняка фармит ботофермой, а не общается.
package anomaly

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// SybilThresholds — параметры эвристики. Заполняются из config.
type SybilThresholds struct {
	Window         time.Duration
	MinCommunities int
}

type sybilState struct {
	windowStart time.Time
	communities map[string]struct{}
	flagged     bool
}

// SybilTracker считает, в скольких сообществах актор активен
// внутри скользящего окна. Ключ — актор БЕЗ сообщества.
type SybilTracker struct {
	mu     sync.Mutex
	th     SybilThresholds
	actors *lru.Cache[string, *sybilState]

	// подменяется в тестах
	now func() time.Time
}

// NewSybilTracker создаёт трекер мультиаккаунт-фарма.
func NewSybilTracker(th SybilThresholds, trackerCapacity int) (*SybilTracker, error) {
	cache, err := lru.New[string, *sybilState](trackerCapacity)
	if err != nil {
		return nil, err
	}
	return &SybilTracker{
		th:     th,
		actors: cache,
		now:    time.Now,
	}, nil
}

// Observe отмечает активность актора в сообществе.
// Возвращает true один раз на окно, когда число различных сообществ
// достигло порога — вызывающий поднимает флаг cross_guild_sybil.
func (t *SybilTracker) Observe(actorID, communityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st, ok := t.actors.Get(actorID)
	if !ok || now.Sub(st.windowStart) > t.th.Window {
		st = &sybilState{
			windowStart: now,
			communities: make(map[string]struct{}),
		}
		t.actors.Add(actorID, st)
	}

	st.communities[communityID] = struct{}{}

	if !st.flagged && len(st.communities) >= t.th.MinCommunities {
		st.flagged = true
		log.WithFields(log.Fields{
			"component":   "anomaly",
			"actor_id":    actorID,
			"communities": len(st.communities),
		}).Warn("Подозрение на мультиаккаунт-фарм по сообществам")
		return true
	}
	return false
}
