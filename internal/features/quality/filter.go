// Package quality реализует фильтр качества сообщений.
// filter.go — главный вход: решает, засчитывать ли текстовое сообщение.
// Фильтр держит небольшое состояние по каждому актору (последнее принятое
// сообщение, счётчик окна, история последних принятых текстов) и НИЧЕГО
// не пишет в базу — это чисто real-time гейт.
package quality

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
)

// Причины отказа — попадают в security-лог, пользователю не показываются.
const (
	ReasonTooShort      = "too_short"
	ReasonLowInfo       = "low_information"
	ReasonNearDuplicate = "near_duplicate"
	ReasonCooldown      = "cooldown"
	ReasonBurstLimit    = "burst_limit"
)

// Thresholds — пороги фильтра. Заполняются из config.
type Thresholds struct {
	MinLength       int
	Cooldown        time.Duration
	BurstLimit      int
	BurstWindow     time.Duration
	HistorySize     int
	SimilarityLimit float64
}

// actorState — приватное состояние фильтра по одному актору.
type actorState struct {
	lastAccepted time.Time
	windowStart  time.Time
	windowCount  int
	// история последних принятых текстов, FIFO
	history []string
}

// Filter — фильтр качества. Состояние по акторам живёт в LRU:
// давно молчащие акторы вытесняются сами, отдельной чистки не нужно.
type Filter struct {
	mu sync.Mutex
	th Thresholds

	actors *lru.Cache[string, *actorState]

	// подменяется в тестах
	now func() time.Time
}

// NewFilter создаёт фильтр качества.
func NewFilter(th Thresholds, trackerCapacity int) (*Filter, error) {
	cache, err := lru.New[string, *actorState](trackerCapacity)
	if err != nil {
		return nil, err
	}
	return &Filter{
		th:     th,
		actors: cache,
		now:    time.Now,
	}, nil
}

// ShouldScore решает, засчитывать ли сообщение актора.
// Возвращает (false, причина) при отказе. Порядок проверок фиксирован:
// длина → мусорность → почти-дубликат → кулдаун → burst-лимит.
// В историю текст попадает сразу после проверки на дубликат — даже если
// дальше сработает кулдаун: повтор того же текста всё равно дубликат.
func (f *Filter) ShouldScore(communityID, actorID, text string) (bool, string) {
	text = strings.TrimSpace(text)

	if len([]rune(text)) < f.th.MinLength {
		return false, ReasonTooShort
	}

	if IsGibberish(text) {
		return false, ReasonLowInfo
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	key := communityID + "/" + actorID
	st, ok := f.actors.Get(key)
	if !ok {
		st = &actorState{windowStart: now}
		f.actors.Add(key, st)
	}

	for _, prev := range st.history {
		if Similarity(prev, text) >= f.th.SimilarityLimit {
			return false, ReasonNearDuplicate
		}
	}

	st.history = append(st.history, text)
	if len(st.history) > f.th.HistorySize {
		st.history = st.history[1:]
	}

	if !st.lastAccepted.IsZero() && now.Sub(st.lastAccepted) < f.th.Cooldown {
		return false, ReasonCooldown
	}

	// скользящее окно burst-лимита: окно сбрасывается целиком по истечении
	if now.Sub(st.windowStart) > f.th.BurstWindow {
		st.windowStart = now
		st.windowCount = 0
	}
	if st.windowCount >= f.th.BurstLimit {
		log.WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
			"count":        st.windowCount,
		}).Warn("Burst-лимит сообщений превышен")
		return false, ReasonBurstLimit
	}
	st.windowCount++

	st.lastAccepted = now
	return true, ""
}
