// Package anomaly ловит статистические выбросы активности.
// baseline.go ведёт по каждому актору скользящую историю дневных очков
// и сравнивает сегодняшний накопленный итог со средним.
// Детектор смотрит ТОЛЬКО на уже записанные дельты — он вызывается
// после успешного сохранения пакета.
package anomaly

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

// Thresholds — параметры детектора. Заполняются из config.
type Thresholds struct {
	// сколько прошлых дней держим в истории
	HistorySize int
	// с какого размера истории начинаем сравнивать
	MinHistory int
	// во сколько раз сегодня должно превысить среднее
	SpikeMultiplier float64
}

type baseline struct {
	history    []float64
	todayTotal float64
	lastDate   time.Time
	// не поднимать флаг повторно, пока идут те же сутки
	flagged bool
}

// Detector — детектор всплесков. Базовые линии по акторам живут в LRU:
// долгая неактивность вытесняет запись сама.
type Detector struct {
	mu     sync.Mutex
	th     Thresholds
	actors *lru.Cache[string, *baseline]

	// подменяется в тестах
	now func() time.Time
}

// NewDetector создаёт детектор аномалий.
func NewDetector(th Thresholds, trackerCapacity int) (*Detector, error) {
	cache, err := lru.New[string, *baseline](trackerCapacity)
	if err != nil {
		return nil, err
	}
	return &Detector{
		th:     th,
		actors: cache,
		now:    common.GetMoscowTime,
	}, nil
}

// Observe скармливает детектору только что записанную дельту очков.
// Возвращает true, если сегодняшний итог стал всплеском и флаг
// activity_spike ещё не поднимался в этих сутках.
func (d *Detector) Observe(communityID, actorID string, delta float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	key := communityID + "/" + actorID
	b, ok := d.actors.Get(key)
	if !ok {
		b = &baseline{lastDate: now}
		d.actors.Add(key, b)
	}

	// смена суток: вчерашний итог уходит в историю
	if !common.SameDay(b.lastDate, now) {
		b.history = append(b.history, b.todayTotal)
		if len(b.history) > d.th.HistorySize {
			b.history = b.history[1:]
		}
		b.todayTotal = 0
		b.flagged = false
		b.lastDate = now
	}

	b.todayTotal += delta

	if len(b.history) < d.th.MinHistory || b.flagged {
		return false
	}

	var sum float64
	for _, v := range b.history {
		sum += v
	}
	avg := sum / float64(len(b.history))

	if b.todayTotal > avg*d.th.SpikeMultiplier {
		b.flagged = true
		log.WithFields(log.Fields{
			"component":    "anomaly",
			"community_id": communityID,
			"actor_id":     actorID,
			"today":        b.todayTotal,
			"baseline_avg": avg,
		}).Warn("Всплеск активности над базовой линией")
		return true
	}
	return false
}
