// queue.go — ограниченный буфер событий активности.
// Продюсеры (обработчики событий платформы) добавляют события конкурентно,
// единственный потребитель — цикл сброса — атомарно забирает весь буфер.
package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

// Queue — потокобезопасный буфер событий с верхней границей.
// Drain подменяет срез целиком: событие попадает ровно в один сброс.
type Queue struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  uint64
}

// NewQueue создаёт очередь с заданной ёмкостью.
func NewQueue(capacity int) *Queue {
	return &Queue{
		events:   make([]Event, 0, 256),
		capacity: capacity,
	}
}

// Add добавляет событие в буфер.
// При переполнении событие теряется — лучше потерять очки, чем память.
func (q *Queue) Add(ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) >= q.capacity {
		q.dropped++
		if q.dropped%100 == 1 {
			log.WithFields(log.Fields{
				"capacity": q.capacity,
				"dropped":  q.dropped,
			}).Error("Очередь событий переполнена")
		}
		return common.ErrQueueFull
	}

	q.events = append(q.events, ev)
	return nil
}

// Drain атомарно забирает все накопленные события и оставляет пустой буфер.
// Повторный Drain по пустой очереди возвращает nil — сброс без работы.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}

	out := q.events
	q.events = make([]Event, 0, 256)
	return out
}

// Requeue возвращает события в буфер после неудачной записи в базу.
// Возвращаем В НАЧАЛО, чтобы при следующем сбросе старые события
// ушли первыми. Переполнение здесь не режем: лучше разово превысить
// ёмкость, чем молча потерять уже принятую активность.
func (q *Queue) Requeue(events []Event) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.events = append(events, q.events...)
}

// Len возвращает текущий размер буфера.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
