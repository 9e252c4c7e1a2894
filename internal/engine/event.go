// Package engine — ядро учёта активности: нормализованные события,
// очередь с пакетным сбросом и входные точки для событий платформы.
package engine

import "time"

// EventKind — тип события активности.
type EventKind string

const (
	KindMessage  EventKind = "message"
	KindReply    EventKind = "reply"
	KindReaction EventKind = "reaction"
	KindVoice    EventKind = "voice"
)

// Event — нормализованное событие активности.
// Живёт от фильтра до агрегатора, после сброса пакета выбрасывается.
type Event struct {
	CommunityID string
	ActorID     string
	Kind        EventKind
	// Magnitude — количество (сообщения/реакции) или минуты (голос).
	Magnitude  int
	ObservedAt time.Time
}
