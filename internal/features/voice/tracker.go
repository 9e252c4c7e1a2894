// Package voice отслеживает голосовые сессии и начисляет минуты.
// tracker.go — конечный автомат NoSession → Active → NoSession по каждой
// паре (сообщество, актор) плюс периодический чекпоинт: при падении
// процесса теряется максимум один интервал, а не вся сессия.
package voice

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Thresholds — параметры трекера. Заполняются из config.
type Thresholds struct {
	CheckpointInterval time.Duration
	MaxMinutesPerTick  int
}

// Session — активная голосовая сессия.
type Session struct {
	CommunityID    string
	ActorID        string
	ChannelID      string
	JoinedAt       time.Time
	LastCheckpoint time.Time
	Muted          bool
	Deafened       bool
}

// Credit — начисленные минуты, готовые стать voice-событием.
type Credit struct {
	CommunityID string
	ActorID     string
	Minutes     int
	At          time.Time
}

// Tracker — владелец всех голосовых сессий и карты занятости каналов.
// Все мутации сериализуются одним мьютексом: обработчики событий и тикер
// не трогают сессии напрямую.
type Tracker struct {
	mu sync.Mutex
	th Thresholds

	// community/actor → сессия
	sessions map[string]*Session
	// community/channel → actorID → isBot
	channels map[string]map[string]bool

	// подменяется в тестах
	now func() time.Time
}

// NewTracker создаёт трекер голосовых сессий.
func NewTracker(th Thresholds) *Tracker {
	return &Tracker{
		th:       th,
		sessions: make(map[string]*Session),
		channels: make(map[string]map[string]bool),
	}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Update обрабатывает изменение голосового состояния актора.
// channelID == "" означает выход из голосового канала.
// Возвращает финальное начисление, если сессия закрылась (или актор
// перешёл в другой канал) и в интервале были зачётные минуты.
func (t *Tracker) Update(communityID, channelID, actorID string, muted, deafened, isBot bool) *Credit {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	key := communityID + "/" + actorID

	sess := t.sessions[key]

	// Выход из канала
	if channelID == "" {
		t.leaveChannel(communityID, actorID)
		if sess == nil {
			return nil
		}
		delete(t.sessions, key)
		return t.settle(sess, now)
	}

	// Боты занимают канал, но сессий не имеют
	if isBot {
		t.joinChannel(communityID, channelID, actorID, true)
		return nil
	}

	// Новая сессия
	if sess == nil {
		t.joinChannel(communityID, channelID, actorID, false)
		t.sessions[key] = &Session{
			CommunityID:    communityID,
			ActorID:        actorID,
			ChannelID:      channelID,
			JoinedAt:       now,
			LastCheckpoint: now,
			Muted:          muted,
			Deafened:       deafened,
		}
		log.WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
			"channel_id":   channelID,
		}).Debug("Голосовая сессия открыта")
		return nil
	}

	// Переход в другой канал: закрываем интервал старого канала,
	// сессия продолжается в новом с того же момента.
	if sess.ChannelID != channelID {
		credit := t.settle(sess, now)
		t.leaveChannel(communityID, actorID)
		t.joinChannel(communityID, channelID, actorID, false)
		sess.ChannelID = channelID
		sess.LastCheckpoint = now
		sess.Muted = muted
		sess.Deafened = deafened
		return credit
	}

	// Смена mute/deafen без перехода
	sess.Muted = muted
	sess.Deafened = deafened
	return nil
}

// Tick — периодический чекпоинт всех активных сессий.
// Чекпоинт продвигается ВСЕГДА, даже если зачётных пиров в канале нет:
// интервалы тишины пропадают без ретроактивного начисления. Это
// осознанная политика — интервал не пересчитывается дважды, а потери
// при падении ограничены одним интервалом.
func (t *Tracker) Tick() []Credit {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	var credits []Credit
	for _, sess := range t.sessions {
		if t.hasPeers(sess) {
			if c := t.creditFor(sess, now); c != nil {
				credits = append(credits, *c)
			}
		}
		sess.LastCheckpoint = now
	}
	return credits
}

// ActiveSessions возвращает количество открытых сессий (для логов/статуса).
func (t *Tracker) ActiveSessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Shutdown закрывает все сессии и возвращает финальные начисления.
// Вызывается при graceful shutdown, чтобы не терять последний интервал.
func (t *Tracker) Shutdown() []Credit {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	var credits []Credit
	for key, sess := range t.sessions {
		if c := t.settleLocked(sess, now); c != nil {
			credits = append(credits, *c)
		}
		delete(t.sessions, key)
	}
	return credits
}

// settle закрывает интервал сессии по тем же правилам, что и Tick.
func (t *Tracker) settle(sess *Session, now time.Time) *Credit {
	return t.settleLocked(sess, now)
}

func (t *Tracker) settleLocked(sess *Session, now time.Time) *Credit {
	if !t.hasPeers(sess) {
		return nil
	}
	return t.creditFor(sess, now)
}

// creditFor считает зачётные минуты с последнего чекпоинта с поправкой
// на AFK: mute и deafen одновременно — 0, одно из двух — половина (вниз),
// иначе полные минуты. Сверху режем кап за интервал.
func (t *Tracker) creditFor(sess *Session, now time.Time) *Credit {
	raw := int(now.Sub(sess.LastCheckpoint).Minutes())
	if raw <= 0 {
		return nil
	}

	minutes := raw
	switch {
	case sess.Muted && sess.Deafened:
		minutes = 0
	case sess.Muted || sess.Deafened:
		minutes = raw / 2
	}
	if minutes > t.th.MaxMinutesPerTick {
		minutes = t.th.MaxMinutesPerTick
	}
	if minutes <= 0 {
		return nil
	}

	return &Credit{
		CommunityID: sess.CommunityID,
		ActorID:     sess.ActorID,
		Minutes:     minutes,
		At:          now,
	}
}

// hasPeers: в канале сессии есть хотя бы один другой участник-человек.
func (t *Tracker) hasPeers(sess *Session) bool {
	occupants := t.channels[sess.CommunityID+"/"+sess.ChannelID]
	for actorID, isBot := range occupants {
		if actorID == sess.ActorID || isBot {
			continue
		}
		return true
	}
	return false
}

func (t *Tracker) joinChannel(communityID, channelID, actorID string, isBot bool) {
	// один актор — один канал: сначала убираем из предыдущего
	t.leaveChannel(communityID, actorID)
	key := communityID + "/" + channelID
	occ, ok := t.channels[key]
	if !ok {
		occ = make(map[string]bool)
		t.channels[key] = occ
	}
	occ[actorID] = isBot
}

func (t *Tracker) leaveChannel(communityID, actorID string) {
	prefix := communityID + "/"
	for key, occ := range t.channels {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if _, ok := occ[actorID]; ok {
			delete(occ, actorID)
			if len(occ) == 0 {
				delete(t.channels, key)
			}
		}
	}
}
