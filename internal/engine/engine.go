// engine.go — оркестратор учёта активности: входные точки для событий
// платформы, гейты (блокировка, настройки сообщества), фильтры и цикл
// пакетного сброса в хранилище.
//
// Поток: событие платформы → гейт штрафов → фильтр → очередь →
// таймерный сброс → скоринг → запись → детектор аномалий → реестр флагов.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/common"
	"github.com/xka0085-byte/AetherGuard/internal/features/anomaly"
	"github.com/xka0085-byte/AetherGuard/internal/features/penalty"
	"github.com/xka0085-byte/AetherGuard/internal/features/quality"
	"github.com/xka0085-byte/AetherGuard/internal/features/reactions"
	"github.com/xka0085-byte/AetherGuard/internal/features/scoring"
	"github.com/xka0085-byte/AetherGuard/internal/features/voice"
)

// свежесть настроек сообщества для real-time гейтов;
// цикл сброса настройки не кеширует дольше одного цикла
const gateSettingsTTL = time.Minute

// MessageEvent — входящее текстовое сообщение с платформы.
type MessageEvent struct {
	CommunityID string
	ChannelID   string
	ActorID     string
	Text        string
	// автор сообщения, на которое это — ответ; пусто, если не ответ
	// или автора не удалось разрешить
	ReplyToActorID string
	ActorIsBot     bool
}

// Scorer — движок начисления очков (scoring.Service).
type Scorer interface {
	GetSettings(ctx context.Context, communityID string) (*scoring.CommunitySettings, error)
	ApplyBatch(ctx context.Context, communityID string, aggs []scoring.ActorAggregate, settings *scoring.CommunitySettings) ([]scoring.Applied, error)
	HandleMessageDelete(ctx context.Context, communityID, actorID string) error
}

// FlagLedger — реестр штрафов (penalty.Ledger).
type FlagLedger interface {
	IsBlocked(ctx context.Context, communityID, actorID string) bool
	AddFlag(ctx context.Context, communityID, actorID, reason string) error
}

// Options — интервалы фоновых циклов движка.
type Options struct {
	FlushInterval      time.Duration
	CheckpointInterval time.Duration
}

type settingsEntry struct {
	settings *scoring.CommunitySettings // nil = сообщество не трекается
	at       time.Time
}

// Engine связывает фильтры, очередь, скоринг и реестр флагов.
type Engine struct {
	opts Options

	queue   *Queue
	quality *quality.Filter
	guard   *reactions.Guard
	voice   *voice.Tracker
	ledger  FlagLedger
	scorer  Scorer
	spikes  *anomaly.Detector
	sybil   *anomaly.SybilTracker

	gateSettings *lru.Cache[string, settingsEntry]

	wg sync.WaitGroup
}

// New создаёт движок.
func New(
	opts Options,
	queue *Queue,
	qualityFilter *quality.Filter,
	reactionGuard *reactions.Guard,
	voiceTracker *voice.Tracker,
	ledger FlagLedger,
	scorer Scorer,
	spikes *anomaly.Detector,
	sybil *anomaly.SybilTracker,
) (*Engine, error) {
	cache, err := lru.New[string, settingsEntry](1024)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:         opts,
		queue:        queue,
		quality:      qualityFilter,
		guard:        reactionGuard,
		voice:        voiceTracker,
		ledger:       ledger,
		scorer:       scorer,
		spikes:       spikes,
		sybil:        sybil,
		gateSettings: cache,
	}, nil
}

// OnMessage — входная точка для нового сообщения.
// Отказы фильтров молчаливы для актора: только security-лог.
func (e *Engine) OnMessage(ctx context.Context, m MessageEvent) {
	if m.ActorIsBot {
		return
	}
	if e.ledger.IsBlocked(ctx, m.CommunityID, m.ActorID) {
		return
	}

	settings := e.trackedSettings(ctx, m.CommunityID)
	if settings == nil || !settings.ChannelTracked(m.ChannelID) {
		return
	}

	ok, reason := e.quality.ShouldScore(m.CommunityID, m.ActorID, m.Text)
	if !ok {
		log.WithFields(log.Fields{
			"component":    "security",
			"community_id": m.CommunityID,
			"actor_id":     m.ActorID,
			"reason":       reason,
		}).Info("Сообщение отклонено фильтром качества")
		return
	}

	now := time.Now()
	e.enqueue(Event{
		CommunityID: m.CommunityID,
		ActorID:     m.ActorID,
		Kind:        KindMessage,
		Magnitude:   1,
		ObservedAt:  now,
	})

	// Бонус за ответ: только если ответили другому человеку.
	// Если автора реплая разрешить не удалось, базовое сообщение
	// уже засчитано — деградируем тихо.
	if m.ReplyToActorID != "" && m.ReplyToActorID != m.ActorID {
		e.enqueue(Event{
			CommunityID: m.CommunityID,
			ActorID:     m.ActorID,
			Kind:        KindReply,
			Magnitude:   1,
			ObservedAt:  now,
		})
	}

	e.observeSybil(ctx, m.CommunityID, m.ActorID)
}

// OnMessageDelete откатывает удалённое сообщение автора.
// Гейтов здесь нет: что было записано, то и откатываем.
func (e *Engine) OnMessageDelete(ctx context.Context, communityID, actorID string) {
	if err := e.scorer.HandleMessageDelete(ctx, communityID, actorID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"community_id": communityID,
			"actor_id":     actorID,
		}).Error("Не удалось откатить удалённое сообщение")
	}
}

// OnReactionAdd — входная точка для добавленной реакции.
func (e *Engine) OnReactionAdd(ctx context.Context, communityID, channelID, actorID, messageID, messageAuthorID string) {
	if e.ledger.IsBlocked(ctx, communityID, actorID) {
		return
	}

	settings := e.trackedSettings(ctx, communityID)
	if settings == nil || !settings.ChannelTracked(channelID) {
		return
	}

	admitted, farming := e.guard.Admit(communityID, actorID, messageID, messageAuthorID)
	if farming {
		if err := e.ledger.AddFlag(ctx, communityID, actorID, penalty.FlagReactionFarming); err != nil {
			log.WithError(err).Error("Не удалось поставить флаг reaction_farming")
		}
	}
	if !admitted {
		return
	}

	e.enqueue(Event{
		CommunityID: communityID,
		ActorID:     actorID,
		Kind:        KindReaction,
		Magnitude:   1,
		ObservedAt:  time.Now(),
	})

	e.observeSybil(ctx, communityID, actorID)
}

// OnVoiceStateUpdate — входная точка для смены голосового состояния.
// Сессии трекаются для всех (даже заблокированных — они всё ещё живые
// пиры для остальных), а вот начисления отсекаются гейтом.
func (e *Engine) OnVoiceStateUpdate(ctx context.Context, communityID, channelID, actorID string, muted, deafened, isBot bool) {
	credit := e.voice.Update(communityID, channelID, actorID, muted, deafened, isBot)
	if credit != nil {
		e.enqueueVoiceCredit(ctx, *credit)
	}
}

// Start запускает фоновые циклы: сброс очереди и голосовой чекпоинт.
// Каждый цикл живёт в одной горутине — два сброса не пересекаются.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(2)

	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Flush(ctx)
			}
		}
	}()

	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.opts.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, credit := range e.voice.Tick() {
					e.enqueueVoiceCredit(ctx, credit)
				}
			}
		}
	}()

	log.WithFields(log.Fields{
		"flush_interval":      e.opts.FlushInterval,
		"checkpoint_interval": e.opts.CheckpointInterval,
	}).Info("Движок учёта активности запущен")
}

// Shutdown дожидается фоновых циклов, закрывает голосовые сессии
// и добросовестно сбрасывает остаток очереди.
func (e *Engine) Shutdown() {
	e.wg.Wait()

	// ctx процесса уже отменён — для финальной записи нужен свой
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, credit := range e.voice.Shutdown() {
		e.enqueueVoiceCredit(ctx, credit)
	}
	e.Flush(ctx)

	log.WithField("unflushed", e.queue.Len()).Info("Движок учёта активности остановлен")
}

// Flush — один цикл сброса: забрать буфер, сагрегировать по
// (сообщество, актор), записать, скормить дельты детектору аномалий.
// При ошибке записи исходные события сообщества возвращаются в очередь:
// at-least-once при сбое, exactly-once при успехе.
func (e *Engine) Flush(ctx context.Context) {
	events := e.queue.Drain()
	if len(events) == 0 {
		return
	}

	byCommunity := make(map[string][]Event)
	for _, ev := range events {
		byCommunity[ev.CommunityID] = append(byCommunity[ev.CommunityID], ev)
	}

	for communityID, communityEvents := range byCommunity {
		// настройки читаются один раз на сообщество на цикл
		settings, err := e.scorer.GetSettings(ctx, communityID)
		if err != nil {
			if errors.Is(err, common.ErrSettingsNotFound) {
				// сообщество не трекается: агрегат выбрасываем без ретрая
				continue
			}
			log.WithError(err).WithField("community_id", communityID).
				Error("Не удалось прочитать настройки, события вернутся в очередь")
			e.queue.Requeue(communityEvents)
			continue
		}
		if !settings.Enabled {
			continue
		}

		applied, err := e.scorer.ApplyBatch(ctx, communityID, aggregate(communityEvents), settings)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"community_id": communityID,
				"events":       len(communityEvents),
			}).Error("Запись пакета не удалась, события вернутся в очередь")
			e.queue.Requeue(communityEvents)
			continue
		}

		for _, a := range applied {
			if e.spikes.Observe(communityID, a.ActorID, a.Delta) {
				if err := e.ledger.AddFlag(ctx, communityID, a.ActorID, penalty.FlagActivitySpike); err != nil {
					log.WithError(err).Error("Не удалось поставить флаг activity_spike")
				}
			}
		}
	}
}

// aggregate сворачивает события сообщества в агрегаты по акторам.
func aggregate(events []Event) []scoring.ActorAggregate {
	byActor := make(map[string]*scoring.ActorAggregate)
	order := make([]string, 0, 8)

	for _, ev := range events {
		agg, ok := byActor[ev.ActorID]
		if !ok {
			agg = &scoring.ActorAggregate{ActorID: ev.ActorID}
			byActor[ev.ActorID] = agg
			order = append(order, ev.ActorID)
		}
		switch ev.Kind {
		case KindMessage:
			agg.Messages += ev.Magnitude
		case KindReply:
			agg.Replies += ev.Magnitude
		case KindReaction:
			agg.Reactions += ev.Magnitude
		case KindVoice:
			agg.VoiceMinutes += ev.Magnitude
		}
	}

	out := make([]scoring.ActorAggregate, 0, len(order))
	for _, actorID := range order {
		out = append(out, *byActor[actorID])
	}
	return out
}

// enqueueVoiceCredit превращает голосовое начисление в событие очереди,
// с теми же гейтами, что и у остальных событий.
func (e *Engine) enqueueVoiceCredit(ctx context.Context, credit voice.Credit) {
	if e.ledger.IsBlocked(ctx, credit.CommunityID, credit.ActorID) {
		return
	}
	if e.trackedSettings(ctx, credit.CommunityID) == nil {
		return
	}
	e.enqueue(Event{
		CommunityID: credit.CommunityID,
		ActorID:     credit.ActorID,
		Kind:        KindVoice,
		Magnitude:   credit.Minutes,
		ObservedAt:  credit.At,
	})
}

func (e *Engine) enqueue(ev Event) {
	if err := e.queue.Add(ev); err != nil {
		log.WithFields(log.Fields{
			"community_id": ev.CommunityID,
			"actor_id":     ev.ActorID,
			"kind":         ev.Kind,
		}).Warn("Событие не попало в очередь")
	}
}

// observeSybil отмечает активность актора для кросс-сообщественной
// эвристики и ставит флаг при срабатывании.
func (e *Engine) observeSybil(ctx context.Context, communityID, actorID string) {
	if e.sybil.Observe(actorID, communityID) {
		if err := e.ledger.AddFlag(ctx, communityID, actorID, penalty.FlagCrossGuildSybil); err != nil {
			log.WithError(err).Error("Не удалось поставить флаг cross_guild_sybil")
		}
	}
}

// trackedSettings возвращает настройки сообщества для real-time гейтов
// (короткий кеш) или nil, если сообщество не трекается или выключено.
func (e *Engine) trackedSettings(ctx context.Context, communityID string) *scoring.CommunitySettings {
	if entry, ok := e.gateSettings.Get(communityID); ok && time.Since(entry.at) < gateSettingsTTL {
		if entry.settings == nil || !entry.settings.Enabled {
			return nil
		}
		return entry.settings
	}

	settings, err := e.scorer.GetSettings(ctx, communityID)
	if err != nil {
		if errors.Is(err, common.ErrSettingsNotFound) {
			e.gateSettings.Add(communityID, settingsEntry{settings: nil, at: time.Now()})
			return nil
		}
		// сбой базы: событие отсекаем, фильтры — real-time гейты без ретраев
		log.WithError(err).WithField("community_id", communityID).
			Error("Не удалось прочитать настройки для гейта")
		return nil
	}

	e.gateSettings.Add(communityID, settingsEntry{settings: settings, at: time.Now()})
	if !settings.Enabled {
		return nil
	}
	return settings
}
