package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xka0085-byte/AetherGuard/internal/common"
	"github.com/xka0085-byte/AetherGuard/internal/features/anomaly"
	"github.com/xka0085-byte/AetherGuard/internal/features/penalty"
	"github.com/xka0085-byte/AetherGuard/internal/features/quality"
	"github.com/xka0085-byte/AetherGuard/internal/features/reactions"
	"github.com/xka0085-byte/AetherGuard/internal/features/scoring"
	"github.com/xka0085-byte/AetherGuard/internal/features/voice"
)

// fakeScorer записывает применённые пакеты; хранит настройки в памяти.
type fakeScorer struct {
	settings map[string]*scoring.CommunitySettings
	applyErr error

	batches [][]scoring.ActorAggregate
	deleted []string
}

func (f *fakeScorer) GetSettings(_ context.Context, communityID string) (*scoring.CommunitySettings, error) {
	s, ok := f.settings[communityID]
	if !ok {
		return nil, common.ErrSettingsNotFound
	}
	return s, nil
}

func (f *fakeScorer) ApplyBatch(_ context.Context, _ string, aggs []scoring.ActorAggregate, _ *scoring.CommunitySettings) ([]scoring.Applied, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}
	f.batches = append(f.batches, aggs)
	applied := make([]scoring.Applied, 0, len(aggs))
	for _, a := range aggs {
		applied = append(applied, scoring.Applied{ActorID: a.ActorID, Delta: 1.0})
	}
	return applied, nil
}

func (f *fakeScorer) HandleMessageDelete(_ context.Context, communityID, actorID string) error {
	f.deleted = append(f.deleted, communityID+"/"+actorID)
	return nil
}

// fakeLedger — реестр флагов в памяти.
type fakeLedger struct {
	blocked map[string]bool
	flags   []string
}

func (f *fakeLedger) IsBlocked(_ context.Context, communityID, actorID string) bool {
	return f.blocked[communityID+"/"+actorID]
}

func (f *fakeLedger) AddFlag(_ context.Context, communityID, actorID, reason string) error {
	f.flags = append(f.flags, communityID+"/"+actorID+"/"+reason)
	return nil
}

func trackedCommunity() *scoring.CommunitySettings {
	return &scoring.CommunitySettings{
		CommunityID:       "g1",
		Enabled:           true,
		WeightMessage:     1.0,
		WeightReply:       1.5,
		WeightReaction:    0.5,
		WeightVoiceMinute: 0.2,
	}
}

func newTestEngine(t *testing.T, scorer *fakeScorer, ledger *fakeLedger) *Engine {
	qf, err := quality.NewFilter(quality.Thresholds{
		MinLength:       3,
		Cooldown:        0,
		BurstLimit:      1000,
		BurstWindow:     time.Minute,
		HistorySize:     10,
		SimilarityLimit: 0.99,
	}, 128)
	require.NoError(t, err)

	guard, err := reactions.NewGuard(reactions.Thresholds{
		Window:       5 * time.Minute,
		WindowLimit:  100,
		FarmMinCount: 2,
		FarmRatio:    0.9,
	}, 128)
	require.NoError(t, err)

	tracker := voice.NewTracker(voice.Thresholds{
		CheckpointInterval: 5 * time.Minute,
		MaxMinutesPerTick:  240,
	})

	spikes, err := anomaly.NewDetector(anomaly.Thresholds{
		HistorySize:     7,
		MinHistory:      3,
		SpikeMultiplier: 5.0,
	}, 128)
	require.NoError(t, err)

	sybil, err := anomaly.NewSybilTracker(anomaly.SybilThresholds{
		Window:         10 * time.Minute,
		MinCommunities: 5,
	}, 128)
	require.NoError(t, err)

	eng, err := New(
		Options{FlushInterval: time.Second, CheckpointInterval: time.Minute},
		NewQueue(1000),
		qf, guard, tracker, ledger, scorer, spikes, sybil,
	)
	require.NoError(t, err)
	return eng
}

func TestEngineMessageFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	ledger := &fakeLedger{blocked: map[string]bool{}}
	eng := newTestEngine(t, scorer, ledger)

	eng.OnMessage(ctx, MessageEvent{
		CommunityID: "g1", ChannelID: "ch1", ActorID: "u1",
		Text: "привет всем в этом чате",
	})
	eng.Flush(ctx)

	require.Len(t, scorer.batches, 1)
	require.Len(t, scorer.batches[0], 1)
	assert.Equal("u1", scorer.batches[0][0].ActorID)
	assert.Equal(1, scorer.batches[0][0].Messages)
	assert.Equal(0, scorer.batches[0][0].Replies)
}

func TestEngineReplyBonus(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	eng.OnMessage(ctx, MessageEvent{
		CommunityID: "g1", ChannelID: "ch1", ActorID: "u1",
		Text: "отвечаю на твоё сообщение", ReplyToActorID: "u2",
	})
	// ответ самому себе бонуса не даёт
	eng.OnMessage(ctx, MessageEvent{
		CommunityID: "g1", ChannelID: "ch1", ActorID: "u3",
		Text: "сам с собой разговариваю", ReplyToActorID: "u3",
	})
	eng.Flush(ctx)

	require.Len(t, scorer.batches, 1)
	byActor := make(map[string]scoring.ActorAggregate)
	for _, a := range scorer.batches[0] {
		byActor[a.ActorID] = a
	}
	assert.Equal(1, byActor["u1"].Messages)
	assert.Equal(1, byActor["u1"].Replies)
	assert.Equal(1, byActor["u3"].Messages)
	assert.Equal(0, byActor["u3"].Replies)
}

func TestEngineQualityGate(t *testing.T) {
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	// слишком коротко и мусор — в очередь не попадают
	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "ch1", ActorID: "u1", Text: "hi"})
	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "ch1", ActorID: "u1", Text: "aaaaaaaaaaa"})
	eng.Flush(ctx)

	assert.Empty(t, scorer.batches)
}

func TestEngineUntrackedCommunity(t *testing.T) {
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	eng.OnMessage(ctx, MessageEvent{CommunityID: "unknown", ChannelID: "ch1", ActorID: "u1", Text: "нормальное сообщение"})
	eng.Flush(ctx)

	assert.Empty(t, scorer.batches)
	assert.Equal(t, 0, eng.queue.Len())
}

func TestEngineBlockedActor(t *testing.T) {
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	ledger := &fakeLedger{blocked: map[string]bool{"g1/banned": true}}
	eng := newTestEngine(t, scorer, ledger)

	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "ch1", ActorID: "banned", Text: "пустите меня обратно"})
	eng.Flush(ctx)

	assert.Empty(t, scorer.batches)
}

func TestEngineChannelAllowList(t *testing.T) {
	ctx := context.Background()

	settings := trackedCommunity()
	settings.TrackedChannels = []string{"ch1"}
	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": settings}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "offtopic", ActorID: "u1", Text: "это не считается"})
	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "ch1", ActorID: "u1", Text: "а это считается"})
	eng.Flush(ctx)

	require.Len(t, scorer.batches, 1)
	assert.Equal(t, 1, scorer.batches[0][0].Messages)
}

func TestEngineRequeueOnFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	eng.OnMessage(ctx, MessageEvent{CommunityID: "g1", ChannelID: "ch1", ActorID: "u1", Text: "важное сообщение про запись"})

	// запись падает — события возвращаются в очередь
	scorer.applyErr = errors.New("connection reset")
	eng.Flush(ctx)
	assert.Empty(scorer.batches)
	assert.Equal(1, eng.queue.Len())

	// база ожила — следующий цикл дописывает
	scorer.applyErr = nil
	eng.Flush(ctx)
	require.Len(t, scorer.batches, 1)
	assert.Equal(0, eng.queue.Len())
}

func TestEngineFlushEmptyQueue(t *testing.T) {
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	// пустая очередь — сброс без единого обращения к хранилищу
	eng.Flush(ctx)
	assert.Empty(t, scorer.batches)
}

func TestEngineReactionFlow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	ledger := &fakeLedger{blocked: map[string]bool{}}
	eng := newTestEngine(t, scorer, ledger)

	eng.OnReactionAdd(ctx, "g1", "ch1", "u1", "msg1", "author")
	eng.Flush(ctx)

	require.Len(t, scorer.batches, 1)
	assert.Equal(1, scorer.batches[0][0].Reactions)
	assert.Empty(ledger.flags)
}

func TestEngineReactionFarmingFlag(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	ledger := &fakeLedger{blocked: map[string]bool{}}
	eng := newTestEngine(t, scorer, ledger)

	// все реакции в одно сообщение: на третьей срабатывает фарм
	eng.OnReactionAdd(ctx, "g1", "ch1", "u1", "msg1", "author")
	eng.OnReactionAdd(ctx, "g1", "ch1", "u1", "msg1", "author")
	eng.OnReactionAdd(ctx, "g1", "ch1", "u1", "msg1", "author")

	require.Len(t, ledger.flags, 1)
	assert.Equal("g1/u1/"+penalty.FlagReactionFarming, ledger.flags[0])
}

func TestEngineMessageDelete(t *testing.T) {
	ctx := context.Background()

	scorer := &fakeScorer{settings: map[string]*scoring.CommunitySettings{"g1": trackedCommunity()}}
	eng := newTestEngine(t, scorer, &fakeLedger{blocked: map[string]bool{}})

	eng.OnMessageDelete(ctx, "g1", "u1")
	assert.Equal(t, []string{"g1/u1"}, scorer.deleted)
}

func TestAggregatePreservesOrder(t *testing.T) {
	assert := assert.New(t)

	events := []Event{
		ev("b", KindMessage),
		ev("a", KindMessage),
		ev("b", KindReaction),
		ev("a", KindVoice),
	}
	events[3].Magnitude = 12

	aggs := aggregate(events)
	require.Len(t, aggs, 2)
	assert.Equal("b", aggs[0].ActorID)
	assert.Equal(1, aggs[0].Messages)
	assert.Equal(1, aggs[0].Reactions)
	assert.Equal("a", aggs[1].ActorID)
	assert.Equal(12, aggs[1].VoiceMinutes)
}
