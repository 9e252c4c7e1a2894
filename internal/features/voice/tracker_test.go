package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*Tracker, *time.Time) {
	tr := NewTracker(Thresholds{
		CheckpointInterval: 5 * time.Minute,
		MaxMinutesPerTick:  240,
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTrackerBasicCredit(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "u2", false, false, false)

	*now = now.Add(10 * time.Minute)
	credits := tr.Tick()

	require.Len(t, credits, 2)
	for _, c := range credits {
		assert.Equal(10, c.Minutes)
		assert.Equal("g1", c.CommunityID)
	}
}

func TestTrackerAlone(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	// один в канале — минуты не идут
	tr.Update("g1", "ch1", "u1", false, false, false)
	*now = now.Add(10 * time.Minute)
	assert.Empty(tr.Tick())
}

func TestTrackerBotsAreNotPeers(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "musicbot", false, false, true)

	*now = now.Add(10 * time.Minute)
	assert.Empty(tr.Tick())
}

func TestTrackerAFK(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "peer", false, false, false)

	// mute и deafen одновременно — ноль минут
	tr.Update("g1", "ch1", "afk", true, true, false)
	// только mute — половина
	tr.Update("g1", "ch1", "muted", true, false, false)

	*now = now.Add(10 * time.Minute)
	credits := tr.Tick()

	byActor := make(map[string]int)
	for _, c := range credits {
		byActor[c.ActorID] = c.Minutes
	}
	assert.Equal(10, byActor["peer"])
	assert.Equal(5, byActor["muted"])
	_, ok := byActor["afk"]
	assert.False(ok)
}

func TestTrackerCheckpointAlwaysAdvances(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	// интервал в одиночестве сгорает и не начисляется ретроактивно
	tr.Update("g1", "ch1", "u1", false, false, false)
	*now = now.Add(30 * time.Minute)
	assert.Empty(tr.Tick())

	tr.Update("g1", "ch1", "u2", false, false, false)
	*now = now.Add(5 * time.Minute)
	credits := tr.Tick()

	require.Len(t, credits, 2)
	for _, c := range credits {
		assert.Equal(5, c.Minutes, "actor %s", c.ActorID)
	}
}

func TestTrackerLeaveSettles(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "u2", false, false, false)

	*now = now.Add(7 * time.Minute)
	credit := tr.Update("g1", "", "u1", false, false, false)

	require.NotNil(t, credit)
	assert.Equal(7, credit.Minutes)
	assert.Equal("u1", credit.ActorID)
	assert.Equal(1, tr.ActiveSessions())

	// повторный выход без сессии — no-op
	assert.Nil(tr.Update("g1", "", "u1", false, false, false))
}

func TestTrackerChannelMove(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "u2", false, false, false)

	// переход закрывает интервал старого канала
	*now = now.Add(4 * time.Minute)
	credit := tr.Update("g1", "ch2", "u1", false, false, false)
	require.NotNil(t, credit)
	assert.Equal(4, credit.Minutes)

	// в новом канале u1 один — минуты не идут
	*now = now.Add(10 * time.Minute)
	credits := tr.Tick()
	require.Len(t, credits, 0)
}

func TestTrackerMaxMinutesCap(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "u2", false, false, false)

	// огромный интервал (процесс спал) режется капом
	*now = now.Add(20 * time.Hour)
	credits := tr.Tick()
	require.Len(t, credits, 2)
	for _, c := range credits {
		assert.Equal(240, c.Minutes)
	}
}

func TestTrackerShutdown(t *testing.T) {
	assert := assert.New(t)
	tr, now := newTestTracker()

	tr.Update("g1", "ch1", "u1", false, false, false)
	tr.Update("g1", "ch1", "u2", false, false, false)

	*now = now.Add(3 * time.Minute)
	credits := tr.Shutdown()

	assert.Len(credits, 2)
	assert.Equal(0, tr.ActiveSessions())
}
