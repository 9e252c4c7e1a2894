package quality

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThresholds() Thresholds {
	return Thresholds{
		MinLength:       3,
		Cooldown:        10 * time.Second,
		BurstLimit:      50,
		BurstWindow:     time.Minute,
		HistorySize:     10,
		SimilarityLimit: 0.75,
	}
}

// newTestFilter создаёт фильтр с управляемыми часами.
func newTestFilter(t *testing.T) (*Filter, *time.Time) {
	f, err := NewFilter(testThresholds(), 128)
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	return f, &now
}

func TestFilterMinLength(t *testing.T) {
	assert := assert.New(t)
	f, _ := newTestFilter(t)

	ok, reason := f.ShouldScore("g1", "u1", "hi")
	assert.False(ok)
	assert.Equal(ReasonTooShort, reason)

	// пробелы не считаются
	ok, reason = f.ShouldScore("g1", "u1", "  a  ")
	assert.False(ok)
	assert.Equal(ReasonTooShort, reason)

	ok, _ = f.ShouldScore("g1", "u1", "yes")
	assert.True(ok)
}

func TestFilterGibberish(t *testing.T) {
	assert := assert.New(t)
	f, _ := newTestFilter(t)

	ok, reason := f.ShouldScore("g1", "u1", "aaaaaaaaaaa")
	assert.False(ok)
	assert.Equal(ReasonLowInfo, reason)

	ok, reason = f.ShouldScore("g1", "u1", "aaaaaaaaaaaa")
	assert.False(ok)
	assert.Equal(ReasonLowInfo, reason)

	ok, _ = f.ShouldScore("g1", "u1", "hello world")
	assert.True(ok)
}

func TestFilterNearDuplicate(t *testing.T) {
	assert := assert.New(t)
	f, now := newTestFilter(t)

	ok, _ := f.ShouldScore("g1", "u1", "Hello 1")
	assert.True(ok)

	*now = now.Add(time.Minute)

	// одна замена символа — похожесть 6/7 выше порога 0.75
	ok, reason := f.ShouldScore("g1", "u1", "Hello 2")
	assert.False(ok)
	assert.Equal(ReasonNearDuplicate, reason)

	// совсем другой текст проходит
	*now = now.Add(time.Minute)
	ok, _ = f.ShouldScore("g1", "u1", "что-то совершенно новое")
	assert.True(ok)
}

func TestFilterDuplicateAcrossActors(t *testing.T) {
	assert := assert.New(t)
	f, _ := newTestFilter(t)

	// история ведётся на актора: чужой текст не дубликат
	ok, _ := f.ShouldScore("g1", "u1", "Hello 1")
	assert.True(ok)
	ok, _ = f.ShouldScore("g1", "u2", "Hello 1")
	assert.True(ok)
}

func TestFilterCooldown(t *testing.T) {
	assert := assert.New(t)
	f, now := newTestFilter(t)

	ok, _ := f.ShouldScore("g1", "u1", "расскажите про го")
	assert.True(ok)

	*now = now.Add(3 * time.Second)
	ok, reason := f.ShouldScore("g1", "u1", "котики это хорошо")
	assert.False(ok)
	assert.Equal(ReasonCooldown, reason)

	*now = now.Add(10 * time.Second)
	ok, _ = f.ShouldScore("g1", "u1", "сегодня солнечно на улице")
	assert.True(ok)
}

func TestFilterBurstLimit(t *testing.T) {
	assert := assert.New(t)
	f, now := newTestFilter(t)
	f.th.Cooldown = 0
	// изолируем burst-лимит: нумерованные сообщения похожи друг на друга
	f.th.SimilarityLimit = 2

	for i := 0; i < 50; i++ {
		ok, reason := f.ShouldScore("g1", "u1", fmt.Sprintf("сообщение номер %d в потоке", i))
		assert.True(ok, "message %d rejected: %s", i, reason)
		*now = now.Add(time.Second)
	}

	ok, reason := f.ShouldScore("g1", "u1", "пятьдесят первое сообщение")
	assert.False(ok)
	assert.Equal(ReasonBurstLimit, reason)

	// окно истекло — счётчик сбрасывается
	*now = now.Add(2 * time.Minute)
	ok, _ = f.ShouldScore("g1", "u1", "после паузы снова можно")
	assert.True(ok)
}
