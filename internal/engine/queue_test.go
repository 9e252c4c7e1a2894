package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xka0085-byte/AetherGuard/internal/common"
)

func ev(actorID string, kind EventKind) Event {
	return Event{
		CommunityID: "g1",
		ActorID:     actorID,
		Kind:        kind,
		Magnitude:   1,
		ObservedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestQueueAddDrain(t *testing.T) {
	assert := assert.New(t)
	q := NewQueue(10)

	assert.NoError(q.Add(ev("u1", KindMessage)))
	assert.NoError(q.Add(ev("u2", KindReaction)))
	assert.Equal(2, q.Len())

	out := q.Drain()
	assert.Len(out, 2)
	assert.Equal("u1", out[0].ActorID)
	assert.Equal(0, q.Len())

	// пустая очередь — nil, сброс без работы
	assert.Nil(q.Drain())
}

func TestQueueOverflow(t *testing.T) {
	assert := assert.New(t)
	q := NewQueue(3)

	for i := 0; i < 3; i++ {
		assert.NoError(q.Add(ev("u1", KindMessage)))
	}
	err := q.Add(ev("u1", KindMessage))
	assert.ErrorIs(err, common.ErrQueueFull)
	assert.Equal(3, q.Len())
}

func TestQueueRequeueOrder(t *testing.T) {
	assert := assert.New(t)
	q := NewQueue(10)

	_ = q.Add(ev("new", KindMessage))
	q.Requeue([]Event{ev("old1", KindMessage), ev("old2", KindReply)})

	out := q.Drain()
	assert.Len(out, 3)
	// возвращённые события уходят первыми
	assert.Equal("old1", out[0].ActorID)
	assert.Equal("old2", out[1].ActorID)
	assert.Equal("new", out[2].ActorID)
}

func TestQueueRequeueBeyondCapacity(t *testing.T) {
	assert := assert.New(t)
	q := NewQueue(2)

	_ = q.Add(ev("a", KindMessage))
	_ = q.Add(ev("b", KindMessage))

	// возврат не режется ёмкостью: принятая активность не теряется
	q.Requeue([]Event{ev("c", KindVoice), ev("d", KindVoice)})
	assert.Equal(4, q.Len())
}
