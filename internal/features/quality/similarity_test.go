package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityShortStrings(t *testing.T) {
	assert := assert.New(t)

	// идентичные строки
	assert.Equal(1.0, Similarity("hello", "hello"))
	// регистр не учитывается
	assert.Equal(1.0, Similarity("Hello", "hello"))
	// одна замена в 7 рунах
	assert.InDelta(6.0/7.0, Similarity("Hello 1", "Hello 2"), 0.001)
	// совсем разные
	assert.Less(Similarity("abc", "xyz"), 0.1)
	// пустые строки считаются идентичными
	assert.Equal(1.0, Similarity("", ""))
}

func TestSimilarityLongStrings(t *testing.T) {
	assert := assert.New(t)

	base := "the quick brown fox jumps over the lazy dog and keeps running far away"
	// перестановка токенов на длинных текстах не снижает похожесть
	shuffled := "lazy dog and the quick brown fox jumps over the keeps running far away"
	assert.Equal(1.0, Similarity(base, shuffled))

	other := "completely different sentence about winter weather in northern regions today"
	assert.Less(Similarity(base, other), 0.2)
}
