// similarity.go — похожесть двух текстов для поиска почти-дубликатов.
// Короткие строки сравниваем редакционным расстоянием, длинные —
// по множествам токенов (Жаккар): на длинных текстах левенштейн дорог
// и слишком чувствителен к перестановкам.
package quality

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// длина (в рунах), после которой переключаемся на токены
const similarityShortLimit = 50

// Similarity возвращает похожесть двух строк в [0, 1].
// Регистр не учитывается.
func Similarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1.0
	}

	la := len([]rune(a))
	lb := len([]rune(b))
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}

	if la < similarityShortLimit && lb < similarityShortLimit {
		dist := levenshtein.ComputeDistance(a, b)
		return 1.0 - float64(dist)/float64(maxLen)
	}

	return jaccard(a, b)
}

// jaccard — |пересечение| / |объединение| множеств токенов.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}

	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
