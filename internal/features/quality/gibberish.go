// gibberish.go — классификация малоинформативного текста.
// Четыре независимых признака; срабатывание любого = мусор.
package quality

import (
	"strings"
	"unicode"
)

const (
	// подряд идущих одинаковых символов, начиная с которых текст — мусор
	maxCharRun = 7
	// доля «безгласных» токенов из 4+ букв
	vowellessTokenRatio = 0.7
	// доля символов, не являющихся буквами/цифрами
	symbolDensityLimit = 0.6
	// минимальная длина текста для проверки повторяющегося шаблона
	patternMinLength = 6
	// максимальный период шаблона
	patternMaxPeriod = 3
)

// IsGibberish решает, является ли текст малоинформативным.
func IsGibberish(text string) bool {
	if hasLongCharRun(text) {
		return true
	}
	if mostTokensVowelless(text) {
		return true
	}
	if symbolDensityTooHigh(text) {
		return true
	}
	if isRepeatingPattern(text) {
		return true
	}
	return false
}

// hasLongCharRun находит 7+ одинаковых символов подряд («ааааааа», «!!!!!!!»).
func hasLongCharRun(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= maxCharRun {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

// mostTokensVowelless: ≥70% токенов — это 4+ буквы без единой гласной
// («фвпр длкж щшгк»). Токены с логографикой (CJK) пропускаем: там гласных
// в нашем понимании нет, и японский текст — не мусор.
func mostTokensVowelless(text string) bool {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return false
	}

	vowelless := 0
	for _, tok := range tokens {
		if containsLogographic(tok) {
			continue
		}
		letters := 0
		hasVowel := false
		for _, r := range tok {
			if !unicode.IsLetter(r) {
				continue
			}
			letters++
			if isVowel(r) {
				hasVowel = true
			}
		}
		if letters >= 4 && !hasVowel {
			vowelless++
		}
	}

	return float64(vowelless)/float64(len(tokens)) >= vowellessTokenRatio
}

// symbolDensityTooHigh: >60% символов — не буквы и не цифры.
// Пробелы и логографика в подсчёте не участвуют.
func symbolDensityTooHigh(text string) bool {
	total := 0
	symbols := 0
	for _, r := range text {
		if unicode.IsSpace(r) || isLogographic(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	if total == 0 {
		return false
	}
	return float64(symbols)/float64(total) > symbolDensityLimit
}

// isRepeatingPattern: весь текст — повторение короткого шаблона
// (период 1–3): «ababab», «лоллоллол». Короткие тексты пропускаем,
// иначе «хаха» ловилось бы зря.
func isRepeatingPattern(text string) bool {
	runes := []rune(text)
	n := len(runes)
	if n < patternMinLength {
		return false
	}

	for period := 1; period <= patternMaxPeriod; period++ {
		if n%period != 0 {
			continue
		}
		match := true
		for i := period; i < n; i++ {
			if runes[i] != runes[i-period] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func isVowel(r rune) bool {
	switch unicode.ToLower(r) {
	// латиница
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	// кириллица
	case 'а', 'е', 'ё', 'и', 'о', 'у', 'ы', 'э', 'ю', 'я':
		return true
	}
	return false
}

// isLogographic покрывает CJK-иероглифы, кану и хангыль.
func isLogographic(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0x9FFF: // CJK Unified
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK Extension A
		return true
	case r >= 0x3040 && r <= 0x30FF: // хирагана и катакана
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // хангыль
		return true
	}
	return false
}

func containsLogographic(s string) bool {
	for _, r := range s {
		if isLogographic(r) {
			return true
		}
	}
	return false
}
