// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с временем (день сброса счётчиков) и округление очков.
package common

import (
	"math"
	"time"
)

// GetMoscowTime возвращает текущее время в часовом поясе Москвы (Europe/Moscow).
// Все суточные периоды (сброс дневных лимитов, история аномалий)
// считаются по московской полуночи.
func GetMoscowTime() time.Time {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		// Если не удалось загрузить — используем UTC+3 вручную
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return time.Now().In(loc)
}

// GetMoscowDate возвращает только дату (без времени) в часовом поясе Москвы.
func GetMoscowDate() time.Time {
	return DateOf(GetMoscowTime())
}

// DateOf обрезает время до начала суток в том же часовом поясе.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay проверяет, попадают ли два момента в одни сутки (по поясу первого).
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

// Round2 округляет очки до двух знаков после запятой.
// Все дельты счёта храним и сравниваем только в таком виде.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
