// Package leaderboard — read-only запросы к счётчикам для отображения:
// текущие очки, место в рейтинге, верхушка таблицы.
// Форматированием занимаются команды-потребители, не этот пакет.
package leaderboard

// Entry — строка таблицы лидеров.
type Entry struct {
	ActorID     string
	TotalScore  float64
	WeeklyScore float64
	Rank        int
}

// ActorScore — очки и место одного актора.
type ActorScore struct {
	ActorID     string
	TotalScore  float64
	WeeklyScore float64
	Rank        int
}
