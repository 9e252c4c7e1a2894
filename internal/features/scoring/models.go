// Package scoring начисляет очки активности: веса, дневные лимиты,
// множители за холдинг и штрафы. models.go описывает структуры
// настроек сообщества и счётчиков актора.
package scoring

import "time"

// HoldingTier — ступень множителя за количество верифицированных NFT.
// Хранится в community_settings.multiplier_tiers как JSONB.
type HoldingTier struct {
	MinCount   int     `json:"min_count"`
	Multiplier float64 `json:"multiplier"`
}

// CommunitySettings — настройки скоринга одного сообщества.
// Пишутся внешним CRUD-слоем, здесь только читаются.
type CommunitySettings struct {
	CommunityID string
	Enabled     bool

	WeightMessage     float64
	WeightReply       float64
	WeightReaction    float64
	WeightVoiceMinute float64

	// Дневные лимиты по видам активности. Значение <= 0 — без лимита.
	CapMessages     int
	CapReplies      int
	CapReactions    int
	CapVoiceMinutes int

	Tiers []HoldingTier
	// Каналы, в которых считается активность. Пустой список — все каналы.
	TrackedChannels []string
}

// ChannelTracked проверяет, входит ли канал в allow-list.
func (s *CommunitySettings) ChannelTracked(channelID string) bool {
	if len(s.TrackedChannels) == 0 {
		return true
	}
	for _, id := range s.TrackedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// TierMultiplier возвращает множитель за холдинг: побеждает старшая
// подходящая ступень (при равенстве множителей — с большим порогом).
// Без подходящей ступени — 1.0.
func (s *CommunitySettings) TierMultiplier(holdingCount int) float64 {
	best := -1
	mult := 1.0
	for _, t := range s.Tiers {
		if holdingCount >= t.MinCount && t.MinCount > best {
			best = t.MinCount
			mult = t.Multiplier
		}
	}
	return mult
}

// ActorDailyCounters — счётчики одного актора в одном сообществе.
// Дневные поля откатываются лениво: при первом начислении в новых сутках.
type ActorDailyCounters struct {
	CommunityID string
	ActorID     string

	TotalScore  float64
	WeeklyScore float64

	// накопительные за всё время
	TotalMessages     int
	TotalReplies      int
	TotalReactions    int
	TotalVoiceMinutes int

	// израсходовано из дневных лимитов
	DailyMessages     int
	DailyReplies      int
	DailyReactions    int
	DailyVoiceMinutes int

	ResetDate time.Time
	UpdatedAt time.Time
}

// ActorAggregate — суммарная активность актора за один цикл сброса.
type ActorAggregate struct {
	ActorID      string
	Messages     int
	Replies      int
	Reactions    int
	VoiceMinutes int
}

// Applied — фактически записанная дельта очков по актору.
// Скармливается детектору аномалий после успешной записи пакета.
type Applied struct {
	ActorID string
	Delta   float64
}

// CounterUpdate — вычисленное обновление счётчиков одного актора.
// Значения уже зажаты лимитами; ResetDaily означает «сначала обнулить
// дневные поля» (календарные сутки сменились).
type CounterUpdate struct {
	ResetDaily      bool
	AddMessages     int
	AddReplies      int
	AddReactions    int
	AddVoiceMinutes int
	Delta           float64
	ResetDate       time.Time
}
