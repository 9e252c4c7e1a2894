// Package penalty ведёт реестр флагов антиабуза и превращает их
// в штрафной множитель очков. models.go — причины флагов и записи реестра.
package penalty

import "time"

// Причины флагов. Флаг ставится один раз на причину:
// три разных сработавших эвристики = блокировка.
const (
	FlagReactionFarming = "reaction_farming"
	FlagActivitySpike   = "activity_spike"
	FlagCrossGuildSybil = "cross_guild_sybil"
)

// Flag — один флаг актора.
type Flag struct {
	ID          int64
	CommunityID string
	ActorID     string
	Reason      string
	CreatedAt   time.Time
}

// ActorFlags — актор со списком его флагов (для админ-обзора).
type ActorFlags struct {
	CommunityID string
	ActorID     string
	Reasons     []string
}
