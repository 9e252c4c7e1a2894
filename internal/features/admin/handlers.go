// handlers.go обрабатывает админ-команды в личных сообщениях.
// Поток: /login <пароль> → сессия на 24 часа → команды управления флагами.
package admin

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/common"
	"github.com/xka0085-byte/AetherGuard/internal/features/leaderboard"
	"github.com/xka0085-byte/AetherGuard/internal/features/penalty"
)

// Replier отправляет текстовый ответ в канал (реализуется гейтвеем).
type Replier interface {
	Reply(channelID, text string)
}

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	ledger  *penalty.Ledger
	board   *leaderboard.Service
	replier Replier
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, ledger *penalty.Ledger, board *leaderboard.Service, replier Replier) *Handler {
	return &Handler{
		service: service,
		ledger:  ledger,
		board:   board,
		replier: replier,
	}
}

// HandleDirectMessage обрабатывает сообщение администратора в DM.
// Возвращает true, если сообщение было админ-командой.
func (h *Handler) HandleDirectMessage(ctx context.Context, channelID, userID, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}

	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") && !strings.HasPrefix(text, "!") {
		return false
	}
	parts := strings.Fields(strings.TrimLeft(text, "/!"))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	if cmd == "login" {
		h.handleLogin(ctx, channelID, userID, args)
		return true
	}

	if !h.service.HasActiveSession(ctx, userID) {
		h.replier.Reply(channelID, "🔐 Сначала авторизуйтесь: /login <пароль>")
		return true
	}

	switch cmd {
	case "help":
		h.replier.Reply(channelID,
			"Команды: /флаги <сообщество>, /снятьфлаг <сообщество> <актор> <причина>, "+
				"/статус <сообщество> <актор>, /топ <сообщество>")

	case "флаги":
		h.handleListFlags(ctx, channelID, args)

	case "снятьфлаг":
		h.handleRemoveFlag(ctx, channelID, userID, args)

	case "статус":
		h.handleStatus(ctx, channelID, args)

	case "топ":
		h.handleTop(ctx, channelID, args)

	default:
		return false
	}
	return true
}

func (h *Handler) handleLogin(ctx context.Context, channelID, userID string, args []string) {
	if len(args) != 1 {
		h.replier.Reply(channelID, "Использование: /login <пароль>")
		return
	}

	if err := h.service.VerifyPassword(ctx, userID, args[0]); err != nil {
		log.WithFields(log.Fields{
			"component": "security",
			"user_id":   userID,
		}).Warn("Неудачная попытка входа в админку")
		h.replier.Reply(channelID, "❌ "+err.Error())
		return
	}
	h.replier.Reply(channelID, "✅ Авторизация успешна, сессия на 24 часа")
}

func (h *Handler) handleListFlags(ctx context.Context, channelID string, args []string) {
	if len(args) != 1 {
		h.replier.Reply(channelID, "Использование: /флаги <сообщество>")
		return
	}

	flagged, err := h.ledger.ListFlagged(ctx, args[0])
	if err != nil {
		h.replier.Reply(channelID, "❌ Ошибка чтения флагов")
		return
	}
	if len(flagged) == 0 {
		h.replier.Reply(channelID, "Помеченных акторов нет")
		return
	}

	var b strings.Builder
	for _, af := range flagged {
		fmt.Fprintf(&b, "%s: %s\n", af.ActorID, strings.Join(af.Reasons, ", "))
	}
	h.replier.Reply(channelID, b.String())
}

func (h *Handler) handleRemoveFlag(ctx context.Context, channelID, userID string, args []string) {
	if len(args) != 3 {
		h.replier.Reply(channelID, "Использование: /снятьфлаг <сообщество> <актор> <причина>")
		return
	}

	removed, err := h.ledger.RemoveFlag(ctx, args[0], args[1], args[2])
	if err != nil {
		h.replier.Reply(channelID, "❌ Ошибка снятия флага")
		return
	}
	if !removed {
		h.replier.Reply(channelID, "❌ "+common.ErrFlagNotFound.Error())
		return
	}

	log.WithFields(log.Fields{
		"component":    "security",
		"admin_id":     userID,
		"community_id": args[0],
		"actor_id":     args[1],
		"reason":       args[2],
	}).Info("Администратор снял флаг")
	h.replier.Reply(channelID, "✅ Флаг снят")
}

func (h *Handler) handleStatus(ctx context.Context, channelID string, args []string) {
	if len(args) != 2 {
		h.replier.Reply(channelID, "Использование: /статус <сообщество> <актор>")
		return
	}
	communityID, actorID := args[0], args[1]

	score, err := h.board.GetScore(ctx, communityID, actorID)
	if err != nil {
		h.replier.Reply(channelID, "❌ Счётчики актора не найдены")
		return
	}
	mult, err := h.ledger.Multiplier(ctx, communityID, actorID)
	if err != nil {
		h.replier.Reply(channelID, "❌ Ошибка чтения флагов")
		return
	}

	h.replier.Reply(channelID, fmt.Sprintf(
		"Актор %s: очки %.2f (неделя %.2f), место %d, штрафной множитель %.1f",
		actorID, score.TotalScore, score.WeeklyScore, score.Rank, mult))
}

func (h *Handler) handleTop(ctx context.Context, channelID string, args []string) {
	if len(args) != 1 {
		h.replier.Reply(channelID, "Использование: /топ <сообщество>")
		return
	}

	top, err := h.board.GetTop(ctx, args[0], 10)
	if err != nil {
		h.replier.Reply(channelID, "❌ Ошибка чтения таблицы лидеров")
		return
	}
	if len(top) == 0 {
		h.replier.Reply(channelID, "В этом сообществе пока нет очков")
		return
	}

	var b strings.Builder
	for _, e := range top {
		fmt.Fprintf(&b, "%d. %s — %.2f\n", e.Rank, e.ActorID, e.TotalScore)
	}
	h.replier.Reply(channelID, b.String())
}
