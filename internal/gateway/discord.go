// Package gateway — адаптер между Discord и движком учёта активности.
// discord.go подписывается на события discordgo и переводит их во входные
// точки движка. Вся логика — в движке; здесь только разбор полей событий
// и разрешение авторов через state-кеш.
package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/engine"
	"github.com/xka0085-byte/AetherGuard/internal/features/admin"
)

// сколько сообщений держим в state-кеше: нужно для разрешения авторов
// удалённых сообщений и целей реакций
const stateMessageCache = 2048

// Gateway слушает события Discord и ведёт их в движок.
type Gateway struct {
	session *discordgo.Session
	engine  *engine.Engine
	admins  *admin.Handler

	// базовый контекст процесса; обработчики discordgo его не принимают
	ctx context.Context
}

// New создаёт гейтвей и настраивает сессию Discord.
// Хендлер админки подключается позже (циклическая зависимость через Replier).
func New(token string, eng *engine.Engine) (*Gateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии Discord: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent
	session.State.MaxMessageCount = stateMessageCache

	g := &Gateway{
		session: session,
		engine:  eng,
	}

	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onMessageDelete)
	session.AddHandler(g.onReactionAdd)
	session.AddHandler(g.onVoiceStateUpdate)

	return g, nil
}

// SetAdminHandler подключает обработчик админ-команд в DM.
func (g *Gateway) SetAdminHandler(h *admin.Handler) {
	g.admins = h
}

// Start открывает websocket-подключение к Discord.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx = ctx
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("ошибка подключения к Discord: %w", err)
	}
	log.WithField("bot", g.session.State.User.Username).Info("Гейтвей Discord подключен")
	return nil
}

// Stop закрывает подключение.
func (g *Gateway) Stop() {
	if err := g.session.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия сессии Discord")
	}
}

// Reply отправляет текст в канал. Реализует admin.Replier.
func (g *Gateway) Reply(channelID, text string) {
	if _, err := g.session.ChannelMessageSend(channelID, text); err != nil {
		log.WithError(err).WithField("channel_id", channelID).Error("Ошибка отправки сообщения")
	}
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	// DM — только админка, активность не считается
	if m.GuildID == "" {
		if g.admins != nil && !m.Author.Bot {
			g.admins.HandleDirectMessage(g.ctx, m.ChannelID, m.Author.ID, m.Content)
		}
		return
	}

	g.engine.OnMessage(g.ctx, engine.MessageEvent{
		CommunityID:    m.GuildID,
		ChannelID:      m.ChannelID,
		ActorID:        m.Author.ID,
		Text:           m.Content,
		ReplyToActorID: g.resolveReplyAuthor(m),
		ActorIsBot:     m.Author.Bot,
	})
}

func (g *Gateway) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}
	// Автор известен только из state-кеша. Без него откатывать нечего —
	// деградируем молча.
	cached := m.BeforeDelete
	if cached == nil || cached.Author == nil || cached.Author.Bot {
		return
	}
	g.engine.OnMessageDelete(g.ctx, m.GuildID, cached.Author.ID)
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" {
		return
	}
	if r.Member != nil && r.Member.User != nil && r.Member.User.Bot {
		return
	}

	// Автор целевого сообщения нужен, чтобы не считать реакции на себя.
	// Если сообщение выпало из кеша, автор неизвестен — реакцию считаем.
	var targetAuthorID string
	if msg, err := s.State.Message(r.ChannelID, r.MessageID); err == nil && msg.Author != nil {
		if msg.Author.Bot {
			// реакции на сообщения ботов не считаются
			return
		}
		targetAuthorID = msg.Author.ID
	}

	g.engine.OnReactionAdd(g.ctx, r.GuildID, r.ChannelID, r.UserID, r.MessageID, targetAuthorID)
}

func (g *Gateway) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" {
		return
	}

	isBot := false
	if member, err := s.State.Member(v.GuildID, v.UserID); err == nil && member.User != nil {
		isBot = member.User.Bot
	}

	g.engine.OnVoiceStateUpdate(
		g.ctx,
		v.GuildID,
		v.ChannelID, // пустой канал = выход
		v.UserID,
		v.SelfMute || v.Mute,
		v.SelfDeaf || v.Deaf,
		isBot,
	)
}

// resolveReplyAuthor вытаскивает автора сообщения, на которое отвечают.
// Сначала вложенное ReferencedMessage, затем state-кеш; если не вышло —
// пустая строка, и базовое сообщение засчитается без бонуса за ответ.
func (g *Gateway) resolveReplyAuthor(m *discordgo.MessageCreate) string {
	if m.MessageReference == nil {
		return ""
	}
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		return m.ReferencedMessage.Author.ID
	}
	if msg, err := g.session.State.Message(m.MessageReference.ChannelID, m.MessageReference.MessageID); err == nil && msg.Author != nil {
		return msg.Author.ID
	}
	return ""
}
