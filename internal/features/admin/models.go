// Package admin — административная панель в личных сообщениях:
// аутентификация по паролю и ручное управление флагами антиабуза.
// models.go описывает сессии и журнал попыток входа.
package admin

import "time"

// AdminSession — активная сессия администратора.
type AdminSession struct {
	ID              int64
	UserID          string
	SessionToken    string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	LastActivity    time.Time
	IsActive        bool
}

// LoginAttempt — запись о попытке входа (для защиты от перебора).
type LoginAttempt struct {
	ID          int64
	UserID      string
	AttemptTime time.Time
	Success     bool
}
