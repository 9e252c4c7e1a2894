// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют вызывающему коду различать типы проблем:
// что ретраить, что молча выбрасывать, что показывать админу.
package common

import "errors"

// Ошибки скоринга
var (
	// ErrSettingsNotFound — у сообщества нет настроек: сообщество не трекается
	ErrSettingsNotFound = errors.New("настройки сообщества не найдены")
	// ErrTrackingDisabled — трекинг выключен флагом в настройках
	ErrTrackingDisabled = errors.New("трекинг активности отключён")
	// ErrCountersNotFound — счётчики актора не найдены в базе
	ErrCountersNotFound = errors.New("счётчики актора не найдены")
)

// Ошибки очереди событий
var (
	// ErrQueueFull — буфер событий переполнен, событие потеряно
	ErrQueueFull = errors.New("очередь событий переполнена")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
	// ErrFlagNotFound — у актора нет такого флага
	ErrFlagNotFound = errors.New("флаг не найден")
)
