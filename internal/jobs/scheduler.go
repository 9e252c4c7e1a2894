// Package jobs управляет календарными фоновыми задачами (cron).
// scheduler.go настраивает расписание: недельный сброс очков
// и ежедневную чистку админ-сессий.
// Быстрые циклы (сброс очереди, голосовой чекпоинт) живут в движке
// на тикерах — крону там делать нечего.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/xka0085-byte/AetherGuard/internal/features/admin"
	"github.com/xka0085-byte/AetherGuard/internal/features/scoring"
)

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron           *cron.Cron
	scoringService *scoring.Service
	adminService   *admin.Service
}

// NewScheduler создаёт планировщик задач с московским часовым поясом.
func NewScheduler(scoringService *scoring.Service, adminService *admin.Service) *Scheduler {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить Europe/Moscow, используем UTC+3")
		loc = time.FixedZone("MSK", 3*60*60)
	}

	return &Scheduler{
		cron:           cron.New(cron.WithLocation(loc)),
		scoringService: scoringService,
		adminService:   adminService,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Недельный сброс очков — понедельник, полночь по Москве
	s.cron.AddFunc("0 0 * * 1", func() {
		log.Info("[CRON] Недельный сброс очков")
		if err := s.scoringService.ResetWeeklyScores(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка недельного сброса")
		}
	})

	// Чистка протухших админ-сессий — каждый день в 04:00
	s.cron.AddFunc("0 4 * * *", func() {
		log.Debug("[CRON] Чистка админ-сессий")
		if err := s.adminService.CleanupSessions(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка чистки сессий")
		}
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен (Europe/Moscow)")
}

// Stop останавливает планировщик.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
