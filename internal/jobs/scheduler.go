// Package jobs управляет фоновыми задачами (cron).
// scheduler.go запускает ежедневный пересчёт серий, ежечасные напоминания
// и очистку истёкших сессий в часовом поясе приложения.
package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/metrics"
)

// Расписания задач.
const (
	SpecDailyRefresh    = "0 0 * * *"
	SpecReminders       = "0 * * * *"
	SpecSessionsCleanup = "30 3 * * *"
)

// Func — тело задачи.
type Func func(ctx context.Context) error

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	loc     *time.Location
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler создаёт планировщик в часовом поясе loc.
func NewScheduler(loc *time.Location, m *metrics.Metrics) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		loc:     loc,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add регистрирует задачу. Вызывать до Start.
func (s *Scheduler) Add(name, spec string, fn Func) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("ошибка расписания %q для задачи %s: %w", spec, name, err)
	}
	log.WithFields(log.Fields{"job": name, "spec": spec}).Debug("[CRON] Задача зарегистрирована")
	return nil
}

// Start запускает все фоновые задачи. Задачи останавливаются при отмене ctx или Stop.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.cancel()
		case <-s.ctx.Done():
		}
	}()

	s.cron.Start()
	log.WithFields(log.Fields{
		"timezone": s.loc.String(),
		"jobs":     len(s.cron.Entries()),
	}).Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	s.cancel()
	done := s.cron.Stop()
	<-done.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) run(name string, fn Func) {
	logger := log.WithField("job", name)
	start := time.Now()

	ok := false
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(log.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("[CRON] ПАНИКА в задаче, восстановлено")
		}
		s.metrics.JobRun(name, ok)
	}()

	logger.Debug("[CRON] Запуск задачи")
	if err := fn(s.ctx); err != nil {
		logger.WithError(err).Error("[CRON] Ошибка задачи")
		return
	}
	ok = true
	logger.WithField("duration", time.Since(start).String()).Debug("[CRON] Задача завершена")
}
