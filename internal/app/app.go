// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище, создаёт сервисы, обработчики,
// планировщик и Telegram-бота и собирает всё в один объект App.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/api"
	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/config"
	"serotonyl.ru/habit-tracker/internal/db/postgres"
	"serotonyl.ru/habit-tracker/internal/features/admin"
	"serotonyl.ru/habit-tracker/internal/features/communities"
	"serotonyl.ru/habit-tracker/internal/features/habits"
	"serotonyl.ru/habit-tracker/internal/features/reminders"
	"serotonyl.ru/habit-tracker/internal/features/users"
	"serotonyl.ru/habit-tracker/internal/gamification"
	"serotonyl.ru/habit-tracker/internal/jobs"
	"serotonyl.ru/habit-tracker/internal/metrics"
	"serotonyl.ru/habit-tracker/internal/notify"
)

// App содержит все компоненты приложения.
type App struct {
	Router    *gin.Engine
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool    // nil при STORAGE_DRIVER=memory
	Telegram  *notify.Telegram // nil, если напоминания выключены
	Clock     *common.SimulatedClock
	Metrics   *metrics.Metrics

	Habits      *habits.Service
	Users       *users.Service
	Communities *communities.Service
	Admin       *admin.Service
	Reminders   *reminders.Service

	cfg     *config.Config
	limiter *middleware.RateLimiter
}

// stores — репозитории выбранного драйвера.
type stores struct {
	users       users.Store
	habits      habits.Store
	communities communities.Store
	admin       admin.Store
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}
	if cfg.MetricsEnabled {
		a.Metrics = metrics.New()
	}

	// === 1. Хранилище ===
	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	// === 2. Игровое ядро ===
	levels, err := levelTable(cfg.LevelThresholds)
	if err != nil {
		a.Close()
		return nil, err
	}
	catalog, err := gamification.LoadCatalog(cfg.AchievementsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	engine := habits.NewEngine(levels, catalog, cfg.XPPerCompletion)
	log.WithFields(log.Fields{
		"thresholds":   levels.Thresholds(),
		"max_level":    levels.MaxLevel(),
		"achievements": len(catalog),
	}).Info("Игровое ядро настроено")
	if ids := levels.Unreachable(catalog); len(ids) > 0 {
		log.WithField("achievements", ids).Warn("Достижения требуют уровень выше максимального")
	}

	// === 3. Сервисы ===
	loc := common.LoadLocation(cfg.AppTimezone)
	a.Clock = common.NewSimulatedClock(common.SystemClock{}, loc)

	a.Habits = habits.NewService(st.habits, engine, a.Clock, loc, a.Metrics)
	// Сессии живут по настоящим часам: подмена даты не должна их просрочить
	a.Users = users.NewService(st.users, a.Habits, common.SystemClock{}, users.Options{
		SessionTTL:    cfg.SessionTTL,
		AdminUsername: cfg.AdminUsername,
	})
	a.Communities = communities.NewService(st.communities)
	a.Admin = admin.NewService(st.admin, a.Clock, a.Users)
	if err := a.Admin.Restore(ctx); err != nil {
		log.WithError(err).Warn("Не удалось восстановить подмену даты")
	}

	// === 4. Telegram и напоминания ===
	if cfg.RemindersActive() {
		a.Telegram, err = notify.NewTelegram(cfg.TelegramBotToken)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Reminders = reminders.NewService(a.Habits, a.Users, a.Telegram, a.Clock, loc, reminders.Options{
			Threshold: cfg.ReminderStreakThreshold,
			Hour:      cfg.ReminderHour,
		}, a.Metrics)
	} else {
		log.Info("Напоминания выключены (нет токена или FEATURE_REMINDERS_ENABLED=false)")
	}

	// === 5. HTTP ===
	a.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	deps := api.Deps{
		Authenticator: a.Users.Authenticator(),
		Users:         users.NewHandler(a.Users, a.stateView),
		Habits:        habits.NewHandler(a.Habits),
		Admin:         admin.NewHandler(a.Admin),
		Metrics:       a.Metrics,
		AuthLimiter:   a.limiter,
		CORSOrigins:   cfg.CORSOrigins,
		Health:        a.health,
	}
	if cfg.FeatureCommunitiesEnabled {
		deps.Communities = communities.NewHandler(a.Communities)
	}
	a.Router = api.NewRouter(deps)

	// === 6. Планировщик ===
	a.Scheduler = jobs.NewScheduler(loc, a.Metrics)
	if err := a.registerJobs(); err != nil {
		a.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"storage":     cfg.StorageDriver,
		"timezone":    loc.String(),
		"communities": cfg.FeatureCommunitiesEnabled,
		"reminders":   a.Reminders != nil,
		"metrics":     a.Metrics != nil,
	}).Info("Приложение собрано")
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.StorageDriver == config.StorageMemory {
		log.Warn("STORAGE_DRIVER=memory: данные пропадут после перезапуска")
		usersRepo := users.NewMemoryRepository()
		return &stores{
			users:       usersRepo,
			habits:      habits.NewMemoryRepository(usersRepo.SetProgress),
			communities: communities.NewMemoryRepository(usersRepo),
			admin:       admin.NewMemoryRepository(),
		}, nil
	}

	pool, err := postgres.NewPool(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	a.DB = pool
	return &stores{
		users:       users.NewRepository(pool),
		habits:      habits.NewRepository(pool),
		communities: communities.NewRepository(pool),
		admin:       admin.NewRepository(pool),
	}, nil
}

func (a *App) registerJobs() error {
	if err := a.Scheduler.Add("daily_refresh", jobs.SpecDailyRefresh, func(ctx context.Context) error {
		_, err := a.Habits.DailyRefresh(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := a.Scheduler.Add("sessions_cleanup", jobs.SpecSessionsCleanup, func(ctx context.Context) error {
		_, err := a.Users.CleanupSessions(ctx)
		return err
	}); err != nil {
		return err
	}
	if a.Reminders != nil {
		return a.Scheduler.Add("reminders", jobs.SpecReminders, func(ctx context.Context) error {
			_, err := a.Reminders.SendReminders(ctx)
			return err
		})
	}
	return nil
}

// Run запускает HTTP-сервер, планировщик и бота и ждёт отмены ctx.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	var wg sync.WaitGroup
	if a.Telegram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Telegram.Run(ctx); err != nil {
				log.WithError(err).Error("Telegram-бот остановился с ошибкой")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP-сервер слушает")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP-сервер остановлен некорректно")
	}
	wg.Wait()
	return runErr
}

// Close освобождает ресурсы.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func (a *App) stateView(ctx context.Context, userID uuid.UUID) (any, error) {
	v, err := a.Habits.View(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (a *App) health(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return a.DB.Ping(ctx)
}

func levelTable(thresholds []int64) (*gamification.LevelTable, error) {
	if len(thresholds) == 0 {
		return gamification.MustLevelTable(gamification.DefaultThresholds), nil
	}
	t, err := gamification.NewLevelTable(thresholds)
	if err != nil {
		return nil, fmt.Errorf("LEVEL_THRESHOLDS: %w", err)
	}
	return t, nil
}
