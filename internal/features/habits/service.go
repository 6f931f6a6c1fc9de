// Package habits — service.go связывает движок с хранилищем и часами.
// Каждая операция: загрузить под блокировкой → применить движок → сохранить,
// если что-то изменилось.
package habits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/gamification"
	"serotonyl.ru/habit-tracker/internal/metrics"
)

// MaxHistoryLimit — больше записей журнала опыта за раз не отдаём.
const MaxHistoryLimit = 100

// Service управляет состоянием пользователей.
type Service struct {
	repo    Store
	engine  *Engine
	clock   common.Clock
	loc     *time.Location
	metrics *metrics.Metrics
}

// NewService создаёт сервис привычек. m может быть nil.
func NewService(repo Store, engine *Engine, clock common.Clock, loc *time.Location, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		engine:  engine,
		clock:   clock,
		loc:     loc,
		metrics: m,
	}
}

// Result — состояние после операции и описание изменений.
type Result struct {
	View    *View    `json:"view"`
	Outcome *Outcome `json:"outcome"`
	Habit   *Habit   `json:"habit,omitempty"`
}

// Today возвращает «сегодня» с учётом часового пояса и подмены даты.
func (s *Service) Today() civil.Date {
	return common.Today(s.clock, s.loc)
}

// Init создаёт начальное состояние пользователя. Повторный вызов ничего не меняет.
func (s *Service) Init(ctx context.Context, userID uuid.UUID) error {
	raw, err := EncodeState(s.engine.NewState(s.Today()))
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, userID, raw)
}

// View возвращает актуальное состояние. Если серии устарели — пересчитывает и сохраняет.
func (s *Service) View(ctx context.Context, userID uuid.UUID) (*View, error) {
	res, err := s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		next, out := s.engine.Refresh(st, today)
		return next, out, nil
	})
	if err != nil {
		return nil, err
	}
	return res.View, nil
}

// AddHabit создаёт привычку.
func (s *Service) AddHabit(ctx context.Context, userID uuid.UUID, in HabitInput) (*Result, error) {
	var created Habit
	res, err := s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		next, h, out, err := s.engine.AddHabit(st, in, today, s.clock.Now())
		created = h
		return next, out, err
	})
	if err != nil {
		return nil, err
	}
	res.Habit = &created
	return res, nil
}

// EditHabit меняет поля привычки.
func (s *Service) EditHabit(ctx context.Context, userID uuid.UUID, habitID string, patch HabitPatch) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		return s.engine.EditHabit(st, habitID, patch, today)
	})
}

// DeleteHabit удаляет привычку.
func (s *Service) DeleteHabit(ctx context.Context, userID uuid.UUID, habitID string) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		return s.engine.DeleteHabit(st, habitID, today)
	})
}

// SetArchived архивирует привычку или возвращает её из архива.
func (s *Service) SetArchived(ctx context.Context, userID uuid.UUID, habitID string, archived bool) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		return s.engine.SetArchived(st, habitID, archived, today)
	})
}

// Complete отмечает привычку выполненной сегодня.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, habitID string) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		return s.engine.CompleteToday(st, habitID, today)
	})
}

// Toggle переключает отметку за дату. nil — сегодня.
func (s *Service) Toggle(ctx context.Context, userID uuid.UUID, habitID string, date *civil.Date) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		d := today
		if date != nil {
			d = *date
		}
		return s.engine.ToggleCompletion(st, habitID, d, today)
	})
}

// UpdateSettings меняет оформление.
func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, in Settings) (*Result, error) {
	return s.apply(ctx, userID, func(st State, today civil.Date) (State, Outcome, error) {
		return s.engine.UpdateSettings(st, in, today)
	})
}

// XPHistory возвращает журнал начислений опыта.
func (s *Service) XPHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*XPEntry, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.repo.XPHistory(ctx, userID, limit)
}

// AtRiskHabits возвращает активные привычки с серией не меньше minStreak,
// которые ещё не отмечены сегодня: завтра их серия сгорит.
func (s *Service) AtRiskHabits(ctx context.Context, userID uuid.UUID, minStreak int) ([]Habit, error) {
	view, err := s.View(ctx, userID)
	if err != nil {
		return nil, err
	}

	yesterday := view.Today.AddDays(-1)
	var out []Habit
	for _, h := range view.State.Habits {
		if h.IsArchived || h.Streak < minStreak || h.LastCompleted == nil {
			continue
		}
		if *h.LastCompleted == yesterday {
			out = append(out, h)
		}
	}
	return out, nil
}

// DailyRefresh пересчитывает серии всех пользователей на новую дату.
// Запускается кроном в полночь. Ошибка одного пользователя не останавливает остальных.
func (s *Service) DailyRefresh(ctx context.Context) (int, error) {
	log.Info("Запуск ежедневного пересчёта серий")

	ids, err := s.repo.UserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения пользователей: %w", err)
	}

	changed, failed := 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		res, err := s.apply(ctx, id, func(st State, today civil.Date) (State, Outcome, error) {
			next, out := s.engine.Refresh(st, today)
			return next, out, nil
		})
		if err != nil {
			failed++
			log.WithError(err).WithField("user_id", id).Error("Ошибка пересчёта состояния")
			continue
		}
		if res.Outcome.Changed {
			changed++
		}
	}

	log.WithFields(log.Fields{
		"total":   len(ids),
		"changed": changed,
		"failed":  failed,
	}).Info("Ежедневный пересчёт завершён")
	return changed, nil
}

type operation func(st State, today civil.Date) (State, Outcome, error)

// apply выполняет операцию под блокировкой состояния пользователя.
// Если состояния ещё нет — создаёт начальное и повторяет один раз.
func (s *Service) apply(ctx context.Context, userID uuid.UUID, op operation) (*Result, error) {
	res, err := s.applyOnce(ctx, userID, op)
	if errors.Is(err, ErrStateNotFound) {
		if err := s.Init(ctx, userID); err != nil {
			return nil, err
		}
		res, err = s.applyOnce(ctx, userID, op)
	}
	if err != nil {
		return nil, err
	}

	s.report(userID, res.Outcome)
	return res, nil
}

func (s *Service) applyOnce(ctx context.Context, userID uuid.UUID, op operation) (*Result, error) {
	today := s.Today()
	var res Result

	err := s.repo.Mutate(ctx, userID, func(raw []byte) (*Write, error) {
		st, migrated, err := DecodeState(raw)
		if errors.Is(err, errEmptyState) {
			st, migrated, err = s.engine.NewState(today), true, nil
		}
		if err != nil {
			return nil, err
		}
		if migrated {
			log.WithField("user_id", userID).Info("Состояние приведено к новому формату")
		}

		next, out, err := op(st, today)
		if err != nil {
			return nil, err
		}
		out.Changed = out.Changed || migrated

		progress, err := s.engine.Levels().LevelFor(next.XP)
		if err != nil {
			return nil, err
		}
		res = Result{
			View:    &View{State: next, Progress: progress, Today: today},
			Outcome: &out,
		}
		if !out.Changed {
			return nil, nil
		}

		data, err := EncodeState(next)
		if err != nil {
			return nil, err
		}
		return &Write{Raw: data, Level: next.Level, XP: next.XP, Awards: out.Awards}, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// report логирует и считает итог операции.
func (s *Service) report(userID uuid.UUID, out *Outcome) {
	for _, err := range out.Errors {
		var pe *gamification.PredicateError
		if errors.As(err, &pe) {
			s.metrics.PredicateError(pe.AchievementID)
		}
		log.WithError(err).WithField("user_id", userID).Warn("Сбой условия достижения")
	}
	if !out.Changed {
		return
	}

	s.metrics.Progress(len(out.Awards), out.XPAwarded, out.LeveledUp, out.Unlocked)
	if out.LeveledUp || len(out.Unlocked) > 0 {
		log.WithFields(log.Fields{
			"user_id":  userID,
			"xp":       common.FormatXP(out.XPAwarded, true),
			"level":    out.LevelAfter,
			"unlocked": out.Unlocked,
		}).Info("Прогресс пользователя обновлён")
	}
}
