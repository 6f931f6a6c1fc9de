// Package admin — service.go управляет подменой даты и отдаёт обзор пользователей.
package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/features/users"
)

// UserLister отдаёт список пользователей. Реализуется users.Service.
type UserLister interface {
	List(ctx context.Context) ([]*users.User, error)
}

// Service — админские операции.
type Service struct {
	repo     Store
	clock    *common.SimulatedClock
	users    UserLister
	validate *validator.Validate
}

// NewService создаёт сервис. clock — те же часы, что у сервиса привычек.
func NewService(repo Store, clock *common.SimulatedClock, users UserLister) *Service {
	return &Service{
		repo:     repo,
		clock:    clock,
		users:    users,
		validate: validator.New(),
	}
}

// Restore подхватывает сохранённую подмену даты после перезапуска.
func (s *Service) Restore(ctx context.Context) error {
	raw, err := s.repo.GetSetting(ctx, settingDateOverride)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	d, err := common.ParseDate(raw)
	if err != nil {
		log.WithField("value", raw).Warn("Сохранённая подмена даты некорректна, игнорирую")
		return nil
	}
	s.clock.SetOverride(d)
	log.WithField("date", d.String()).Info("Восстановлена подмена даты")
	return nil
}

// Current возвращает состояние подмены.
func (s *Service) Current() DateOverride {
	out := DateOverride{Today: common.Today(s.clock, s.clock.Location())}
	if d, ok := s.clock.Override(); ok {
		out.Active = true
		out.Date = &d
	}
	return out
}

// SetOverride подменяет «сегодня» на указанную дату (YYYY-MM-DD).
func (s *Service) SetOverride(ctx context.Context, actor string, in OverrideInput) (DateOverride, error) {
	in.Date = strings.TrimSpace(in.Date)
	if err := s.validate.Struct(in); err != nil {
		return DateOverride{}, fmt.Errorf("%w: нужна дата", common.ErrValidation)
	}
	d, err := common.ParseDate(in.Date)
	if err != nil {
		return DateOverride{}, err
	}

	if err := s.repo.SetSetting(ctx, settingDateOverride, d.String()); err != nil {
		return DateOverride{}, err
	}
	s.clock.SetOverride(d)

	log.WithFields(log.Fields{
		"admin": actor,
		"date":  d.String(),
	}).Warn("Дата подменена администратором")
	return s.Current(), nil
}

// ClearOverride возвращает настоящую дату.
func (s *Service) ClearOverride(ctx context.Context, actor string) (DateOverride, error) {
	if err := s.repo.DeleteSetting(ctx, settingDateOverride); err != nil {
		return DateOverride{}, err
	}
	s.clock.ClearOverride()

	log.WithField("admin", actor).Info("Подмена даты снята")
	return s.Current(), nil
}

// Users возвращает обзор всех пользователей.
func (s *Service) Users(ctx context.Context) ([]UserSummary, error) {
	list, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserSummary, 0, len(list))
	for _, u := range list {
		out = append(out, UserSummary{
			ID:         u.ID.String(),
			Username:   u.Username,
			Level:      u.Level,
			Experience: u.Experience,
			Telegram:   u.TelegramChatID != nil,
			IsAdmin:    u.IsAdmin,
		})
	}
	return out, nil
}
