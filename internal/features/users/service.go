// Package users — service.go содержит логику регистрации, входа и сессий.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/api/middleware"
	"serotonyl.ru/habit-tracker/internal/common"
)

// Защита от подбора пароля: столько неудачных попыток за окно блокируют вход.
const (
	MaxLoginAttempts   = 5
	LoginAttemptWindow = 15 * time.Minute
)

// DefaultSessionTTL — срок жизни сессии, если в конфиге не задан.
const DefaultSessionTTL = 30 * 24 * time.Hour

// StateInitializer создаёт игровое состояние нового пользователя.
type StateInitializer interface {
	Init(ctx context.Context, userID uuid.UUID) error
}

// Options — настройки сервиса.
type Options struct {
	SessionTTL    time.Duration
	AdminUsername string
}

// Service управляет учётными записями и сессиями.
type Service struct {
	repo       Store
	states     StateInitializer
	clock      common.Clock
	sessionTTL time.Duration
	admin      string
}

// NewService создаёт сервис пользователей. states может быть nil.
func NewService(repo Store, states StateInitializer, clock common.Clock, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if clock == nil {
		clock = common.SystemClock{}
	}
	return &Service{
		repo:       repo,
		states:     states,
		clock:      clock,
		sessionTTL: opts.SessionTTL,
		admin:      strings.ToLower(strings.TrimSpace(opts.AdminUsername)),
	}
}

// Register создаёт пользователя, его начальное состояние и сессию.
func (s *Service) Register(ctx context.Context, in Credentials) (*User, *Session, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	u := &User{
		ID:           uuid.New(),
		Username:     in.Username,
		PasswordHash: hash,
		Level:        1,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, nil, err
	}

	// Без состояния пользователь всё равно сможет работать:
	// оно создастся при первом обращении
	if s.states != nil {
		if err := s.states.Init(ctx, u.ID); err != nil {
			log.WithError(err).WithField("user_id", u.ID).Warn("Не удалось создать начальное состояние")
		}
	}

	session, err := s.newSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}

	s.decorate(u)
	log.WithFields(log.Fields{
		"user_id":  u.ID,
		"username": u.Username,
	}).Info("Новый пользователь зарегистрирован")
	return u, session, nil
}

// Login проверяет пароль и открывает новую сессию.
// MaxLoginAttempts неудачных попыток за LoginAttemptWindow блокируют вход.
func (s *Service) Login(ctx context.Context, in Credentials) (*User, *Session, error) {
	in.normalize()
	if in.Username == "" || in.Password == "" {
		return nil, nil, common.ErrInvalidCredentials
	}

	now := s.clock.Now()
	attempts, err := s.repo.RecentFailedAttempts(ctx, in.Username, now.Add(-LoginAttemptWindow))
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка проверки попыток входа: %w", err)
	}
	if attempts >= MaxLoginAttempts {
		log.WithField("username", in.Username).Warn("Вход заблокирован: слишком много попыток")
		return nil, nil, common.ErrTooManyRequests
	}

	u, err := s.repo.GetByUsername(ctx, in.Username)
	if err != nil && !errors.Is(err, common.ErrUserNotFound) {
		return nil, nil, err
	}
	match := u != nil && VerifyPassword(in.Password, u.PasswordHash)

	if err := s.repo.LogAttempt(ctx, LoginAttempt{Username: in.Username, AttemptTime: now, Success: match}); err != nil {
		log.WithError(err).Warn("Не удалось записать попытку входа")
	}
	if !match {
		return nil, nil, common.ErrInvalidCredentials
	}

	session, err := s.newSession(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}

	s.decorate(u)
	log.WithField("user_id", u.ID).Info("Пользователь вошёл")
	return u, session, nil
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}

// Authenticate возвращает владельца токена.
// Истёкшая сессия удаляется и даёт ErrSessionExpired.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	session, err := s.repo.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if session.Expired(now) {
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			log.WithError(err).Warn("Не удалось удалить истёкшую сессию")
		}
		return nil, common.ErrSessionExpired
	}

	u, err := s.repo.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}

	if err := s.repo.TouchSession(ctx, token, now); err != nil {
		log.WithError(err).Debug("Не удалось обновить активность сессии")
	}

	s.decorate(u)
	return u, nil
}

// Authenticator связывает сервис с middleware.RequireAuth.
func (s *Service) Authenticator() middleware.Authenticator {
	return func(ctx context.Context, token string) (*middleware.Principal, error) {
		u, err := s.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		return &middleware.Principal{UserID: u.ID, Username: u.Username, IsAdmin: u.IsAdmin}, nil
	}
}

// Get возвращает пользователя по id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorate(u)
	return u, nil
}

// List возвращает всех пользователей (для админа).
func (s *Service) List(ctx context.Context) ([]*User, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		s.decorate(u)
	}
	return list, nil
}

// LinkTelegram привязывает чат для напоминаний. nil отвязывает.
func (s *Service) LinkTelegram(ctx context.Context, id uuid.UUID, in TelegramLink) (*User, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := s.repo.SetTelegramChat(ctx, id, in.ChatID); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"user_id": id,
		"linked":  in.ChatID != nil,
	}).Info("Привязка Telegram обновлена")
	return s.Get(ctx, id)
}

// ReminderCandidates — пользователи, которым сегодня ещё можно отправить напоминание.
func (s *Service) ReminderCandidates(ctx context.Context, day civil.Date) ([]*User, error) {
	return s.repo.ReminderCandidates(ctx, day)
}

// MarkReminded запоминает, что напоминание за day отправлено.
func (s *Service) MarkReminded(ctx context.Context, id uuid.UUID, day civil.Date) error {
	return s.repo.MarkReminded(ctx, id, day)
}

// CleanupSessions удаляет истёкшие сессии. Запускается кроном.
func (s *Service) CleanupSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("count", n).Info("Удалены истёкшие сессии")
	}
	return n, nil
}

func (s *Service) newSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	session := &Session{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// decorate заполняет вычисляемые поля.
func (s *Service) decorate(u *User) {
	u.IsAdmin = s.admin != "" && strings.ToLower(u.Username) == s.admin
}
