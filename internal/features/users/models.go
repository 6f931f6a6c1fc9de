// Package users управляет учётными записями: регистрация, вход, сессии,
// привязка Telegram для напоминаний.
// models.go описывает пользователей, сессии и попытки входа.
package users

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/common"
)

// User — учётная запись.
// Level и Experience — копия из состояния, обновляется при каждом сохранении.
type User struct {
	ID             uuid.UUID   `json:"id"`
	Username       string      `json:"username"`
	PasswordHash   string      `json:"-"`
	Level          int         `json:"level"`
	Experience     int64       `json:"experience"`
	TelegramChatID *int64      `json:"telegramChatId,omitempty"`
	LastReminderOn *civil.Date `json:"-"` // Когда последний раз отправили напоминание
	IsAdmin        bool        `json:"isAdmin"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Session — активная сессия. Token передаётся клиенту как есть.
type Session struct {
	Token        string    `json:"token"`
	UserID       uuid.UUID `json:"-"`
	CreatedAt    time.Time `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"-"`
}

// Expired сообщает, истекла ли сессия к моменту now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// LoginAttempt — попытка входа (для защиты от brute-force).
type LoginAttempt struct {
	Username    string
	AttemptTime time.Time
	Success     bool
}

// Credentials — логин и пароль из запроса.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// TelegramLink — привязка чата для напоминаний. nil отвязывает.
type TelegramLink struct {
	ChatID *int64 `json:"chatId" validate:"omitempty,ne=0"`
}

var validate = validator.New()

func (c *Credentials) normalize() {
	c.Username = strings.TrimSpace(c.Username)
}

func validateInput(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
