// Package communities управляет сообществами по интересам и участием в них.
// models.go описывает сообщества, участников и входные данные.
package communities

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"serotonyl.ru/habit-tracker/internal/common"
)

// Community — сообщество.
type Community struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Category     string    `json:"category"`
	CreatorID    uuid.UUID `json:"creator_id"`
	CreatedAt    time.Time `json:"created_at"`
	MembersCount int       `json:"members_count"`
}

// Member — участник сообщества с его прогрессом.
type Member struct {
	UserID     uuid.UUID `json:"-"`
	Username   string    `json:"username"`
	Level      int       `json:"level"`
	Experience int64     `json:"experience"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Input — создание сообщества.
type Input struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"max=500"`
	Category    string `json:"category" validate:"required,max=32"`
}

var validate = validator.New()

func (in *Input) check() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)

	if in.Name == "" || in.Category == "" {
		return fmt.Errorf("%w: нужно имя и категория", common.ErrValidation)
	}
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	return nil
}
