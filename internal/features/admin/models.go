// Package admin реализует инструменты администратора: подмену текущей даты
// и обзор пользователей. models.go описывает входные и выходные структуры.
package admin

import (
	"cloud.google.com/go/civil"
)

// settingDateOverride — ключ в таблице admin_settings.
const settingDateOverride = "date_override"

// DateOverride — текущее состояние подмены даты.
type DateOverride struct {
	Active bool        `json:"active"`
	Date   *civil.Date `json:"date,omitempty"` // подменённая дата, если Active
	Today  civil.Date  `json:"today"`          // «сегодня» с учётом подмены
}

// OverrideInput — тело PUT /api/admin/date-override.
type OverrideInput struct {
	Date string `json:"date" validate:"required"`
}

// UserSummary — строка обзора пользователей.
type UserSummary struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Level      int    `json:"level"`
	Experience int64  `json:"experience"`
	Telegram   bool   `json:"telegram"`
	IsAdmin    bool   `json:"isAdmin"`
}
