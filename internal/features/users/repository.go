// Package users — repository.go работает с таблицами users, sessions и login_attempts.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/habit-tracker/internal/common"
	"serotonyl.ru/habit-tracker/internal/db/postgres"
)

// Store — хранилище пользователей и сессий.
// Реализации: Repository (PostgreSQL) и MemoryRepository.
type Store interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	SetProgress(ctx context.Context, id uuid.UUID, level int, xp int64) error
	SetTelegramChat(ctx context.Context, id uuid.UUID, chatID *int64) error
	MarkReminded(ctx context.Context, id uuid.UUID, day civil.Date) error
	ReminderCandidates(ctx context.Context, day civil.Date) ([]*User, error)

	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	TouchSession(ctx context.Context, token string, at time.Time) error
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	LogAttempt(ctx context.Context, a LoginAttempt) error
	RecentFailedAttempts(ctx context.Context, username string, since time.Time) (int, error)
}

// Repository — реализация Store на PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий пользователей.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, username, password_hash, level, experience, telegram_chat_id, last_reminder_on, created_at`

// Create добавляет пользователя. Занятое имя (без учёта регистра) — ErrUsernameTaken.
func (r *Repository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, username, password_hash, level, experience)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, u.ID, u.Username, u.PasswordHash, u.Level, u.Experience).Scan(&u.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrUsernameTaken
		}
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return nil
}

// GetByID: если не найден — common.ErrUserNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя (id=%s): %w", id, err)
	}
	return u, nil
}

// GetByUsername ищет без учёта регистра.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения пользователя (username=%s): %w", username, err)
	}
	return u, nil
}

// List возвращает всех пользователей, сначала самых опытных.
func (r *Repository) List(ctx context.Context) ([]*User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY experience DESC, username`)
}

// SetProgress обновляет копию уровня и опыта.
func (r *Repository) SetProgress(ctx context.Context, id uuid.UUID, level int, xp int64) error {
	query := `UPDATE users SET level = $2, experience = $3, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, level, xp); err != nil {
		return fmt.Errorf("ошибка обновления уровня: %w", err)
	}
	return nil
}

// SetTelegramChat привязывает или отвязывает чат Telegram.
func (r *Repository) SetTelegramChat(ctx context.Context, id uuid.UUID, chatID *int64) error {
	query := `UPDATE users SET telegram_chat_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, chatID)
	if err != nil {
		return fmt.Errorf("ошибка привязки Telegram: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

// MarkReminded запоминает день отправки напоминания.
func (r *Repository) MarkReminded(ctx context.Context, id uuid.UUID, day civil.Date) error {
	query := `UPDATE users SET last_reminder_on = $2 WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, day.In(time.UTC)); err != nil {
		return fmt.Errorf("ошибка отметки напоминания: %w", err)
	}
	return nil
}

// ReminderCandidates — пользователи с привязанным чатом, которым сегодня ещё не писали.
func (r *Repository) ReminderCandidates(ctx context.Context, day civil.Date) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE telegram_chat_id IS NOT NULL
		  AND (last_reminder_on IS NULL OR last_reminder_on < $1)
		ORDER BY created_at
	`
	return r.queryUsers(ctx, query, day.In(time.UTC))
}

// CreateSession сохраняет новую сессию.
func (r *Repository) CreateSession(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO sessions (token, user_id, created_at, expires_at, last_activity)
		VALUES ($1, $2, $3, $4, $3)
	`
	if _, err := r.db.Exec(ctx, query, s.Token, s.UserID, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetSession: неизвестный токен — common.ErrUnauthorized.
func (r *Repository) GetSession(ctx context.Context, token string) (*Session, error) {
	query := `
		SELECT token, user_id, created_at, expires_at, last_activity
		FROM sessions
		WHERE token = $1
	`
	var s Session
	err := r.db.QueryRow(ctx, query, token).Scan(&s.Token, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.LastActivity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUnauthorized
		}
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// TouchSession обновляет время последней активности.
func (r *Repository) TouchSession(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE token = $1`, token, at)
	return err
}

// DeleteSession удаляет сессию. Неизвестный токен — не ошибка.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return nil
}

// DeleteExpiredSessions удаляет истёкшие сессии и возвращает их количество.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки сессий: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, a LoginAttempt) error {
	query := `INSERT INTO login_attempts (username, success, attempt_time) VALUES (LOWER($1), $2, $3)`
	_, err := r.db.Exec(ctx, query, a.Username, a.Success, a.AttemptTime)
	return err
}

// RecentFailedAttempts возвращает количество неудачных попыток начиная с since.
func (r *Repository) RecentFailedAttempts(ctx context.Context, username string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE username = LOWER($1) AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, username, since).Scan(&count)
	return count, err
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u        User
		reminded *time.Time
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Level, &u.Experience,
		&u.TelegramChatID, &reminded, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	if reminded != nil {
		d := civil.DateOf(*reminded)
		u.LastReminderOn = &d
	}
	return &u, nil
}
