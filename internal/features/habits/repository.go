// Package habits — repository.go хранит состояние пользователей в PostgreSQL.
//
// Состояние лежит одним JSONB-документом в user_state. Любое изменение идёт
// в транзакции с блокировкой строки (FOR UPDATE), поэтому два запроса одного
// пользователя выполняются по очереди. В той же транзакции обновляются
// level/experience в users и пишется журнал начислений опыта.
package habits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStateNotFound — у пользователя ещё нет строки состояния.
var ErrStateNotFound = errors.New("состояние пользователя не найдено")

// Write — что сохранить по итогам операции.
type Write struct {
	Raw    []byte
	Level  int
	XP     int64
	Awards []Award
}

// MutateFunc получает сохранённый документ и возвращает, что записать.
// nil — сохранять нечего. Ошибка откатывает транзакцию.
type MutateFunc func(raw []byte) (*Write, error)

// XPEntry — строка журнала начислений опыта.
type XPEntry struct {
	ID          int64      `json:"id"`
	HabitID     string     `json:"habitId"`
	CompletedOn civil.Date `json:"completedOn"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// XPReasonCompletion — начисление за выполнение привычки.
const XPReasonCompletion = "habit_completion"

// Store — хранилище состояний. Реализации: Repository (PostgreSQL) и MemoryRepository.
type Store interface {
	Create(ctx context.Context, userID uuid.UUID, raw []byte) error
	Get(ctx context.Context, userID uuid.UUID) ([]byte, error)
	Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) error
	UserIDs(ctx context.Context) ([]uuid.UUID, error)
	XPHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*XPEntry, error)
}

// Repository — реализация Store на PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий состояний.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create сохраняет начальное состояние. Если строка уже есть — ничего не делает.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, raw []byte) error {
	query := `
		INSERT INTO user_state (user_id, state)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, userID, raw); err != nil {
		return fmt.Errorf("ошибка создания состояния: %w", err)
	}
	return nil
}

// Get возвращает сохранённый документ.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT state FROM user_state WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("ошибка чтения состояния (user_id=%s): %w", userID, err)
	}
	return raw, nil
}

// Mutate читает документ под блокировкой, вызывает fn и сохраняет результат.
func (r *Repository) Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Блокируем строку до конца транзакции
	var raw []byte
	err = tx.QueryRow(ctx, `SELECT state FROM user_state WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStateNotFound
		}
		return fmt.Errorf("ошибка чтения состояния: %w", err)
	}

	w, err := fn(raw)
	if err != nil {
		return err
	}
	if w == nil {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_state SET state = $2, updated_at = NOW() WHERE user_id = $1
	`, userID, w.Raw); err != nil {
		return fmt.Errorf("ошибка сохранения состояния: %w", err)
	}

	// Зеркалим уровень и опыт в users — по ним сортируются участники сообществ
	if _, err := tx.Exec(ctx, `
		UPDATE users SET level = $2, experience = $3, updated_at = NOW() WHERE id = $1
	`, userID, w.Level, w.XP); err != nil {
		return fmt.Errorf("ошибка обновления уровня: %w", err)
	}

	for _, a := range w.Awards {
		if _, err := tx.Exec(ctx, `
			INSERT INTO xp_ledger (user_id, habit_id, completed_on, amount, reason)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, habit_id, completed_on) DO NOTHING
		`, userID, a.HabitID, a.Date.In(time.UTC), a.Amount, XPReasonCompletion); err != nil {
			return fmt.Errorf("ошибка записи начисления опыта: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UserIDs возвращает всех пользователей, у которых есть состояние.
func (r *Repository) UserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM user_state ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователей: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// XPHistory возвращает последние начисления опыта.
func (r *Repository) XPHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*XPEntry, error) {
	query := `
		SELECT id, habit_id, completed_on, amount, reason, created_at
		FROM xp_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала опыта: %w", err)
	}
	defer rows.Close()

	var out []*XPEntry
	for rows.Next() {
		var (
			e  XPEntry
			on time.Time
		)
		if err := rows.Scan(&e.ID, &e.HabitID, &on, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования начисления: %w", err)
		}
		e.CompletedOn = civil.DateOf(on)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
