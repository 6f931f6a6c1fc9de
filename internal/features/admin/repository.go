// Package admin — repository.go хранит админские настройки в таблице admin_settings.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store хранит настройки в виде пар ключ/значение.
// Отсутствующий ключ возвращает "" без ошибки.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// Repository — реализация Store на PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetSetting читает значение настройки.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRow(ctx, `SELECT value FROM admin_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("ошибка чтения настройки %q: %w", key, err)
	}
	return value, nil
}

// SetSetting записывает или обновляет настройку.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO admin_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("ошибка записи настройки %q: %w", key, err)
	}
	return nil
}

// DeleteSetting удаляет настройку.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM admin_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("ошибка удаления настройки %q: %w", key, err)
	}
	return nil
}

// MemoryRepository — Store в памяти.
type MemoryRepository struct {
	mu       sync.RWMutex
	settings map[string]string
}

// NewMemoryRepository создаёт пустое хранилище настроек.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{settings: make(map[string]string)}
}

func (r *MemoryRepository) GetSetting(_ context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[key], nil
}

func (r *MemoryRepository) SetSetting(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}

func (r *MemoryRepository) DeleteSetting(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.settings, key)
	return nil
}
