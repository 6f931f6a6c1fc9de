// Package communities — repository.go работает с таблицами communities и community_members.
package communities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/habit-tracker/internal/common"
)

// Store — хранилище сообществ. Реализации: Repository (PostgreSQL) и MemoryRepository.
type Store interface {
	List(ctx context.Context) ([]*Community, error)
	Get(ctx context.Context, id int64) (*Community, error)
	Create(ctx context.Context, c *Community) error
	Delete(ctx context.Context, id int64) error
	Join(ctx context.Context, id int64, userID uuid.UUID) error
	Leave(ctx context.Context, id int64, userID uuid.UUID) error
	Members(ctx context.Context, id int64) ([]*Member, error)
	ForUser(ctx context.Context, userID uuid.UUID) ([]*Community, error)
}

// Repository — реализация Store на PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий сообществ.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const communitySelect = `
	SELECT c.id, c.name, c.description, c.category, c.creator_id, c.created_at,
	       (SELECT COUNT(*) FROM community_members cm WHERE cm.community_id = c.id)
	FROM communities c
`

// List возвращает все сообщества, новые первыми.
func (r *Repository) List(ctx context.Context) ([]*Community, error) {
	return r.queryCommunities(ctx, communitySelect+` ORDER BY c.created_at DESC, c.id DESC`)
}

// Get: если не найдено — common.ErrCommunityNotFound.
func (r *Repository) Get(ctx context.Context, id int64) (*Community, error) {
	var c Community
	err := r.db.QueryRow(ctx, communitySelect+` WHERE c.id = $1`, id).Scan(
		&c.ID, &c.Name, &c.Description, &c.Category, &c.CreatorID, &c.CreatedAt, &c.MembersCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrCommunityNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сообщества (id=%d): %w", id, err)
	}
	return &c, nil
}

// Create добавляет сообщество и заполняет ID и CreatedAt.
func (r *Repository) Create(ctx context.Context, c *Community) error {
	query := `
		INSERT INTO communities (name, description, category, creator_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, c.Name, c.Description, c.Category, c.CreatorID).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сообщества: %w", err)
	}
	return nil
}

// Delete удаляет сообщество вместе с участниками (ON DELETE CASCADE).
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM communities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ошибка удаления сообщества: %w", err)
	}
	return nil
}

// Join добавляет участника. Повторное вступление ничего не меняет.
func (r *Repository) Join(ctx context.Context, id int64, userID uuid.UUID) error {
	query := `
		INSERT INTO community_members (community_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (community_id, user_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("ошибка вступления в сообщество: %w", err)
	}
	return nil
}

// Leave удаляет участника. Если его не было — не ошибка.
func (r *Repository) Leave(ctx context.Context, id int64, userID uuid.UUID) error {
	query := `DELETE FROM community_members WHERE community_id = $1 AND user_id = $2`
	if _, err := r.db.Exec(ctx, query, id, userID); err != nil {
		return fmt.Errorf("ошибка выхода из сообщества: %w", err)
	}
	return nil
}

// Members возвращает участников, самых опытных первыми.
func (r *Repository) Members(ctx context.Context, id int64) ([]*Member, error) {
	query := `
		SELECT u.id, u.username, u.level, u.experience, cm.joined_at
		FROM community_members cm
		JOIN users u ON cm.user_id = u.id
		WHERE cm.community_id = $1
		ORDER BY u.experience DESC, cm.joined_at
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса участников: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Level, &m.Experience, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// ForUser возвращает сообщества, в которых состоит пользователь.
func (r *Repository) ForUser(ctx context.Context, userID uuid.UUID) ([]*Community, error) {
	query := communitySelect + `
		JOIN community_members me ON me.community_id = c.id
		WHERE me.user_id = $1
		ORDER BY me.joined_at DESC
	`
	return r.queryCommunities(ctx, query, userID)
}

func (r *Repository) queryCommunities(ctx context.Context, query string, args ...interface{}) ([]*Community, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса сообществ: %w", err)
	}
	defer rows.Close()

	var out []*Community
	for rows.Next() {
		var c Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Category, &c.CreatorID, &c.CreatedAt, &c.MembersCount); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}
