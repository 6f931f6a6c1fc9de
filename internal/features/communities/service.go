// Package communities — service.go содержит правила работы с сообществами.
package communities

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/habit-tracker/internal/common"
)

// Service управляет сообществами.
type Service struct {
	repo Store
}

// NewService создаёт сервис сообществ.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// List возвращает все сообщества с количеством участников.
func (s *Service) List(ctx context.Context) ([]*Community, error) {
	return s.repo.List(ctx)
}

// Create создаёт сообщество от имени пользователя.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, in Input) (*Community, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	c := &Community{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		CreatorID:   userID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"community_id": c.ID,
		"creator_id":   userID,
		"category":     c.Category,
	}).Info("Создано сообщество")
	return c, nil
}

// Join добавляет пользователя в сообщество. Повторный вызов ничего не меняет.
func (s *Service) Join(ctx context.Context, userID uuid.UUID, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Join(ctx, id, userID)
}

// Leave убирает пользователя из сообщества. Повторный вызов ничего не меняет.
func (s *Service) Leave(ctx context.Context, userID uuid.UUID, id int64) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Leave(ctx, id, userID)
}

// Delete удаляет сообщество. Разрешено только создателю.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.CreatorID != userID {
		log.WithFields(log.Fields{
			"community_id": id,
			"user_id":      userID,
		}).Info("deny: delete community by non-creator")
		return common.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.WithField("community_id", id).Info("Сообщество удалено")
	return nil
}

// Members возвращает участников, отсортированных по опыту.
func (s *Service) Members(ctx context.Context, id int64) ([]*Member, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, id)
}

// ForUser возвращает сообщества пользователя.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID) ([]*Community, error) {
	return s.repo.ForUser(ctx, userID)
}
