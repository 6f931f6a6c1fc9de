// Package habits — memory.go хранит состояния в памяти процесса.
// Используется в тестах и при STORAGE_DRIVER=memory.
package habits

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressSink получает уровень и опыт после каждого сохранения.
// В памяти так обновляются users.level/experience.
type ProgressSink func(ctx context.Context, userID uuid.UUID, level int, xp int64) error

// MemoryRepository — реализация Store в памяти.
type MemoryRepository struct {
	mu     sync.Mutex
	states map[uuid.UUID][]byte
	ledger map[uuid.UUID][]*XPEntry
	nextID int64
	sink   ProgressSink
	now    func() time.Time
}

// NewMemoryRepository создаёт хранилище в памяти. sink может быть nil.
func NewMemoryRepository(sink ProgressSink) *MemoryRepository {
	return &MemoryRepository{
		states: make(map[uuid.UUID][]byte),
		ledger: make(map[uuid.UUID][]*XPEntry),
		sink:   sink,
		now:    time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, userID uuid.UUID, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[userID]; !ok {
		r.states[userID] = append([]byte(nil), raw...)
	}
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, userID uuid.UUID) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return append([]byte(nil), raw...), nil
}

// Mutate держит мьютекс на всё время fn — аналог FOR UPDATE.
func (r *MemoryRepository) Mutate(ctx context.Context, userID uuid.UUID, fn MutateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.states[userID]
	if !ok {
		return ErrStateNotFound
	}
	w, err := fn(append([]byte(nil), raw...))
	if err != nil || w == nil {
		return err
	}

	if r.sink != nil {
		if err := r.sink(ctx, userID, w.Level, w.XP); err != nil {
			return err
		}
	}
	r.states[userID] = append([]byte(nil), w.Raw...)

	for _, a := range w.Awards {
		if r.hasEntry(userID, a) {
			continue
		}
		r.nextID++
		r.ledger[userID] = append(r.ledger[userID], &XPEntry{
			ID:          r.nextID,
			HabitID:     a.HabitID,
			CompletedOn: a.Date,
			Amount:      a.Amount,
			Reason:      XPReasonCompletion,
			CreatedAt:   r.now(),
		})
	}
	return nil
}

func (r *MemoryRepository) hasEntry(userID uuid.UUID, a Award) bool {
	for _, e := range r.ledger[userID] {
		if e.HabitID == a.HabitID && e.CompletedOn == a.Date {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) UserIDs(context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uuid.UUID, 0, len(r.states))
	for id := range r.states {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (r *MemoryRepository) XPHistory(_ context.Context, userID uuid.UUID, limit int) ([]*XPEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.ledger[userID]
	out := make([]*XPEntry, 0, len(entries))
	// Новые первыми
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := *entries[i]
		out = append(out, &e)
	}
	return out, nil
}
