package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/listing-conversations/pkg/log"
)

// Store — репозиторий состояния одного зрителя.
// Безопасен для конкурентного использования.
type Store struct {
	mu    sync.RWMutex
	state State
}

// New создаёт пустой репозиторий.
func New() *Store {
	return &Store{}
}

// Dispatch применяет команду. При ошибке состояние не меняется.
func (s *Store) Dispatch(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Reduce(s.state, cmd)
	if err != nil {
		return err
	}

	s.state = next

	return nil
}

// Snapshot возвращает текущее состояние. Снимок не меняется последующими командами.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// Select делает переписку активной и возвращает номер поколения,
// с которым должен прийти ответ на загрузку её сообщений.
func (s *Store) Select(threadID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Reduce(s.state, ThreadSelected{ThreadID: threadID})
	if err != nil {
		return 0, err
	}

	s.state = next

	return next.Generation, nil
}

// Registry выдаёт репозиторий каждому зрителю и забывает простаивающие.
type Registry struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*registryEntry
	now    func() time.Time
}

type registryEntry struct {
	st       *Store
	lastSeen time.Time
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[uuid.UUID]*registryEntry), now: time.Now}
}

// For возвращает репозиторий зрителя, создавая его при первом обращении.
func (r *Registry) For(viewer uuid.UUID) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.stores[viewer]
	if !ok {
		e = &registryEntry{st: New()}
		r.stores[viewer] = e
	}
	e.lastSeen = r.now()

	return e.st
}

// Sweep удаляет репозитории, к которым не обращались дольше idle, и возвращает их число.
// Следующее обращение зрителя начнётся с пустого состояния и перезагрузит его с бэкенда.
func (r *Registry) Sweep(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	n := 0
	for viewer, e := range r.stores {
		if e.lastSeen.Before(cutoff) {
			delete(r.stores, viewer)
			n++
		}
	}

	return n
}

// Run вызывает Sweep каждые every, пока не отменён ctx.
func (r *Registry) Run(ctx context.Context, every, idle time.Duration) {
	if every <= 0 || idle <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				log.From(ctx).Debug("viewer stores evicted", "count", n)
			}
		}
	}
}

// Len — число зрителей с репозиторием.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.stores)
}
