package repository

import (
	"context"
	"sync"

	"doc-verifier/internal/models"

	"github.com/google/uuid"
)

// MemorySessionRepository is the in-process snapshot store used when no
// database is configured.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]models.UploadSession
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[uuid.UUID]models.UploadSession)}
}

func (r *MemorySessionRepository) Save(_ context.Context, s models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.sessions[s.WidgetID]; ok && prev.UpdatedAt.After(s.UpdatedAt) {
		return nil
	}
	r.sessions[s.WidgetID] = s.Clone()
	return nil
}

func (r *MemorySessionRepository) Get(_ context.Context, widgetID uuid.UUID) (*models.UploadSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[widgetID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := s.Clone()
	return &out, nil
}
