package store

import (
	"context"
	"sync"

	"github.com/mossy-p/meet-signaling/internal/models"
)

// MemoryStore is the RoomStore used when no Redis host is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]models.RoomMetadata
	codes map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]models.RoomMetadata),
		codes: make(map[string]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, room *models.RoomMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = *room
	s.codes[room.Code] = room.ID
	return nil
}

func (s *MemoryStore) Resolve(_ context.Context, identifier string) (*models.RoomMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id := identifier
	if mapped, ok := s.codes[identifier]; ok {
		id = mapped
	}
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &room, nil
}

func (s *MemoryStore) Delete(_ context.Context, room *models.RoomMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room.ID)
	delete(s.codes, room.Code)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
