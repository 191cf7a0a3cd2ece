package store

import (
	"context"
	"sync"
	"time"

	"chemviz-client-go/internal/domain/auth/model"
)

type memoryStore struct {
	namespace string
	mutex     sync.RWMutex
	creds     model.Credentials
	writes    int
}

// NewMemory builds a process-local session store.
func NewMemory(cfg Config) Store {
	return &memoryStore{namespace: namespaceOf(cfg)}
}

func (s *memoryStore) Load(_ context.Context) (model.Credentials, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.creds, nil
}

func (s *memoryStore) Save(_ context.Context, creds model.Credentials) error {
	creds.UpdatedAt = time.Now()
	s.mutex.Lock()
	s.creds = creds
	s.writes++
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) SaveAccessToken(_ context.Context, access string) error {
	s.mutex.Lock()
	s.creds.AccessToken = access
	s.creds.UpdatedAt = time.Now()
	s.writes++
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Clear(_ context.Context) error {
	s.mutex.Lock()
	s.creds = model.Credentials{}
	s.writes++
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return map[string]any{
		"type":          "memory",
		"namespace":     s.namespace,
		"authenticated": s.creds.AccessToken != "",
		"writes":        s.writes,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
