package tokenstore

import (
	"context"
	"sync/atomic"
)

// Memory keeps the session in process memory. It is the default store and
// the fake used by tests.
type Memory struct {
	cur atomic.Pointer[Session]
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Read(_ context.Context) (Session, bool) {
	s := m.cur.Load()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

func (m *Memory) Write(_ context.Context, s Session) error {
	if !s.Complete() {
		return ErrIncompleteSession
	}
	m.cur.Store(&s)
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.cur.Store(nil)
	return nil
}
