package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

type record struct {
	state  string
	fields map[string]string
}

// SessionStore keeps sessions in process memory. Used in dev mode and tests.
type SessionStore struct {
	mu sync.Mutex
	c  *cache.Cache
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{c: cache.New(ttl, 10*time.Minute)}
}

func (s *SessionStore) rec(key model.SessionKey) (*record, bool) {
	v, ok := s.c.Get(key.String())
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

func (s *SessionStore) Get(ctx context.Context, key model.SessionKey) (model.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rec(key)
	if !ok || r.state == "" {
		return model.StateStart, false, nil
	}
	return model.ParseState(r.state), true, nil
}

func (s *SessionStore) Set(ctx context.Context, key model.SessionKey, state model.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rec(key)
	if !ok {
		r = &record{fields: map[string]string{}}
	}
	r.state = string(state)
	s.c.Set(key.String(), r, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) GetField(ctx context.Context, key model.SessionKey, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rec(key)
	if !ok {
		return "", false, nil
	}
	v, ok := r.fields[field]
	return v, ok, nil
}

func (s *SessionStore) SetField(ctx context.Context, key model.SessionKey, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rec(key)
	if !ok {
		r = &record{fields: map[string]string{}}
	}
	r.fields[field] = value
	s.c.Set(key.String(), r, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) Load(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rec(key)
	if !ok {
		return model.NewSession(key), nil
	}
	return model.SessionFromFields(key, r.state, r.fields), nil
}

func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Set(sess.Key.String(), &record{state: string(sess.State), fields: sess.Fields()}, cache.DefaultExpiration)
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key model.SessionKey) error {
	s.c.Delete(key.String())
	return nil
}
