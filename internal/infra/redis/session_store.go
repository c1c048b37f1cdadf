package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pizza-order-bot/internal/domain/model"
	"pizza-order-bot/internal/domain/ports/repository"
)

var _ repository.SessionStore = (*SessionStore)(nil)

// SessionStore keeps the state tag under "<channel>:<user>" and the auxiliary
// fields in the hash "<channel>:<user>:fields". Both keys share one TTL.
type SessionStore struct {
	client *redClient
	ttl    time.Duration
}

func NewSessionStore(client *redClient, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) stateKey(k model.SessionKey) string  { return k.String() }
func (s *SessionStore) fieldsKey(k model.SessionKey) string { return k.String() + ":fields" }

func (s *SessionStore) Get(ctx context.Context, key model.SessionKey) (model.State, bool, error) {
	v, err := s.client.Get(ctx, s.stateKey(key))
	if isNil(err) {
		return model.StateStart, false, nil
	}
	if err != nil {
		return model.StateStart, false, fmt.Errorf("get state: %w", err)
	}
	return model.ParseState(v), true, nil
}

func (s *SessionStore) Set(ctx context.Context, key model.SessionKey, state model.State) error {
	if err := s.client.Set(ctx, s.stateKey(key), string(state), s.ttl); err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}

func (s *SessionStore) GetField(ctx context.Context, key model.SessionKey, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.fieldsKey(key), field)
	if isNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get field %s: %w", field, err)
	}
	return v, true, nil
}

func (s *SessionStore) SetField(ctx context.Context, key model.SessionKey, field, value string) error {
	fk := s.fieldsKey(key)
	_, err := s.client.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, fk, field, value)
		p.Expire(ctx, fk, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set field %s: %w", field, err)
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, key model.SessionKey) (*model.Session, error) {
	var (
		stateCmd  *redis.StringCmd
		fieldsCmd *redis.StringStringMapCmd
	)
	_, err := s.client.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		stateCmd = p.Get(ctx, s.stateKey(key))
		fieldsCmd = p.HGetAll(ctx, s.fieldsKey(key))
		return nil
	})
	if err != nil && !isNil(err) {
		return nil, fmt.Errorf("load session: %w", err)
	}
	state, err := stateCmd.Result()
	if isNil(err) {
		state = ""
	} else if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	fields, err := fieldsCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	return model.SessionFromFields(key, state, fields), nil
}

// Save replaces the state and the whole field set atomically.
func (s *SessionStore) Save(ctx context.Context, sess *model.Session) error {
	sk, fk := s.stateKey(sess.Key), s.fieldsKey(sess.Key)
	fields := sess.Fields()
	_, err := s.client.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, sk, string(sess.State), s.ttl)
		p.Del(ctx, fk)
		if len(fields) > 0 {
			p.HSet(ctx, fk, toArgs(fields))
			p.Expire(ctx, fk, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key model.SessionKey) error {
	return s.client.Del(ctx, s.stateKey(key), s.fieldsKey(key))
}
