// Package auth keeps the coach session and performs login.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/spinta/internal/adapters/repository"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
)

// Keys under which the session is persisted.
const (
	KeyToken = "auth_token"
	KeyUser  = "user"
)

// Store persists the session in a KV.
type Store struct {
	kv  repository.KV
	log logger.Logger
}

// NewStore creates a Store over kv.
func NewStore(kv repository.KV, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{kv: kv, log: log}
}

// Save writes the user and then the token. The token marks a session as
// present, so a failed write removes both keys rather than leave a token
// paired with another coach's user.
func (s *Store) Save(ctx context.Context, sess model.Session) error {
	user, err := json.Marshal(sess.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyUser, string(user)); err != nil {
		s.discard(ctx)
		return fmt.Errorf("save user: %w", err)
	}
	if err := s.kv.Set(ctx, KeyToken, sess.Token); err != nil {
		s.discard(ctx)
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Store) discard(ctx context.Context) {
	if err := s.kv.Delete(ctx, KeyToken, KeyUser); err != nil {
		s.log.Warn(ctx, "partial session not removed", logger.Error(err))
	}
}

// Load returns the stored session. ok is false when no token is stored.
func (s *Store) Load(ctx context.Context) (model.Session, bool, error) {
	token, ok, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		return model.Session{}, false, fmt.Errorf("load token: %w", err)
	}
	if !ok || token == "" {
		return model.Session{}, false, nil
	}
	sess := model.Session{Token: token}
	raw, ok, err := s.kv.Get(ctx, KeyUser)
	if err != nil {
		return model.Session{}, false, fmt.Errorf("load user: %w", err)
	}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
			s.log.Warn(ctx, "stored user is unreadable", logger.Error(err))
		}
	}
	return sess, true, nil
}

// Token returns the stored bearer token, or "".
func (s *Store) Token(ctx context.Context) (string, error) {
	sess, ok, err := s.Load(ctx)
	if err != nil || !ok {
		return "", err
	}
	return sess.Token, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Headers returns the Authorization header when a token is stored and an
// empty header otherwise.
func (s *Store) Headers(ctx context.Context) http.Header {
	h := http.Header{}
	token, err := s.Token(ctx)
	if err != nil {
		s.log.Warn(ctx, "session unavailable", logger.Error(err))
		return h
	}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
