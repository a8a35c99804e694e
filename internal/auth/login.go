package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/spinta/internal/adapters/backend"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/internal/domain/validation"
	"github.com/okian/spinta/pkg/logger"
	"github.com/okian/spinta/pkg/metrics"
)

// Backend exchanges credentials for a session.
type Backend interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

var credentialMessages = map[string]string{
	"email/required":    "Email is required",
	"email/email":       "Invalid email address",
	"password/required": "Password is required",
	"password/min":      "Password must be at least 6 characters",
}

func credentialMessage(field, tag string) string {
	if m, ok := credentialMessages[field+"/"+tag]; ok {
		return m
	}
	return "Invalid value"
}

var validate = validation.New()

// LoginResult is a successful login.
type LoginResult struct {
	Session model.Session `json:"session"`
	Notice  string        `json:"notice"`
}

// Service logs the coach in and out.
type Service struct {
	backend Backend
	store   *Store
	log     logger.Logger
}

// NewService creates a Service.
func NewService(b Backend, store *Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{backend: b, store: store, log: log}
}

// Store returns the session store.
func (s *Service) Store() *Store { return s.store }

// Login validates the credentials, calls the backend and persists the
// session. Invalid credentials return validation.Errors without a request.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	creds := credentials{Email: strings.TrimSpace(email), Password: password}
	errs, err := validation.Collect(validate.Struct(creds), credentialMessage)
	if err != nil {
		return LoginResult{}, err
	}
	if len(errs) > 0 {
		metrics.RecordLogin("invalid")
		return LoginResult{}, errs
	}

	sess, err := s.backend.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		metrics.RecordLogin("failure")
		msg := DefaultFailureMessage
		var serr *backend.StatusError
		if errors.As(err, &serr) && serr.Detail != "" {
			msg = serr.Detail
		}
		s.log.Warn(ctx, "login failed", logger.String("email", creds.Email), logger.Error(err))
		return LoginResult{}, &LoginError{Message: msg, cause: err}
	}

	if err := s.store.Save(ctx, sess); err != nil {
		metrics.RecordLogin("failure")
		return LoginResult{}, fmt.Errorf("persist session: %w", err)
	}
	metrics.RecordLogin("success")
	s.log.Info(ctx, "coach logged in", logger.String("user_id", sess.User.ID))
	return LoginResult{Session: sess, Notice: WelcomeMessage(sess.User)}, nil
}

// WelcomeMessage is the notification shown after login.
func WelcomeMessage(u model.User) string {
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	return "Welcome, " + name + "!"
}

// Session returns the current session.
func (s *Service) Session(ctx context.Context) (model.Session, bool, error) {
	return s.store.Load(ctx)
}

// Logout clears the persisted session.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil {
		return err
	}
	s.log.Info(ctx, "coach logged out")
	return nil
}
