// Package identity keeps the SDK configuration and the local user identity:
// API key, debug flag, a stable generated user id and optional profile fields.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/c360studio/feddy/storage"
)

// SDKVersion is reported in State and stamped on outbound submissions.
const SDKVersion = "1.0.0"

// DefaultBaseURL is the service root reported by Config.
const DefaultBaseURL = "https://feddy.app"

// Persisted keys.
const (
	keyAPIKey    = "apiKey"
	keyDebug     = "debug"
	keyUserID    = "userId"
	keyUserEmail = "userEmail"
	keyUserName  = "userName"
)

var (
	// ErrEmptyAPIKey is returned by Configure for a blank key.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")

	// ErrNotConfigured is returned by profile mutations before Configure.
	ErrNotConfigured = errors.New("identity not configured")
)

// User is the local viewer. Empty Email or Name means unset.
type User struct {
	ID    string `json:"userId" yaml:"userId"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Settings is the persisted SDK configuration.
type Settings struct {
	APIKey       string
	BaseURL      string
	DebugLogging bool
}

// State summarises the store for display.
type State struct {
	APIKey     string
	BaseURL    string
	Configured bool
	SDKVersion string
	User       User
}

// UserUpdate is a partial profile change. Nil fields are left alone.
// An empty ID regenerates the user id; an empty Email or Name clears it.
type UserUpdate struct {
	ID    *string
	Email *string
	Name  *string
}

// Store persists identity through a storage.Backend.
type Store struct {
	backend storage.Backend
	baseURL string
	logger  *slog.Logger
	newID   func() string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL sets the base URL reported by Config and State.
func WithBaseURL(u string) Option {
	return func(s *Store) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIDGenerator replaces the UUID generator used for new user ids. A
// generator returning "" leaves the user without an id.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore creates a Store over backend.
func NewStore(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure stores the API key and debug flag and ensures a user id exists.
func (s *Store) Configure(ctx context.Context, apiKey string, debug bool) (State, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		s.logger.Warn("Configuration failed: API key cannot be empty")
		return State{}, ErrEmptyAPIKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, keyAPIKey, apiKey); err != nil {
		return State{}, fmt.Errorf("store API key: %w", err)
	}
	if err := s.backend.Set(ctx, keyDebug, strconv.FormatBool(debug)); err != nil {
		return State{}, fmt.Errorf("store debug flag: %w", err)
	}
	if _, err := s.ensureUserID(ctx); err != nil {
		return State{}, err
	}

	if debug {
		s.logger.Info("SDK configured", "api_key_prefix", keyPrefix(apiKey))
	}

	return s.state(ctx)
}

// Config returns the stored settings. The API key is empty before Configure.
func (s *Store) Config(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apiKey, err := s.get(ctx, keyAPIKey)
	if err != nil {
		return Settings{}, err
	}
	debug, err := s.get(ctx, keyDebug)
	if err != nil {
		return Settings{}, err
	}
	enabled, _ := strconv.ParseBool(debug)

	return Settings{
		APIKey:       apiKey,
		BaseURL:      s.baseURL,
		DebugLogging: enabled,
	}, nil
}

// State returns the configuration state and current user.
func (s *Store) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state(ctx)
}

// User returns the current user, generating and persisting an id if absent.
func (s *Store) User(ctx context.Context) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(ctx)
}

// UpdateUser applies a partial profile change.
func (s *Store) UpdateUser(ctx context.Context, update UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured, err := s.configured(ctx)
	if err != nil {
		return User{}, err
	}
	if !configured {
		s.logger.Warn("Attempted to update user before configure was called")
		return User{}, ErrNotConfigured
	}

	if update.ID != nil {
		id := strings.TrimSpace(*update.ID)
		if id == "" {
			id = s.newID()
		}
		if err := s.backend.Set(ctx, keyUserID, id); err != nil {
			return User{}, fmt.Errorf("store user id: %w", err)
		}
	}
	if update.Email != nil {
		if err := s.setOrDelete(ctx, keyUserEmail, strings.TrimSpace(*update.Email)); err != nil {
			return User{}, fmt.Errorf("store user email: %w", err)
		}
	}
	if update.Name != nil {
		if err := s.setOrDelete(ctx, keyUserName, strings.TrimSpace(*update.Name)); err != nil {
			return User{}, fmt.Errorf("store user name: %w", err)
		}
	}

	return s.user(ctx)
}

// Reset clears the profile and assigns a fresh user id.
func (s *Store) Reset(ctx context.Context) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	configured, err := s.configured(ctx)
	if err != nil {
		return User{}, err
	}
	if !configured {
		s.logger.Warn("Attempted to reset user data before configure was called")
		return User{}, ErrNotConfigured
	}

	for _, key := range []string{keyUserID, keyUserEmail, keyUserName} {
		if err := s.backend.Delete(ctx, key); err != nil {
			return User{}, fmt.Errorf("clear %s: %w", key, err)
		}
	}

	return s.user(ctx)
}

// HasPersistentUserData reports whether any of user id, email or name is stored.
func (s *Store) HasPersistentUserData(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{keyUserID, keyUserEmail, keyUserName} {
		v, err := s.get(ctx, key)
		if err != nil {
			return false, err
		}
		if v != "" {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) state(ctx context.Context) (State, error) {
	apiKey, err := s.get(ctx, keyAPIKey)
	if err != nil {
		return State{}, err
	}
	user, err := s.user(ctx)
	if err != nil {
		return State{}, err
	}
	return State{
		APIKey:     apiKey,
		BaseURL:    s.baseURL,
		Configured: apiKey != "",
		SDKVersion: SDKVersion,
		User:       user,
	}, nil
}

func (s *Store) user(ctx context.Context) (User, error) {
	id, err := s.ensureUserID(ctx)
	if err != nil {
		return User{}, err
	}
	email, err := s.get(ctx, keyUserEmail)
	if err != nil {
		return User{}, err
	}
	name, err := s.get(ctx, keyUserName)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: email, Name: name}, nil
}

func (s *Store) ensureUserID(ctx context.Context) (string, error) {
	current, err := s.get(ctx, keyUserID)
	if err != nil {
		return "", err
	}
	if current != "" {
		return current, nil
	}

	generated := s.newID()
	if generated == "" {
		return "", nil
	}
	if err := s.backend.Set(ctx, keyUserID, generated); err != nil {
		return "", fmt.Errorf("store user id: %w", err)
	}
	s.logger.Debug("Generated user id", "user_id", generated)
	return generated, nil
}

func (s *Store) configured(ctx context.Context) (bool, error) {
	apiKey, err := s.get(ctx, keyAPIKey)
	if err != nil {
		return false, err
	}
	return apiKey != "", nil
}

// get returns "" for absent keys.
func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) setOrDelete(ctx context.Context, key, value string) error {
	if value == "" {
		return s.backend.Delete(ctx, key)
	}
	return s.backend.Set(ctx, key, value)
}

func keyPrefix(apiKey string) string {
	if len(apiKey) >= 8 {
		return apiKey[:8]
	}
	return apiKey
}
