// internal/accounts/implementation.go
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gymdesk/internal/cache"
)

// DefaultUserTTL is how long current-user lookups are served from cache.
const DefaultUserTTL = 5 * time.Minute

// Config tunes the accounts service.
type Config struct {
	UserTTL    time.Duration
	LoginLimit rate.Limit
	LoginBurst int
	Clock      func() time.Time
	// OnLogout runs after a user's own cache entry is dropped.
	OnLogout []func(id uuid.UUID)
}

// service implements the Service interface.
type service struct {
	store       Store
	users       *cache.Keyed[uuid.UUID, *User]
	log         *zap.Logger
	rateLimiter *rate.Limiter
	onLogout    []func(uuid.UUID)
	now         func() time.Time
}

// NewService creates a new accounts service instance.
func NewService(store Store, logger *zap.Logger, cfg Config) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = DefaultUserTTL
	}
	if cfg.LoginLimit == 0 {
		cfg.LoginLimit = rate.Every(time.Minute / 30)
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = 10
	}
	return &service{
		store: store,
		users: cache.NewKeyed[uuid.UUID, *User](cache.Options{
			Name:   "current_user",
			TTL:    cfg.UserTTL,
			Clock:  cfg.Clock,
			Logger: logger,
		}),
		log:         logger,
		rateLimiter: rate.NewLimiter(cfg.LoginLimit, cfg.LoginBurst),
		onLogout:    cfg.OnLogout,
		now:         cfg.Clock,
	}
}

// Register creates a new owner account.
func (s *service) Register(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	credential := &Credential{
		UserID:       user.ID,
		PasswordHash: passwordHash,
		Salt:         salt,
	}

	if err := s.store.CreateUser(ctx, user, credential); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("account registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate verifies an owner's credentials and returns the account if successful.
func (s *service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	credential, err := s.store.GetCredential(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, credential.Salt, credential.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUser returns an account through the current-user cache.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	snap := s.users.Get(ctx, id, false, func(ctx context.Context) (*User, error) {
		return s.store.GetUser(ctx, id)
	})
	if !snap.Populated {
		if snap.Err != nil {
			if errors.Is(snap.Err, ErrUserNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("failed to load user: %w", snap.Err)
		}
		// Another request is loading this user.
		user, err := s.store.GetUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		return user, nil
	}
	u := *snap.Data
	return &u, nil
}

// Logout forgets everything cached for the user.
func (s *service) Logout(id uuid.UUID) {
	s.users.Invalidate(id)
	for _, fn := range s.onLogout {
		fn(id)
	}
	s.log.Info("account signed out", zap.String("user_id", id.String()))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
