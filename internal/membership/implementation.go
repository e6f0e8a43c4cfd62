// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"libradoc/internal/apperror"
	"libradoc/internal/paging"
)

// DefaultAuthRatePerMinute is the default register/authenticate budget.
const DefaultAuthRatePerMinute = 60

// Logger is the logging surface the membership service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option configures the membership service.
type Option func(*service)

// WithRateLimit allows perMinute register and authenticate calls per minute,
// bursting up to the same amount. Zero disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(s *service) {
		s.rateLimiter = newLimiter(perMinute)
	}
}

func WithLogger(logger Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// service implements the Service interface.
type service struct {
	repo        *Repository
	rentals     RentalLookup
	rateLimiter *rate.Limiter
	logger      Logger
}

// NewService creates a new membership service instance.
func NewService(repo *Repository, rentals RentalLookup, opts ...Option) Service {
	s := &service{
		repo:        repo,
		rentals:     rentals,
		rateLimiter: newLimiter(DefaultAuthRatePerMinute),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func (s *service) allow(op string) error {
	if !s.rateLimiter.Allow() {
		s.logger.Warn("rate limit exceeded", "operation", op)
		return apperror.New(apperror.KindRateLimited, "auth.rate_limited", "too many %s attempts, try again later", op)
	}
	return nil
}

// Register creates a USER account.
func (s *service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := s.allow("register"); err != nil {
		return nil, err
	}
	if err := validateRegistration(username, email, password); err != nil {
		return nil, err
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(username),
		PasswordHash: passwordHash,
		Email:        strings.TrimSpace(email),
		Role:         RoleUser,
	}
	if err := s.insert(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "user_id", user.ID, "username", user.Username)
	return &user, nil
}

// insert appends user unless its username or email is taken.
func (s *service) insert(ctx context.Context, user User) error {
	return s.repo.Mutate(ctx, func(users []User) ([]User, error) {
		if err := checkUnique(users, user); err != nil {
			return nil, err
		}
		return append(users, user), nil
	})
}

// checkUnique compares candidate against every other account.
func checkUnique(users []User, candidate User) error {
	for _, u := range users {
		if u.ID == candidate.ID {
			continue
		}
		if sameFold(u.Username, candidate.Username) {
			return apperror.New(apperror.KindDuplicateAccount, "username.taken", "username %q is already taken", candidate.Username)
		}
		if sameFold(u.Email, candidate.Email) {
			return apperror.New(apperror.KindDuplicateAccount, "email.taken", "email %q is already registered", candidate.Email)
		}
	}
	return nil
}

// Authenticate verifies an account's credentials and returns the account if successful.
func (s *service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	if err := s.allow("authenticate"); err != nil {
		return nil, err
	}

	user, ok := s.repo.FindByUsername(ctx, username)
	if !ok {
		return nil, invalidCredentials()
	}

	ok, err := verifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, invalidCredentials()
	}
	if !ok {
		return nil, invalidCredentials()
	}

	return &user, nil
}

func invalidCredentials() error {
	return apperror.New(apperror.KindInvalidCredentials, "credentials.invalid", "invalid username or password")
}

// GetUser retrieves an account by its ID.
func (s *service) GetUser(ctx context.Context, id string) (*User, error) {
	user, ok := s.repo.FindByID(ctx, id)
	if !ok {
		return nil, userNotFound(id)
	}
	return &user, nil
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.FindAll(ctx), nil
}

func (s *service) ListUsersPage(ctx context.Context, page, size int) (paging.Page[User], error) {
	return paging.Paginate(s.repo.FindAll(ctx), page, size)
}

// UpdateUser changes the profile of an account.
func (s *service) UpdateUser(ctx context.Context, id, username, email, password string) (*User, error) {
	if err := validateUpdate(username, email, password); err != nil {
		return nil, err
	}

	var passwordHash string
	if password != "" {
		var err error
		if passwordHash, err = hashPassword(password); err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	return s.modify(ctx, id, func(u *User) error {
		u.Username = strings.TrimSpace(username)
		u.Email = strings.TrimSpace(email)
		if passwordHash != "" {
			u.PasswordHash = passwordHash
			u.MustChangePassword = false
		}
		return nil
	})
}

// Promote grants the ADMIN role.
func (s *service) Promote(ctx context.Context, id string) (*User, error) {
	user, err := s.modify(ctx, id, func(u *User) error {
		u.Role = RoleAdmin
		return nil
	})
	if err == nil {
		s.logger.Info("account promoted", "user_id", id)
	}
	return user, err
}

// Demote revokes the ADMIN role. Protected accounts keep it.
func (s *service) Demote(ctx context.Context, id string) (*User, error) {
	user, err := s.modify(ctx, id, func(u *User) error {
		if u.Protected {
			return apperror.New(apperror.KindConflictingState, "account.protected", "account %s is protected and cannot be demoted", id)
		}
		u.Role = RoleUser
		return nil
	})
	if err == nil {
		s.logger.Info("account demoted", "user_id", id)
	}
	return user, err
}

// modify applies change to the account with id and re-checks uniqueness.
func (s *service) modify(ctx context.Context, id string, change func(*User) error) (*User, error) {
	var updated User
	err := s.repo.Mutate(ctx, func(users []User) ([]User, error) {
		idx := slices.IndexFunc(users, func(u User) bool { return u.ID == id })
		if idx < 0 {
			return nil, userNotFound(id)
		}

		candidate := users[idx]
		if err := change(&candidate); err != nil {
			return nil, err
		}
		if err := checkUnique(users, candidate); err != nil {
			return nil, err
		}

		users[idx] = candidate
		updated = candidate
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an account that is not protected and holds no books. The
// rental check and the removal run as one step against rent and return, so
// no rental can start for the account in between.
func (s *service) Delete(ctx context.Context, id string) error {
	if _, ok := s.repo.FindByID(ctx, id); !ok {
		return userNotFound(id)
	}

	err := s.rentals.Exclusive(ctx, func(ctx context.Context) error {
		active, err := s.rentals.HasActiveRentals(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check rentals: %w", err)
		}
		if active {
			return apperror.New(apperror.KindConflictingState, "account.active_rentals",
				"account %s still has active rentals and must return all books first", id)
		}

		return s.repo.Mutate(ctx, func(users []User) ([]User, error) {
			idx := slices.IndexFunc(users, func(u User) bool { return u.ID == id })
			if idx < 0 {
				return nil, userNotFound(id)
			}
			if users[idx].Protected {
				return nil, apperror.New(apperror.KindConflictingState, "account.protected", "account %s is protected and cannot be deleted", id)
			}
			return slices.Delete(users, idx, idx+1), nil
		})
	})
	if err != nil {
		return err
	}

	s.logger.Info("account deleted", "user_id", id)
	return nil
}

// EnsureAdmin seeds the bootstrap administrator.
func (s *service) EnsureAdmin(ctx context.Context, username, email, password string) (*User, bool, error) {
	if existing, ok := s.repo.FindByUsername(ctx, username); ok {
		return &existing, false, nil
	}
	if err := validateRegistration(username, email, password); err != nil {
		return nil, false, err
	}

	passwordHash, err := hashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := User{
		ID:                 uuid.NewString(),
		Username:           strings.TrimSpace(username),
		PasswordHash:       passwordHash,
		Email:              strings.TrimSpace(email),
		Role:               RoleAdmin,
		Protected:          true,
		MustChangePassword: true,
	}
	if err := s.insert(ctx, admin); err != nil {
		return nil, false, err
	}

	s.logger.Info("bootstrap admin created", "user_id", admin.ID, "username", admin.Username)
	return &admin, true, nil
}

func userNotFound(id string) error {
	return apperror.New(apperror.KindNotFound, "account.not_found", "account %s not found", id)
}
