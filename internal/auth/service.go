package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Logger is the subset of the application logger the service uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Service implements registration, login and the user admin operations.
type Service struct {
	users  UserRepository
	secret string
	ttl    int
	logger Logger
}

// NewService creates a service that signs tokens with secret and gives
// them a lifetime of ttlMinutes.
func NewService(users UserRepository, secret string, ttlMinutes int) *Service {
	return &Service{users: users, secret: secret, ttl: ttlMinutes, logger: noopLogger{}}
}

// SetLogger sets the logger. A nil logger disables logging.
func (s *Service) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Register creates an active user. The username and email must be unused.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	user := &User{
		Name:     strings.TrimSpace(req.Name),
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		IsActive: true,
	}
	if err := validateProfile(user); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		VerifyPassword(password, dummyHash) //nolint:errcheck // timing only
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.logger.Warn("login failed", "username", username)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	token, err := GenerateAccessToken(user, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: token, TokenType: TokenType}, nil
}

// Authenticate resolves a bearer token to its active user.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", ErrTokenInvalid)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// List returns every user, active or not.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

// Get returns ErrUserNotFound for an unknown id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// Update applies a partial profile change.
func (s *Service) Update(ctx context.Context, id string, patch UserPatch) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Username != nil {
		user.Username = strings.TrimSpace(*patch.Username)
	}
	if patch.Email != nil {
		user.Email = strings.TrimSpace(*patch.Email)
	}
	if patch.IsActive != nil {
		user.IsActive = *patch.IsActive
	}
	if err := validateProfile(user); err != nil {
		return nil, err
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, id)
}

// Deactivate marks the user inactive. It is idempotent.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.users.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("user deactivated", "user_id", id)
	return nil
}

func validateProfile(u *User) error {
	if u.Name == "" || utf8.RuneCountInString(u.Name) > maxNameLength {
		return fmt.Errorf("%w: name must be 1-%d characters", ErrInvalid, maxNameLength)
	}
	if !IsValidUsername(u.Username) {
		return fmt.Errorf("%w: username may contain letters, digits, dot, hyphen and underscore", ErrInvalid)
	}
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalid)
	}
	return nil
}
