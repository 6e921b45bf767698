package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/inkpress/gatekeeper/pkg/infra/jwt"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	GuestPrefix     = "guest_"
	DefaultGuestTTL = 24 * time.Hour
)

// Guest is returned once at issue time with its clear-text password and token.
// Lookups never carry either.
type Guest struct {
	Username string    `json:"username"`
	Password string    `json:"password,omitempty"`
	Role     string    `json:"role"`
	Token    string    `json:"token,omitempty"`
	ExpireAt time.Time `json:"expire_at"`
}

type guestPayload struct {
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
}

//go:generate mockery --name=GuestService --dir=. --output=./mocks --filename=guest_service_mock.go --case=underscore --with-expecter
type GuestService interface {
	Issue(ctx context.Context) (*Guest, error)
	Lookup(ctx context.Context, username string) (*Guest, error)
	Authenticate(ctx context.Context, username, password string) (*Guest, error)
}

type GuestOption func(*guestService)

func WithGuestTimeProvider(now func() time.Time) GuestOption {
	return func(s *guestService) {
		s.timeProvider = now
	}
}

// WithPasswordCost lowers the bcrypt cost, mainly for tests.
func WithPasswordCost(cost int) GuestOption {
	return func(s *guestService) {
		s.passwordCost = cost
	}
}

type guestService struct {
	logger       *logrus.Logger
	repo         identity.Repository
	tokens       jwt.Manager
	ttl          time.Duration
	passwordCost int
	timeProvider func() time.Time
}

func NewGuestService(
	logger *logrus.Logger,
	repo identity.Repository,
	tokens jwt.Manager,
	ttl time.Duration,
	opts ...GuestOption,
) GuestService {
	if ttl <= 0 {
		ttl = DefaultGuestTTL
	}
	s := &guestService{
		logger:       logger,
		repo:         repo,
		tokens:       tokens,
		ttl:          ttl,
		passwordCost: bcrypt.DefaultCost,
		timeProvider: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *guestService) Issue(ctx context.Context) (*Guest, error) {
	now := s.timeProvider()
	username := GuestPrefix + uuid.NewString()

	password, err := randomPassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate guest password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash guest password: %w", err)
	}
	payload, err := json.Marshal(guestPayload{PasswordHash: string(hash), Role: jwt.RoleVisitor})
	if err != nil {
		return nil, err
	}

	expireAt := now.Add(s.ttl)
	rec := &identity.Record{
		Kind:      identity.KindGuest,
		Key:       username,
		Payload:   string(payload),
		ExpireAt:  expireAt,
		CreatedAt: now,
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save guest: %w", err)
	}

	token, err := s.tokens.CreateToken(username, jwt.RoleVisitor, expireAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign guest token: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"username":  username,
		"expire_at": expireAt.Format(time.RFC3339),
	}).Info("guest issued")

	return &Guest{
		Username: username,
		Password: password,
		Role:     jwt.RoleVisitor,
		Token:    token,
		ExpireAt: expireAt,
	}, nil
}

func (s *guestService) Lookup(ctx context.Context, username string) (*Guest, error) {
	guest, _, err := s.load(ctx, username)
	return guest, err
}

func (s *guestService) Authenticate(ctx context.Context, username, password string) (*Guest, error) {
	guest, payload, err := s.load(ctx, username)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(payload.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return guest, nil
}

func (s *guestService) load(ctx context.Context, username string) (*Guest, *guestPayload, error) {
	if !strings.HasPrefix(username, GuestPrefix) {
		return nil, nil, domain.NewNotFoundError(identity.EntityType, username)
	}
	rec, err := s.repo.Get(ctx, identity.KindGuest, username, s.timeProvider())
	if err != nil {
		return nil, nil, err
	}
	var payload guestPayload
	if err := json.Unmarshal([]byte(rec.Payload), &payload); err != nil {
		return nil, nil, fmt.Errorf("corrupt guest payload for %s: %w", username, err)
	}
	return &Guest{
		Username: rec.Key,
		Role:     payload.Role,
		ExpireAt: rec.ExpireAt,
	}, &payload, nil
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
