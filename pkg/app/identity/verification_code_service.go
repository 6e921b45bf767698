package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/sirupsen/logrus"
)

const (
	DefaultVerificationCodeTTL = 5 * time.Minute
	codeDigits                 = 6
	attemptKeyPrefix           = "verify:"
)

var codeSpace = big.NewInt(1_000_000)

type VerificationCode struct {
	Recipient string    `json:"recipient"`
	Code      string    `json:"code"`
	ExpireAt  time.Time `json:"expire_at"`
}

//go:generate mockery --name=VerificationCodeService --dir=. --output=./mocks --filename=verification_code_service_mock.go --case=underscore --with-expecter
type VerificationCodeService interface {
	// Generate replaces any outstanding code for the recipient.
	Generate(ctx context.Context, recipient string) (*VerificationCode, error)
	// Validate accepts a code at most once.
	Validate(ctx context.Context, recipient, code string) error
	Revoke(ctx context.Context, recipient string) error
}

type CodeOption func(*verificationCodeService)

func WithCodeTimeProvider(now func() time.Time) CodeOption {
	return func(s *verificationCodeService) {
		s.timeProvider = now
	}
}

func WithCodeGenerator(gen func() (string, error)) CodeOption {
	return func(s *verificationCodeService) {
		s.generate = gen
	}
}

// WithAttemptLimiter counts failed validations per recipient. Once attempts
// blocks the recipient, the outstanding code is revoked and Validate returns
// ErrTooManyAttempts until the block lapses.
func WithAttemptLimiter(attempts appRatelimit.Limiter) CodeOption {
	return func(s *verificationCodeService) {
		s.attempts = attempts
	}
}

type verificationCodeService struct {
	logger       *logrus.Logger
	repo         identity.Repository
	attempts     appRatelimit.Limiter
	ttl          time.Duration
	generate     func() (string, error)
	timeProvider func() time.Time
}

func NewVerificationCodeService(
	logger *logrus.Logger,
	repo identity.Repository,
	ttl time.Duration,
	opts ...CodeOption,
) VerificationCodeService {
	if ttl <= 0 {
		ttl = DefaultVerificationCodeTTL
	}
	s := &verificationCodeService{
		logger:       logger,
		repo:         repo,
		ttl:          ttl,
		generate:     randomCode,
		timeProvider: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *verificationCodeService) Generate(ctx context.Context, recipient string) (*VerificationCode, error) {
	recipient, err := normalizeRecipient(recipient)
	if err != nil {
		return nil, err
	}
	code, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}

	now := s.timeProvider()
	expireAt := now.Add(s.ttl)
	err = s.repo.Save(ctx, &identity.Record{
		Kind:      identity.KindVerificationCode,
		Key:       recipient,
		Payload:   digest(recipient, code),
		ExpireAt:  expireAt,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save verification code: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"recipient": recipient,
		"expire_at": expireAt.Format(time.RFC3339),
	}).Info("verification code generated")

	return &VerificationCode{Recipient: recipient, Code: code, ExpireAt: expireAt}, nil
}

func (s *verificationCodeService) Validate(ctx context.Context, recipient, code string) error {
	recipient, err := normalizeRecipient(recipient)
	if err != nil {
		return err
	}
	attemptKey := attemptKeyPrefix + recipient
	if s.attempts != nil && s.attempts.IsBlocked(ctx, attemptKey) {
		return ErrTooManyAttempts
	}

	ok := false
	if len(code) == codeDigits {
		ok, err = s.repo.Consume(ctx, identity.KindVerificationCode, recipient, digest(recipient, code), s.timeProvider())
		if err != nil {
			return fmt.Errorf("failed to consume verification code: %w", err)
		}
	}
	if ok {
		if s.attempts != nil {
			if err := s.attempts.Reset(ctx, attemptKey); err != nil && !domain.IsNotFoundError(err) {
				s.logger.WithError(err).WithField("recipient", recipient).Warn("failed to clear verification attempts")
			}
		}
		return nil
	}

	s.logger.WithField("recipient", recipient).Warn("verification code rejected")
	if s.attempts != nil && s.attempts.RecordRequest(ctx, attemptKey) {
		if err := s.repo.Delete(ctx, identity.KindVerificationCode, recipient); err != nil && !domain.IsNotFoundError(err) {
			s.logger.WithError(err).WithField("recipient", recipient).Warn("failed to revoke verification code")
		}
		s.logger.WithField("recipient", recipient).Warn("verification locked after repeated failures")
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

func (s *verificationCodeService) Revoke(ctx context.Context, recipient string) error {
	recipient, err := normalizeRecipient(recipient)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, identity.KindVerificationCode, recipient)
}

func normalizeRecipient(recipient string) (string, error) {
	recipient = strings.ToLower(strings.TrimSpace(recipient))
	if recipient == "" || len(recipient) > 254 {
		return "", ErrInvalidRecipient
	}
	for _, r := range recipient {
		if r == utf8.RuneError || !unicode.IsPrint(r) {
			return "", ErrInvalidRecipient
		}
	}
	return recipient, nil
}

func digest(recipient, code string) string {
	sum := sha256.Sum256([]byte(recipient + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
