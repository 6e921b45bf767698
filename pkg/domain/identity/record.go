package identity

import (
	"fmt"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain"
)

const EntityType = "ephemeral_identity"

type Kind string

const (
	KindGuest            Kind = "guest"
	KindVerificationCode Kind = "verification_code"
)

func (k Kind) Valid() bool {
	return k == KindGuest || k == KindVerificationCode
}

// Record is a short-lived credential. It is logically gone once now >= ExpireAt,
// whether or not a sweep has removed it yet.
type Record struct {
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"`
	Payload   string    `json:"-"`
	ExpireAt  time.Time `json:"expire_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Record) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpireAt)
}

func (r *Record) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidIdentity, r.Kind)
	}
	if r.Key == "" {
		return fmt.Errorf("%w: key is required", domain.ErrInvalidIdentity)
	}
	if r.ExpireAt.IsZero() {
		return fmt.Errorf("%w: expire_at is required", domain.ErrInvalidIdentity)
	}
	return nil
}
