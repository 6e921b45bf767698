package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	AnonymousClientKey = "anonymous"

	// MaxClientKeyLength bounds what the stores ever see. Longer keys and
	// keys that are not printable UTF-8 are replaced by a digest.
	MaxClientKeyLength = 128
	hashedKeyPrefix    = "sha256:"

	DefaultThreshold     int64 = 5
	DefaultWindow              = 10 * time.Second
	DefaultBlockDuration       = 24 * time.Hour
)

type FailurePolicy string

const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
)

var (
	ErrInvalidThreshold     = errors.New("threshold must be greater than zero")
	ErrInvalidWindow        = errors.New("window must be greater than zero")
	ErrInvalidBlockDuration = errors.New("block duration must be greater than zero")
	ErrInvalidFailurePolicy = errors.New("failure policy must be 'open' or 'closed'")
)

// Policy holds the admission thresholds for one protected resource.
type Policy struct {
	Threshold     int64
	Window        time.Duration
	BlockDuration time.Duration
	FailurePolicy FailurePolicy
}

func DefaultPolicy() Policy {
	return Policy{
		Threshold:     DefaultThreshold,
		Window:        DefaultWindow,
		BlockDuration: DefaultBlockDuration,
		FailurePolicy: FailOpen,
	}
}

func (p Policy) Validate() error {
	if p.Threshold <= 0 {
		return ErrInvalidThreshold
	}
	if p.Window <= 0 {
		return ErrInvalidWindow
	}
	if p.BlockDuration <= 0 {
		return ErrInvalidBlockDuration
	}
	switch p.FailurePolicy {
	case FailOpen, FailClosed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFailurePolicy, p.FailurePolicy)
	}
	return nil
}

// RetryAfterHours rounds the block duration up to whole hours for client messages.
func (p Policy) RetryAfterHours() int {
	return int(math.Ceil(p.BlockDuration.Hours()))
}

// NormalizeClientKey maps a missing key onto the shared anonymous bucket and
// any key a store could reject onto a fixed-length digest of itself.
func NormalizeClientKey(clientKey string) string {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		return AnonymousClientKey
	}
	if len(key) > MaxClientKeyLength || !printable(key) {
		sum := sha256.Sum256([]byte(key))
		return hashedKeyPrefix + hex.EncodeToString(sum[:])
	}
	return key
}

func printable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
