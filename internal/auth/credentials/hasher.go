package credentials

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost matches bcrypt.DefaultCost (10).
const DefaultCost = bcrypt.DefaultCost

// MaxPasswordBytes is bcrypt's input limit; longer inputs would be silently truncated.
const MaxPasswordBytes = 72

var (
	ErrHashing         = errors.New("credentials: hashing failed")
	ErrPasswordTooLong = errors.New("credentials: password exceeds 72 bytes")
	ErrInvalidCost     = errors.New("credentials: invalid bcrypt cost")
)

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. A zero cost selects DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	return &Hasher{cost: cost}, nil
}

// Hash returns a salted bcrypt digest. Two calls never return the same digest.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashing, err)
	}

	return string(bytes), nil
}

// Verify compares plaintext against digest. bcrypt compares in constant time.
func (h *Hasher) Verify(password string, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
