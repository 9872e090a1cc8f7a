package crypto

import "golang.org/x/crypto/bcrypt"

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher; cost outside bcrypt's valid range falls back
// to bcrypt.DefaultCost.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash hashes plaintext using bcrypt.
func (h Hasher) Hash(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), h.cost)
}

// Compare compares plaintext to a hashed secret.
func (h Hasher) Compare(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
