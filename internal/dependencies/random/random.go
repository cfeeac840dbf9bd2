package random

import (
	"crypto/rand"
	"math/big"
)

// PseudonymAlphabet is the 62-symbol alphabet pseudonym ids are drawn from.
const PseudonymAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Random provides the randomness behind pseudonym generation and admin
// selection. Implementations must be safe for concurrent use.
type Random interface {
	// Intn returns a random int in [0, n)
	Intn(n int) int

	// Alphanumeric returns a random string of the given length drawn
	// uniformly from PseudonymAlphabet.
	Alphanumeric(length int) string
}

// CryptoRandom implements Random using crypto/rand. Pseudonyms double as
// privacy-bearing identifiers, so a secure source is used even though
// unguessability is not strictly required.
type CryptoRandom struct{}

// New creates a new CryptoRandom
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Intn returns a cryptographically random int in [0, n)
func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		return 0
	}
	return int(result.Int64())
}

// Alphanumeric returns a random string drawn from PseudonymAlphabet.
func (r *CryptoRandom) Alphanumeric(length int) string {
	if length <= 0 {
		return ""
	}
	result := make([]byte, length)
	for i := range result {
		result[i] = PseudonymAlphabet[r.Intn(len(PseudonymAlphabet))]
	}
	return string(result)
}
