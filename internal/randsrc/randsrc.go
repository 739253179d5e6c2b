// Package randsrc supplies the cryptographically strong randomness the
// rest of the daemon needs: unique names for shared-memory segments and
// the per-event delay sampling the scheduler performs.
package randsrc

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Source draws random values. The scheduler and the shm-naming helper
// both depend on this interface rather than crypto/rand directly so
// tests can substitute a fixed stream, per the end-to-end scenarios in
// the specification (fake clock, fake random source).
type Source interface {
	// UniformInt returns a uniformly distributed integer in [lo, hi],
	// inclusive on both ends.
	UniformInt(lo, hi int64) int64
}

// CryptoSource is the production Source, backed by crypto/rand.
type CryptoSource struct{}

// UniformInt implements Source.
func (CryptoSource) UniformInt(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	span := hi - lo + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		// crypto/rand failing means the kernel's entropy source is
		// broken; there is nothing sensible left to do but degrade to
		// the lower bound rather than panic mid-pipeline.
		return lo
	}
	return lo + n.Int64()
}

// ShmName returns a unique shared-memory object name suitable for
// shm_open, analogous to the original implementation's randname() but
// using a UUID instead of a fixed-length random suffix to avoid any
// realistic collision probability across the process's lifetime.
func ShmName(prefix string) string {
	return fmt.Sprintf("/%s-%s", prefix, uuid.NewString())
}
