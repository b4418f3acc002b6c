// Package random supplies the randomness behind entity replies, autonomous
// actions and drift. The engine depends on the Source interface so tests
// can script every draw.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Source produces the random draws the engine needs.
type Source interface {
	// IntRange returns a uniform integer in [min, max], both inclusive.
	IntRange(min, max int) int

	// Float64 returns a uniform float in [0, 1).
	Float64() float64

	// Intn returns a uniform integer in [0, n). n must be positive.
	Intn(n int) int
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Rand is a Source backed by math/rand. It is safe for concurrent use.
type Rand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

var _ Source = (*Rand)(nil)

// New returns a Source seeded from crypto/rand.
func New() (*Rand, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(seed), nil
}

// NewSeeded returns a deterministic Source.
func NewSeeded(seed int64) *Rand {
	return &Rand{rng: rand.New(rand.NewSource(seed))}
}

// IntRange implements Source.
func (r *Rand) IntRange(min, max int) int {
	if max <= min {
		return min
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return min + r.rng.Intn(max-min+1)
}

// Float64 implements Source.
func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Intn implements Source.
func (r *Rand) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Pick returns a uniformly chosen element of items, or "" when items is empty.
func Pick(src Source, items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[src.Intn(len(items))]
}
