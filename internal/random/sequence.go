package random

import "sync"

// Sequence is a scripted Source for tests. Each method replays its own
// list in order and wraps around; an empty list yields the lowest legal
// value. Results are clamped into the requested range.
type Sequence struct {
	Ints   []int
	Floats []float64
	Picks  []int

	mu     sync.Mutex
	intPos int
	fltPos int
	pkPos  int
}

var _ Source = (*Sequence)(nil)

// IntRange implements Source.
func (s *Sequence) IntRange(min, max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Ints) == 0 {
		return min
	}
	v := s.Ints[s.intPos%len(s.Ints)]
	s.intPos++
	return clamp(v, min, max)
}

// Float64 implements Source.
func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[s.fltPos%len(s.Floats)]
	s.fltPos++
	return v
}

// Intn implements Source.
func (s *Sequence) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Picks) == 0 || n <= 1 {
		return 0
	}
	v := s.Picks[s.pkPos%len(s.Picks)]
	s.pkPos++
	return clamp(v, 0, n-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
