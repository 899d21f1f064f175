package rng

import (
	"math/rand"
	"sync"
	"time"
)

// Source is a goroutine-safe float source. Components that inject jitter
// accept any value with a Float64 method; Source is the default.
type Source struct {
	mu sync.Mutex
	r  *rand.Rand
}

func New(seed int64) *Source {
	return &Source{r: rand.New(rand.NewSource(seed))}
}

// NewTimeSeeded returns a source seeded from the wall clock.
func NewTimeSeeded() *Source {
	return New(time.Now().UnixNano())
}

func (s *Source) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// Fixed always returns the same value. Useful for pinning jitter in tests.
type Fixed float64

func (f Fixed) Float64() float64 { return float64(f) }
