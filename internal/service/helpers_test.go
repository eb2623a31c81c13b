package service

import (
	"math/rand"
	"sync"
)

// seqSource replays a fixed sequence of Int63 values, cycling when exhausted.
// Used to force specific enhancement outcomes.
type seqSource struct {
	mu   sync.Mutex
	vals []int64
	i    int
}

func (s *seqSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.vals[s.i%len(s.vals)]
	s.i++
	return v
}

func (s *seqSource) Seed(int64) {}

// fixedSource builds a source whose successive Float64 draws approximate the
// given values.
func fixedSource(fs ...float64) rand.Source {
	vals := make([]int64, len(fs))
	for i, f := range fs {
		vals[i] = int64(f * (1 << 63))
	}
	return &seqSource{vals: vals}
}
