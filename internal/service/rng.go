package service

import (
	"math/rand"
	"sync"
	"time"
)

// lockedRand guards a rand.Rand for use from concurrent request handlers.
// Deterministic sources are injected by tests.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(src rand.Source) *lockedRand {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &lockedRand{r: rand.New(src)}
}

func (lr *lockedRand) Float64() float64 {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Float64()
}

func (lr *lockedRand) Intn(n int) int {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.r.Intn(n)
}
