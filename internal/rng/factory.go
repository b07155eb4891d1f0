package rng

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"
)

// Mode selects seeded or time-seeded randomness
type Mode int

const (
	Deterministic Mode = iota
	Real
)

// Named streams
const (
	MockTier    = "mock.tier"
	MockAmount  = "mock.amount"
	MockAddress = "mock.address"
	MockHash    = "mock.hash"
	MockTime    = "mock.time"
	MockProfile = "mock.profile"
	ConfJitter  = "classifier.jitter"
	USDEstimate = "classifier.estimate"
)

// Factory hands out independent named random streams derived from one base seed.
// Streams are safe for concurrent use.
type Factory struct {
	baseSeed int64
	mode     Mode

	mu      sync.Mutex
	streams map[string]*rand.Rand
}

// New creates a factory. Real mode ignores seed and seeds once from the clock.
func New(mode Mode, seed int64) *Factory {
	if mode == Real {
		seed = time.Now().UnixNano()
	}
	return &Factory{
		baseSeed: seed,
		mode:     mode,
		streams:  make(map[string]*rand.Rand),
	}
}

// FromSeed returns a deterministic factory for seed != 0 and a real one otherwise
func FromSeed(seed int64) *Factory {
	if seed == 0 {
		return New(Real, 0)
	}
	return New(Deterministic, seed)
}

// R returns the named stream, creating it on first use
func (f *Factory) R(name string) *rand.Rand {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.streams[name]; ok {
		return r
	}
	src := rand.NewSource(deriveSeed(f.baseSeed, name)).(rand.Source64)
	r := rand.New(&lockedSource{src: src})
	f.streams[name] = r
	return r
}

func deriveSeed(base int64, name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64()) ^ base
}

// lockedSource serialises access to the underlying source.
// Callers must not use (*rand.Rand).Read, which keeps unsynchronised state.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source64
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Uint64() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Uint64()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}
