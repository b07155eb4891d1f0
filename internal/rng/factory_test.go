package rng

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicStreamsRepeat(t *testing.T) {
	a := New(Deterministic, 42)
	b := New(Deterministic, 42)

	for i := 0; i < 10; i++ {
		assert.Equal(t, a.R(MockAmount).Int63(), b.R(MockAmount).Int63())
	}
}

func TestStreamsAreIndependent(t *testing.T) {
	f := New(Deterministic, 7)
	assert.NotEqual(t, f.R(MockAmount).Int63(), f.R(MockTier).Int63())
	assert.Same(t, f.R(MockHash), f.R(MockHash))
}

func TestFromSeed(t *testing.T) {
	assert.Equal(t, Real, FromSeed(0).mode)
	assert.Equal(t, Deterministic, FromSeed(5).mode)
}

func TestStreamConcurrentUse(t *testing.T) {
	r := New(Real, 0).R(ConfJitter)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				v := r.Intn(11)
				assert.True(t, v >= 0 && v <= 10)
			}
		}()
	}
	wg.Wait()
}
