package whale

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidThresholds is returned when a threshold set violates
// mega >= large >= medium >= small >= 0
var ErrInvalidThresholds = errors.New("invalid whale thresholds")

// Thresholds holds the USD boundaries of each whale tier
type Thresholds struct {
	Mega       float64 `json:"mega" yaml:"mega"`
	Large      float64 `json:"large" yaml:"large"`
	Medium     float64 `json:"medium" yaml:"medium"`
	Small      float64 `json:"small" yaml:"small"`
	MinWhaleTx float64 `json:"minWhaleTransaction" yaml:"min_whale_transaction"`
}

// DefaultThresholds returns the stock tier boundaries
func DefaultThresholds() Thresholds {
	return Thresholds{
		Mega:       10_000_000,
		Large:      1_000_000,
		Medium:     100_000,
		Small:      50_000,
		MinWhaleTx: 50_000,
	}
}

// Validate checks ordering and sign
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"mega": t.Mega, "large": t.Large, "medium": t.Medium, "small": t.Small, "min_whale_transaction": t.MinWhaleTx,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidThresholds, name)
		}
	}
	if t.Mega < t.Large {
		return fmt.Errorf("%w: mega (%.2f) must be >= large (%.2f)", ErrInvalidThresholds, t.Mega, t.Large)
	}
	if t.Large < t.Medium {
		return fmt.Errorf("%w: large (%.2f) must be >= medium (%.2f)", ErrInvalidThresholds, t.Large, t.Medium)
	}
	if t.Medium < t.Small {
		return fmt.Errorf("%w: medium (%.2f) must be >= small (%.2f)", ErrInvalidThresholds, t.Medium, t.Small)
	}
	if t.Small < 0 {
		return fmt.Errorf("%w: small (%.2f) must be >= 0", ErrInvalidThresholds, t.Small)
	}
	if t.MinWhaleTx < 0 {
		return fmt.Errorf("%w: min whale transaction (%.2f) must be >= 0", ErrInvalidThresholds, t.MinWhaleTx)
	}
	return nil
}

// Tier returns the highest tier whose threshold usd meets
func (t Thresholds) Tier(usd float64) Tier {
	switch {
	case usd >= t.Mega:
		return TierMega
	case usd >= t.Large:
		return TierLarge
	case usd >= t.Medium:
		return TierMedium
	case usd >= t.Small:
		return TierSmall
	}
	return TierNone
}

// Impact maps usd onto the impact scale; low covers everything under medium
func (t Thresholds) Impact(usd float64) Impact {
	switch {
	case usd >= t.Mega:
		return ImpactCritical
	case usd >= t.Large:
		return ImpactHigh
	case usd >= t.Medium:
		return ImpactMedium
	}
	return ImpactLow
}

// Floor is the smallest USD value reported as a whale transaction
func (t Thresholds) Floor() float64 {
	return math.Max(t.Small, t.MinWhaleTx)
}

// ThresholdsUpdate is a partial update; nil fields keep their current value
type ThresholdsUpdate struct {
	Mega       *float64 `json:"mega,omitempty" yaml:"mega"`
	Large      *float64 `json:"large,omitempty" yaml:"large"`
	Medium     *float64 `json:"medium,omitempty" yaml:"medium"`
	Small      *float64 `json:"small,omitempty" yaml:"small"`
	MinWhaleTx *float64 `json:"minWhaleTransaction,omitempty" yaml:"min_whale_transaction"`
}

// Apply overlays u onto t
func (t Thresholds) Apply(u ThresholdsUpdate) Thresholds {
	if u.Mega != nil {
		t.Mega = *u.Mega
	}
	if u.Large != nil {
		t.Large = *u.Large
	}
	if u.Medium != nil {
		t.Medium = *u.Medium
	}
	if u.Small != nil {
		t.Small = *u.Small
	}
	if u.MinWhaleTx != nil {
		t.MinWhaleTx = *u.MinWhaleTx
	}
	return t
}

// ThresholdStore is the process-wide, concurrency-safe threshold holder.
// Readers always observe a complete snapshot.
type ThresholdStore struct {
	mu  sync.RWMutex
	t   Thresholds
	gen uint64
}

// NewThresholdStore creates a store seeded with t, which must be valid
func NewThresholdStore(t Thresholds) (*ThresholdStore, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &ThresholdStore{t: t}, nil
}

// Get returns the current snapshot
func (s *ThresholdStore) Get() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t
}

// Snapshot returns the current thresholds with their generation, which
// increases on every successful update
func (s *ThresholdStore) Snapshot() (Thresholds, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.t, s.gen
}

// Update validates the merged result and swaps it in. On error the store is unchanged.
func (s *ThresholdStore) Update(u ThresholdsUpdate) (Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.t.Apply(u)
	if err := next.Validate(); err != nil {
		return s.t, err
	}
	s.t = next
	s.gen++
	return next, nil
}
