package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits upstream requests under a fixed-window budget and a minimum
// spacing between consecutive requests. It is the single serialization point
// shared by every in-flight query.
type Limiter struct {
	budget  int
	window  time.Duration
	spacing *rate.Limiter

	// turn is a one-slot queue; blocked senders are admitted in arrival order
	turn chan struct{}

	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastRequest time.Time
}

// Stats is a snapshot of limiter state
type Stats struct {
	Budget      int           `json:"budget"`
	Used        int           `json:"used"`
	Window      time.Duration `json:"window"`
	WindowStart time.Time     `json:"windowStart"`
	LastRequest time.Time     `json:"lastRequest"`
}

// New creates a limiter allowing perWindow requests per window, with at least
// minSpacing between any two admissions
func New(perWindow int, window, minSpacing time.Duration) *Limiter {
	if perWindow <= 0 {
		perWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	every := rate.Inf
	if minSpacing > 0 {
		every = rate.Every(minSpacing)
	}

	return &Limiter{
		budget:      perWindow,
		window:      window,
		spacing:     rate.NewLimiter(every, 1),
		turn:        make(chan struct{}, 1),
		windowStart: time.Now(),
	}
}

// Acquire blocks until the next request may be sent or ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	for {
		wait := l.reserve()
		if wait <= 0 {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			// window rolled over, try again
		}
	}

	if err := l.spacing.Wait(ctx); err != nil {
		return fmt.Errorf("min spacing wait: %w", err)
	}

	l.mu.Lock()
	l.lastRequest = time.Now()
	l.mu.Unlock()
	return nil
}

// reserve takes a slot in the current window, or returns how long until the window resets
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(l.windowStart); elapsed >= l.window {
		// Keep windows aligned to the first cycle
		l.windowStart = l.windowStart.Add(elapsed / l.window * l.window)
		l.count = 0
	}

	if l.count < l.budget {
		l.count++
		return 0
	}

	return l.windowStart.Add(l.window).Sub(now)
}

// Stats returns the current window usage
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Budget:      l.budget,
		Used:        l.count,
		Window:      l.window,
		WindowStart: l.windowStart,
		LastRequest: l.lastRequest,
	}
}
