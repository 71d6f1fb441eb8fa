package utils

import (
	"sync"
	"time"
)

// TimeProvider is the clock used for timestamps, session expiry and cache ttl.
type TimeProvider interface {
	Now() time.Time
}

// RealTimeProvider reads the system clock in UTC.
type RealTimeProvider struct{}

func (p *RealTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

func NewRealTimeProvider() *RealTimeProvider {
	return &RealTimeProvider{}
}

// MockTimeProvider is a manually driven clock for tests.
type MockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func (p *MockTimeProvider) Now() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// Advance moves the clock forward by d.
func (p *MockTimeProvider) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = p.now.Add(d)
}

func NewMockTimeProvider(fixedTime time.Time) *MockTimeProvider {
	return &MockTimeProvider{now: fixedTime}
}
