package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// MockEventPublisher records published change events
type MockEventPublisher struct {
	mu       sync.Mutex
	Events   []ports.ChangeEvent
	Err      error
	Closed   bool
	returned int
}

var _ ports.EventPublisher = (*MockEventPublisher)(nil)

// NewMockEventPublisher creates a new mock publisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event ports.ChangeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		m.returned++
		return m.Err
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockEventPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Published returns a snapshot of recorded events
func (m *MockEventPublisher) Published() []ports.ChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ChangeEvent(nil), m.Events...)
}

// FailedAttempts returns how many publishes returned Err
func (m *MockEventPublisher) FailedAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.returned
}
