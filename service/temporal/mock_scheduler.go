package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	schedules map[string]time.Duration // map[scheduleID]interval
	upsertErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// UpsertSweepSchedule records that a schedule was created or updated.
func (m *MockScheduler) UpsertSweepSchedule(ctx context.Context, relayWalletAddress string, interval time.Duration) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[scheduleID(relayWalletAddress)] = interval
	return nil
}

// DeleteSweepSchedule records that a schedule was deleted.
func (m *MockScheduler) DeleteSweepSchedule(ctx context.Context, relayWalletAddress string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(relayWalletAddress)
	if _, ok := m.schedules[id]; !ok {
		return fmt.Errorf("schedule %q not found", id)
	}
	delete(m.schedules, id)
	return nil
}

// HasSchedule reports whether a schedule exists for the relay wallet.
func (m *MockScheduler) HasSchedule(relayWalletAddress string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.schedules[scheduleID(relayWalletAddress)]
	return ok
}

// ScheduleInterval returns the interval recorded for the relay wallet.
func (m *MockScheduler) ScheduleInterval(relayWalletAddress string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	interval, ok := m.schedules[scheduleID(relayWalletAddress)]
	return interval, ok
}

// SetUpsertError configures the mock to fail upserts.
func (m *MockScheduler) SetUpsertError(err error) {
	m.upsertErr = err
}

// SetDeleteError configures the mock to fail deletes.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

var _ Scheduler = (*MockScheduler)(nil)
