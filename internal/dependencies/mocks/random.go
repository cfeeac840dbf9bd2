package mocks

import (
	"github.com/TheGitHubist/MaskerBot/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing. Results are
// queued per method; an exhausted queue returns the zero value, which keeps
// collision-retry loops deterministic in tests.
type MockRandom struct {
	IntnResults []int
	intnIndex   int

	IDResults []string
	idIndex   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// Alphanumeric returns the next queued id, or the empty string if none
// remaining
func (r *MockRandom) Alphanumeric(length int) string {
	if r.idIndex >= len(r.IDResults) {
		return ""
	}
	result := r.IDResults[r.idIndex]
	r.idIndex++
	return result
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueID adds values to the Alphanumeric result queue
func (r *MockRandom) QueueID(values ...string) {
	r.IDResults = append(r.IDResults, values...)
}
