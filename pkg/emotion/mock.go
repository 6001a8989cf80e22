package emotion

import (
	"context"
	"sync"
)

// Mock returns scripted results in order, repeating the last one.
type Mock struct {
	// Results are returned in order; the last is repeated.
	Results []Result

	// Err, when set, is returned instead of a result.
	Err error

	mu    sync.Mutex
	calls int
}

// NewMock scripts labels with full confidence.
func NewMock(labels ...Label) *Mock {
	m := &Mock{}
	for _, l := range labels {
		m.Results = append(m.Results, Result{Label: l, Confidence: 1})
	}
	return m
}

// Classify returns the next scripted result.
func (m *Mock) Classify(ctx context.Context, img []byte) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return Result{}, m.Err
	}
	if len(m.Results) == 0 {
		return Result{}, ErrNoFace
	}
	i := m.calls - 1
	if i >= len(m.Results) {
		i = len(m.Results) - 1
	}
	return m.Results[i], nil
}

// Calls returns how many times Classify ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Verify Mock implements Classifier at compile time.
var _ Classifier = (*Mock)(nil)
