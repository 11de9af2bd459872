package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are returned in
// order; once the script is exhausted every call returns the last entry.
type MockClient struct {
	mu        sync.Mutex
	script    []MockTurn
	callCount int
	requests  []Request
}

// MockTurn is one scripted exchange.
type MockTurn struct {
	Response Response
	Err      error
}

// NewMockClient creates a mock with the given script.
func NewMockClient(script ...MockTurn) *MockClient {
	return &MockClient{script: script}
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, in Request) (Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, in)
	if len(m.script) == 0 {
		return Response{}, fmt.Errorf("mock client has no scripted turns")
	}
	idx := m.callCount
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	m.callCount++
	turn := m.script[idx]
	return turn.Response, turn.Err
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	return "mock"
}

// Calls returns how many times Complete has been invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns a copy of every request seen so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}
