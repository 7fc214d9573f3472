package llm

import (
	"context"
	"sync"
)

// MockClient implements Client for testing purposes. It allows configuring
// responses, simulating errors (including transient-then-success sequences),
// and tracking calls for verification.
type MockClient struct {
	mu sync.Mutex

	// Configured behavior
	output    string
	errs      []error // consumed one per call, nil entries mean success
	available bool

	// Call tracking
	GenerateCalls []GenerateCall
}

// GenerateCall records one call to Generate.
type GenerateCall struct {
	Prompt string
	Opts   Options
}

// NewMockClient creates a MockClient that is available and returns an empty
// output.
func NewMockClient() *MockClient {
	return &MockClient{
		available:     true,
		GenerateCalls: make([]GenerateCall, 0),
	}
}

// WithOutput configures the text returned by Generate.
func (m *MockClient) WithOutput(output string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = output
	return m
}

// WithErrors configures a sequence of per-call errors. Each Generate call
// consumes one entry; nil entries succeed. Once the sequence is exhausted,
// calls succeed.
func (m *MockClient) WithErrors(errs ...error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = errs
	return m
}

// WithAvailable configures whether Available() returns true or false.
func (m *MockClient) WithAvailable(available bool) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
	return m
}

// Generate implements Client.Generate. It records the call and returns the
// configured output or the next error in the sequence.
func (m *MockClient) Generate(_ context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{Prompt: prompt, Opts: opts})

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return m.output, nil
}

func (m *MockClient) ModelID() string {
	return "mock/test-model"
}

func (m *MockClient) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// GenerateCallCount returns the number of times Generate was called.
func (m *MockClient) GenerateCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.GenerateCalls)
}

// Reset clears call tracking and configured behavior.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = ""
	m.errs = nil
	m.available = true
	m.GenerateCalls = make([]GenerateCall, 0)
}
