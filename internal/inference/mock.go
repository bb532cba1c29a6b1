// internal/inference/mock.go
package inference

import (
	"fmt"
	"sync"
)

// MockEngine is a mock implementation of Engine for testing and local runs.
// It returns deterministic outputs without requiring the ONNX shared library.
type MockEngine struct {
	mu sync.Mutex

	// Output, when non-nil, is returned verbatim for every call.
	Output []float32
	// ValueFunc derives the single output value from the input when Output is nil.
	ValueFunc func(data []float32) float32
	// ShouldError if true, Predict will return an error
	ShouldError bool
	// ErrorMessage is the error message to return when ShouldError is true
	ErrorMessage string
	// CallCount tracks the number of times Predict was called
	CallCount int
}

// NewMock creates a MockEngine whose output is four times the mean input intensity,
// so dark images read as "Thin" and bright images as "Thick".
func NewMock() *MockEngine {
	return &MockEngine{
		ValueFunc: func(data []float32) float32 {
			var sum float32
			for _, v := range data {
				sum += v
			}
			return 4 * sum / float32(len(data))
		},
	}
}

// NewMockWithOutput creates a MockEngine that always returns output.
func NewMockWithOutput(output ...float32) *MockEngine {
	return &MockEngine{Output: append([]float32{}, output...)}
}

// Name implements Engine.
func (m *MockEngine) Name() string {
	return "mock"
}

// Predict validates its input and returns the configured output.
func (m *MockEngine) Predict(data []float32, shape []int64) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++

	if m.ShouldError {
		if m.ErrorMessage != "" {
			return nil, fmt.Errorf("%s", m.ErrorMessage)
		}
		return nil, fmt.Errorf("mock inference error")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("empty input tensor")
	}
	if int64(len(data)) != NumElements(shape) {
		return nil, fmt.Errorf("input has wrong size: got %d, expected %d", len(data), NumElements(shape))
	}

	if m.Output != nil {
		out := make([]float32, len(m.Output))
		copy(out, m.Output)
		return out, nil
	}
	if m.ValueFunc != nil {
		return []float32{m.ValueFunc(data)}, nil
	}
	return []float32{0}, nil
}

// Close is a no-op for the mock implementation
func (m *MockEngine) Close() error {
	return nil
}

// SetError configures the mock to return an error on subsequent Predict calls
func (m *MockEngine) SetError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = true
	m.ErrorMessage = msg
}

// ClearError clears any configured error
func (m *MockEngine) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldError = false
	m.ErrorMessage = ""
}

// Calls returns the number of Predict calls so far.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Ensure MockEngine implements Engine at compile time
var _ Engine = (*MockEngine)(nil)
