// internal/inference/interface.go
package inference

// Engine defines the interface for running a single forward pass of the regression model.
// This abstraction allows for easy mocking in tests and swapping implementations.
type Engine interface {
	// Name identifies the backend in health responses and logs.
	Name() string

	// Predict runs one forward pass.
	// data: flattened input tensor in NHWC order, len(data) must equal the product of shape
	// Returns the flattened model output (row-major).
	Predict(data []float32, shape []int64) ([]float32, error)

	// Close releases any resources held by the engine.
	Close() error
}

// InputShape is the fixed input shape of the thickness regression model: one 128x128 grayscale image.
var InputShape = []int64{1, 128, 128, 1}

// OutputShape is the fixed output shape: one regression value for one image.
var OutputShape = []int64{1, 1}

// NumElements returns the number of values a tensor of the given shape holds.
func NumElements(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
