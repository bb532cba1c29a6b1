// internal/inference/inference.go
package inference

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Options describes how to load the model.
type Options struct {
	ModelPath  string
	InputName  string
	OutputName string

	// SharedLibraryPath points at libonnxruntime; empty uses the runtime's default lookup.
	SharedLibraryPath string
	// IntraOpThreads of 0 leaves the runtime default.
	IntraOpThreads int

	InputShape  []int64
	OutputShape []int64
}

// ONNXEngine wraps an ONNX runtime session for thread-safe inference.
// It implements the Engine interface.
type ONNXEngine struct {
	mu          sync.Mutex
	session     *ort.DynamicAdvancedSession
	inputShape  []int64
	outputShape []int64
}

// New loads the model described by opts and runs one warm-up pass on a zero tensor.
// The engine is ready to serve once New returns without error.
func New(opts Options) (*ONNXEngine, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("model path is empty")
	}
	if opts.InputShape == nil {
		opts.InputShape = InputShape
	}
	if opts.OutputShape == nil {
		opts.OutputShape = OutputShape
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}

	// Initialize the ONNX runtime environment
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		sessionOpts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	engine := &ONNXEngine{
		session:     session,
		inputShape:  opts.InputShape,
		outputShape: opts.OutputShape,
	}

	// The graph is only known to be usable once a forward pass succeeds.
	warmup := make([]float32, NumElements(opts.InputShape))
	if _, err := engine.Predict(warmup, opts.InputShape); err != nil {
		engine.Close()
		return nil, fmt.Errorf("warm-up inference failed: %w", err)
	}

	return engine, nil
}

// Name implements Engine.
func (e *ONNXEngine) Name() string {
	return "onnxruntime"
}

// Predict runs a forward pass on one input tensor and returns the flattened output.
func (e *ONNXEngine) Predict(data []float32, shape []int64) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, fmt.Errorf("inference session is nil")
	}

	if !sameShape(shape, e.inputShape) {
		return nil, fmt.Errorf("input has wrong shape: got %v, expected %v", shape, e.inputShape)
	}
	if int64(len(data)) != NumElements(shape) {
		return nil, fmt.Errorf("input has wrong size: got %d, expected %d", len(data), NumElements(shape))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputData := make([]float32, NumElements(e.outputShape))
	outputTensor, err := ort.NewTensor(ort.NewShape(e.outputShape...), outputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return outputTensor.GetData(), nil
}

// Close releases the ONNX session resources
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		err := e.session.Destroy()
		e.session = nil
		if err != nil {
			return fmt.Errorf("failed to destroy session: %w", err)
		}
	}

	return ort.DestroyEnvironment()
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Ensure ONNXEngine implements Engine at compile time
var _ Engine = (*ONNXEngine)(nil)
