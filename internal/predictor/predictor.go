// internal/predictor/predictor.go
package predictor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/thickness-service/internal/inference"
	"github.com/SyedDaiam9101/thickness-service/internal/metrics"
	"github.com/SyedDaiam9101/thickness-service/internal/preprocess"
)

const (
	// Threshold separates the two labels. A value equal to it is "Thin".
	Threshold = 2.0

	LabelThick = "Thick"
	LabelThin  = "Thin"
)

// Result is a successful prediction.
type Result struct {
	Label string  `json:"prediction"`
	Value float64 `json:"regression_value"`
}

// MarshalJSON always writes regression_value with a fractional part or exponent,
// so whole numbers stay floats for typed clients ("3.0", not "3").
func (r Result) MarshalJSON() ([]byte, error) {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return nil, fmt.Errorf("unsupported regression value %v", r.Value)
	}
	label, err := json.Marshal(r.Label)
	if err != nil {
		return nil, err
	}

	b := make([]byte, 0, 64)
	b = append(b, `{"prediction":`...)
	b = append(b, label...)
	b = append(b, `,"regression_value":`...)
	b = append(b, formatValue(r.Value)...)
	b = append(b, '}')
	return b, nil
}

func formatValue(v float64) string {
	fmtByte := byte('f')
	if abs := math.Abs(v); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		fmtByte = 'e'
	}
	s := strconv.FormatFloat(v, fmtByte, -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Classify maps a regression value to its label.
func Classify(value float64) string {
	if value > Threshold {
		return LabelThick
	}
	return LabelThin
}

// ResultCache stores encoded results keyed by model ID and image digest.
// Get returns "" with a nil error on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Predictor runs the decode, preprocess, inference and threshold pipeline.
// It is safe for concurrent use if the engine is.
type Predictor struct {
	engine  inference.Engine
	cache   ResultCache
	logger  *zap.Logger
	tracer  trace.Tracer
	size    int
	modelID string
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithModelID scopes cached results to one model artifact. Instances sharing a
// cache but loading different models must use different IDs.
func WithModelID(id string) Option {
	return func(p *Predictor) {
		p.modelID = id
	}
}

// New creates a Predictor. cache and logger may be nil.
func New(engine inference.Engine, cache ResultCache, logger *zap.Logger, opts ...Option) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Predictor{
		engine: engine,
		cache:  cache,
		logger: logger,
		tracer: otel.Tracer("github.com/SyedDaiam9101/thickness-service/internal/predictor"),
		size:   preprocess.TargetSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.modelID == "" && engine != nil {
		p.modelID = engine.Name()
	}
	return p
}

// Predict reads one encoded image from r and returns its label and regression value.
// Failures are returned as *Error carrying the failing stage.
func (p *Predictor) Predict(ctx context.Context, r io.Reader) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "predictor.Predict")
	defer span.End()

	res, err := p.predict(ctx, r)
	if err != nil {
		kind := KindInference
		if pe, ok := err.(*Error); ok {
			kind = pe.Kind
		}
		metrics.RecordPredictionError(kind.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		return Result{}, err
	}

	metrics.RecordPrediction(res.Label)
	span.SetAttributes(
		attribute.String("prediction.label", res.Label),
		attribute.Float64("prediction.value", res.Value),
	)
	return res, nil
}

func (p *Predictor) predict(ctx context.Context, r io.Reader) (Result, error) {
	if p.engine == nil {
		return Result{}, newError(KindInference, fmt.Errorf("inference engine not initialized"))
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return Result{}, newError(KindRead, err)
	}

	key := p.cacheKey(payload)
	if res, ok := p.lookup(ctx, key); ok {
		return res, nil
	}

	tensor, err := p.preprocess(ctx, payload)
	if err != nil {
		return Result{}, err
	}

	value, err := p.infer(ctx, tensor)
	if err != nil {
		return Result{}, err
	}

	res := Result{Label: Classify(value), Value: value}
	p.store(ctx, key, res)
	return res, nil
}

func (p *Predictor) preprocess(ctx context.Context, payload []byte) (tensor *preprocess.Tensor, err error) {
	_, span := p.tracer.Start(ctx, "preprocess")
	defer span.End()

	start := time.Now()
	defer func() { metrics.RecordPreprocessLatency(time.Since(start).Seconds()) }()

	// Image decoders panic on some malformed inputs; report them like any other bad image.
	stage := KindDecode
	defer func() {
		if r := recover(); r != nil {
			tensor, err = nil, newError(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	img, format, err := preprocess.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, newError(KindDecode, err)
	}
	stage = KindPreprocess
	span.SetAttributes(
		attribute.String("image.format", format),
		attribute.Int("image.width", img.Bounds().Dx()),
		attribute.Int("image.height", img.Bounds().Dy()),
	)

	tensor, err = preprocess.FromImage(img, p.size)
	if err != nil {
		return nil, newError(KindPreprocess, err)
	}
	return tensor, nil
}

func (p *Predictor) infer(ctx context.Context, tensor *preprocess.Tensor) (value float64, err error) {
	_, span := p.tracer.Start(ctx, "inference",
		trace.WithAttributes(attribute.String("engine", p.engine.Name())))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			value, err = 0, newError(KindInference, fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	out, err := p.engine.Predict(tensor.Data, tensor.Shape)
	metrics.RecordInferenceLatency(time.Since(start).Seconds())
	if err != nil {
		return 0, newError(KindInference, err)
	}
	if len(out) == 0 {
		return 0, newError(KindInference, fmt.Errorf("model returned no output"))
	}

	// First element of the first output row.
	value = float64(out[0])
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, newError(KindInference, fmt.Errorf("model returned non-finite value %v", value))
	}
	return value, nil
}

func (p *Predictor) lookup(ctx context.Context, key string) (Result, bool) {
	if p.cache == nil {
		return Result{}, false
	}

	raw, err := p.cache.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup("error")
		p.logger.Warn("result cache lookup failed", zap.String("key", key), zap.Error(err))
		return Result{}, false
	}
	if raw == "" {
		metrics.RecordCacheLookup("miss")
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		metrics.RecordCacheLookup("error")
		p.logger.Warn("discarding malformed cached result", zap.String("key", key), zap.Error(err))
		return Result{}, false
	}
	metrics.RecordCacheLookup("hit")
	return res, true
}

func (p *Predictor) store(ctx context.Context, key string, res Result) {
	if p.cache == nil {
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		p.logger.Warn("failed to encode result for cache", zap.Error(err))
		return
	}
	if err := p.cache.Set(ctx, key, string(raw)); err != nil {
		p.logger.Warn("result cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// cacheKey binds the image digest to the model that produced the result.
func (p *Predictor) cacheKey(payload []byte) string {
	return p.modelID + ":" + digest(payload)
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
