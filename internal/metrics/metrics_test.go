// internal/metrics/metrics_test.go
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPrediction(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("Thick"))
	RecordPrediction("Thick")
	after := testutil.ToFloat64(PredictionsTotal.WithLabelValues("Thick"))

	if after-before != 1 {
		t.Errorf("Expected counter to increase by 1, got %f", after-before)
	}
}

func TestRecordPredictionError(t *testing.T) {
	before := testutil.ToFloat64(PredictionErrorsTotal.WithLabelValues("decode"))
	RecordPredictionError("decode")
	RecordPredictionError("decode")
	after := testutil.ToFloat64(PredictionErrorsTotal.WithLabelValues("decode"))

	if after-before != 2 {
		t.Errorf("Expected counter to increase by 2, got %f", after-before)
	}
}

func TestHealthStatus(t *testing.T) {
	SetHealthy()
	if v := testutil.ToFloat64(HealthStatus); v != 1 {
		t.Errorf("Expected health 1, got %f", v)
	}
	SetUnhealthy()
	if v := testutil.ToFloat64(HealthStatus); v != 0 {
		t.Errorf("Expected health 0, got %f", v)
	}
}

func TestHistogramsRegistered(t *testing.T) {
	RecordHTTPLatency("/predict", "200", 0.01)
	RecordGRPCLatency("/grpc.health.v1.Health/Check", "OK", 0.001)
	RecordPreprocessLatency(0.002)
	RecordInferenceLatency(0.003)

	if n := testutil.CollectAndCount(HTTPServerHandlingSeconds); n == 0 {
		t.Error("Expected HTTP latency series to be collected")
	}
	if n := testutil.CollectAndCount(PreprocessLatencySeconds); n != 1 {
		t.Errorf("Expected 1 preprocess latency series, got %d", n)
	}
}
