// cmd/server/main_test.go
package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SyedDaiam9101/thickness-service/internal/config"
)

func TestHealthEndpointsFollowStatus(t *testing.T) {
	healthServer := health.NewServer()
	mux := newOpsMux(healthServer)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := httptest.NewRecorder()
		mux.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Errorf("%s: expected 200 while serving, got %d", path, resp.Code)
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := httptest.NewRecorder()
		mux.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503 while not serving, got %d", path, resp.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newOpsMux(health.NewServer())

	resp := httptest.NewRecorder()
	mux.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "health_status") {
		t.Error("Expected health_status gauge in metrics output")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{Addr: "127.0.0.1:5000", MetricsPort: 9100, Model: "a.onnx"}

	applyFlags(cfg, "", "", "", 0, 0, false, false)
	if cfg.Addr != "127.0.0.1:5000" || cfg.Model != "a.onnx" || cfg.MetricsPort != 9100 {
		t.Errorf("Unset flags must not override config: %+v", cfg)
	}

	applyFlags(cfg, ":8080", "b.onnx", "redis:6379", 9200, 50051, true, true)
	if cfg.Addr != ":8080" || cfg.Model != "b.onnx" || cfg.Redis != "redis:6379" {
		t.Errorf("Flags not applied: %+v", cfg)
	}
	if cfg.MetricsPort != 9200 || cfg.GRPCPort != 50051 || !cfg.UseMockInference || !cfg.Debug {
		t.Errorf("Flags not applied: %+v", cfg)
	}
}

func TestLoadEngineMock(t *testing.T) {
	engine, modelID, err := loadEngine(&config.Config{UseMockInference: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("loadEngine failed: %v", err)
	}
	defer engine.Close()

	if engine.Name() != "mock" {
		t.Errorf("Expected mock engine, got %s", engine.Name())
	}
	if modelID != "mock" {
		t.Errorf("Expected model ID mock, got %q", modelID)
	}
}

func TestLoadEngineMissingModelIsError(t *testing.T) {
	_, _, err := loadEngine(&config.Config{Model: ""}, zap.NewNop())
	if err == nil {
		t.Fatal("Expected error when no model is configured")
	}
}
