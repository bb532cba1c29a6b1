// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != "127.0.0.1:5000" {
		t.Errorf("Expected default addr 127.0.0.1:5000, got %s", cfg.Addr)
	}
	if cfg.Model != "module_regression_model.onnx" {
		t.Errorf("Expected default model path, got %s", cfg.Model)
	}
	if cfg.MetricsPort != 9100 {
		t.Errorf("Expected metrics port 9100, got %d", cfg.MetricsPort)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("Expected cache TTL 1h, got %v", cfg.CacheTTL)
	}
	if cfg.OneDNNOpts != "0" {
		t.Errorf("Expected onednn_opts 0, got %q", cfg.OneDNNOpts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("THICKNESS_SERVICE_ADDR", ":8080")
	t.Setenv("THICKNESS_SERVICE_MODEL", "/models/thickness.onnx")
	t.Setenv("THICKNESS_SERVICE_USE_MOCK", "true")
	t.Setenv("THICKNESS_SERVICE_CACHE_TTL", "5m")
	t.Setenv("TF_ENABLE_ONEDNN_OPTS", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Expected addr :8080, got %s", cfg.Addr)
	}
	if cfg.Model != "/models/thickness.onnx" {
		t.Errorf("Expected model from env, got %s", cfg.Model)
	}
	if !cfg.UseMockInference {
		t.Error("Expected UseMockInference=true")
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", cfg.CacheTTL)
	}
	if cfg.OneDNNOpts != "1" {
		t.Errorf("Expected onednn_opts 1, got %q", cfg.OneDNNOpts)
	}
}

func TestLoadOTELEndpointEnablesTracing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !cfg.OTELEnabled {
		t.Error("Expected OTELEnabled=true when endpoint is set")
	}
	if cfg.OTELEndpoint != "http://collector:4317" {
		t.Errorf("Unexpected endpoint: %s", cfg.OTELEndpoint)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.yaml")
	content := []byte("addr: \":6000\"\nmetrics_port: 9200\nredis: \"redis:6379\"\ncache_ttl: 30s\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Addr != ":6000" {
		t.Errorf("Expected addr :6000, got %s", cfg.Addr)
	}
	if cfg.MetricsPort != 9200 {
		t.Errorf("Expected metrics port 9200, got %d", cfg.MetricsPort)
	}
	if cfg.Redis != "redis:6379" {
		t.Errorf("Expected redis redis:6379, got %s", cfg.Redis)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Errorf("Expected cache TTL 30s, got %v", cfg.CacheTTL)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestBindEnvReportsBadBinding(t *testing.T) {
	err := bindEnv(viper.New(), []envBinding{
		{key: "redis", envs: []string{"REDIS_URL"}},
		{key: "", envs: []string{"ORPHAN_VAR"}},
	})
	if err == nil {
		t.Fatal("Expected error for binding without a key")
	}

	v := viper.New()
	if err := bindEnv(v, envBindings); err != nil {
		t.Fatalf("Expected built-in bindings to succeed: %v", err)
	}
	t.Setenv("TF_ENABLE_ONEDNN_OPTS", "1")
	if got := v.GetString("onednn_opts"); got != "1" {
		t.Errorf("Expected onednn_opts from TF_ENABLE_ONEDNN_OPTS, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Addr:        ":5000",
			MetricsPort: 9100,
			Model:       "model.onnx",
			ModelInput:  "input",
			ModelOutput: "output",
			CacheTTL:    time.Hour,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Expected valid config, got: %v", err)
	}

	cfg := valid()
	cfg.MetricsPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for out-of-range metrics port")
	}

	cfg = valid()
	cfg.GRPCPort = 9100
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when grpc and metrics ports collide")
	}

	cfg = valid()
	cfg.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty model path")
	}
	cfg.UseMockInference = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("Empty model path should be allowed with mock inference: %v", err)
	}

	cfg = valid()
	cfg.IntraOpThreads = -1
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for negative intra_op_threads")
	}

	cfg = valid()
	cfg.Redis = "localhost:6379"
	cfg.CacheTTL = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero cache TTL with redis enabled")
	}
}

func TestExportEnv(t *testing.T) {
	t.Setenv("TF_ENABLE_ONEDNN_OPTS", "")

	cfg := &Config{OneDNNOpts: "0"}
	if err := cfg.ExportEnv(); err != nil {
		t.Fatalf("ExportEnv failed: %v", err)
	}
	if got := os.Getenv("TF_ENABLE_ONEDNN_OPTS"); got != "0" {
		t.Errorf("Expected TF_ENABLE_ONEDNN_OPTS=0, got %q", got)
	}
}
