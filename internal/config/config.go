// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Addr        string `mapstructure:"addr"`
	MetricsPort int    `mapstructure:"metrics_port"`
	GRPCPort    int    `mapstructure:"grpc_port"`
	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`

	// Model configuration
	Model          string `mapstructure:"model"`
	ModelInput     string `mapstructure:"model_input"`
	ModelOutput    string `mapstructure:"model_output"`
	ONNXRuntimeLib string `mapstructure:"onnxruntime_lib"`
	IntraOpThreads int    `mapstructure:"intra_op_threads"`
	OneDNNOpts     string `mapstructure:"onednn_opts"`

	// Result cache
	Redis    string        `mapstructure:"redis"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// OpenTelemetry configuration
	OTELEnabled  bool   `mapstructure:"otel_enabled"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`

	// Feature flags
	UseMockInference bool `mapstructure:"use_mock_inference"`
}

const envPrefix = "THICKNESS_SERVICE"

type envBinding struct {
	key  string
	envs []string
}

// envBindings maps keys to variables outside the THICKNESS_SERVICE_<KEY> scheme.
var envBindings = []envBinding{
	{key: "use_mock_inference", envs: []string{envPrefix + "_USE_MOCK"}},
	{key: "otel_endpoint", envs: []string{envPrefix + "_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}},
	// Same variable name the original deployment exports.
	{key: "onednn_opts", envs: []string{"TF_ENABLE_ONEDNN_OPTS"}},
}

func bindEnv(v *viper.Viper, bindings []envBinding) error {
	for _, b := range bindings {
		if b.key == "" {
			return fmt.Errorf("env binding %v has no config key", b.envs)
		}
		if err := v.BindEnv(append([]string{b.key}, b.envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", b.key, err)
		}
	}
	return nil
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("addr", "127.0.0.1:5000")
	v.SetDefault("metrics_port", 9100)
	v.SetDefault("grpc_port", 0)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("model", "module_regression_model.onnx")
	v.SetDefault("model_input", "input")
	v.SetDefault("model_output", "output")
	v.SetDefault("onnxruntime_lib", "")
	v.SetDefault("intra_op_threads", 0)
	v.SetDefault("onednn_opts", "0")
	v.SetDefault("redis", "")
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("use_mock_inference", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnv(v, envBindings); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads configuration from defaults, an optional config file and the environment.
// When configFile is empty the usual search paths are tried and a missing file is not an error.
// Priority (highest to lowest): env vars > config file > defaults. Flags are applied by the caller.
func Load(configFile string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/thickness-service/")
		v.AddConfigPath("$HOME/.thickness-service")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.OTELEndpoint != "" {
		cfg.OTELEnabled = true
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.MetricsPort <= 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.MetricsPort)
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPCPort)
	}
	if c.GRPCPort != 0 && c.GRPCPort == c.MetricsPort {
		return fmt.Errorf("grpc_port and metrics_port must be different")
	}
	if c.Model == "" && !c.UseMockInference {
		return fmt.Errorf("model path is required when not using mock inference")
	}
	if !c.UseMockInference && (c.ModelInput == "" || c.ModelOutput == "") {
		return fmt.Errorf("model input and output names are required")
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("invalid intra_op_threads: %d", c.IntraOpThreads)
	}
	if c.Redis != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive when redis is configured")
	}
	return nil
}

// ExportEnv publishes settings that native libraries read from the process environment.
func (c *Config) ExportEnv() error {
	if c.OneDNNOpts == "" {
		return nil
	}
	if err := os.Setenv("TF_ENABLE_ONEDNN_OPTS", c.OneDNNOpts); err != nil {
		return fmt.Errorf("failed to export TF_ENABLE_ONEDNN_OPTS: %w", err)
	}
	return nil
}
