// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/SyedDaiam9101/thickness-service/internal/cache"
	"github.com/SyedDaiam9101/thickness-service/internal/config"
	"github.com/SyedDaiam9101/thickness-service/internal/handler"
	"github.com/SyedDaiam9101/thickness-service/internal/inference"
	"github.com/SyedDaiam9101/thickness-service/internal/logging"
	"github.com/SyedDaiam9101/thickness-service/internal/metrics"
	"github.com/SyedDaiam9101/thickness-service/internal/middleware"
	"github.com/SyedDaiam9101/thickness-service/internal/predictor"
	"github.com/SyedDaiam9101/thickness-service/internal/telemetry"
)

const (
	serviceName    = "thickness-service"
	serviceVersion = "1.0.0"

	drainDelay      = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

var _ predictor.ResultCache = (*cache.Cache)(nil)

func main() {
	// Parse command-line flags
	addr := flag.String("addr", "", "HTTP listen address (default: 127.0.0.1:5000)")
	modelPath := flag.String("model", "", "Path to ONNX model file (default: module_regression_model.onnx)")
	redisAddr := flag.String("redis", "", "Redis address for the result cache (default: disabled)")
	metricsPort := flag.Int("metrics", 0, "Prometheus metrics port (default: 9100)")
	grpcPort := flag.Int("grpc", 0, "gRPC health port (default: disabled)")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use mock inference engine (for testing)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *addr, *modelPath, *redisAddr, *metricsPort, *grpcPort, *useMock, *debug)

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if err := cfg.ExportEnv(); err != nil {
		logger.Fatal("failed to export environment", zap.Error(err))
	}

	logger.Info("starting "+serviceName,
		zap.String("addr", cfg.Addr),
		zap.String("model", cfg.Model),
		zap.String("redis", cfg.Redis),
		zap.Int("metrics_port", cfg.MetricsPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Bool("otel", cfg.OTELEnabled),
	)

	// Initialize OpenTelemetry tracer
	var tracerShutdown telemetry.ShutdownFunc
	if cfg.OTELEnabled {
		tracerShutdown, err = telemetry.InitTracer(serviceName, serviceVersion, nil)
		if err != nil {
			logger.Warn("failed to initialize tracer", zap.Error(err))
		} else {
			logger.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	// The model must be ready before any request is accepted.
	engine, modelID, err := loadEngine(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load model", zap.Error(err))
	}
	defer engine.Close()

	// Initialize Redis cache (optional)
	var resultCache predictor.ResultCache
	if cfg.Redis != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		c, err := cache.New(ctx, cfg.Redis, cfg.CacheTTL)
		cancel()
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", zap.Error(err))
		} else {
			defer c.Close()
			resultCache = c
			logger.Info("Redis result cache enabled", zap.String("redis", cfg.Redis), zap.Duration("ttl", cfg.CacheTTL))
		}
	}

	p := predictor.New(engine, resultCache, logger, predictor.WithModelID(modelID))

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.New(p, engine.Name(), logger))

	apiServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	healthServer := health.NewServer()

	// Start HTTP server for metrics and health checks
	opsServer := startOpsServer(cfg.MetricsPort, healthServer, logger)

	var grpcServer *grpc.Server
	if cfg.GRPCPort > 0 {
		grpcServer, err = startGRPCServer(cfg.GRPCPort, healthServer, cfg.OTELEnabled, logger)
		if err != nil {
			logger.Fatal("failed to start gRPC server", zap.Error(err))
		}
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	metrics.SetHealthy()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.Addr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP API failed", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("received signal, shutting down gracefully", zap.String("signal", sig.String()))
	}

	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	metrics.SetUnhealthy()

	// Give time for load balancers to detect unhealthy status
	time.Sleep(drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Warn("HTTP API shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := opsServer.Shutdown(ctx); err != nil {
		logger.Warn("ops server shutdown error", zap.Error(err))
	}
	if tracerShutdown != nil {
		if err := tracerShutdown(ctx); err != nil {
			logger.Warn("tracer shutdown error", zap.Error(err))
		}
	}

	logger.Info("server shutdown complete")
}

func applyFlags(cfg *config.Config, addr, model, redis string, metricsPort, grpcPort int, useMock, debug bool) {
	if addr != "" {
		cfg.Addr = addr
	}
	if model != "" {
		cfg.Model = model
	}
	if redis != "" {
		cfg.Redis = redis
	}
	if metricsPort > 0 {
		cfg.MetricsPort = metricsPort
	}
	if grpcPort > 0 {
		cfg.GRPCPort = grpcPort
	}
	if useMock {
		cfg.UseMockInference = true
	}
	if debug {
		cfg.Debug = true
	}
}

// loadEngine returns the engine and an ID naming the loaded model, used to scope cached results.
func loadEngine(cfg *config.Config, logger *zap.Logger) (inference.Engine, string, error) {
	if cfg.UseMockInference {
		logger.Info("using mock inference engine")
		return inference.NewMock(), "mock", nil
	}

	logger.Info("loading ONNX model", zap.String("model", cfg.Model))
	engine, err := inference.New(inference.Options{
		ModelPath:         cfg.Model,
		InputName:         cfg.ModelInput,
		OutputName:        cfg.ModelOutput,
		SharedLibraryPath: cfg.ONNXRuntimeLib,
		IntraOpThreads:    cfg.IntraOpThreads,
	})
	if err != nil {
		return nil, "", logging.NewOperationError("load model "+cfg.Model, "", err)
	}

	sum, err := inference.Fingerprint(cfg.Model)
	if err != nil {
		engine.Close()
		return nil, "", logging.NewOperationError("fingerprint model "+cfg.Model, "", err)
	}
	modelID := "onnx-" + sum
	logger.Info("ONNX model loaded successfully", zap.String("model_id", modelID))
	return engine, modelID, nil
}

func startOpsServer(port int, healthServer *health.Server, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: newOpsMux(healthServer),
	}

	go func() {
		logger.Info("ops server listening (metrics, health)", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	return server
}

func startGRPCServer(port int, healthServer *health.Server, otelEnabled bool, logger *zap.Logger) (*grpc.Server, error) {
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			middleware.UnaryRequestIDInterceptor(),
			middleware.UnaryMetricsInterceptor(),
		),
	}
	if otelEnabled {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	}

	grpcServer := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on :%d: %w", port, err)
	}

	go func() {
		logger.Info("gRPC health server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	return grpcServer, nil
}
