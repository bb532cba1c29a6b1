// internal/handler/handler.go
package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SyedDaiam9101/thickness-service/internal/logging"
	"github.com/SyedDaiam9101/thickness-service/internal/middleware"
	"github.com/SyedDaiam9101/thickness-service/internal/predictor"
)

// ImageField is the multipart form field carrying the uploaded image
const ImageField = "image"

// Predictor is the part of predictor.Predictor the handler depends on
type Predictor interface {
	Predict(ctx context.Context, r io.Reader) (predictor.Result, error)
}

// Handler serves the HTTP prediction API.
type Handler struct {
	predictor  Predictor
	engineName string
	logger     *zap.Logger
}

// New creates a new Handler. engineName is reported by the health endpoint.
func New(p Predictor, engineName string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		predictor:  p,
		engineName: engineName,
		logger:     logger,
	}
}

// NewRouter builds a gin engine with the standard middleware chain and the API routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Metrics(),
		middleware.AccessLog(h.logger),
	)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes wires the HTTP handlers to the router
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.Health)
	r.POST("/predict", h.Predict)
}

// Health reports liveness and the active inference backend
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"engine": h.engineName,
	})
}

// Predict handles POST /predict with a multipart "image" upload
func (h *Handler) Predict(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	logger := logging.WithOperation(h.logger, "predict", middleware.GetRequestID(ctx))

	file, filename, err := imagePart(c.Request)
	if err != nil {
		logger.Info("rejected request without image", zap.Error(err))
		badRequest(c, msgNoImage)
		return
	}
	defer file.Close()

	if h.predictor == nil {
		logger.Error("prediction failed", zap.String("reason", "predictor not initialized"))
		internalError(c, msgPredictionError)
		return
	}

	result, err := h.predictor.Predict(ctx, file)
	if err != nil {
		fields := []zap.Field{
			zap.String("filename", filename),
			zap.Error(err),
		}
		if pe, ok := err.(*predictor.Error); ok {
			fields = append(fields, zap.String("kind", pe.Kind.String()))
		}
		logger.Error("Error during prediction", fields...)
		internalError(c, msgPredictionError)
		return
	}

	logger.Info("prediction served",
		zap.String("filename", filename),
		zap.String("prediction", result.Label),
		zap.Float64("regression_value", result.Value),
		zap.Duration("elapsed", time.Since(start)),
	)

	c.JSON(http.StatusOK, result)
}

var errNoImagePart = errors.New("no file part named " + ImageField)

// imagePart streams the request body to the first part named ImageField whose
// Content-Disposition carries a filename parameter, even an empty one. Parts
// without the parameter are plain form values and are skipped.
func imagePart(r *http.Request) (*multipart.Part, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errNoImagePart
		}
		if err != nil {
			return nil, "", err
		}
		if part.FormName() != ImageField {
			part.Close()
			continue
		}
		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			part.Close()
			return nil, "", err
		}
		if filename, ok := params["filename"]; ok {
			return part, filename, nil
		}
		part.Close()
	}
}
