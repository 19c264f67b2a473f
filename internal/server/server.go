package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gemini-relay/internal/config"
	"gemini-relay/internal/models"
	"gemini-relay/internal/observability"
	"gemini-relay/internal/provider"
	"gemini-relay/internal/router"
	"gemini-relay/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeout        = 120 * time.Second
	idleTimeout         = 120 * time.Second
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = relayErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))
	e.Use(observability.Middleware())

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	if s.cfg.Metrics.Enabled {
		s.app.GET(s.cfg.Metrics.Path, echo.WrapHandler(promhttp.Handler()))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req translator.ChatCompletionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	unifiedReq := req.ToUnified()

	if req.Stream {
		return s.streamChat(c, unifiedReq)
	}

	resp, _, err := s.router.Chat(c.Request().Context(), unifiedReq)
	if err != nil {
		return toHTTPError(err)
	}
	if resp == nil {
		return requestError{
			Status:  http.StatusBadGateway,
			Message: "upstream provider returned an empty response",
			Type:    "upstream_error",
		}
	}

	// The upstream's status code is passed through verbatim.
	return c.JSON(resp.Status, translator.FromUnifiedChat(resp))
}

// streamChat drives the emulated stream. Failures surfacing before the first
// frame still render a classified error; once frames are flowing the stream
// ends with its terminal frame and failures are only logged.
func (s *Server) streamChat(c echo.Context, req models.UnifiedChatRequest) error {
	writer, err := newSSEFrameWriter(c.Response())
	if err != nil {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	if _, err := s.router.ChatStream(c.Request().Context(), req, writer); err != nil {
		if writer.started {
			slog.Error("stream failed after frames were written", "error", err)
			return nil
		}
		return toHTTPError(err)
	}
	return nil
}

// sseFrameWriter writes event-stream frames onto the HTTP response. Headers
// are sent lazily on the first frame so earlier failures can still render a
// JSON error.
type sseFrameWriter struct {
	resp    *echo.Response
	flusher http.Flusher
	started bool
}

func newSSEFrameWriter(resp *echo.Response) (*sseFrameWriter, error) {
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}
	return &sseFrameWriter{resp: resp, flusher: flusher}, nil
}

func (w *sseFrameWriter) WriteFrame(payload string) error {
	if !w.started {
		header := w.resp.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		w.resp.WriteHeader(http.StatusOK)
		w.started = true
	}

	if _, err := fmt.Fprintf(w.resp.Writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write SSE frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: "request body is required",
				Type:    "invalid_request_error",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("invalid JSON payload: %v", err),
			Type:    "invalid_request_error",
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: "request body must contain a single JSON object",
			Type:    "invalid_request_error",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, status int, body translator.APIError) error {
	return c.JSON(status, translator.ErrorResponse{Error: body})
}

func relayErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var relayErr *translator.ErrorWithStatus
	if errors.As(err, &relayErr) {
		_ = writeError(c, relayErr.StatusCode, relayErr.APIError)
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		body := translator.APIError{
			Message: reqErr.Message,
			Type:    reqErr.Type,
		}
		if reqErr.Code != "" {
			body.Code = reqErr.Code
		}
		_ = writeError(c, reqErr.Status, body)
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		_ = writeError(c, he.Code, translator.APIError{
			Message: fmt.Sprintf("%v", he.Message),
			Type:    "invalid_request_error",
		})
		return
	}

	_ = writeError(c, http.StatusInternalServerError, translator.APIError{
		Message: "internal server error",
		Type:    "server_error",
	})
}

func toHTTPError(err error) error {
	var relayErr *translator.ErrorWithStatus
	if errors.As(err, &relayErr) {
		return relayErr
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	if errors.Is(err, provider.ErrUnknownModel) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}
	if errors.Is(err, provider.ErrUnsupportedOperation) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    "invalid_request_error",
		}
	}

	return requestError{
		Status:  http.StatusBadGateway,
		Message: "upstream provider error",
		Type:    "upstream_error",
	}
}
