package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"chatbridge/internal/catalog"
	"chatbridge/internal/config"
	"chatbridge/internal/metrics"
	"chatbridge/internal/proxy"
	"chatbridge/internal/stream"
	"chatbridge/internal/translator"
	"chatbridge/internal/upstream"
)

const (
	maxBodyBytes         = 1 << 20 // 1 MiB
	maxUpstreamBodyBytes = 4 << 20
	shutdownGracePeriod  = 10 * time.Second
	readTimeout          = 30 * time.Second
	idleTimeout          = 120 * time.Second

	livenessMessage = "chatbridge proxy is running"

	corsMaxAge = "86400"
)

type Server struct {
	cfg     config.Config
	proxy   *proxy.Proxy
	table   *catalog.Table
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, px *proxy.Proxy, table *catalog.Table) (*Server, error) {
	if px == nil {
		return nil, errors.New("proxy must not be nil")
	}
	if table == nil {
		return nil, errors.New("model table must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(allowOrigin)
	e.Use(countRequests)
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency: true,
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logrus.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"error":      v.Error,
			}).Info("request")
			return nil
		},
	}))

	srv := &Server{
		cfg:     cfg,
		proxy:   px,
		table:   table,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	logrus.WithField("addr", s.address).Info("starting server")

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		// No write timeout: streaming responses stay open for as long as
		// the upstream keeps producing.
		WriteTimeout: 0,
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
		logrus.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleLiveness)
	s.app.POST("/v1/chat/completions", s.handleChatCompletions)
	s.app.GET("/v1/models", s.handleModels)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.app.OPTIONS("/*", handlePreflight)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.String(http.StatusOK, livenessMessage)
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	credential := c.Request().Header.Get(echo.HeaderAuthorization)
	if credential == "" {
		return requestError{
			Status:  http.StatusUnauthorized,
			Message: "Authorization header is required",
		}
	}

	var req translator.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	resp, err := s.proxy.Chat(ctx, credential, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if req.Stream {
		return streamResponse(c, req.Model, resp.Body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBodyBytes))
	if err != nil {
		return fmt.Errorf("read upstream completion body: %w", err)
	}
	out, err := translator.TranslateResponse(body, req.Model)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleModels(c echo.Context) error {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	}

	created := time.Now().Unix()
	ids := s.table.IDs()
	data := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		desc := s.table.Resolve(id)
		data = append(data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: created,
			OwnedBy: desc.Provider,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func streamResponse(c echo.Context, model string, upstreamBody io.Reader) error {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		logrus.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	c.Response().WriteHeader(http.StatusOK)

	drv := stream.NewDriver(model)
	drv.Run(upstreamBody, writer, flusher.Flush)
	return nil
}

func handlePreflight(c echo.Context) error {
	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, "*")
	header.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
	header.Set(echo.HeaderAccessControlAllowHeaders, "*")
	header.Set(echo.HeaderAccessControlMaxAge, corsMaxAge)
	return c.NoContent(http.StatusNoContent)
}

// allowOrigin stamps the permissive CORS origin on every response,
// including errors.
func allowOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		return next(c)
	}
}

func countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		metrics.RequestsTotal.WithLabelValues(c.Path(), strconv.Itoa(c.Response().Status)).Inc()
		return err
	}
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

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
		Code    string `json:"code,omitempty"`
	} `json:"error"`
}

type upstreamErrorBody struct {
	Error struct {
		Message    string `json:"message"`
		Status     int    `json:"status"`
		StatusText string `json:"statusText"`
		Details    string `json:"details,omitempty"`
	} `json:"error"`
}

func writeError(c echo.Context, status int, message, errType, code string) error {
	var payload errorBody
	payload.Error.Message = message
	payload.Error.Type = errType
	payload.Error.Code = code
	return c.JSON(status, payload)
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr.Status, reqErr.Message, reqErr.Type, reqErr.Code)
		return
	}

	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) {
		var payload upstreamErrorBody
		payload.Error.Message = statusErr.Message
		payload.Error.Status = statusErr.Status
		payload.Error.StatusText = statusErr.StatusText
		payload.Error.Details = statusErr.Details
		_ = c.JSON(statusErr.Status, payload)
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.Code {
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			_ = c.String(http.StatusNotFound, "Not found: "+c.Request().URL.Path)
		default:
			_ = writeError(c, httpErr.Code, fmt.Sprintf("%v", httpErr.Message), "invalid_request_error", "")
		}
		return
	}

	logrus.WithError(err).Error("request failed")
	_ = writeError(c, http.StatusInternalServerError, err.Error(), "server_error", "")
}
