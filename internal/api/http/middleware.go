// Package http exposes dataset queries over an echo HTTP server.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/server"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID carries a caller supplied request ID.
const HeaderRequestID = "X-Request-ID"

// HeaderQueryID reports the ID assigned to a query result.
const HeaderQueryID = "X-Query-ID"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CustomValidator adapts validator/v10 to echo.Validator.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ValidateRequest binds the request body into s and validates it.
func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

// CreateReqContext assigns a request ID (taken from X-Request-ID when the
// caller sent one) and attaches a logger carrying it to the request context.
func CreateReqContext(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID := c.Request().Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, reqID)

			logger := base.With().Str("reqID", reqID).Logger()
			ctx := context.WithValue(c.Request().Context(), requestIDKey, reqID)
			ctx = logger.WithContext(ctx)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// LoggerMiddleware logs one line per request after the handler ran.
func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		stop := time.Since(start)

		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		logger.Debug().
			Str("method", req.Method).
			Str("remote_ip", c.RealIP()).
			Str("handler_path", c.Path()).
			Str("path", p).
			Int("status", res.Status).
			Int64("latency_ns", int64(stop)).
			Int64("bytes_out", res.Size).
			Msg("req received")
		return nil
	}
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(c.Request().Context()).Error().Interface("panic", r).Msg("handler panicked")
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}
		}()
		return next(c)
	}
}

// ShutdownMiddleware tracks in-flight requests and rejects new ones once
// shutdown has started.
func ShutdownMiddleware(sm *server.ShutdownManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !sm.TrackRequest() {
				c.Response().Header().Set("Connection", "close")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
			}
			defer sm.UntrackRequest()
			return next(c)
		}
	}
}

// ErrorHandler writes every error as an ErrorResponse.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, code := errorStatus(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}

	resp := ErrorResponse{Error: msg, Code: code, RequestID: GetRequestID(c.Request().Context())}
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	if err := c.JSON(status, resp); err != nil {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Msg("failed to write error response")
	}
}

// errorStatus maps an error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, ""
	}

	code := csverrors.GetCode(err)
	switch csverrors.GetCategory(err) {
	case csverrors.ErrCategoryQuery:
		switch code {
		case csverrors.CodeTableNotLoaded:
			return http.StatusServiceUnavailable, code
		case csverrors.CodeUnknownQuery:
			return http.StatusNotFound, code
		}
		return http.StatusBadRequest, code
	case csverrors.ErrCategoryConfig:
		return http.StatusBadRequest, code
	case "":
		return http.StatusInternalServerError, ""
	}
	return http.StatusInternalServerError, code
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
