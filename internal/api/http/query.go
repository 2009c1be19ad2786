package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/arkilian/csvreduce/internal/logger"
	"github.com/arkilian/csvreduce/internal/observability"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Kind   string       `json:"kind" validate:"required"`
	Params query.Params `json:"params"`

	// Workers overrides the server's worker count for this query
	Workers int `json:"workers" validate:"min=0,max=1024"`

	// Serial runs the query as a single partition
	Serial bool `json:"serial"`

	// Dispatch overrides the dispatcher: goroutine, pool, serial
	Dispatch string `json:"dispatch" validate:"omitempty,oneof=goroutine pool serial"`
}

// QueryResponse wraps a query result.
type QueryResponse struct {
	Result    *query.Result `json:"result"`
	RequestID string        `json:"request_id"`
}

// TableResponse describes the loaded table.
type TableResponse struct {
	Dataset string       `json:"dataset"`
	Rows    int          `json:"rows"`
	Kinds   []query.Kind `json:"kinds"`
}

// StatsResponse lists per-kind query statistics.
type StatsResponse struct {
	Kinds []observability.KindStats `json:"kinds"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := ValidateRequest(c, &req); err != nil {
		return err
	}
	queryID := uuid.NewString()
	ctx := context.WithValue(c.Request().Context(), logger.QueryIDKey, queryID)
	ctx = zerolog.Ctx(ctx).With().Str("queryID", queryID).Logger().WithContext(ctx)
	c.Response().Header().Set(HeaderQueryID, queryID)

	opts := s.defaults
	if req.Workers > 0 {
		opts.Workers = req.Workers
	}
	if req.Serial {
		opts.Serial = true
	}
	if req.Dispatch != "" {
		d, err := reduce.ParseDispatcher(req.Dispatch, s.poolSize)
		if err != nil {
			return err
		}
		opts.Dispatcher = d
	}

	start := time.Now()
	res, err := s.runner.RunQueryWith(ctx, query.Kind(req.Kind), req.Params, opts)
	elapsed := time.Since(start)
	if err != nil {
		s.stats.Record(req.Kind, "", 0, elapsed, err)
		return err
	}
	s.stats.Record(req.Kind, res.Stats.Dispatcher, res.Stats.RowsScanned, elapsed, nil)

	zerolog.Ctx(ctx).Debug().
		Str("kind", req.Kind).
		Int64("count", res.Count).
		Dur("elapsed", elapsed).
		Msg("query finished")

	return c.JSON(http.StatusOK, QueryResponse{Result: res, RequestID: GetRequestID(ctx)})
}

func (s *Server) handleTable(c echo.Context) error {
	return c.JSON(http.StatusOK, TableResponse{
		Dataset: s.runner.Name(),
		Rows:    s.runner.TableSize(),
		Kinds:   s.runner.Kinds(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	n := 10
	if v := c.QueryParam("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a non-negative integer")
		}
		n = parsed
	}
	return c.JSON(http.StatusOK, StatsResponse{Kinds: s.stats.GetTopKinds(n)})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"dataset": s.runner.Name(),
		"rows":    s.runner.TableSize(),
	})
}
