// Package server exposes the read-only catalog contract over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/internal/metrics"
	"github.com/terrorobe/cubscrape-sub001/internal/snapshot"
	"github.com/terrorobe/cubscrape-sub001/internal/store"
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/query"
	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

// Rebuilder runs a rebuild on demand.
type Rebuilder interface {
	Rebuild(ctx context.Context) (snapshot.Meta, error)
}

// Options wires a Server. Store, Rebuilder and Metrics are optional.
type Options struct {
	Holder    *snapshot.Holder
	Store     store.Store
	Rebuilder Rebuilder
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Port      int
}

// Server provides the HTTP API.
type Server struct {
	e      *echo.Echo
	opts   Options
	logger *zap.Logger
	start  time.Time
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = 8080
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Holder == nil {
		opts.Holder = snapshot.NewHolder(nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, opts: opts, logger: opts.Logger.Named("server"), start: time.Now()}
	e.HTTPErrorHandler = s.handleError
	e.Use(echomw.Recover())
	e.Use(s.requestLogger)

	e.GET("/health", s.handleHealth)
	if opts.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/v1")
	api.GET("/games", s.handleGames)
	api.GET("/game", s.handleGame)
	api.GET("/videos", s.handleVideos)
	api.GET("/card", s.handleCard)
	api.GET("/fetch-requests", s.handleFetchRequests)
	api.GET("/platforms", s.handlePlatforms)
	api.POST("/rebuild", s.handleRebuild)
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.e }

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.opts.Port)
	s.logger.Info("server listening", zap.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		res := c.Response()
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}

		id := req.Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		s.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.String("route", c.Path()),
			zap.Int("status", res.Status),
			zap.Duration("took", time.Since(start)),
			zap.String("response_size", strconv.FormatInt(res.Size, 10)))
		return nil
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}
	if err := c.JSON(status, map[string]string{"error": msg}); err != nil {
		s.logger.Warn("write error response", zap.Error(err))
	}
}

// current returns the active snapshot or a 503.
func (s *Server) current() (*snapshot.Snapshot, error) {
	snap := s.opts.Holder.Load()
	if snap == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "no snapshot has been built yet")
	}
	return snap, nil
}

func keyParam(c echo.Context) (catalog.Key, error) {
	key := catalog.Key(c.QueryParam("key"))
	if !key.Valid() {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid game key %q", key))
	}
	return key, nil
}

func notFound(err error) error {
	if errors.Is(err, snapshot.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if snap := s.opts.Holder.Load(); snap != nil {
		meta := snap.Meta()
		resp["snapshot"] = map[string]any{
			"id":       meta.ID,
			"built_at": meta.BuiltAt,
			"entities": meta.Entities,
			"visible":  meta.Visible,
		}
	} else {
		resp["status"] = "starting"
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGames(c echo.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	req := query.ParseParams(c.QueryParams())
	page, err := snap.Query(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":     page.Items,
		"count":    len(page.Items),
		"total":    page.Total,
		"query":    req.Values().Encode(),
		"snapshot": snap.Meta().ID,
	})
}

func (s *Server) handleGame(c echo.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	e, err := snap.Entity(c.Request().Context(), key)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": e})
}

func (s *Server) handleVideos(c echo.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	videos, err := snap.VideosFor(c.Request().Context(), key)
	if err != nil {
		return notFound(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": videos, "count": len(videos)})
}

func (s *Server) handleCard(c echo.Context) error {
	snap, err := s.current()
	if err != nil {
		return err
	}
	key, err := keyParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	e, err := snap.Entity(ctx, key)
	if err != nil {
		return notFound(err)
	}
	card, err := snap.Display(ctx, e)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": card})
}

func (s *Server) handleFetchRequests(c echo.Context) error {
	if s.opts.Store != nil {
		reqs, err := s.opts.Store.ListFetchRequests(c.Request().Context(), store.FetchListOpts{
			PendingOnly: c.QueryParam("all") != "true",
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{"data": reqs, "count": len(reqs)})
	}

	snap, err := s.current()
	if err != nil {
		return err
	}
	reqs := snap.FetchRequests()
	return c.JSON(http.StatusOK, map[string]any{"data": reqs, "count": len(reqs)})
}

func (s *Server) handlePlatforms(c echo.Context) error {
	if s.opts.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "raw store not configured")
	}
	counts, err := s.opts.Store.CountGamesByPlatform(c.Request().Context())
	if err != nil {
		return err
	}

	type platformInfo struct {
		Name    string `json:"name"`
		Records int    `json:"records"`
	}
	var infos []platformInfo
	for _, p := range catalog.AllPlatforms() {
		infos = append(infos, platformInfo{Name: string(p), Records: counts[p]})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": infos, "count": len(infos)})
}

func (s *Server) handleRebuild(c echo.Context) error {
	if s.opts.Rebuilder == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "rebuilds are not enabled")
	}
	meta, err := s.opts.Rebuilder.Rebuild(c.Request().Context())
	switch {
	case errors.Is(err, snapshot.ErrLocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, resolve.ErrEmptyInput), errors.Is(err, resolve.ErrNoValidRecords):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"data": meta})
}
