// Package httpapi exposes the clustering and ranking services over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/lens/internal/cluster"
	"horse.fit/lens/internal/db"
	"horse.fit/lens/internal/globaltime"
	"horse.fit/lens/internal/rank"
	"horse.fit/lens/internal/ranker"
)

const (
	defaultRankCount = 30
	maxRankCount     = 100
	defaultPageSize  = 25
	maxPageSize      = 200
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	pool     *db.Pool
	clusters *cluster.Service
	pipeline *rank.Pipeline
	scorer   *ranker.Scorer
	logger   zerolog.Logger
	opts     Options
}

func NewServer(
	pool *db.Pool,
	clusters *cluster.Service,
	pipeline *rank.Pipeline,
	scorer *ranker.Scorer,
	logger zerolog.Logger,
	opts Options,
) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		clusters: clusters,
		pipeline: pipeline,
		scorer:   scorer,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)

	api := e.Group("/api/v1")
	api.GET("/rank", s.handleRank)
	api.GET("/stories", s.handleStories)
	api.GET("/stories/:story_uuid", s.handleStoryDetail)
	api.POST("/stories/:story_id/split", s.handleStorySplit)
	api.POST("/stories/merge", s.handleStoryMerge)
	api.POST("/events", s.handleEventAppend)
	api.GET("/articles/:article_id/explain", s.handleExplain)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("lens api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("lens api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "lens",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleRank(c echo.Context) error {
	userID, err := queryInt64(c, "user_id")
	if err != nil || userID <= 0 {
		return fail(c, http.StatusBadRequest, "user_id is required", nil)
	}

	count := defaultRankCount
	if raw := strings.TrimSpace(c.QueryParam("count")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fail(c, http.StatusBadRequest, "count must be a positive integer", nil)
		}
		count = parsed
	}
	if count > maxRankCount {
		count = maxRankCount
	}

	items, err := s.pipeline.Rank(c.Request().Context(), userID, count, nil)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("rank request failed")
		return internalError(c, "Failed to rank articles")
	}
	if items == nil {
		items = []rank.Item{}
	}
	return success(c, map[string]any{
		"user_id": userID,
		"items":   items,
	})
}

func (s *Server) handleStories(c echo.Context) error {
	limit := defaultPageSize
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer", nil)
		}
		limit = parsed
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	stories, err := s.pool.ListStories(c.Request().Context(), c.QueryParam("q"), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list stories failed")
		return internalError(c, "Failed to load stories")
	}
	return success(c, map[string]any{"stories": stories})
}

func (s *Server) handleStoryDetail(c echo.Context) error {
	storyUUID := strings.TrimSpace(c.Param("story_uuid"))
	if storyUUID == "" {
		return fail(c, http.StatusBadRequest, "story UUID is required", nil)
	}

	detail, err := s.pool.GetStoryDetail(c.Request().Context(), storyUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Story not found")
		}
		s.logger.Error().Err(err).Str("story_uuid", storyUUID).Msg("story detail failed")
		return internalError(c, "Failed to load story")
	}
	return success(c, detail)
}

type splitRequest struct {
	ArticleIDs []int64 `json:"article_ids"`
}

func (s *Server) handleStorySplit(c echo.Context) error {
	storyID, err := paramInt64(c, "story_id")
	if err != nil || storyID <= 0 {
		return fail(c, http.StatusBadRequest, "story id must be a positive integer", nil)
	}

	var req splitRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}

	newStoryID, err := s.clusters.SplitStory(c.Request().Context(), storyID, req.ArticleIDs)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrStoryNotFound):
			return failNotFound(c, "Story not found")
		case errors.Is(err, cluster.ErrInvalidSplit):
			return fail(c, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			s.logger.Error().Err(err).Int64("story_id", storyID).Msg("story split failed")
			return internalError(c, "Failed to split story")
		}
	}
	return successWithStatus(c, http.StatusCreated, map[string]any{
		"story_id":     storyID,
		"new_story_id": newStoryID,
	})
}

type mergeRequest struct {
	SourceStoryID int64 `json:"source_story_id"`
	TargetStoryID int64 `json:"target_story_id"`
}

func (s *Server) handleStoryMerge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if req.SourceStoryID <= 0 || req.TargetStoryID <= 0 {
		return fail(c, http.StatusBadRequest, "source_story_id and target_story_id are required", nil)
	}

	err := s.clusters.MergeStories(c.Request().Context(), req.SourceStoryID, req.TargetStoryID)
	if err != nil {
		switch {
		case errors.Is(err, cluster.ErrStoryNotFound):
			return failNotFound(c, "Story not found")
		case errors.Is(err, cluster.ErrInvalidMerge):
			return fail(c, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			s.logger.Error().Err(err).
				Int64("source_story_id", req.SourceStoryID).
				Int64("target_story_id", req.TargetStoryID).
				Msg("story merge failed")
			return internalError(c, "Failed to merge stories")
		}
	}
	return success(c, map[string]any{
		"merged_into": req.TargetStoryID,
	})
}

type eventRequest struct {
	ArticleID  int64    `json:"article_id"`
	UserID     int64    `json:"user_id"`
	EventType  string   `json:"event_type"`
	DurationMS *int64   `json:"duration_ms,omitempty"`
	VisibleMS  *int64   `json:"visible_ms,omitempty"`
	ScrollPct  *float64 `json:"scroll_pct,omitempty"`
}

func (s *Server) handleEventAppend(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if req.ArticleID <= 0 || req.UserID <= 0 {
		return fail(c, http.StatusBadRequest, "article_id and user_id are required", nil)
	}
	if !db.IsValidEventType(req.EventType) {
		return fail(c, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", req.EventType), nil)
	}

	eventID, err := s.pool.InsertEvent(c.Request().Context(), db.InsertEventRequest{
		ArticleID:  req.ArticleID,
		UserID:     req.UserID,
		EventType:  req.EventType,
		DurationMS: req.DurationMS,
		VisibleMS:  req.VisibleMS,
		ScrollPct:  req.ScrollPct,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Int64("article_id", req.ArticleID).
			Int64("user_id", req.UserID).
			Msg("event append failed")
		return internalError(c, "Failed to record event")
	}
	return successWithStatus(c, http.StatusCreated, map[string]any{
		"event_id": eventID,
	})
}

func (s *Server) handleExplain(c echo.Context) error {
	articleID, err := paramInt64(c, "article_id")
	if err != nil || articleID <= 0 {
		return fail(c, http.StatusBadRequest, "article id must be a positive integer", nil)
	}
	userID, err := queryInt64(c, "user_id")
	if err != nil || userID <= 0 {
		return fail(c, http.StatusBadRequest, "user_id is required", nil)
	}

	explanation, err := s.scorer.Explain(c.Request().Context(), articleID, userID)
	if err != nil {
		if errors.Is(err, ranker.ErrPredictionNotFound) || db.IsNoRows(err) {
			return failNotFound(c, "No cached prediction for this article")
		}
		s.logger.Error().Err(err).
			Int64("article_id", articleID).
			Int64("user_id", userID).
			Msg("explain failed")
		return internalError(c, "Failed to explain prediction")
	}
	return success(c, explanation)
}

func paramInt64(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
}

func queryInt64(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(c.QueryParam(name)), 10, 64)
}
