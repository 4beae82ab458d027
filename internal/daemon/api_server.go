package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scribeq/internal/api"
	"scribeq/internal/config"
	"scribeq/internal/logging"
	"scribeq/internal/queue"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService
	engine   *gin.Engine

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.API.Bind),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		queueSvc: d.service,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), srv.requestLogger())
	if len(cfg.API.CORSOrigins) > 0 {
		engine.Use(cors.New(corsConfig(cfg.API.CORSOrigins)))
	}

	v1 := engine.Group("/api/v1")
	v1.GET("/health", srv.handleHealth)

	authed := v1.Group("")
	authed.Use(authMiddleware(cfg.API.Token, cfg.API.JWTSecret))
	{
		authed.GET("/stats", srv.handleStats)

		jobs := authed.Group("/jobs")
		jobs.POST("", srv.handleEnqueue)
		jobs.GET("", srv.handleList)
		jobs.POST("/claim", srv.handleClaim)
		jobs.GET("/:id", srv.handleGet)
		jobs.POST("/:id/finalize", srv.handleFinalize)
		jobs.POST("/:id/requeue", srv.handleRequeue)
	}
	srv.engine = engine

	srv.server = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestLogger tags each request with a correlation id and logs its outcome.
func (s *apiServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String(logging.FieldCorrelationID, requestID),
			logging.String("method", c.Request.Method),
			logging.String("route", c.FullPath()),
			logging.Int("status", status),
			logging.Duration("elapsed", time.Since(started)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Warn("api request failed", logging.Args(attrs...)...)
		default:
			s.logger.Debug("api request", logging.Args(attrs...)...)
		}
	}
}

func (s *apiServer) handleHealth(c *gin.Context) {
	report, err := s.queueSvc.Health(c.Request.Context())
	if err != nil {
		report.Healthy = false
		if report.Database.Error == "" {
			report.Database.Error = err.Error()
		}
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	if !report.Healthy {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *apiServer) handleStats(c *gin.Context) {
	counts, err := s.queueSvc.Stats(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	c.JSON(http.StatusOK, api.QueueStatsResponse{Counts: counts, Total: total})
}

func (s *apiServer) handleEnqueue(c *gin.Context) {
	var req api.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, "enqueue job", err)
		return
	}
	if submitter := submitterFromContext(c); submitter != "" {
		req.SubmitterID = submitter
	}
	id, err := s.queueSvc.Enqueue(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.EnqueueResponse{ID: id})
}

func (s *apiServer) handleGet(c *gin.Context) {
	job, err := s.queueSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleList(c *gin.Context) {
	filter := queue.ListFilter{}
	for _, raw := range c.QueryArray("status") {
		for _, value := range strings.Split(raw, ",") {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			status, ok := queue.ParseStatus(value)
			if !ok {
				s.writeError(c, &queue.Error{Op: "list jobs", Kind: queue.KindInvalidArgument, Err: fmt.Errorf("unknown status %q", value)})
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(c, &queue.Error{Op: "list jobs", Kind: queue.KindInvalidArgument, Err: fmt.Errorf("invalid limit %q", raw)})
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.queueSvc.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleClaim(c *gin.Context) {
	var req api.ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, "claim jobs", err)
		return
	}
	jobs, err := s.queueSvc.Claim(c.Request.Context(), req.WorkerID, req.Limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ClaimResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleFinalize(c *gin.Context) {
	var req api.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, "finalize job", err)
		return
	}
	if err := s.queueSvc.Finalize(c.Request.Context(), c.Param("id"), req); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *apiServer) handleRequeue(c *gin.Context) {
	var req api.RequeueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, "requeue job", err)
		return
	}
	if _, err := s.queueSvc.Requeue(c.Request.Context(), c.Param("id"), req.WorkerID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *apiServer) writeBindError(c *gin.Context, op string, err error) {
	s.writeError(c, &queue.Error{Op: op, Kind: queue.KindInvalidArgument, Err: fmt.Errorf("decode request body: %w", err)})
}

func (s *apiServer) writeError(c *gin.Context, err error) {
	kind := queue.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(s.logger, "api request error", "api_request_error",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(kind)),
			logging.String(logging.FieldCorrelationID, c.Writer.Header().Get(requestIDHeader)),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func statusForKind(kind queue.Kind) int {
	switch kind {
	case queue.KindNotFound:
		return http.StatusNotFound
	case queue.KindInvalidArgument:
		return http.StatusBadRequest
	case queue.KindStoreCorruption:
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}
