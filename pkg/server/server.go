// Package server 提供缓存的运维管理接口。
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"festcache/pkg/cache"
	"festcache/pkg/logger"
	"festcache/pkg/scheduler"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SetRequest 写入条目的请求体
type SetRequest struct {
	Value      any    `json:"value"`
	TTLSeconds int64  `json:"ttl_seconds"`
	Category   string `json:"category"`
	Namespace  string `json:"namespace"`
	NX         bool   `json:"nx"`
}

// sweeper 支持手动清理的后端
type sweeper interface {
	Sweep(ctx context.Context) int
}

// Server 管理接口
type Server struct {
	backend   cache.Backend
	scheduler scheduler.JobScheduler
	logger    *logrus.Entry
	server    *http.Server
}

// New 创建管理接口；jobs 可以为 nil
func New(backend cache.Backend, jobs scheduler.JobScheduler) *Server {
	return &Server{
		backend:   backend,
		scheduler: jobs,
		logger:    logger.WithComponent("admin-server"),
	}
}

// Router 构建路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/health", s.healthCheck)
	router.GET("/stats", s.getStats)
	router.POST("/stats/reset", s.resetStats)

	router.GET("/keys", s.listKeys)
	router.DELETE("/keys", s.deletePattern)

	// 逻辑键可以包含 "/"
	router.GET("/entries/*key", s.inspectEntry)
	router.PUT("/entries/*key", s.setEntry)
	router.DELETE("/entries/*key", s.deleteEntry)

	router.DELETE("/namespaces/:namespace", s.flushNamespace)
	router.POST("/sweep", s.sweep)

	if s.scheduler != nil {
		router.GET("/jobs", s.listJobs)
		router.POST("/jobs/:name/run", s.runJob)
	}

	return router
}

// Start 在后台启动 HTTP 服务
func (s *Server) Start(addr string) {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.WithField("addr", addr).Info("starting admin server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("admin server stopped unexpectedly")
		}
	}()
}

// Stop 优雅关闭 HTTP 服务
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("admin request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	health := s.backend.HealthCheck(ctx)
	if health.Status == cache.StatusHealthy {
		c.JSON(http.StatusOK, health)
	} else {
		c.JSON(http.StatusServiceUnavailable, health)
	}
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.backend.Stats())
}

func (s *Server) resetStats(c *gin.Context) {
	s.backend.ResetStats()
	c.JSON(http.StatusOK, s.backend.Stats())
}

// namespaceOpts 从查询参数读取 namespace
func namespaceOpts(c *gin.Context) []cache.Option {
	if ns := c.Query("namespace"); ns != "" {
		return []cache.Option{cache.WithNamespace(ns)}
	}
	return nil
}

func (s *Server) listKeys(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")

	keys, err := s.backend.Keys(c.Request.Context(), pattern, namespaceOpts(c)...)
	if err != nil {
		s.backendError(c, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"pattern": pattern, "count": len(keys), "keys": keys})
}

func (s *Server) deletePattern(c *gin.Context) {
	pattern := c.Query("pattern")
	if pattern == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "pattern is required"})
		return
	}

	n, err := s.backend.DelPattern(c.Request.Context(), pattern, namespaceOpts(c)...)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// entryKey 取出通配路径中的键，键为空时返回 400
func entryKey(c *gin.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: "key is required"})
		return "", false
	}
	return key, true
}

func (s *Server) inspectEntry(c *gin.Context) {
	key, ok := entryKey(c)
	if !ok {
		return
	}
	info, err := s.backend.Inspect(c.Request.Context(), key, namespaceOpts(c)...)
	if err != nil {
		s.backendError(c, err)
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "entry not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) setEntry(c *gin.Context) {
	key, ok := entryKey(c)
	if !ok {
		return
	}
	var req SetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	opts := namespaceOpts(c)
	if req.Namespace != "" {
		opts = append(opts, cache.WithNamespace(req.Namespace))
	}
	if req.TTLSeconds > 0 {
		opts = append(opts, cache.WithTTL(time.Duration(req.TTLSeconds)*time.Second))
	}
	if req.Category != "" {
		category, err := cache.ParseCategory(req.Category)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()})
			return
		}
		opts = append(opts, cache.WithCategory(category))
	}
	if req.NX {
		opts = append(opts, cache.WithNX())
	}

	stored, err := s.backend.Set(c.Request.Context(), key, req.Value, opts...)
	if err != nil {
		s.backendError(c, err)
		return
	}
	switch {
	case !stored && req.NX:
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: "entry already exists"})
		return
	case !stored:
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "too_large", Message: "value exceeds cache memory limit"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true})
}

func (s *Server) deleteEntry(c *gin.Context) {
	key, ok := entryKey(c)
	if !ok {
		return
	}
	ok, err := s.backend.Del(c.Request.Context(), key, namespaceOpts(c)...)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": ok})
}

func (s *Server) flushNamespace(c *gin.Context) {
	namespace := strings.TrimSpace(c.Param("namespace"))

	n, err := s.backend.FlushNamespace(c.Request.Context(), namespace)
	if err != nil {
		s.backendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespace": namespace, "deleted": n})
}

func (s *Server) sweep(c *gin.Context) {
	sw, ok := s.backend.(sweeper)
	if !ok {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "not_supported", Message: "backend expires entries on its own"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": sw.Sweep(c.Request.Context())})
}

// JobResponse 任务状态
type JobResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Schedule   string     `json:"schedule"`
	Status     string     `json:"status"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	RunCount   int64      `json:"run_count"`
	ErrorCount int64      `json:"error_count"`
	LastError  string     `json:"last_error,omitempty"`
}

func (s *Server) listJobs(c *gin.Context) {
	jobs := s.scheduler.GetAllJobs()

	resp := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		r := JobResponse{
			ID:         job.ID,
			Name:       job.Config.Name,
			Type:       job.Config.Type,
			Schedule:   job.Config.Schedule,
			Status:     string(job.Status),
			LastRun:    job.LastRun,
			NextRun:    job.NextRun,
			RunCount:   job.RunCount,
			ErrorCount: job.ErrorCount,
		}
		if job.LastError != nil {
			r.LastError = job.LastError.Error()
		}
		resp = append(resp, r)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) runJob(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.scheduler.GetJob(name); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
		return
	}

	err := s.scheduler.RunJob(c.Request.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "job_failed", Message: err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"job": name, "status": "completed"})
	}
}

// backendError 后端不可用返回 503，其余返回 500
func (s *Server) backendError(c *gin.Context, err error) {
	s.logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("cache operation failed")

	switch {
	case errors.Is(err, cache.ErrBackendUnavailable), errors.Is(err, cache.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: err.Error()})
	}
}
