// Package api exposes the decluttering operations over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"declutter-go/internal/declutter"
	"declutter-go/internal/jobs"
)

const ownerKey = "owner_id"

// Server holds the handlers' dependencies.
type Server struct {
	svc    *declutter.Service
	jobs   *jobs.Store
	logger declutter.Logger
}

func NewServer(svc *declutter.Service, store *jobs.Store, logger declutter.Logger) *Server {
	if logger == nil {
		logger = declutter.NewNopLogger()
	}
	return &Server{svc: svc, jobs: store, logger: logger}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// ownerMiddleware reads the authenticated user from X-User-ID, which an
// upstream gateway sets.
func ownerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid X-User-ID"})
			return
		}
		c.Set(ownerKey, id)
		c.Next()
	}
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func ownerFromContext(c *gin.Context) int64 {
	return c.GetInt64(ownerKey)
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests(), corsMiddleware())

	api := r.Group("/api")
	api.GET("/health", s.health)

	owned := api.Group("", ownerMiddleware())
	{
		owned.GET("/duplicates", s.listDuplicates)
		owned.GET("/duplicates/similar", s.listSimilar)
		owned.POST("/duplicates/merge", s.mergeGroup)
		owned.POST("/duplicates/batch-merge", s.batchMerge)
		owned.POST("/duplicates/retry-deletes", s.retryDeletes)

		owned.GET("/jobs/:id", s.getJob)
		owned.DELETE("/jobs/:id", s.cancelJob)

		owned.GET("/analytics/storage", s.analyzeStorage)
		owned.GET("/analytics/savings", s.calculateSavings)
		owned.POST("/analytics/recommendations", s.generateRecommendations)
		owned.GET("/analytics/recommendations", s.listRecommendations)
		owned.PATCH("/analytics/recommendations/:id", s.updateRecommendation)
		owned.GET("/analytics/history", s.history)
		owned.GET("/analytics/costs", s.providerCosts)
		owned.POST("/analytics/roi", s.roi)
		owned.POST("/analytics/optimization-potential", s.optimizationPotential)

		owned.POST("/files/:id/access", s.recordAccess)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
