package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"declutter-go/internal/declutter"
	"declutter-go/internal/jobs"
)

// respondError maps service errors onto HTTP statuses. Unexpected errors are
// logged and reported without detail.
func (s *Server) respondError(c *gin.Context, err error) {
	var denied *declutter.FeatureGateDenied
	switch {
	case errors.As(err, &denied):
		status := http.StatusPaymentRequired
		if denied.Reason == declutter.ReasonUnauthorized {
			status = http.StatusForbidden
		}
		body := gin.H{"error": denied.Reason, "feature": denied.Feature}
		if denied.Reason == declutter.ReasonUsageLimitExceeded {
			body["usage"] = denied.Usage
			body["limit"] = denied.Limit
		}
		c.JSON(status, body)
	case declutter.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, declutter.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, declutter.ErrInventoryFetch):
		s.logger.Error("inventory fetch failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inventory unavailable, retry later"})
	default:
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
