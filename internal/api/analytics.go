package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"declutter-go/internal/cost"
	"declutter-go/internal/model"
)

func (s *Server) analyzeStorage(c *gin.Context) {
	report, err := s.svc.AnalyzeStorage(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) calculateSavings(c *gin.Context) {
	report, err := s.svc.CalculateSavings(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) generateRecommendations(c *gin.Context) {
	recs, err := s.svc.GenerateRecommendations(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recommendations": nonNil(recs)})
}

func (s *Server) listRecommendations(c *gin.Context) {
	status := model.RecommendationStatus(c.Query("status"))
	if status != "" && !model.ValidRecommendationStatus(status) {
		badRequest(c, "unknown status: "+string(status))
		return
	}
	recs, err := s.svc.ListRecommendations(c.Request.Context(), ownerFromContext(c), status)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": nonNil(recs)})
}

func (s *Server) updateRecommendation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid recommendation id")
		return
	}
	var body struct {
		Status model.RecommendationStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !model.ValidRecommendationStatus(body.Status) {
		badRequest(c, "unknown status: "+string(body.Status))
		return
	}

	if err := s.svc.SetRecommendationStatus(c.Request.Context(), ownerFromContext(c), id, body.Status); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": body.Status})
}

func (s *Server) history(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	snaps, err := s.svc.History(c.Request.Context(), ownerFromContext(c), limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": nonNil(snaps)})
}

func (s *Server) providerCosts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rates": s.svc.Costs().ProviderCosts()})
}

type roiRequest struct {
	Investment float64 `json:"investment"`
	// YearlySavings, when set, is used as is. Otherwise it is derived from
	// DuplicateGB priced at Provider.
	YearlySavings *float64 `json:"yearly_savings"`
	DuplicateGB   float64  `json:"duplicate_gb"`
	Provider      string   `json:"provider"`
}

func (s *Server) roi(c *gin.Context) {
	var req roiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Investment < 0 || req.DuplicateGB < 0 {
		badRequest(c, "investment and duplicate_gb must not be negative")
		return
	}

	yearly := s.svc.Costs().YearlySavings(req.DuplicateGB, req.Provider)
	if req.YearlySavings != nil {
		yearly = *req.YearlySavings
	}
	c.JSON(http.StatusOK, gin.H{
		"yearly_savings": yearly,
		"roi":            cost.CalculateROI(req.Investment, yearly),
	})
}

func (s *Server) optimizationPotential(c *gin.Context) {
	var req struct {
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	potential, err := s.svc.OptimizationPotential(c.Request.Context(), ownerFromContext(c), req.Provider)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": req.Provider, "techniques": potential})
}
