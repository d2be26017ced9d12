// Package api is the gin HTTP surface over internal/service, implementing
// the six commands of spec.md §6 plus health endpoints, following the
// teacher's handler-struct-holding-service-references idiom
// (api/internal/api/handlers.go).
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/balajiparimelazhagan/fincoach-api/internal/coreerrors"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/service"
)

// discoverRateLimit bounds how often one process accepts a full discovery
// scan; Discover walks a user's entire unlinked transaction history, so it
// is the one route on this surface expensive enough to need throttling.
const (
	discoverRateLimit = rate.Limit(20)
	discoverBurst     = 40
)

// Handlers holds the service dependencies every route below needs.
type Handlers struct {
	patterns    *service.PatternService
	logger      *zap.Logger
	discoverLim *rate.Limiter
}

func NewHandlers(patterns *service.PatternService, logger *zap.Logger) *Handlers {
	return &Handlers{
		patterns:    patterns,
		logger:      logger,
		discoverLim: rate.NewLimiter(discoverRateLimit, discoverBurst),
	}
}

// RegisterRoutes wires every spec.md §6 command plus health endpoints onto
// router, following the teacher's cmd/main.go grouping-under-/api/v1 style.
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/patterns/discover", h.Discover)
		v1.GET("/patterns", h.ListPatterns)
		v1.GET("/patterns/:id", h.GetPattern)
		v1.GET("/patterns/:id/obligations", h.GetObligations)
		v1.GET("/obligations/upcoming", h.ListUpcoming)
		v1.PATCH("/patterns/:id", h.UpdatePattern)
	}
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "recurring-obligation-engine",
		"timestamp": time.Now().UTC(),
	})
}

// userID extracts the caller's identity, supplied by the identity/auth
// subsystem (spec.md §6 "Inputs from external collaborators") as a header
// set by whatever gateway sits in front of this service.
func userID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-Id")
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "missing or invalid X-User-Id header"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps a coreerrors.Code onto an HTTP status, per spec.md §6's
// error table.
func respondError(c *gin.Context, err error) {
	code := coreerrors.As(err)
	status := http.StatusInternalServerError
	switch code {
	case coreerrors.CodeNotFound:
		status = http.StatusNotFound
	case coreerrors.CodeConflict:
		status = http.StatusConflict
	case coreerrors.CodeInvalid:
		status = http.StatusBadRequest
	case coreerrors.CodeRetryable:
		status = http.StatusServiceUnavailable
	case coreerrors.CodeFatal:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": string(code), "message": err.Error()})
}

// Discover implements POST /patterns/discover (spec.md §6).
func (h *Handlers) Discover(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	if !h.discoverLim.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Retryable", "message": "discovery rate limit exceeded, retry later"})
		return
	}

	var filters grouping.Filters
	if payeeRaw := c.Query("payee_id"); payeeRaw != "" {
		payeeID, err := uuid.Parse(payeeRaw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid payee_id"})
			return
		}
		filters.PayeeID = &payeeID
	}
	if directionRaw := c.Query("direction"); directionRaw != "" {
		direction := models.Direction(directionRaw)
		if direction != models.DirectionDebit && direction != models.DirectionCredit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "direction must be debit or credit"})
			return
		}
		filters.Direction = &direction
	}

	result, err := h.patterns.Discover(c.Request.Context(), uid, filters)
	if err != nil {
		respondError(c, err)
		return
	}

	patterns := make([]gin.H, 0, len(result.Patterns))
	for _, outcome := range result.Patterns {
		patterns = append(patterns, gin.H{
			"pattern":           outcome.Pattern,
			"created":           outcome.Created,
			"detection_version": outcome.Pattern.DetectionVersion,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"patterns":   patterns,
		"rejections": result.Rejections,
	})
}

// ListPatterns implements GET /patterns (spec.md §6).
func (h *Handlers) ListPatterns(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	var status *models.PatternStatus
	if raw := c.Query("status"); raw != "" {
		s := models.PatternStatus(raw)
		status = &s
	}

	patterns, err := h.patterns.ListPatterns(c.Request.Context(), uid, status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

// GetPattern implements GET /patterns/{id} (spec.md §6).
func (h *Handlers) GetPattern(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	patternID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid pattern id"})
		return
	}

	detail, err := h.patterns.GetPattern(c.Request.Context(), uid, patternID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pattern":     detail.Pattern,
		"streak":      detail.Streak,
		"obligations": detail.Obligations,
	})
}

// GetObligations implements GET /patterns/{id}/obligations (spec.md §6).
func (h *Handlers) GetObligations(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	patternID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid pattern id"})
		return
	}

	var filter service.ObligationFilter
	if raw := c.Query("status"); raw != "" {
		s := models.ObligationStatus(raw)
		filter.Status = &s
	}
	if raw := c.Query("from"); raw != "" {
		t, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid from date"})
			return
		}
		filter.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, parseErr := time.Parse("2006-01-02", raw)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid to date"})
			return
		}
		filter.To = &t
	}

	obligations, err := h.patterns.GetObligations(c.Request.Context(), uid, patternID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"obligations": obligations})
}

// ListUpcoming implements GET /obligations/upcoming?days=N (spec.md §6).
func (h *Handlers) ListUpcoming(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}

	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "days must be a positive integer"})
		return
	}

	obligations, err := h.patterns.ListUpcoming(c.Request.Context(), uid, days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"obligations": obligations})
}

// updatePatternRequest is the PATCH /patterns/{id} body (spec.md §6
// "UpdatePattern": pause, resume, or hard-delete).
type updatePatternRequest struct {
	Action string `json:"action" binding:"required"`
}

// UpdatePattern implements PATCH /patterns/{id} (spec.md §6).
func (h *Handlers) UpdatePattern(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	patternID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "invalid pattern id"})
		return
	}

	var req updatePatternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": err.Error()})
		return
	}

	action := service.PatternAction(req.Action)
	if action != service.ActionPause && action != service.ActionResume && action != service.ActionDelete {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid", "message": "action must be pause, resume, or delete"})
		return
	}

	updated, err := h.patterns.UpdatePattern(c.Request.Context(), uid, patternID, action)
	if err != nil {
		respondError(c, err)
		return
	}
	if updated == nil {
		c.JSON(http.StatusOK, gin.H{"deleted": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": updated})
}
