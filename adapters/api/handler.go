// Package api exposes the verification service over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hvt/app"
	"hvt/domain/verdict"
	"hvt/internal"
	"hvt/internal/errors"
)

// MaxDecisionsLimit caps the limit query parameter on /v1/decisions
const MaxDecisionsLimit = 1000

// VerifyRequest is the body of POST /v1/verify
type VerifyRequest struct {
	Task      string         `json:"task" binding:"required"`
	Prompt    string         `json:"prompt"`
	Candidate string         `json:"candidate"`
	Metadata  map[string]any `json:"metadata"`
}

// VerifyResponse wraps a verification result
type VerifyResponse struct {
	Result *verdict.VerificationResult `json:"result"`
}

// Handler serves the verification endpoints
type Handler struct {
	service *app.VerificationService
	logger  *internal.Logger
}

// NewHandler creates a handler over service
func NewHandler(service *app.VerificationService, logger *internal.Logger) *Handler {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &Handler{
		service: service,
		logger:  logger.With("api"),
	}
}

// RegisterRoutes mounts the /v1 endpoints on r
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/verify", h.Verify)
	v1.GET("/tasks", h.ListTasks)
	v1.GET("/decisions", h.ListDecisions)
}

// NewRouter builds a gin engine with recovery, the given middleware and the handler's routes
func NewRouter(h *Handler, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware...)
	h.RegisterRoutes(router)
	return router
}

// Verify issues a verdict for the posted candidate
func (h *Handler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := h.service.Verify(c.Request.Context(), req.Task, req.Prompt, req.Candidate, req.Metadata)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, VerifyResponse{Result: result})
}

// ListTasks returns every registered task
func (h *Handler) ListTasks(c *gin.Context) {
	tasks := h.service.Tasks()
	c.JSON(http.StatusOK, gin.H{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// ListDecisions returns recorded decisions, optionally filtered by task
func (h *Handler) ListDecisions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, MaxDecisionsLimit)
	}

	decisions, err := h.service.Decisions(c.Request.Context(), c.Query("task"), limit)
	if err == app.ErrNoLedger {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
