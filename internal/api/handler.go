package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storelocator-service/internal/ocapi"
	"storelocator-service/internal/search"
	"storelocator-service/internal/service"
	"storelocator-service/internal/store"
	"storelocator-service/internal/timeslot"
	"storelocator-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	sync       *service.StoreSync
	searchSvc  *search.Service
	directory  *ocapi.StoresClient
	auditStore *store.Store
}

// NewHandler creates a new HTTP handler. auditStore may be nil when the
// service runs without a database.
func NewHandler(sync *service.StoreSync, searchSvc *search.Service, directory *ocapi.StoresClient, auditStore *store.Store) *Handler {
	return &Handler{
		sync:       sync,
		searchSvc:  searchSvc,
		directory:  directory,
		auditStore: auditStore,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stores", h.listStores)
		v1.GET("/stores/search", h.searchStores)
		v1.GET("/stores/:id", h.getStore)

		v1.GET("/session/store", h.getSession)
		v1.PUT("/session/store", h.selectStore)
		v1.DELETE("/session/store", h.deselectStore)
		v1.POST("/session/reservation", h.reserveSlot)
		v1.GET("/session/history", h.sessionHistory)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// listStores handles radius-filtered store listing
func (h *Handler) listStores(c *gin.Context) {
	stores, err := h.directory.FetchStores(c.Request.Context(),
		c.Query("latitude"), c.Query("longitude"), c.Query("max_distance"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stores})
}

// searchStores handles fuzzy plus geocoded store search
func (h *Handler) searchStores(c *gin.Context) {
	stores, err := h.searchSvc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stores})
}

// getStore handles single store lookup, decorated with the store's next
// available slot when its facility has one
func (h *Handler) getStore(c *gin.Context) {
	result, err := h.directory.FetchStore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if _, err := h.sync.NextSlot(c.Request.Context(), result); err != nil {
		// Slot lookup failures degrade to the undecorated store.
		result.NextSlot = nil
	}

	c.JSON(http.StatusOK, result)
}

// getSession initializes and returns the session's published selection
func (h *Handler) getSession(c *gin.Context) {
	usid, ok := h.usid(c)
	if !ok {
		return
	}

	selection, err := h.sync.Initialize(c.Request.Context(), usid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, selection)
}

type storeSelectionRequest struct {
	StoreID string `json:"store_id" binding:"required"`
}

// selectStore handles store selection
func (h *Handler) selectStore(c *gin.Context) {
	usid, ok := h.usid(c)
	if !ok {
		return
	}

	var req storeSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	selection, err := h.sync.SelectStore(c.Request.Context(), usid, req.StoreID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, selection)
}

// deselectStore handles clearing the store selection
func (h *Handler) deselectStore(c *gin.Context) {
	usid, ok := h.usid(c)
	if !ok {
		return
	}

	selection, err := h.sync.DeselectStore(c.Request.Context(), usid)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, selection)
}

// reserveSlot handles reserving the next available slot for a store
func (h *Handler) reserveSlot(c *gin.Context) {
	usid, ok := h.usid(c)
	if !ok {
		return
	}

	var req storeSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	selection, err := h.sync.ReserveSlotForStore(c.Request.Context(), usid, req.StoreID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, selection)
}

// sessionHistory returns the session's audit trail
func (h *Handler) sessionHistory(c *gin.Context) {
	if h.auditStore == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Audit trail not enabled"})
		return
	}

	usid, ok := h.usid(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.auditStore.GetEventsByUsid(c.Request.Context(), usid, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load session history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

// usid extracts the shopper session id; session routes require it.
func (h *Handler) usid(c *gin.Context) (string, bool) {
	usid := c.GetHeader("X-Usid")
	if usid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing X-Usid header"})
		return "", false
	}
	return usid, true
}

// writeError maps client-boundary errors to HTTP statuses. Upstream
// failures surface as 502 so callers can distinguish them from our own.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ocapi.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "details": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Invalid state transition", "details": err.Error()})
	case errors.Is(err, timeslot.ErrNotCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "Reservation not cancelled", "details": err.Error()})
	case errors.Is(err, service.ErrNoSlots), errors.Is(err, service.ErrNoFacility):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No slot available", "details": err.Error()})
	case errors.Is(err, ocapi.ErrTransport), errors.Is(err, timeslot.ErrTransport):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream failure", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
