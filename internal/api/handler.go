package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/alerts"
	"catalog-service/internal/models"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// ProductService is the catalog API backing the product routes
type ProductService interface {
	ListProducts(ctx context.Context, lowStockOnly bool) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	UpdateStock(ctx context.Context, productID int64, req *service.StockUpdateRequest) (*models.Product, error)
	GetDashboardStats(ctx context.Context) (*models.ProductStats, error)
}

// ConfigService reads and updates alert configuration
type ConfigService interface {
	GetConfig(ctx context.Context) (*models.AlertConfiguration, error)
	UpdateConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error)
}

// AlertEngine exposes the manual triggers and status of the alert engine
type AlertEngine interface {
	ManualStockCheck(ctx context.Context, force bool) (*alerts.Result, error)
	ManualDigest(ctx context.Context, frequency string) (*alerts.Result, error)
	Notifications(ctx context.Context, limit int) ([]models.AlertNotification, error)
	Status() alerts.Status
}

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// Handler contains HTTP handlers
type Handler struct {
	products   ProductService
	configs    ConfigService
	engine     AlertEngine
	adminToken string
	checks     map[string]ReadinessCheck
}

// NewHandler creates a new HTTP handler. An empty adminToken leaves admin
// routes open.
func NewHandler(products ProductService, configs ConfigService, engine AlertEngine, adminToken string) *Handler {
	return &Handler{
		products:   products,
		configs:    configs,
		engine:     engine,
		adminToken: adminToken,
		checks:     make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency probed by /ready
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
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
	admin := v1.Group("", h.requireAdmin())
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/sku/:sku", h.getProductBySKU)
		v1.GET("/dashboard/stats", h.dashboardStats)

		v1.GET("/alerts/config", h.getAlertConfig)
		v1.GET("/alerts/notifications", h.listNotifications)
		v1.GET("/alerts/status", h.alertStatus)

		admin.PATCH("/products/:id/stock", h.updateStock)
		admin.PUT("/alerts/config", h.updateAlertConfig)
		admin.POST("/alerts/check-stock", h.checkStock)
		admin.POST("/alerts/send-digest", h.sendDigest)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck probes every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"errors": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	lowStockOnly, _ := strconv.ParseBool(c.Query("low_stock"))

	products, err := h.products.ListProducts(c.Request.Context(), lowStockOnly)
	if err != nil {
		respondError(c, err, "Failed to list products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Failed to get product")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) getProductBySKU(c *gin.Context) {
	product, err := h.products.GetProductBySKU(c.Request.Context(), c.Param("sku"))
	if err != nil {
		respondError(c, err, "Failed to get product")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateStock(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		return
	}

	var req service.StockUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.products.UpdateStock(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err, "Failed to update stock")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *Handler) dashboardStats(c *gin.Context) {
	stats, err := h.products.GetDashboardStats(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to get dashboard stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) getAlertConfig(c *gin.Context) {
	cfg, err := h.configs.GetConfig(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to get alert configuration")
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) updateAlertConfig(c *gin.Context) {
	var upd models.AlertConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	cfg, err := h.configs.UpdateConfig(c.Request.Context(), upd)
	if err != nil {
		respondError(c, err, "Failed to update alert configuration")
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) checkStock(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))

	result, err := h.engine.ManualStockCheck(c.Request.Context(), force)
	if err != nil {
		respondError(c, err, "Stock check failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

type sendDigestRequest struct {
	Frequency string `json:"frequency" binding:"required"`
}

func (h *Handler) sendDigest(c *gin.Context) {
	var req sendDigestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.engine.ManualDigest(c.Request.Context(), strings.ToLower(req.Frequency))
	if err != nil {
		respondError(c, err, "Digest failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) listNotifications(c *gin.Context) {
	limit := defaultNotificationLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	entries, err := h.engine.Notifications(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, "Failed to list notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": entries,
		"count":         len(entries),
	})
}

func (h *Handler) alertStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// requireAdmin checks the bearer token when one is configured
func (h *Handler) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" {
			c.Next()
			return
		}

		token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto HTTP status codes
func respondError(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrProductNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidConfig),
		errors.Is(err, service.ErrInvalidStockUpdate),
		errors.Is(err, alerts.ErrInvalidFrequency):
		status = http.StatusBadRequest
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
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
