package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-service/internal/models"
	"catalog-service/internal/store"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const statsCacheKey = "dashboard:stats"

var ErrInvalidStockUpdate = errors.New("invalid stock update")

// ProductStore is the catalog persistence used by ProductService
type ProductStore interface {
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*models.Product, error)
	GetLowStockProducts(ctx context.Context, defaultThreshold int) ([]models.Product, error)
	GetProductStats(ctx context.Context, defaultThreshold int) (*models.ProductStats, error)
	UpdateProductStock(ctx context.Context, productID int64, upd store.StockUpdate) (before, after *models.Product, err error)
	GetAlertConfig(ctx context.Context) (*models.AlertConfiguration, error)
}

// StatsCache caches JSON values
type StatsCache interface {
	CacheJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetCachedJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	Invalidate(ctx context.Context, key string) error
}

// StockEventPublisher announces stock changes
type StockEventPublisher interface {
	PublishStockUpdated(ctx context.Context, event *models.StockUpdatedEvent) error
}

// ProductService handles catalog reads and stock updates
type ProductService struct {
	store     ProductStore
	cache     StatsCache
	publisher StockEventPublisher
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewProductService creates a new product service. cache and publisher may be nil.
func NewProductService(
	store ProductStore,
	cache StatsCache,
	publisher StockEventPublisher,
	cacheTTL time.Duration,
) *ProductService {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &ProductService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		cacheTTL:  cacheTTL,
		logger:    util.GetLogger(),
	}
}

// StockUpdateRequest represents a request to change a product's stock
type StockUpdateRequest struct {
	StockQuantity     *int    `json:"stock_quantity" binding:"required"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty"`
	StockStatus       *string `json:"stock_status,omitempty"`
}

// Validate checks quantity, threshold and status ranges
func (r *StockUpdateRequest) Validate() error {
	if r.StockQuantity == nil {
		return fmt.Errorf("%w: stock_quantity is required", ErrInvalidStockUpdate)
	}
	if *r.StockQuantity < 0 {
		return fmt.Errorf("%w: stock_quantity must not be negative", ErrInvalidStockUpdate)
	}
	if r.LowStockThreshold != nil && *r.LowStockThreshold < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidStockUpdate, models.ErrInvalidThreshold)
	}
	if r.StockStatus != nil {
		switch *r.StockStatus {
		case models.StockStatusAvailable, models.StockStatusOutOfStock, models.StockStatusInquire:
		default:
			return fmt.Errorf("%w: unknown stock_status %q", ErrInvalidStockUpdate, *r.StockStatus)
		}
	}
	return nil
}

// ListProducts returns all products, or only low-stock ones when lowStockOnly is set
func (s *ProductService) ListProducts(ctx context.Context, lowStockOnly bool) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.ListProducts")
	defer span.End()

	if !lowStockOnly {
		return s.store.GetProducts(ctx)
	}

	cfg, err := s.store.GetAlertConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert configuration: %w", err)
	}
	return s.store.GetLowStockProducts(ctx, cfg.DefaultThreshold)
}

// GetProduct retrieves a product by ID
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

// GetProductBySKU retrieves a product by its SKU
func (s *ProductService) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	return s.store.GetProductBySKU(ctx, strings.TrimSpace(sku))
}

// UpdateStock persists a stock change, drops the cached dashboard stats and
// publishes a StockUpdated event.
func (s *ProductService) UpdateStock(ctx context.Context, productID int64, req *StockUpdateRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateStock")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	before, after, err := s.store.UpdateProductStock(ctx, productID, store.StockUpdate{
		StockQuantity:     *req.StockQuantity,
		LowStockThreshold: req.LowStockThreshold,
		StockStatus:       req.StockStatus,
	})
	if err != nil {
		return nil, err
	}

	util.StockUpdatesTotal.Inc()
	s.logger.Info("Stock updated",
		zap.Int64("product_id", productID),
		zap.Int("previous_quantity", before.StockQuantity),
		zap.Int("stock_quantity", after.StockQuantity),
		zap.String("stock_status", after.StockStatus))

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, statsCacheKey); err != nil {
			s.logger.Warn("Failed to invalidate stats cache", zap.Error(err))
		}
	}

	if s.publisher != nil {
		event := &models.StockUpdatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockUpdated,
				Timestamp: time.Now(),
			},
			ProductID:         after.ID,
			SKU:               after.SKU,
			PreviousQuantity:  before.StockQuantity,
			StockQuantity:     after.StockQuantity,
			LowStockThreshold: after.LowStockThreshold,
			StockStatus:       after.StockStatus,
		}
		if err := s.publisher.PublishStockUpdated(ctx, event); err != nil {
			s.logger.Error("Failed to publish StockUpdated event", zap.Error(err))
		}
	}

	return after, nil
}

// GetDashboardStats returns inventory totals, served from cache when fresh
func (s *ProductService) GetDashboardStats(ctx context.Context) (*models.ProductStats, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetDashboardStats")
	defer span.End()

	if s.cache != nil {
		var cached models.ProductStats
		found, err := s.cache.GetCachedJSON(ctx, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("Stats cache read failed", zap.Error(err))
		}
		if found {
			util.StatsCacheRequestsTotal.WithLabelValues("hit").Inc()
			return &cached, nil
		}
		util.StatsCacheRequestsTotal.WithLabelValues("miss").Inc()
	}

	cfg, err := s.store.GetAlertConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert configuration: %w", err)
	}

	stats, err := s.store.GetProductStats(ctx, cfg.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to get product stats: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.CacheJSON(ctx, statsCacheKey, stats, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache stats", zap.Error(err))
		}
	}

	return stats, nil
}
