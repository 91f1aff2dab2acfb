package worker

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/alerts"
	"catalog-service/internal/broker"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

const dedupTTL = 24 * time.Hour

// MessageSource delivers broker messages to a handler
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockChecker runs a low-stock check
type StockChecker interface {
	CheckLowStock(ctx context.Context, force bool) (*alerts.Result, error)
}

// ConfigReader loads the alert configuration
type ConfigReader interface {
	GetAlertConfig(ctx context.Context) (*models.AlertConfiguration, error)
}

// IdempotencyStore records processed event IDs
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

// StockWorker reacts to stock changes by running an immediate low-stock check
type StockWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	checker      StockChecker
	configs      ConfigReader
	dedup        IdempotencyStore
	logger       *zap.Logger
}

// NewStockWorker creates a new stock worker. dedup may be nil.
func NewStockWorker(
	consumer MessageSource,
	checker StockChecker,
	configs ConfigReader,
	dedup IdempotencyStore,
) *StockWorker {
	w := &StockWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		checker:      checker,
		configs:      configs,
		dedup:        dedup,
		logger:       util.GetLogger().With(zap.String("component", "stock-worker")),
	}
	w.eventHandler.OnStockUpdated(w.HandleStockUpdated)
	return w
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.consumer.Close()
}

// HandleStockUpdated triggers a non-forced low-stock check when the updated
// product is now low. Redelivered events are skipped once they have been
// handled successfully; a failed attempt releases its claim so the
// redelivery runs again.
func (w *StockWorker) HandleStockUpdated(ctx context.Context, event *models.StockUpdatedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "StockWorker.HandleStockUpdated")
	defer span.End()

	if w.dedup != nil && event.EventID != "" {
		key := "stock-event:" + event.EventID
		fresh, dedupErr := w.dedup.SetIdempotencyKey(ctx, key, dedupTTL)
		switch {
		case dedupErr != nil:
			w.logger.Warn("Idempotency check failed, processing anyway",
				zap.String("event_id", event.EventID),
				zap.Error(dedupErr))
		case !fresh:
			w.logger.Debug("Duplicate stock event skipped", zap.String("event_id", event.EventID))
			return nil
		default:
			defer func() {
				if err == nil {
					return
				}
				if delErr := w.dedup.DeleteIdempotencyKey(context.WithoutCancel(ctx), key); delErr != nil {
					w.logger.Warn("Failed to release idempotency key",
						zap.String("event_id", event.EventID),
						zap.Error(delErr))
				}
			}()
		}
	}

	cfg, err := w.configs.GetAlertConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load alert configuration: %w", err)
	}
	if !cfg.IsEnabled {
		return nil
	}

	p := models.Product{
		ID:                event.ProductID,
		StockQuantity:     event.StockQuantity,
		LowStockThreshold: event.LowStockThreshold,
		StockStatus:       event.StockStatus,
	}
	if !p.IsLowStock(cfg.DefaultThreshold) {
		return nil
	}

	w.logger.Info("Product dropped to low stock, running check",
		zap.Int64("product_id", event.ProductID),
		zap.Int("stock_quantity", event.StockQuantity))

	result, err := w.checker.CheckLowStock(ctx, false)
	if err != nil {
		return fmt.Errorf("low stock check failed: %w", err)
	}

	w.logger.Info("Event-driven stock check finished",
		zap.Int64("product_id", event.ProductID),
		zap.String("outcome", string(result.Outcome)))
	return nil
}
