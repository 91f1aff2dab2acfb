package alerts

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/mailer"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome describes how an alert run ended
type Outcome string

const (
	OutcomeSent                Outcome = "sent"
	OutcomeFailed              Outcome = "failed"
	OutcomeDisabled            Outcome = "disabled"
	OutcomeNoRecipients        Outcome = "no_recipients"
	OutcomeNoLowStock          Outcome = "no_low_stock"
	OutcomeAllRecentlyNotified Outcome = "all_recently_notified"
	OutcomeAlreadySent         Outcome = "already_sent"
	OutcomeInFlight            Outcome = "skipped_in_flight"
)

// Result summarises a low-stock check or digest run
type Result struct {
	Outcome       Outcome `json:"outcome"`
	LowStockCount int     `json:"low_stock_count"`
	ProductIDs    []int64 `json:"product_ids,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// CheckLowStock sends one consolidated email covering every low-stock product
// not notified within the last 24 hours. force ignores that window. Mail
// failures are recorded in the notification log, not returned.
func (e *Engine) CheckLowStock(ctx context.Context, force bool) (*Result, error) {
	ctx, span := util.StartSpan(ctx, "AlertEngine.CheckLowStock")
	defer span.End()

	release, ok := e.acquire(ctx, TaskStockCheck)
	if !ok {
		e.logger.Info("Stock check already in flight, skipping")
		return e.finish(TaskStockCheck, &Result{Outcome: OutcomeInFlight}), nil
	}
	defer release()

	cfg, err := e.configs.GetAlertConfig(ctx)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(TaskStockCheck, "error").Inc()
		return nil, fmt.Errorf("failed to load alert configuration: %w", err)
	}
	if !cfg.IsEnabled {
		e.logger.Info("Alerts disabled, skipping stock check")
		return e.finish(TaskStockCheck, &Result{Outcome: OutcomeDisabled}), nil
	}
	if !cfg.HasRecipients() {
		e.logger.Info("No alert recipients configured, skipping stock check")
		return e.finish(TaskStockCheck, &Result{Outcome: OutcomeNoRecipients}), nil
	}

	products, err := e.inventory.GetLowStockProducts(ctx, cfg.DefaultThreshold)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(TaskStockCheck, "error").Inc()
		return nil, fmt.Errorf("failed to get low stock products: %w", err)
	}
	if len(products) == 0 {
		e.logger.Info("No low stock products")
		return e.finish(TaskStockCheck, &Result{Outcome: OutcomeNoLowStock}), nil
	}

	now := e.now()
	eligible := eligibleForNotification(products, now, force)
	if len(eligible) == 0 {
		e.logger.Info("All low stock products notified recently",
			zap.Int("low_stock", len(products)))
		return e.finish(TaskStockCheck, &Result{
			Outcome:       OutcomeAllRecentlyNotified,
			LowStockCount: len(products),
		}), nil
	}

	subject, body, err := renderLowStock(eligible, cfg.DefaultThreshold, now)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(TaskStockCheck, "error").Inc()
		return nil, err
	}

	ids := productIDs(eligible)
	entry := &models.AlertNotification{
		Type:       models.NotificationTypeLowStock,
		Recipients: cfg.Recipients,
		Subject:    subject,
		Body:       body,
	}
	if len(ids) == 1 {
		entry.ProductID = &ids[0]
	}

	result := &Result{LowStockCount: len(products), ProductIDs: ids}

	sendErr := e.mail.Send(ctx, mailer.Message{
		To:      cfg.Recipients,
		From:    cfg.FromEmail,
		Subject: subject,
		HTML:    body,
	})
	if sendErr != nil {
		util.AlertEmailsFailedTotal.WithLabelValues(models.NotificationTypeLowStock).Inc()
		e.logger.Error("Failed to send low stock alert",
			zap.Int("products", len(eligible)),
			zap.Error(sendErr))

		msg := sendErr.Error()
		entry.Status = models.NotificationStatusError
		entry.Error = &msg
		entry.SentAt = now
		e.appendLog(ctx, entry)
		e.publish(ctx, models.EventTypeLowStockAlert, "", entry, ids)

		result.Outcome = OutcomeFailed
		result.Error = msg
		return e.finish(TaskStockCheck, result), nil
	}

	util.AlertEmailsSentTotal.WithLabelValues(models.NotificationTypeLowStock).Inc()
	util.LowStockProductsNotifiedTotal.Add(float64(len(eligible)))

	for _, id := range ids {
		if err := e.inventory.MarkLowStockNotified(ctx, id, now); err != nil {
			e.logger.Error("Failed to mark product notified",
				zap.Int64("product_id", id),
				zap.Error(err))
		}
	}

	entry.Status = models.NotificationStatusSent
	entry.SentAt = now
	e.appendLog(ctx, entry)
	e.publish(ctx, models.EventTypeLowStockAlert, "", entry, ids)

	e.logger.Info("Low stock alert sent",
		zap.Int("products", len(eligible)),
		zap.Int("recipients", len(cfg.Recipients)))

	result.Outcome = OutcomeSent
	return e.finish(TaskStockCheck, result), nil
}

// eligibleForNotification keeps products never notified or notified at least
// 24 hours before now. force keeps all of them.
func eligibleForNotification(products []models.Product, now time.Time, force bool) []models.Product {
	if force {
		return products
	}
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.LowStockNotifiedAt == nil || now.Sub(*p.LowStockNotifiedAt) >= dedupWindow {
			out = append(out, p)
		}
	}
	return out
}

func productIDs(products []models.Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func (e *Engine) appendLog(ctx context.Context, entry *models.AlertNotification) {
	if err := e.notifications.AppendNotification(ctx, entry); err != nil {
		e.logger.Error("Failed to append notification log",
			zap.String("type", entry.Type),
			zap.String("status", entry.Status),
			zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, eventType, frequency string, entry *models.AlertNotification, ids []int64) {
	if e.publisher == nil {
		return
	}

	event := &models.AlertDispatchedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: entry.SentAt,
		},
		NotificationType: entry.Type,
		Frequency:        frequency,
		Status:           entry.Status,
		Recipients:       len(entry.Recipients),
		ProductIDs:       ids,
	}
	if entry.Error != nil {
		event.Error = *entry.Error
	}

	if err := e.publisher.PublishAlertDispatched(ctx, event); err != nil {
		e.logger.Warn("Failed to publish alert event", zap.String("type", eventType), zap.Error(err))
	}
}

func (e *Engine) finish(task string, r *Result) *Result {
	util.AlertRunsTotal.WithLabelValues(task, string(r.Outcome)).Inc()
	return r
}
