package alerts

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/mailer"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

const taskDigest = "digest"

// SendDigest emails the inventory summary at most once per calendar day
// (daily) or per rolling 7 days (weekly). Only a successful send advances
// the period guard.
func (e *Engine) SendDigest(ctx context.Context, frequency string) (*Result, error) {
	if frequency != models.FrequencyDaily && frequency != models.FrequencyWeekly {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}

	ctx, span := util.StartSpan(ctx, "AlertEngine.SendDigest")
	defer span.End()

	release, ok := e.acquire(ctx, taskDigest)
	if !ok {
		e.logger.Info("Digest already in flight, skipping", zap.String("frequency", frequency))
		return e.finish(taskDigest, &Result{Outcome: OutcomeInFlight}), nil
	}
	defer release()

	cfg, err := e.configs.GetAlertConfig(ctx)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(taskDigest, "error").Inc()
		return nil, fmt.Errorf("failed to load alert configuration: %w", err)
	}
	if !cfg.IsEnabled {
		e.logger.Info("Alerts disabled, skipping digest")
		return e.finish(taskDigest, &Result{Outcome: OutcomeDisabled}), nil
	}
	if !cfg.HasRecipients() {
		e.logger.Info("No alert recipients configured, skipping digest")
		return e.finish(taskDigest, &Result{Outcome: OutcomeNoRecipients}), nil
	}

	now := e.now()
	if digestAlreadySent(cfg, frequency, now, e.opts.Location) {
		e.logger.Info("Digest already sent for this period", zap.String("frequency", frequency))
		return e.finish(taskDigest, &Result{Outcome: OutcomeAlreadySent}), nil
	}

	stats, err := e.inventory.GetProductStats(ctx, cfg.DefaultThreshold)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(taskDigest, "error").Inc()
		return nil, fmt.Errorf("failed to get product stats: %w", err)
	}
	products, err := e.inventory.GetLowStockProducts(ctx, cfg.DefaultThreshold)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(taskDigest, "error").Inc()
		return nil, fmt.Errorf("failed to get low stock products: %w", err)
	}

	subject, body, err := renderDigest(frequency, *stats, products, cfg.DefaultThreshold, now)
	if err != nil {
		util.AlertRunsTotal.WithLabelValues(taskDigest, "error").Inc()
		return nil, err
	}

	ids := productIDs(products)
	entry := &models.AlertNotification{
		Type:       models.NotificationTypeDigest,
		Recipients: cfg.Recipients,
		Subject:    subject,
		Body:       body,
		SentAt:     now,
	}
	result := &Result{LowStockCount: len(products), ProductIDs: ids}

	sendErr := e.mail.Send(ctx, mailer.Message{
		To:      cfg.Recipients,
		From:    cfg.FromEmail,
		Subject: subject,
		HTML:    body,
	})
	if sendErr != nil {
		util.AlertEmailsFailedTotal.WithLabelValues(models.NotificationTypeDigest).Inc()
		e.logger.Error("Failed to send digest",
			zap.String("frequency", frequency),
			zap.Error(sendErr))

		msg := sendErr.Error()
		entry.Status = models.NotificationStatusError
		entry.Error = &msg
		e.appendLog(ctx, entry)
		e.publish(ctx, models.EventTypeDigest, frequency, entry, ids)

		result.Outcome = OutcomeFailed
		result.Error = msg
		return e.finish(taskDigest, result), nil
	}

	util.AlertEmailsSentTotal.WithLabelValues(models.NotificationTypeDigest).Inc()

	upd := models.AlertConfigUpdate{}
	if frequency == models.FrequencyWeekly {
		upd.LastWeeklyDigestAt = &now
	} else {
		upd.LastDailyDigestAt = &now
	}
	if _, err := e.configs.UpdateAlertConfig(ctx, upd); err != nil {
		e.logger.Error("Failed to record digest timestamp",
			zap.String("frequency", frequency),
			zap.Error(err))
	}

	entry.Status = models.NotificationStatusSent
	e.appendLog(ctx, entry)
	e.publish(ctx, models.EventTypeDigest, frequency, entry, ids)

	e.logger.Info("Digest sent",
		zap.String("frequency", frequency),
		zap.Int("total_products", stats.TotalCount),
		zap.Int("low_stock", len(products)))

	result.Outcome = OutcomeSent
	return e.finish(taskDigest, result), nil
}

// runScheduledDigest sends a scheduled digest. A failed attempt is kept
// pending so the next stock-check tick retries it instead of waiting for the
// following slot.
func (e *Engine) runScheduledDigest(ctx context.Context, frequency string) error {
	res, err := e.SendDigest(ctx, frequency)

	e.mu.Lock()
	switch {
	case err != nil, res.Outcome == OutcomeFailed:
		e.pendingDigest = frequency
	case res.Outcome != OutcomeInFlight && e.pendingDigest == frequency:
		e.pendingDigest = ""
	}
	e.mu.Unlock()

	return err
}

// stockCheckTick runs the scheduled low-stock check, then retries a pending
// digest. The period guard keeps the retry from sending twice.
func (e *Engine) stockCheckTick(ctx context.Context) error {
	_, err := e.CheckLowStock(ctx, false)

	e.mu.Lock()
	frequency := e.pendingDigest
	e.mu.Unlock()

	if frequency != "" {
		e.logger.Info("Retrying failed digest", zap.String("frequency", frequency))
		if derr := e.runScheduledDigest(ctx, frequency); derr != nil {
			e.logger.Error("Digest retry failed", zap.String("frequency", frequency), zap.Error(derr))
		}
	}
	return err
}

// digestAlreadySent applies the period guard: same calendar date in loc for
// daily, less than 7 days elapsed for weekly.
func digestAlreadySent(cfg *models.AlertConfiguration, frequency string, now time.Time, loc *time.Location) bool {
	switch frequency {
	case models.FrequencyWeekly:
		return cfg.LastWeeklyDigestAt != nil && now.Sub(*cfg.LastWeeklyDigestAt) < weeklyWindow
	default:
		return cfg.LastDailyDigestAt != nil && sameDate(*cfg.LastDailyDigestAt, now, loc)
	}
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
