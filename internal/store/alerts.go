package store

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const defaultNotificationLimit = 50

type alertConfigRow struct {
	models.AlertConfiguration
	Recipients pq.StringArray `db:"recipients"`
}

func (r *alertConfigRow) toModel() *models.AlertConfiguration {
	cfg := r.AlertConfiguration
	cfg.Recipients = []string(r.Recipients)
	if cfg.Recipients == nil {
		cfg.Recipients = []string{}
	}
	return &cfg
}

type notificationRow struct {
	models.AlertNotification
	Recipients pq.StringArray `db:"recipients"`
}

// GetAlertConfig returns the singleton alert configuration, creating it with
// defaults on first read.
func (s *Store) GetAlertConfig(ctx context.Context) (*models.AlertConfiguration, error) {
	def := models.NewDefaultAlertConfiguration()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_configuration (id, default_threshold, summary_frequency, recipients, is_enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		models.AlertConfigID, def.DefaultThreshold, def.SummaryFrequency,
		pq.StringArray(def.Recipients), def.IsEnabled)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure alert configuration: %w", err)
	}

	var row alertConfigRow
	err = s.db.GetContext(ctx, &row, "SELECT * FROM alert_configuration WHERE id = $1", models.AlertConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert configuration: %w", err)
	}
	return row.toModel(), nil
}

// UpdateAlertConfig applies a partial update to the alert configuration
func (s *Store) UpdateAlertConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error) {
	// make sure the row exists before locking it
	if _, err := s.GetAlertConfig(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cfg, err := lockAlertConfig(ctx, tx)
	if err != nil {
		return nil, err
	}
	upd.Apply(cfg)

	var row alertConfigRow
	err = tx.GetContext(ctx, &row, `
		UPDATE alert_configuration
		SET default_threshold = $1, summary_frequency = $2, recipients = $3, is_enabled = $4,
		    from_email = $5, last_daily_digest_at = $6, last_weekly_digest_at = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING *`,
		cfg.DefaultThreshold, cfg.SummaryFrequency, pq.StringArray(cfg.Recipients), cfg.IsEnabled,
		cfg.FromEmail, cfg.LastDailyDigestAt, cfg.LastWeeklyDigestAt, models.AlertConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func lockAlertConfig(ctx context.Context, tx *sqlx.Tx) (*models.AlertConfiguration, error) {
	var row alertConfigRow
	err := tx.GetContext(ctx, &row,
		"SELECT * FROM alert_configuration WHERE id = $1 FOR UPDATE", models.AlertConfigID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock alert configuration: %w", err)
	}
	return row.toModel(), nil
}

// AppendNotification inserts a notification log entry
func (s *Store) AppendNotification(ctx context.Context, n *models.AlertNotification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	query := `
		INSERT INTO alert_notifications (product_id, type, recipients, subject, body, status, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	return s.db.GetContext(ctx, &n.ID, query,
		n.ProductID, n.Type, pq.StringArray(n.Recipients), n.Subject, n.Body, n.Status, n.Error, n.SentAt)
}

// ListNotifications returns the most recent notification log entries
func (s *Store) ListNotifications(ctx context.Context, limit int) ([]models.AlertNotification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM alert_notifications ORDER BY sent_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}

	out := make([]models.AlertNotification, 0, len(rows))
	for _, r := range rows {
		n := r.AlertNotification
		n.Recipients = []string(r.Recipients)
		out = append(out, n)
	}
	return out, nil
}
