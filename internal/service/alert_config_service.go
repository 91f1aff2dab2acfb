package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid alert configuration")

// AlertConfigStore reads and writes the singleton alert configuration
type AlertConfigStore interface {
	GetAlertConfig(ctx context.Context) (*models.AlertConfiguration, error)
	UpdateAlertConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error)
}

// Reconfigurer reloads scheduling after a configuration change
type Reconfigurer interface {
	Reconfigure(ctx context.Context) error
}

// AlertConfigService validates and persists alert configuration changes
type AlertConfigService struct {
	store  AlertConfigStore
	engine Reconfigurer
	logger *zap.Logger
}

// NewAlertConfigService creates a new alert configuration service
func NewAlertConfigService(store AlertConfigStore, engine Reconfigurer) *AlertConfigService {
	return &AlertConfigService{
		store:  store,
		engine: engine,
		logger: util.GetLogger(),
	}
}

// GetConfig returns the current configuration
func (s *AlertConfigService) GetConfig(ctx context.Context) (*models.AlertConfiguration, error) {
	return s.store.GetAlertConfig(ctx)
}

// UpdateConfig validates a partial update, persists it and reschedules the engine.
// A reschedule failure is logged; the stored configuration is still returned.
func (s *AlertConfigService) UpdateConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error) {
	ctx, span := util.StartSpan(ctx, "AlertConfigService.UpdateConfig")
	defer span.End()

	// clients never set the digest timestamps
	upd.LastDailyDigestAt = nil
	upd.LastWeeklyDigestAt = nil

	if err := normalizeConfigUpdate(&upd); err != nil {
		return nil, err
	}

	cfg, err := s.store.UpdateAlertConfig(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert configuration: %w", err)
	}

	s.logger.Info("Alert configuration updated",
		zap.Int("default_threshold", cfg.DefaultThreshold),
		zap.String("summary_frequency", cfg.SummaryFrequency),
		zap.Bool("is_enabled", cfg.IsEnabled),
		zap.Int("recipients", len(cfg.Recipients)))

	if s.engine != nil {
		if err := s.engine.Reconfigure(ctx); err != nil {
			s.logger.Error("Failed to reconfigure alert engine", zap.Error(err))
		}
	}

	return cfg, nil
}

func normalizeConfigUpdate(upd *models.AlertConfigUpdate) error {
	if upd.DefaultThreshold != nil && *upd.DefaultThreshold < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, models.ErrInvalidThreshold)
	}

	if upd.SummaryFrequency != nil {
		freq := strings.ToLower(strings.TrimSpace(*upd.SummaryFrequency))
		if freq != models.FrequencyDaily && freq != models.FrequencyWeekly {
			return fmt.Errorf("%w: summary_frequency must be daily or weekly", ErrInvalidConfig)
		}
		upd.SummaryFrequency = &freq
	}

	if upd.Recipients != nil {
		recipients, err := normalizeRecipients(*upd.Recipients)
		if err != nil {
			return err
		}
		upd.Recipients = &recipients
	}

	if upd.FromEmail != nil {
		from := strings.TrimSpace(*upd.FromEmail)
		if from != "" {
			addr, err := mail.ParseAddress(from)
			if err != nil {
				return fmt.Errorf("%w: invalid from_email %q", ErrInvalidConfig, from)
			}
			from = addr.Address
		}
		upd.FromEmail = &from
	}

	return nil
}

// normalizeRecipients parses each address and drops case-insensitive duplicates
func normalizeRecipients(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid recipient %q", ErrInvalidConfig, raw)
		}
		key := strings.ToLower(addr.Address)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr.Address)
	}
	return out, nil
}
