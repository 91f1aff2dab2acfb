package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALERT_DIGEST_WEEKDAY", "")
	t.Setenv("ALERT_CHECK_INTERVAL", "")
	t.Setenv("ALERT_DIGEST_HOUR", "")
	t.Setenv("ALERT_TIMEZONE", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Monday, cfg.Alerts.DigestWeekday)
	assert.Equal(t, time.Hour, cfg.Alerts.StockCheckInterval)
	assert.Equal(t, 8, cfg.Alerts.DigestHour)
	assert.Equal(t, time.UTC, cfg.Alerts.Location())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ALERT_DIGEST_WEEKDAY", "Friday")
	t.Setenv("ALERT_CHECK_INTERVAL", "15m")
	t.Setenv("SMTP_USE_TLS", "true")
	t.Setenv("ALERT_TIMEZONE", "Europe/Berlin")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Friday, cfg.Alerts.DigestWeekday)
	assert.Equal(t, 15*time.Minute, cfg.Alerts.StockCheckInterval)
	assert.True(t, cfg.SMTP.UseTLS)
	assert.Equal(t, "Europe/Berlin", cfg.Alerts.Location().String())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ALERT_CHECK_INTERVAL", "soon")
	t.Setenv("ALERT_TIMEZONE", "Nowhere/Atlantis")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.Alerts.StockCheckInterval)
	assert.Equal(t, time.UTC, cfg.Alerts.Location())
}
