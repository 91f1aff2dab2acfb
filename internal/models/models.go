package models

import (
	"errors"
	"time"
)

// AlertConfigID is the fixed key of the singleton alert configuration row
const AlertConfigID = 1

// Alert configuration defaults applied when the row is created lazily
const (
	DefaultLowStockThreshold = 10
	DefaultSummaryFrequency  = FrequencyDaily
)

var ErrInvalidThreshold = errors.New("threshold must be at least 1")

// Stock statuses
const (
	StockStatusAvailable  = "available"
	StockStatusOutOfStock = "out_of_stock"
	StockStatusInquire    = "inquire"
)

// Digest frequencies
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Notification types
const (
	NotificationTypeLowStock = "low_stock"
	NotificationTypeDigest   = "digest"
)

// Notification statuses
const (
	NotificationStatusSent  = "sent"
	NotificationStatusError = "error"
)

// Product represents a catalog product with its stock state
type Product struct {
	ID                 int64      `db:"id" json:"id"`
	SKU                string     `db:"sku" json:"sku"`
	Model              string     `db:"model" json:"model"`
	Description        string     `db:"description" json:"description"`
	StockQuantity      int        `db:"stock_quantity" json:"stock_quantity"`
	LowStockThreshold  *int       `db:"low_stock_threshold" json:"low_stock_threshold,omitempty"`
	LowStockNotifiedAt *time.Time `db:"low_stock_notified_at" json:"low_stock_notified_at,omitempty"`
	StockStatus        string     `db:"stock_status" json:"stock_status"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveThreshold returns the product override or the configured default.
func (p *Product) EffectiveThreshold(defaultThreshold int) int {
	if p.LowStockThreshold != nil {
		return *p.LowStockThreshold
	}
	return defaultThreshold
}

// IsLowStock reports whether the product is below its effective threshold
// or is marked unavailable.
func (p *Product) IsLowStock(defaultThreshold int) bool {
	if p.StockStatus == StockStatusOutOfStock || p.StockStatus == StockStatusInquire {
		return true
	}
	return p.StockQuantity < p.EffectiveThreshold(defaultThreshold)
}

// ProductStats holds aggregate inventory counts
type ProductStats struct {
	TotalCount      int `db:"total_count" json:"total_count"`
	OutOfStockCount int `db:"out_of_stock_count" json:"out_of_stock_count"`
	LowStockCount   int `db:"low_stock_count" json:"low_stock_count"`
}

// AlertConfiguration is the singleton alert engine configuration
type AlertConfiguration struct {
	ID                 int        `db:"id" json:"id"`
	DefaultThreshold   int        `db:"default_threshold" json:"default_threshold"`
	SummaryFrequency   string     `db:"summary_frequency" json:"summary_frequency"`
	Recipients         []string   `db:"-" json:"recipients"`
	IsEnabled          bool       `db:"is_enabled" json:"is_enabled"`
	FromEmail          string     `db:"from_email" json:"from_email"`
	LastDailyDigestAt  *time.Time `db:"last_daily_digest_at" json:"last_daily_digest_at,omitempty"`
	LastWeeklyDigestAt *time.Time `db:"last_weekly_digest_at" json:"last_weekly_digest_at,omitempty"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// NewDefaultAlertConfiguration returns the configuration created on first read
func NewDefaultAlertConfiguration() *AlertConfiguration {
	return &AlertConfiguration{
		ID:               AlertConfigID,
		DefaultThreshold: DefaultLowStockThreshold,
		SummaryFrequency: DefaultSummaryFrequency,
		Recipients:       []string{},
		IsEnabled:        true,
	}
}

// HasRecipients reports whether at least one recipient is configured
func (c *AlertConfiguration) HasRecipients() bool {
	return len(c.Recipients) > 0
}

// AlertConfigUpdate is a partial update; nil fields are left unchanged
type AlertConfigUpdate struct {
	DefaultThreshold   *int       `json:"default_threshold,omitempty"`
	SummaryFrequency   *string    `json:"summary_frequency,omitempty"`
	Recipients         *[]string  `json:"recipients,omitempty"`
	IsEnabled          *bool      `json:"is_enabled,omitempty"`
	FromEmail          *string    `json:"from_email,omitempty"`
	LastDailyDigestAt  *time.Time `json:"-"`
	LastWeeklyDigestAt *time.Time `json:"-"`
}

// Apply copies every set field of the update onto the configuration.
func (u *AlertConfigUpdate) Apply(cfg *AlertConfiguration) {
	if u.DefaultThreshold != nil {
		cfg.DefaultThreshold = *u.DefaultThreshold
	}
	if u.SummaryFrequency != nil {
		cfg.SummaryFrequency = *u.SummaryFrequency
	}
	if u.Recipients != nil {
		cfg.Recipients = append([]string{}, (*u.Recipients)...)
	}
	if u.IsEnabled != nil {
		cfg.IsEnabled = *u.IsEnabled
	}
	if u.FromEmail != nil {
		cfg.FromEmail = *u.FromEmail
	}
	if u.LastDailyDigestAt != nil {
		t := *u.LastDailyDigestAt
		cfg.LastDailyDigestAt = &t
	}
	if u.LastWeeklyDigestAt != nil {
		t := *u.LastWeeklyDigestAt
		cfg.LastWeeklyDigestAt = &t
	}
}

// AlertNotification is an append-only record of a dispatch attempt
type AlertNotification struct {
	ID         int64     `db:"id" json:"id"`
	ProductID  *int64    `db:"product_id" json:"product_id,omitempty"`
	Type       string    `db:"type" json:"type"`
	Recipients []string  `db:"-" json:"recipients"`
	Subject    string    `db:"subject" json:"subject"`
	Body       string    `db:"body" json:"body"`
	Status     string    `db:"status" json:"status"`
	Error      *string   `db:"error" json:"error,omitempty"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}
