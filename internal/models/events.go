package models

import "time"

// Event types
const (
	EventTypeStockUpdated  = "STOCK_UPDATED"
	EventTypeLowStockAlert = "LOW_STOCK_ALERT"
	EventTypeDigest        = "DIGEST"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// StockUpdatedEvent published when a product's stock changes
type StockUpdatedEvent struct {
	BaseEvent
	ProductID         int64  `json:"product_id"`
	SKU               string `json:"sku"`
	PreviousQuantity  int    `json:"previous_quantity"`
	StockQuantity     int    `json:"stock_quantity"`
	LowStockThreshold *int   `json:"low_stock_threshold,omitempty"`
	StockStatus       string `json:"stock_status"`
}

// AlertDispatchedEvent published after every alert email attempt
type AlertDispatchedEvent struct {
	BaseEvent
	NotificationType string  `json:"notification_type"`
	Frequency        string  `json:"frequency,omitempty"`
	Status           string  `json:"status"`
	Recipients       int     `json:"recipients"`
	ProductIDs       []int64 `json:"product_ids,omitempty"`
	Error            string  `json:"error,omitempty"`
}
