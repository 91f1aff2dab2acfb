package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"catalog-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrProductNotFound = errors.New("product not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductBySKU retrieves a product by SKU
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE sku = $1", sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *Store) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetLowStockProducts retrieves products below their effective threshold or
// marked unavailable. defaultThreshold applies where no override is set.
func (s *Store) GetLowStockProducts(ctx context.Context, defaultThreshold int) ([]models.Product, error) {
	query := `
		SELECT * FROM products
		WHERE stock_quantity < COALESCE(low_stock_threshold, $1)
		   OR stock_status IN ($2, $3)
		ORDER BY stock_quantity ASC, id`

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query,
		defaultThreshold, models.StockStatusOutOfStock, models.StockStatusInquire)
	return products, err
}

// GetProductStats computes aggregate inventory counts
func (s *Store) GetProductStats(ctx context.Context, defaultThreshold int) (*models.ProductStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_count,
			COUNT(*) FILTER (WHERE stock_status = $2 OR stock_quantity = 0) AS out_of_stock_count,
			COUNT(*) FILTER (
				WHERE stock_quantity < COALESCE(low_stock_threshold, $1)
				   OR stock_status IN ($2, $3)
			) AS low_stock_count
		FROM products`

	var stats models.ProductStats
	err := s.db.GetContext(ctx, &stats, query,
		defaultThreshold, models.StockStatusOutOfStock, models.StockStatusInquire)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product stats: %w", err)
	}
	return &stats, nil
}

// MarkLowStockNotified records when a low-stock alert covered the product
func (s *Store) MarkLowStockNotified(ctx context.Context, productID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET low_stock_notified_at = $1 WHERE id = $2",
		at, productID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	return nil
}

// StockUpdate describes a stock change; nil fields are left unchanged
type StockUpdate struct {
	StockQuantity     int
	LowStockThreshold *int
	StockStatus       *string
}

// UpdateProductStock updates stock fields within a transaction (FOR UPDATE lock)
// and returns the product before and after the change.
func (s *Store) UpdateProductStock(ctx context.Context, productID int64, upd StockUpdate) (before, after *models.Product, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var current models.Product
	err = tx.GetContext(ctx, &current, "SELECT * FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %d", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock product: %w", err)
	}

	threshold := current.LowStockThreshold
	if upd.LowStockThreshold != nil {
		threshold = upd.LowStockThreshold
	}
	status := current.StockStatus
	if upd.StockStatus != nil {
		status = *upd.StockStatus
	}

	var updated models.Product
	err = tx.GetContext(ctx, &updated, `
		UPDATE products
		SET stock_quantity = $1, low_stock_threshold = $2, stock_status = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING *`,
		upd.StockQuantity, threshold, status, productID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &current, &updated, nil
}
