package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"catalog-service/internal/alerts"
	"catalog-service/internal/models"
	"catalog-service/internal/service"
	"catalog-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProducts struct {
	products  map[int64]models.Product
	lowOnly   bool
	updateErr error
	lastReq   *service.StockUpdateRequest
}

func (m *mockProducts) ListProducts(_ context.Context, lowStockOnly bool) ([]models.Product, error) {
	m.lowOnly = lowStockOnly
	out := make([]models.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProducts) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", store.ErrProductNotFound, id)
	}
	return &p, nil
}

func (m *mockProducts) GetProductBySKU(_ context.Context, sku string) (*models.Product, error) {
	for _, p := range m.products {
		if p.SKU == sku {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrProductNotFound, sku)
}

func (m *mockProducts) UpdateStock(_ context.Context, id int64, req *service.StockUpdateRequest) (*models.Product, error) {
	m.lastReq = req
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	p := m.products[id]
	p.StockQuantity = *req.StockQuantity
	return &p, nil
}

func (m *mockProducts) GetDashboardStats(_ context.Context) (*models.ProductStats, error) {
	return &models.ProductStats{TotalCount: len(m.products), LowStockCount: 1}, nil
}

type mockConfigs struct {
	cfg       *models.AlertConfiguration
	updateErr error
}

func (m *mockConfigs) GetConfig(_ context.Context) (*models.AlertConfiguration, error) {
	return m.cfg, nil
}

func (m *mockConfigs) UpdateConfig(_ context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	upd.Apply(m.cfg)
	return m.cfg, nil
}

type mockEngine struct {
	force     *bool
	frequency string
	limit     int
}

func (m *mockEngine) ManualStockCheck(_ context.Context, force bool) (*alerts.Result, error) {
	m.force = &force
	return &alerts.Result{Outcome: alerts.OutcomeSent, LowStockCount: 2, ProductIDs: []int64{1, 2}}, nil
}

func (m *mockEngine) ManualDigest(_ context.Context, frequency string) (*alerts.Result, error) {
	m.frequency = frequency
	if frequency != models.FrequencyDaily && frequency != models.FrequencyWeekly {
		return nil, alerts.ErrInvalidFrequency
	}
	return &alerts.Result{Outcome: alerts.OutcomeAlreadySent}, nil
}

func (m *mockEngine) Notifications(_ context.Context, limit int) ([]models.AlertNotification, error) {
	m.limit = limit
	return []models.AlertNotification{{ID: 1, Type: models.NotificationTypeDigest, Status: models.NotificationStatusSent}}, nil
}

func (m *mockEngine) Status() alerts.Status {
	return alerts.Status{State: alerts.StateRunning, Tasks: []string{alerts.TaskDailyDigest, alerts.TaskStockCheck}}
}

type testServer struct {
	router   *gin.Engine
	products *mockProducts
	configs  *mockConfigs
	engine   *mockEngine
	handler  *Handler
}

func newTestServer(adminToken string) *testServer {
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		products: &mockProducts{products: map[int64]models.Product{
			1: {ID: 1, SKU: "SKU-1", StockQuantity: 4, StockStatus: models.StockStatusAvailable},
		}},
		configs: &mockConfigs{cfg: models.NewDefaultAlertConfiguration()},
		engine:  &mockEngine{},
	}
	ts.handler = NewHandler(ts.products, ts.configs, ts.engine, adminToken)
	ts.router = gin.New()
	ts.handler.SetupRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	ts.handler.AddReadinessCheck("database", func(context.Context) error { return nil })
	w = ts.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	ts.handler.AddReadinessCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	w = ts.do(http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestListProducts(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodGet, "/api/v1/products?low_stock=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.products.lowOnly)

	var resp struct {
		Products []models.Product `json:"products"`
		Count    int              `json:"count"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "SKU-1", resp.Products[0].SKU)
}

func TestGetProduct(t *testing.T) {
	ts := newTestServer("")

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/v1/products/1", "", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/products/99", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/v1/products/abc", "", "").Code)
}

func TestGetProductBySKU(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodGet, "/api/v1/products/sku/SKU-1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Product
	decode(t, w, &p)
	assert.Equal(t, int64(1), p.ID)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/v1/products/sku/SKU-404", "", "").Code)
}

func TestUpdateStock(t *testing.T) {
	ts := newTestServer("secret")

	w := ts.do(http.MethodPatch, "/api/v1/products/1/stock", `{"stock_quantity":2}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPatch, "/api/v1/products/1/stock", `{"stock_quantity":2}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPatch, "/api/v1/products/1/stock", `{"stock_quantity":2}`, "secret")
	require.Equal(t, http.StatusOK, w.Code)
	var p models.Product
	decode(t, w, &p)
	assert.Equal(t, 2, p.StockQuantity)

	w = ts.do(http.MethodPatch, "/api/v1/products/1/stock", `{}`, "secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.products.updateErr = fmt.Errorf("%w: bad status", service.ErrInvalidStockUpdate)
	w = ts.do(http.MethodPatch, "/api/v1/products/1/stock", `{"stock_quantity":2,"stock_status":"gone"}`, "secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardStats(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodGet, "/api/v1/dashboard/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.ProductStats
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TotalCount)
	assert.Equal(t, 1, stats.LowStockCount)
}

func TestAlertConfigRoutes(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodGet, "/api/v1/alerts/config", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cfg models.AlertConfiguration
	decode(t, w, &cfg)
	assert.Equal(t, models.DefaultLowStockThreshold, cfg.DefaultThreshold)

	w = ts.do(http.MethodPut, "/api/v1/alerts/config", `{"default_threshold":4,"summary_frequency":"weekly","recipients":["a@example.com"]}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cfg)
	assert.Equal(t, 4, cfg.DefaultThreshold)
	assert.Equal(t, models.FrequencyWeekly, cfg.SummaryFrequency)
	assert.Equal(t, []string{"a@example.com"}, cfg.Recipients)

	ts.configs.updateErr = fmt.Errorf("%w: threshold", service.ErrInvalidConfig)
	w = ts.do(http.MethodPut, "/api/v1/alerts/config", `{"default_threshold":0}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPut, "/api/v1/alerts/config", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckStock(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodPost, "/api/v1/alerts/check-stock?force=true", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, ts.engine.force)
	assert.True(t, *ts.engine.force)

	var res alerts.Result
	decode(t, w, &res)
	assert.Equal(t, alerts.OutcomeSent, res.Outcome)
	assert.Equal(t, []int64{1, 2}, res.ProductIDs)

	ts.do(http.MethodPost, "/api/v1/alerts/check-stock", "", "")
	assert.False(t, *ts.engine.force)
}

func TestSendDigest(t *testing.T) {
	ts := newTestServer("")

	w := ts.do(http.MethodPost, "/api/v1/alerts/send-digest", `{"frequency":"Daily"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.FrequencyDaily, ts.engine.frequency)

	w = ts.do(http.MethodPost, "/api/v1/alerts/send-digest", `{"frequency":"hourly"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/alerts/send-digest", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListNotifications(t *testing.T) {
	tests := []struct {
		query     string
		wantCode  int
		wantLimit int
	}{
		{"", http.StatusOK, defaultNotificationLimit},
		{"?limit=10", http.StatusOK, 10},
		{"?limit=5000", http.StatusOK, maxNotificationLimit},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			ts := newTestServer("")
			w := ts.do(http.MethodGet, "/api/v1/alerts/notifications"+tt.query, "", "")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantLimit, ts.engine.limit)
		})
	}
}

func TestAlertStatus(t *testing.T) {
	ts := newTestServer("secret")

	w := ts.do(http.MethodGet, "/api/v1/alerts/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var st alerts.Status
	decode(t, w, &st)
	assert.Equal(t, alerts.StateRunning, st.State)
	assert.Equal(t, []string{alerts.TaskDailyDigest, alerts.TaskStockCheck}, st.Tasks)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer("")
	ts.do(http.MethodGet, "/health", "", "")

	w := ts.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
