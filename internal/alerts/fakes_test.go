package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"catalog-service/internal/mailer"
	"catalog-service/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeConfigStore keeps the singleton configuration in memory
type fakeConfigStore struct {
	mu      sync.Mutex
	cfg     *models.AlertConfiguration
	err     error
	updates int
}

func newFakeConfigStore(cfg *models.AlertConfiguration) *fakeConfigStore {
	return &fakeConfigStore{cfg: cfg}
}

func (s *fakeConfigStore) GetAlertConfig(_ context.Context) (*models.AlertConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.cfg == nil {
		s.cfg = models.NewDefaultAlertConfiguration()
	}
	cp := *s.cfg
	cp.Recipients = append([]string{}, s.cfg.Recipients...)
	return &cp, nil
}

func (s *fakeConfigStore) UpdateAlertConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error) {
	if _, err := s.GetAlertConfig(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	upd.Apply(s.cfg)
	s.updates++
	s.mu.Unlock()
	return s.GetAlertConfig(ctx)
}

func (s *fakeConfigStore) snapshot() models.AlertConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

func (s *fakeConfigStore) set(fn func(cfg *models.AlertConfiguration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cfg)
}

// fakeInventory applies the low-stock predicate over an in-memory product list
type fakeInventory struct {
	mu        sync.Mutex
	products  map[int64]*models.Product
	markErr   map[int64]error
	queryErr  error
	panicOn   bool
	lowCalls  int
	markCalls int
}

func newFakeInventory(products ...models.Product) *fakeInventory {
	inv := &fakeInventory{
		products: make(map[int64]*models.Product),
		markErr:  make(map[int64]error),
	}
	for i := range products {
		p := products[i]
		inv.products[p.ID] = &p
	}
	return inv
}

func (f *fakeInventory) GetLowStockProducts(_ context.Context, defaultThreshold int) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lowCalls++
	if f.panicOn {
		panic("inventory exploded")
	}
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []models.Product
	for id := int64(1); id <= int64(len(f.products))+100; id++ {
		p, ok := f.products[id]
		if ok && p.IsLowStock(defaultThreshold) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeInventory) GetProductStats(_ context.Context, defaultThreshold int) (*models.ProductStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	stats := &models.ProductStats{TotalCount: len(f.products)}
	for _, p := range f.products {
		if p.StockStatus == models.StockStatusOutOfStock || p.StockQuantity == 0 {
			stats.OutOfStockCount++
		}
		if p.IsLowStock(defaultThreshold) {
			stats.LowStockCount++
		}
	}
	return stats, nil
}

func (f *fakeInventory) MarkLowStockNotified(_ context.Context, productID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if err := f.markErr[productID]; err != nil {
		return err
	}
	p, ok := f.products[productID]
	if !ok {
		return errors.New("product not found")
	}
	t := at
	p.LowStockNotifiedAt = &t
	return nil
}

func (f *fakeInventory) product(id int64) models.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.products[id]
}

func (f *fakeInventory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lowCalls
}

// fakeLog is an in-memory notification log
type fakeLog struct {
	mu      sync.Mutex
	entries []models.AlertNotification
}

func (l *fakeLog) AppendNotification(_ context.Context, n *models.AlertNotification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	n.ID = int64(len(l.entries) + 1)
	l.entries = append(l.entries, *n)
	return nil
}

func (l *fakeLog) ListNotifications(_ context.Context, limit int) ([]models.AlertNotification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.AlertNotification, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

func (l *fakeLog) all() []models.AlertNotification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AlertNotification{}, l.entries...)
}

func (l *fakeLog) count(typ, status string) int {
	n := 0
	for _, e := range l.all() {
		if e.Type == typ && e.Status == status {
			n++
		}
	}
	return n
}

// fakeMailer records messages; block, when set, holds Send until closed
type fakeMailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	err     error
	block   chan struct{}
	entered chan struct{}
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	block, entered := m.block, m.entered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message{}, m.sent...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AlertDispatchedEvent
	err    error
}

func (p *fakePublisher) PublishAlertDispatched(_ context.Context, e *models.AlertDispatchedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *e)
	return p.err
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	released int
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
		l.released++
		return nil
	}, true, nil
}
