package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog-service/internal/mailer"
	"catalog-service/internal/models"
	"catalog-service/internal/util"

	"go.uber.org/zap"
)

// Task names used in the registry, metrics and locks
const (
	TaskStockCheck   = "stock-check"
	TaskDailyDigest  = "daily-digest"
	TaskWeeklyDigest = "weekly-digest"
)

const (
	dedupWindow  = 24 * time.Hour
	weeklyWindow = 7 * 24 * time.Hour

	defaultStockCheckInterval = time.Hour
	defaultDigestHour         = 8
	defaultLockTTL            = 10 * time.Minute
)

var ErrInvalidFrequency = errors.New("invalid digest frequency")

// State is the lifecycle state of an engine
type State string

const (
	StateUninitialized State = "uninitialized"
	StateIdle          State = "idle"
	StateRunning       State = "running"
)

// ConfigStore reads and writes the singleton alert configuration
type ConfigStore interface {
	GetAlertConfig(ctx context.Context) (*models.AlertConfiguration, error)
	UpdateAlertConfig(ctx context.Context, upd models.AlertConfigUpdate) (*models.AlertConfiguration, error)
}

// InventoryRepository exposes the product queries the engine needs
type InventoryRepository interface {
	GetLowStockProducts(ctx context.Context, defaultThreshold int) ([]models.Product, error)
	GetProductStats(ctx context.Context, defaultThreshold int) (*models.ProductStats, error)
	MarkLowStockNotified(ctx context.Context, productID int64, at time.Time) error
}

// NotificationLog is the append-only audit trail of dispatch attempts
type NotificationLog interface {
	AppendNotification(ctx context.Context, n *models.AlertNotification) error
	ListNotifications(ctx context.Context, limit int) ([]models.AlertNotification, error)
}

// MailTransport delivers rendered email
type MailTransport interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// EventPublisher announces dispatch outcomes to other services
type EventPublisher interface {
	PublishAlertDispatched(ctx context.Context, event *models.AlertDispatchedEvent) error
}

// Locker provides a lock shared between engine instances
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// Options tunes scheduling. Zero durations and nil Location/Now fall back
// to defaults; an out-of-range DigestHour becomes 08:00.
type Options struct {
	StockCheckInterval time.Duration
	DigestHour         int
	DigestWeekday      time.Weekday
	Location           *time.Location
	LockTTL            time.Duration
	Now                func() time.Time
}

func (o *Options) setDefaults() {
	if o.StockCheckInterval <= 0 {
		o.StockCheckInterval = defaultStockCheckInterval
	}
	if o.DigestHour < 0 || o.DigestHour > 23 {
		o.DigestHour = defaultDigestHour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Engine schedules low-stock checks and digest emails
type Engine struct {
	configs       ConfigStore
	inventory     InventoryRepository
	notifications NotificationLog
	mail          MailTransport
	publisher     EventPublisher
	locker        Locker
	opts          Options
	logger        *zap.Logger

	mu    sync.Mutex
	state State
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup

	// frequency of a scheduled digest whose last attempt failed
	pendingDigest string

	inFlight *inFlightGuard
}

// NewEngine creates a new alert engine. publisher and locker may be nil.
func NewEngine(
	configs ConfigStore,
	inventory InventoryRepository,
	notifications NotificationLog,
	mail MailTransport,
	publisher EventPublisher,
	locker Locker,
	opts Options,
) *Engine {
	opts.setDefaults()
	return &Engine{
		configs:       configs,
		inventory:     inventory,
		notifications: notifications,
		mail:          mail,
		publisher:     publisher,
		locker:        locker,
		opts:          opts,
		logger:        util.GetLogger().With(zap.String("component", "alert-engine")),
		state:         StateUninitialized,
		tasks:         make(map[string]context.CancelFunc),
		inFlight:      newInFlightGuard(),
	}
}

// Status describes the engine lifecycle state and its registered tasks
type Status struct {
	State State    `json:"state"`
	Tasks []string `json:"tasks"`
}

// Status returns a snapshot of the engine state
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks := make([]string, 0, len(e.tasks))
	for name := range e.tasks {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	return Status{State: e.state, Tasks: tasks}
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Initialize loads the configuration and schedules the recurring tasks when
// alerts are enabled. Calling it while running is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initializeLocked(ctx)
}

// Stop cancels every scheduled task. In-flight runs complete on their own.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// Reconfigure stops the engine and initializes it again from the latest
// persisted configuration.
func (e *Engine) Reconfigure(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.logger.Info("Reconfiguring alert engine")
	return e.initializeLocked(ctx)
}

// Shutdown stops the engine and waits for task goroutines to exit
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) initializeLocked(ctx context.Context) error {
	if e.state == StateRunning {
		return nil
	}

	cfg, err := e.configs.GetAlertConfig(ctx)
	if err != nil {
		e.setStateLocked(StateIdle)
		e.logger.Error("Failed to load alert configuration, engine idle", zap.Error(err))
		return fmt.Errorf("failed to load alert configuration: %w", err)
	}

	if !cfg.IsEnabled {
		e.setStateLocked(StateIdle)
		e.logger.Info("Alerts disabled, no tasks scheduled")
		return nil
	}

	e.scheduleEvery(TaskStockCheck, e.opts.StockCheckInterval, e.stockCheckTick)

	switch cfg.SummaryFrequency {
	case models.FrequencyWeekly:
		e.scheduleAt(TaskWeeklyDigest, func(now time.Time) time.Time {
			return nextWeeklyRun(now, e.opts.DigestWeekday, e.opts.DigestHour, e.opts.Location)
		}, func(ctx context.Context) error {
			return e.runScheduledDigest(ctx, models.FrequencyWeekly)
		})
	default:
		e.scheduleAt(TaskDailyDigest, func(now time.Time) time.Time {
			return nextDailyRun(now, e.opts.DigestHour, e.opts.Location)
		}, func(ctx context.Context) error {
			return e.runScheduledDigest(ctx, models.FrequencyDaily)
		})
	}

	e.setStateLocked(StateRunning)
	e.logger.Info("Alert engine running",
		zap.Int("default_threshold", cfg.DefaultThreshold),
		zap.String("summary_frequency", cfg.SummaryFrequency),
		zap.Duration("stock_check_interval", e.opts.StockCheckInterval),
		zap.Int("recipients", len(cfg.Recipients)))
	return nil
}

func (e *Engine) stopLocked() {
	for name, cancel := range e.tasks {
		cancel()
		delete(e.tasks, name)
	}
	e.pendingDigest = ""
	e.setStateLocked(StateIdle)
}

func (e *Engine) setStateLocked(s State) {
	e.state = s
	if s == StateRunning {
		util.AlertEngineRunning.Set(1)
	} else {
		util.AlertEngineRunning.Set(0)
	}
}

// ManualStockCheck runs a low-stock check on operator request. force
// bypasses the per-product dedup window.
func (e *Engine) ManualStockCheck(ctx context.Context, force bool) (*Result, error) {
	e.logger.Info("Manual stock check requested", zap.Bool("force", force))
	return e.CheckLowStock(ctx, force)
}

// ManualDigest sends a digest on operator request. The period guard still
// applies.
func (e *Engine) ManualDigest(ctx context.Context, frequency string) (*Result, error) {
	e.logger.Info("Manual digest requested", zap.String("frequency", frequency))
	return e.SendDigest(ctx, frequency)
}

// Notifications returns the most recent dispatch log entries
func (e *Engine) Notifications(ctx context.Context, limit int) ([]models.AlertNotification, error) {
	return e.notifications.ListNotifications(ctx, limit)
}

func (e *Engine) now() time.Time {
	return e.opts.Now()
}
