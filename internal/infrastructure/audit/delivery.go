package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	"github.com/garyjia/barangay-lifecycle/internal/domain/event"
)

// Observer receives delivery outcomes
type Observer interface {
	Delivered()
	Retried()
	Dropped(reason string)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) Delivered()     {}
func (nopObserver) Retried()       {}
func (nopObserver) Dropped(string) {}
func (nopObserver) QueueDepth(int) {}

// DeliveryConfig tunes the retry queue
type DeliveryConfig struct {
	// Buffer caps queued entries; 0 means unbounded
	Buffer int
	// MaxAttempts per entry before it is dropped; 0 retries forever
	MaxAttempts  int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// FlushTimeout bounds the final drain on Stop
	FlushTimeout time.Duration
}

func (c DeliveryConfig) withDefaults() DeliveryConfig {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 5 * time.Second
	}
	return c
}

// Delivery queues committed history entries and publishes them in order,
// retrying the head entry until it succeeds. It implements worker.Worker.
type Delivery struct {
	publisher Publisher
	cfg       DeliveryConfig
	logger    *zap.Logger
	observer  Observer

	mu      sync.Mutex
	queue   []entity.HistoryEntry
	signal  chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
	running bool
}

// DeliveryOption configures a Delivery
type DeliveryOption func(*Delivery)

// WithObserver sets the delivery outcome observer
func WithObserver(o Observer) DeliveryOption {
	return func(d *Delivery) {
		d.observer = o
	}
}

// NewDelivery creates a stopped delivery queue
func NewDelivery(publisher Publisher, cfg DeliveryConfig, logger *zap.Logger, opts ...DeliveryOption) *Delivery {
	d := &Delivery{
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("audit-delivery"),
		observer:  nopObserver{},
		signal:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements worker.Worker
func (d *Delivery) Name() string { return "audit-delivery" }

// Handler subscribes the queue to request.transitioned events
func (d *Delivery) Handler() dispatcher.Handler {
	return func(_ context.Context, evt *event.Event) error {
		if evt.Entry == nil {
			return nil
		}
		return d.Enqueue(*evt.Entry)
	}
}

// Enqueue adds an entry without blocking. It fails only when the buffer is full.
func (d *Delivery) Enqueue(entry entity.HistoryEntry) error {
	d.mu.Lock()
	if d.cfg.Buffer > 0 && len(d.queue) >= d.cfg.Buffer {
		d.mu.Unlock()
		d.observer.Dropped("buffer_full")
		d.logger.Error("Audit buffer full, dropping entry",
			zap.String("entry_key", EntryKey(entry)),
			zap.Int("buffer", d.cfg.Buffer))
		return fmt.Errorf("audit: buffer full, dropped %s", EntryKey(entry))
	}
	d.queue = append(d.queue, entry.Clone())
	depth := len(d.queue)
	d.mu.Unlock()

	d.observer.QueueDepth(depth)
	select {
	case d.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued entries
func (d *Delivery) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Start implements worker.Worker
func (d *Delivery) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("audit delivery already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true

	go d.run(runCtx, d.done)
	return nil
}

// Stop halts the loop, then makes one bounded attempt to drain what is left
func (d *Delivery) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	ctx, cancelFlush := context.WithTimeout(context.Background(), d.cfg.FlushTimeout)
	defer cancelFlush()
	d.flush(ctx)

	if n := d.Pending(); n > 0 {
		d.logger.Warn("Audit entries undelivered at shutdown", zap.Int("pending", n))
		return fmt.Errorf("audit: %d entries undelivered at shutdown", n)
	}
	return nil
}

func (d *Delivery) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		entry, ok := d.peek()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-d.signal:
				continue
			}
		}
		if !d.deliver(ctx, entry) {
			return
		}
	}
}

// deliver publishes the head entry until it succeeds or is dropped.
// It returns false when ctx ended first; the entry stays queued.
func (d *Delivery) deliver(ctx context.Context, entry entity.HistoryEntry) bool {
	backoff := d.cfg.RetryBackoff

	for attempt := 1; ; attempt++ {
		err := d.publisher.Publish(ctx, entry)
		if err == nil {
			d.pop()
			d.observer.Delivered()
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		if d.cfg.MaxAttempts > 0 && attempt >= d.cfg.MaxAttempts {
			d.pop()
			d.observer.Dropped("max_attempts")
			d.logger.Error("Dropping audit entry after repeated failures",
				zap.String("entry_key", EntryKey(entry)),
				zap.Int("attempts", attempt),
				zap.Error(err))
			return true
		}

		d.observer.Retried()
		d.logger.Warn("Audit publish failed, retrying",
			zap.String("entry_key", EntryKey(entry)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}

		backoff *= 2
		if backoff > d.cfg.MaxBackoff {
			backoff = d.cfg.MaxBackoff
		}
	}
}

// flush publishes queued entries once each, stopping at the first failure
func (d *Delivery) flush(ctx context.Context) {
	for {
		entry, ok := d.peek()
		if !ok {
			return
		}
		if err := d.publisher.Publish(ctx, entry); err != nil {
			return
		}
		d.pop()
		d.observer.Delivered()
	}
}

func (d *Delivery) peek() (entity.HistoryEntry, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return entity.HistoryEntry{}, false
	}
	return d.queue[0], true
}

func (d *Delivery) pop() {
	d.mu.Lock()
	d.queue = d.queue[1:]
	depth := len(d.queue)
	d.mu.Unlock()
	d.observer.QueueDepth(depth)
}
