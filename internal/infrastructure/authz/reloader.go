package authz

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReloadInterval is how often the directory file is checked for changes
const DefaultReloadInterval = 30 * time.Second

// Reloader polls the staff directory file and reloads the authorizer when it changes.
// A directory that fails validation is logged and the previous assignments stay active.
type Reloader struct {
	path       string
	interval   time.Duration
	authorizer *Authorizer
	logger     *zap.Logger

	mu        sync.Mutex
	modTime   time.Time
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReloader creates a reloader for path
func NewReloader(path string, interval time.Duration, authorizer *Authorizer, logger *zap.Logger) *Reloader {
	if interval <= 0 {
		interval = DefaultReloadInterval
	}
	return &Reloader{
		path:       path,
		interval:   interval,
		authorizer: authorizer,
		logger:     logger,
	}
}

// Name returns the worker name for identification
func (r *Reloader) Name() string {
	return "staff-directory-reloader"
}

// Start records the current file version and begins polling
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("staff directory reloader already running")
	}

	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("authz: failed to stat directory file: %w", err)
	}
	r.modTime = info.ModTime()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.isRunning = true

	go r.pollLoop(runCtx, r.done)

	r.logger.Info("Staff directory reloader started",
		zap.String("path", r.path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop ends polling and waits for the loop to exit
func (r *Reloader) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.logger.Info("Staff directory reloader stopped")
	return nil
}

func (r *Reloader) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.CheckNow(); err != nil {
				r.logger.Error("Staff directory reload failed",
					zap.String("path", r.path),
					zap.Error(err))
			}
		}
	}
}

// CheckNow reloads the directory if the file changed since the last load
func (r *Reloader) CheckNow() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("authz: failed to stat directory file: %w", err)
	}

	r.mu.Lock()
	unchanged := info.ModTime().Equal(r.modTime)
	r.mu.Unlock()
	if unchanged {
		return false, nil
	}

	dir, err := LoadDirectory(r.path)
	if err != nil {
		return false, err
	}
	if err := r.authorizer.Load(dir); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.modTime = info.ModTime()
	r.mu.Unlock()

	r.logger.Info("Staff directory reloaded",
		zap.String("path", r.path),
		zap.Int("members", len(dir.Members)))
	return true, nil
}
