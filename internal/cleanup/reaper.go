// Package cleanup removes media files whose catalog or user records are gone.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/reelhouse/backend/internal/config"
	"github.com/reelhouse/backend/internal/storage"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("file reaper closed")

const removeTimeout = 30 * time.Second

// Removal names one file to delete from a store.
type Removal struct {
	Store  storage.Store
	Name   string
	Reason string
}

// Recorder counts removal outcomes.
type Recorder interface {
	RecordRemoval(err error)
}

// Reaper deletes files on a bounded pool of background workers. Failures are
// logged and counted; nothing is retried.
type Reaper struct {
	logger   *slog.Logger
	recorder Recorder

	jobs    chan Removal
	closing chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewReaper starts cfg.Workers workers reading from a queue of cfg.QueueSize.
func NewReaper(cfg config.ReaperConfig, logger *slog.Logger, recorder Recorder) *Reaper {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reaper{
		logger:   logger.With(slog.String("component", "reaper")),
		recorder: recorder,
		jobs:     make(chan Removal, cfg.QueueSize),
		closing:  make(chan struct{}),
	}

	r.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go r.worker()
	}

	return r
}

// Enqueue schedules a removal, blocking while the queue is full.
func (r *Reaper) Enqueue(ctx context.Context, removal Removal) error {
	if removal.Store == nil || removal.Name == "" {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closing:
		return ErrClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closing:
		return ErrClosed
	case r.jobs <- removal:
		return nil
	}
}

// EnqueueAll schedules every removal in order, stopping at the first error.
func (r *Reaper) EnqueueAll(ctx context.Context, removals ...Removal) error {
	for _, removal := range removals {
		if err := r.Enqueue(ctx, removal); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops intake and waits for queued removals to finish.
func (r *Reaper) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		close(r.closing)
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *Reaper) worker() {
	defer r.wg.Done()

	for {
		select {
		case removal := <-r.jobs:
			r.remove(removal)
		case <-r.closing:
			for {
				select {
				case removal := <-r.jobs:
					r.remove(removal)
				default:
					return
				}
			}
		}
	}
}

func (r *Reaper) remove(removal Removal) {
	ctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
	defer cancel()

	err := removal.Store.Delete(ctx, removal.Name)
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	if r.recorder != nil {
		r.recorder.RecordRemoval(err)
	}
	if err != nil {
		r.logger.Error("remove file", "name", removal.Name, "reason", removal.Reason, "error", err)
		return
	}
	r.logger.Debug("file removed", "name", removal.Name, "reason", removal.Reason)
}
