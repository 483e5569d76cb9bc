package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tagwatch/console-sync/internal/metrics"
)

// Task is one poll invocation. The context is cancelled when the schedule
// is torn down; tasks must check it before writing results.
type Task func(ctx context.Context) error

// VisibilityFunc reports whether the consuming view is foregrounded.
type VisibilityFunc func() bool

// Scheduler runs tasks on fixed periods, gated by host visibility.
type Scheduler struct {
	clock   Clock
	visible VisibilityFunc
	logger  *slog.Logger
}

func New(visible VisibilityFunc, logger *slog.Logger) *Scheduler {
	return NewWithClock(realClock{}, visible, logger)
}

func NewWithClock(clock Clock, visible VisibilityFunc, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = realClock{}
	}
	return &Scheduler{clock: clock, visible: visible, logger: logger}
}

// State describes one scheduled task.
type State struct {
	Name            string        `json:"name"`
	Interval        time.Duration `json:"interval"`
	VisibilityGated bool          `json:"visibility_gated"`
	Active          bool          `json:"active"`
}

// Handle is a repeating task. The zero interval means stopped.
type Handle struct {
	name      string
	scheduler *Scheduler
	task      Task
	parent    context.Context
	refreshCh chan struct{}

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Schedule starts task every interval, measured from loop start. A
// non-positive interval creates an inactive handle.
func (s *Scheduler) Schedule(ctx context.Context, name string, interval time.Duration, task Task) *Handle {
	h := &Handle{
		name:      name,
		scheduler: s,
		task:      task,
		parent:    ctx,
		refreshCh: make(chan struct{}, 1),
	}
	h.Reschedule(interval)
	return h
}

// Reschedule tears down the current loop and restarts from tick zero.
func (h *Handle) Reschedule(interval time.Duration) {
	h.Stop()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.interval = interval
	if interval <= 0 || h.parent.Err() != nil {
		h.interval = 0
		return
	}

	ctx, cancel := context.WithCancel(h.parent)
	ticker := h.scheduler.clock.NewTicker(interval)
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done
	go h.run(ctx, ticker, done)
}

// Stop clears the timer and marks in-flight invocations stopped. It waits
// for the loop to exit and must not be called from inside the task.
func (h *Handle) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.cancel = nil
	h.done = nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// TriggerRefresh asks for an immediate, non-gated run.
func (h *Handle) TriggerRefresh() {
	select {
	case h.refreshCh <- struct{}{}:
	default:
	}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return State{
		Name:            h.name,
		Interval:        h.interval,
		VisibilityGated: h.scheduler.visible != nil,
		Active:          h.cancel != nil,
	}
}

func (h *Handle) run(ctx context.Context, ticker Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.refreshCh:
			h.invoke(ctx)
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			if !h.scheduler.isVisible() {
				metrics.ObservePollTick(h.name, metrics.OutcomeHidden)
				continue
			}
			h.invoke(ctx)
		}
	}
}

func (h *Handle) invoke(ctx context.Context) {
	startedAt := time.Now()
	outcome := metrics.OutcomeRun
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = metrics.OutcomePanic
			h.scheduler.logger.Error("poll task panicked", "task", h.name, "panic", fmt.Sprint(recovered))
		}
		metrics.ObservePollTick(h.name, outcome)
		metrics.ObservePollDuration(h.name, time.Since(startedAt).Seconds())
	}()

	err := h.task(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeStopped
	default:
		outcome = metrics.OutcomeFailed
		h.scheduler.logger.Warn("poll failed", "task", h.name, "err", err)
	}
}

func (s *Scheduler) isVisible() bool {
	if s.visible == nil {
		return true
	}
	return s.visible()
}

// Stopped reports whether the schedule owning ctx was torn down.
func Stopped(ctx context.Context) bool {
	return ctx.Err() != nil
}
