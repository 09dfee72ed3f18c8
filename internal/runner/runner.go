// Package runner steps a set of nodenets on a fixed interval.
//
// Each tick steps every active nodenet concurrently. A nodenet whose step
// fails is deactivated and the failure is logged; the others keep running.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/nodenet/internal/logging"
	"github.com/nvandessel/nodenet/internal/nodenet"
	"github.com/nvandessel/nodenet/internal/nodetype"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 100 * time.Millisecond

// Options configures a Runner.
type Options struct {
	Interval time.Duration
	// MaxTicks stops Run after this many ticks. Zero runs until the
	// context is cancelled.
	MaxTicks int
	Logger   *slog.Logger
	StepLog  *logging.StepLogger

	// NativeModuleDir is re-read into every nodenet when its definition
	// files change, provided WatchNativeModules is set.
	NativeModuleDir    string
	WatchNativeModules bool
}

// Runner owns the tick loop for a set of nodenets.
type Runner struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	nets map[string]*nodenet.Nodenet
}

// New creates a Runner with no nodenets.
func New(opts Options) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, logger: logger, nets: make(map[string]*nodenet.Nodenet)}
}

// Add registers n, replacing any nodenet with the same uid.
func (r *Runner) Add(n *nodenet.Nodenet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nets[n.UID()] = n
}

// Remove forgets the nodenet with the given uid.
func (r *Runner) Remove(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nets, uid)
}

// Nets returns the registered nodenets ordered by uid.
func (r *Runner) Nets() []*nodenet.Nodenet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*nodenet.Nodenet, 0, len(r.nets))
	for _, n := range r.nets {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID() < out[j].UID() })
	return out
}

// StepActive steps every active nodenet once, concurrently. It returns the
// number of nodenets stepped and the joined step failures.
func (r *Runner) StepActive(ctx context.Context) (int, error) {
	var (
		mu       sync.Mutex
		failures []error
		stepped  int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, n := range r.Nets() {
		if !n.IsActive() {
			continue
		}
		stepped++
		g.Go(func() error {
			if err := r.stepOne(gctx, n); err != nil {
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stepped, err
	}
	return stepped, errors.Join(failures...)
}

func (r *Runner) stepOne(ctx context.Context, n *nodenet.Nodenet) error {
	start := time.Now()
	err := n.Step(ctx)
	ev := logging.StepEvent{
		NodenetUID: n.UID(),
		Step:       n.CurrentStep(),
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		Nodes:      len(n.NodeUIDs()),
	}
	if err != nil {
		ev.Error = err.Error()
		n.SetActive(false)
		r.logger.Warn("nodenet stopped after failed step", "nodenet", n.UID(), "step", ev.Step, "error", err)
	}
	r.opts.StepLog.Log(ev)
	return err
}

// ReloadNativeModules reads the native module directory and reloads every
// nodenet from it. Nodenets that reject the new definitions keep their
// previous ones.
func (r *Runner) ReloadNativeModules() error {
	defs, err := nodetype.LoadDir(r.opts.NativeModuleDir)
	if err != nil {
		return err
	}
	var failures []error
	for _, n := range r.Nets() {
		if err := n.ReloadNativeModules(defs); err != nil {
			r.logger.Warn("native module reload failed", "nodenet", n.UID(), "error", err)
			failures = append(failures, err)
			continue
		}
		r.logger.Info("native modules reloaded", "nodenet", n.UID(), "definitions", len(defs))
	}
	return errors.Join(failures...)
}

// Run ticks until ctx is cancelled or MaxTicks is reached. Step failures
// never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if r.opts.WatchNativeModules && r.opts.NativeModuleDir != "" {
		g.Go(func() error {
			return nodetype.Watch(gctx, r.opts.NativeModuleDir, r.logger, func() {
				_ = r.ReloadNativeModules()
			})
		})
	}

	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()

		for ticks := 0; r.opts.MaxTicks == 0 || ticks < r.opts.MaxTicks; ticks++ {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
			if _, err := r.StepActive(gctx); err != nil {
				r.logger.Debug("tick finished with failures", "tick", ticks, "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
