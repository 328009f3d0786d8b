package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"regwatch/internal/diff"
	"regwatch/internal/dispatch"
	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/source"
	"regwatch/internal/store"
)

// Config controls the poll loop.
type Config struct {
	// PollInterval is the cadence of registry observations (default 5m).
	PollInterval time.Duration
}

// DefaultConfig returns the poll defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Minute}
}

// Engine drives one observation cycle: fetch the registry, snapshot it,
// compare against the last stored snapshot, persist what changed, and
// hand the diff to the dispatcher.
type Engine struct {
	cfg        Config
	src        source.Source
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     logging.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New builds an Engine.
func New(cfg Config, src source.Source, st store.Store, dispatcher *dispatch.Dispatcher, logger logging.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Engine{
		cfg:        cfg,
		src:        src,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RunCycle performs a single observation cycle and returns the diff it
// dispatched. Changes are committed to history before the snapshot that
// supersedes the previous one: if either write fails the cycle aborts
// with the old snapshot still latest, so the next poll re-detects the
// same changes. Previously committed snapshots stay untouched.
func (e *Engine) RunCycle(ctx context.Context) (*model.DiffResult, error) {
	servers, err := e.src.FetchServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch registry: %w", err)
	}
	snap := diff.CreateSnapshot(servers)

	prev, err := e.store.LatestSnapshot(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	if !diff.HasChanges(prev, snap) {
		if err := e.store.PutSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
		e.logger.Debug("registry unchanged",
			logging.F("hash", snap.Hash),
			logging.F("servers", snap.ServerCount))
		return &model.DiffResult{
			FromSnapshot:   prev,
			ToSnapshot:     snap,
			NewServers:     []*model.Change{},
			UpdatedServers: []*model.Change{},
			RemovedServers: []*model.Change{},
		}, nil
	}

	result := diff.Compare(prev, snap)
	if result.TotalChanges > 0 {
		if err := e.store.PutChanges(ctx, result.AllChanges()); err != nil {
			return nil, fmt.Errorf("store changes: %w", err)
		}
	}
	if err := e.store.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	if result.TotalChanges == 0 {
		return result, nil
	}
	e.logger.Info("registry changes detected",
		logging.F("new", len(result.NewServers)),
		logging.F("updated", len(result.UpdatedServers)),
		logging.F("removed", len(result.RemovedServers)))

	if err := e.dispatcher.Dispatch(ctx, result); err != nil {
		// Dispatch errors are operational, not cycle-fatal: the changes
		// are already committed to history for the digest tiers.
		e.logger.Error("dispatch failed", logging.Err(err))
	}
	return result, nil
}

// Start launches the poll loop. It returns immediately; the loop runs
// until Stop or ctx cancellation.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.PollInterval)
		defer ticker.Stop()
		for {
			if _, err := e.RunCycle(ctx); err != nil {
				e.logger.Error("poll cycle failed", logging.Err(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-e.stop:
				return
			case <-ticker.C:
			}
		}
	}()
	e.logger.Info("engine started", logging.F("poll_interval", e.cfg.PollInterval.String()))
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	close(e.stop)
	e.running = false
	e.mu.Unlock()
	e.wg.Wait()
	e.logger.Info("engine stopped")
}
