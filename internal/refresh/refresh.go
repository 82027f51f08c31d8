// Package refresh implements the Refresh Engine (spec §4.6, §5, C6): drive
// the Resolver's tasks in parallel with a fixed-size worker pool, sharing
// cache-slot completion across racing tasks via an in-flight future map, and
// clone each completed slot into its node_modules target.
//
// The worker-pool shape is grounded on the teacher's
// internal/cache/async_cache.go (a fixed number of goroutines draining a
// channel) and its internal/cache/cache.go multiplexer's errgroup-based
// fan-out. The in-flight map follows Design Note §9 ("message passing or
// read-mostly map"): a mutex guards only the map's insert/lookup, never the
// I/O that follows.
package refresh

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/ndpkg/ndpkg/internal/cachestore"
	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
	"github.com/ndpkg/ndpkg/internal/resolve"
	"github.com/ndpkg/ndpkg/internal/tarball"
)

// Options configures a refresh run.
type Options struct {
	// Concurrency is the worker pool size; 0 defaults to runtime.NumCPU().
	Concurrency int
	Logger      hclog.Logger
}

// Engine drives install tasks against a Store in parallel.
type Engine struct {
	store  *cachestore.Store
	http   *retryablehttp.Client
	opts   Options
	logger hclog.Logger

	mu       sync.Mutex
	inflight map[string]*inflightExtraction
}

// inflightExtraction is shared by every task racing on the same (name,
// version) cache slot: the winner performs the extraction, the rest wait on
// done and then observe result/err.
type inflightExtraction struct {
	done   chan struct{}
	result cachestore.Integrity
	err    error
}

// New builds an Engine.
func New(store *cachestore.Store, httpClient *retryablehttp.Client, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Engine{
		store:    store,
		http:     httpClient,
		opts:     opts,
		logger:   logger,
		inflight: map[string]*inflightExtraction{},
	}
}

// Run dispatches tasks across a fixed-size worker pool (spec §4.6, §5),
// using errgroup.Group.SetLimit to bound in-flight goroutines the way the
// teacher's cache multiplexer bounds its own fan-out, rather than errgroup's
// usual fail-fast behavior: each task's error is collected directly instead
// of being returned to the group, so one failing task never cancels the
// others' slots. It returns the aggregate of every per-task failure; a nil
// (empty) aggregate means every task installed successfully.
func (e *Engine) Run(ctx context.Context, projectRoot ndpath.AbsolutePath, tasks []resolve.Task) []error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	var mu sync.Mutex
	var errs []error

	for _, task := range tasks {
		// Stop dispatching new tasks once the caller cancels (spec §5); an
		// already-dispatched task is still allowed to finish since its cache
		// slot completion is atomic regardless of when it lands.
		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		task := task
		g.Go(func() error {
			if err := e.runTask(gctx, projectRoot, task); err != nil {
				mu.Lock()
				errs = append(errs, &nderrors.TaskError{Name: task.Name, Version: task.Version, Inner: err})
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

// runTask implements one task's strictly sequential pipeline: populate the
// cache slot if absent (waiting for a racing winner if one is already in
// flight), then clone it into the task's install path (spec §4.6, §5).
func (e *Engine) runTask(ctx context.Context, projectRoot ndpath.AbsolutePath, task resolve.Task) error {
	if !e.store.IsComplete(task.Name, task.Version) {
		if _, err := e.populate(ctx, task); err != nil {
			return err
		}
	}

	installPath := task.InstallPath.RestoreAnchor(projectRoot)
	if err := e.store.CloneInto(task.Name, task.Version, installPath); err != nil {
		return err
	}
	e.logger.Debug("installed", "name", task.Name, "version", task.Version, "path", installPath.ToString())
	return nil
}

// populate ensures the cache slot for task is complete, coordinating
// concurrent requests for the same (name, version) through e.inflight so the
// loser awaits the winner's completion instead of re-extracting (spec §5).
func (e *Engine) populate(ctx context.Context, task resolve.Task) (cachestore.Integrity, error) {
	key := task.Name + "@" + task.Version

	e.mu.Lock()
	if existing, ok := e.inflight[key]; ok {
		e.mu.Unlock()
		<-existing.done
		return existing.result, existing.err
	}
	mine := &inflightExtraction{done: make(chan struct{})}
	e.inflight[key] = mine
	e.mu.Unlock()

	staging := e.store.NewStagingDir(task.Name, task.Version)
	integrity, err := tarball.FetchAndExtract(ctx, e.http, task.TarballURL, staging)
	if err == nil {
		err = e.store.Promote(staging, task.Name, task.Version, integrity)
	}

	mine.result, mine.err = integrity, err
	close(mine.done)

	// A successful entry stays in the map, so a task that saw the slot as
	// incomplete just before this point still finds it here and reuses the
	// result; only a failed extraction is removed so a later task may retry.
	if err != nil {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
		return cachestore.Integrity{}, fmt.Errorf("installing %s@%s: %w", task.Name, task.Version, err)
	}
	return integrity, nil
}
