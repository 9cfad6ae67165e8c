package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nixcov/nixcov/pkg/cache"
	"github.com/nixcov/nixcov/pkg/fetch"
	"github.com/nixcov/nixcov/pkg/observability"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Runner executes the coverage stages against one response cache.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store run results. Multiple goroutines can safely use the same Runner
// with different options.
type Runner struct {
	Cache  cache.Cache
	Logger *log.Logger
}

// NewRunner creates a runner with the given response cache.
// If c is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Logger: logger}
}

// Execute runs the complete discover → fetch → classify pipeline.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}

	// Stage 1: Discover
	discoverStart := time.Now()
	observability.Pipeline().OnDiscoverStart(ctx, len(opts.DrvPaths))
	st, roots, err := r.Discover(ctx, opts)
	paths := 0
	if st != nil {
		paths = st.Len()
	}
	observability.Pipeline().OnDiscoverComplete(ctx, paths, time.Since(discoverStart), err)
	if err != nil {
		return nil, err
	}
	result.Store = st
	result.Roots = roots
	result.Stats.Paths = paths
	result.Stats.DiscoverTime = time.Since(discoverStart)

	r.Logger.Info("discovered build closure",
		"roots", len(roots),
		"paths", paths,
		"duration", result.Stats.DiscoverTime)

	// Stage 2: Fetch
	outputs := len(st.OutputHashes())
	result.Stats.Outputs = outputs

	fetchStart := time.Now()
	observability.Pipeline().OnFetchStart(ctx, outputs)
	resolved, err := r.Fetch(ctx, st, opts)
	observability.Pipeline().OnFetchComplete(ctx, resolved, time.Since(fetchStart), err)
	if err != nil {
		return nil, err
	}
	result.Stats.Resolved = resolved
	result.Stats.FetchTime = time.Since(fetchStart)

	r.Logger.Info("queried binary caches",
		"outputs", outputs,
		"resolved", resolved,
		"duration", result.Stats.FetchTime)

	// Stage 3: Classify
	closure, cov, err := Classify(st, roots)
	if err != nil {
		return nil, err
	}
	result.Closure = closure
	result.Coverage = cov

	return result, nil
}

// Discover parses every root derivation file and registers its
// build-time closure in a fresh store. It returns the store and the
// root hash of each path, in argument order.
func (r *Runner) Discover(ctx context.Context, opts Options) (*store.Store, []storepath.Hash, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	st := store.New(opts.ReadFile)
	roots := make([]storepath.Hash, 0, len(opts.DrvPaths))
	for _, path := range opts.DrvPaths {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		h, err := st.DiscoverPath(path)
		if err != nil {
			return nil, nil, err
		}
		roots = append(roots, h)
	}
	return st, roots, nil
}

// Fetch queries the configured caches for every unresolved output in st
// and merges the records it finds. It returns the number of outputs
// resolved.
func (r *Runner) Fetch(ctx context.Context, st *store.Store, opts Options) (int, error) {
	return fetch.Fetch(ctx, st, fetch.Options{
		Roots:       opts.Caches,
		MaxAttempts: opts.MaxAttempts,
		Concurrency: opts.Concurrency,
		CacheTTL:    opts.CacheTTL,
		Refresh:     opts.Refresh,
		Cache:       r.Cache,
		HTTPClient:  opts.HTTPClient,
		Logger:      r.Logger.Warnf,
	})
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
