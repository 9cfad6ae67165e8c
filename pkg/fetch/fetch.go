// Package fetch resolves binary cache availability for store outputs.
//
// [Fetch] takes every unresolved output in a store and queries one or
// more binary cache roots for its narinfo record, upgrading the store
// entry whenever a record is found. Lookups run on a bounded worker
// pool; their results drain through a single goroutine that performs
// all store mutation, so the store itself needs no locking.
package fetch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nixcov/nixcov/pkg/cache"
	"github.com/nixcov/nixcov/pkg/httputil"
	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

const (
	// DefaultCacheRoot is queried when no roots are configured.
	DefaultCacheRoot = "https://cache.nixos.org"

	// DefaultConcurrency bounds in-flight lookups.
	DefaultConcurrency = 16

	// DefaultCacheTTL is how long narinfo responses are kept. A record
	// never changes for a given store hash, so the TTL only bounds
	// disk usage.
	DefaultCacheTTL = 30 * 24 * time.Hour
)

// Options configures a fetch run.
type Options struct {
	Roots       []string             // Cache root URLs, queried in order (default: DefaultCacheRoot)
	MaxAttempts int                  // Attempts per root for transient failures (default: 3)
	Concurrency int                  // Maximum in-flight lookups (default: 16)
	CacheTTL    time.Duration        // Response cache duration (default: 30 days)
	Refresh     bool                 // Bypass cached responses
	Cache       cache.Cache          // Response cache (default: disabled)
	HTTPClient  *http.Client         // HTTP client override (optional)
	Logger      func(string, ...any) // Warning callback (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if len(opts.Roots) == 0 {
		opts.Roots = []string{DefaultCacheRoot}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = httputil.DefaultAttempts
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// Fetch queries the configured cache roots for every unresolved output
// in s and merges the records it finds. Roots are tried in order per
// output: absence at a root advances straight to the next one, while
// transient failures retry against the same root with exponential
// backoff. Outputs absent from every root simply stay unresolved.
//
// Returns the number of store entries actually resolved.
func Fetch(ctx context.Context, s *store.Store, opts Options) (int, error) {
	opts = opts.WithDefaults()

	hashes := s.OutputHashes()
	if len(hashes) == 0 {
		return 0, nil
	}

	f := &fetcher{
		opts:    opts,
		client:  newClient(opts),
		store:   s,
		jobs:    make(chan storepath.Hash, len(hashes)),
		results: make(chan result, len(hashes)),
	}
	return f.run(ctx, hashes)
}

type fetcher struct {
	opts   Options
	client *client
	store  *store.Store

	jobs    chan storepath.Hash
	results chan result
	wg      sync.WaitGroup
}

// result carries one lookup outcome from a worker to the merge loop.
type result struct {
	hash  storepath.Hash
	info  *narinfo.NarInfo
	found bool
	err   error
}

func (f *fetcher) run(ctx context.Context, hashes []storepath.Hash) (int, error) {
	for range min(f.opts.Concurrency, len(hashes)) {
		f.wg.Add(1)
		go f.worker(ctx)
	}

	for _, h := range hashes {
		f.jobs <- h
	}
	close(f.jobs)

	count, err := f.collect(ctx, len(hashes))
	f.wg.Wait()
	return count, err
}

func (f *fetcher) worker(ctx context.Context) {
	defer f.wg.Done()
	for h := range f.jobs {
		if ctx.Err() != nil {
			f.results <- result{hash: h, err: ctx.Err()}
			continue
		}
		info, found, err := f.resolve(ctx, h)
		f.results <- result{hash: h, info: info, found: found, err: err}
	}
}

// resolve walks the cache roots in order for one output hash. The
// retry budget and backoff restart for each root.
func (f *fetcher) resolve(ctx context.Context, h storepath.Hash) (*narinfo.NarInfo, bool, error) {
	var lastErr error
	for _, root := range f.opts.Roots {
		var (
			info  *narinfo.NarInfo
			found bool
		)
		err := httputil.Retry(ctx, f.opts.MaxAttempts, httputil.DefaultDelay, func() error {
			var err error
			info, found, err = f.client.lookup(ctx, root, h)
			return err
		})
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			return info, true, nil
		}
	}
	return nil, false, lastErr
}

// collect drains lookup results and merges found records into the
// store. It is the only goroutine that touches the store during a run.
func (f *fetcher) collect(ctx context.Context, expected int) (int, error) {
	count := 0
	for range expected {
		select {
		case r := <-f.results:
			if r.err != nil {
				f.opts.Logger("lookup failed: %s: %v", r.hash, r.err)
			} else if r.found {
				if f.store.Merge(r.hash, r.info) {
					count++
				} else {
					f.opts.Logger("conflicting entry at %s, skipping", r.hash)
				}
			}
		case <-ctx.Done():
			return count, ctx.Err()
		}
	}
	return count, ctx.Err()
}
