// Package pipeline composes the coverage stages into one reusable entry
// point: discover the build-time closure of a set of derivations, query
// binary caches for their outputs, and classify the runtime closure.
//
// The CLI and any embedding program share this path so stage ordering,
// validation, and defaults live in one place.
//
// # Usage
//
// Create a Runner and execute the complete pipeline:
//
//	runner := pipeline.NewRunner(cache, logger)
//	defer runner.Close()
//
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    DrvPaths: []string{"/nix/store/b6gvzjyb2pg0kjfwrjmg1vfhh54ad73z-firefox-33.1.drv"},
//	    Caches:   []string{"https://cache.nixos.org"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d of %d paths available\n", result.Coverage.Found, result.Coverage.Total)
//
// Run individual stages:
//
//	// Discover only
//	st, roots, err := runner.Discover(ctx, opts)
//
//	// Fetch with an existing store
//	resolved, err := runner.Fetch(ctx, st, opts)
//
//	// Classify without fetching (offline)
//	closure, cov, err := pipeline.Classify(st, roots)
package pipeline

import (
	"net/http"
	"time"

	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Options contains all configuration for a coverage run.
type Options struct {
	// Discovery options
	DrvPaths []string           // root derivation files
	ReadFile store.ReadFileFunc // derivation reader override (default: os.ReadFile)

	// Fetch options
	Caches      []string      // cache root URLs, queried in order (default: cache.nixos.org)
	MaxAttempts int           // attempts per root for transient failures
	Concurrency int           // maximum in-flight lookups
	CacheTTL    time.Duration // response cache duration
	Refresh     bool          // bypass cached narinfo responses
	HTTPClient  *http.Client  // HTTP client override (optional)
}

// Validate checks the options before any stage runs: at least one root,
// every root a derivation path, every cache root an http(s) URL. Fetch
// defaults are applied later by the fetch stage; validation only rejects
// inputs that could never work.
func (o Options) Validate() error {
	if len(o.DrvPaths) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "no derivation paths given")
	}
	for _, p := range o.DrvPaths {
		if err := errors.ValidateDrvPath(p); err != nil {
			return err
		}
	}
	for _, u := range o.Caches {
		if err := errors.ValidateCacheURL(u); err != nil {
			return err
		}
	}
	return nil
}

// Result contains the outputs of a coverage run.
type Result struct {
	// Store holds every discovered item, upgraded with fetched metadata.
	Store *store.Store

	// Roots are the root derivation hashes, in argument order.
	Roots []storepath.Hash

	// Closure is the runtime closure expanded from the roots' outputs.
	Closure store.Closure

	// Coverage classifies the closure against the store.
	Coverage *store.Coverage

	// Stats contains timing and size information.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Paths        int           // store paths discovered
	Outputs      int           // declared outputs queried
	Resolved     int           // outputs with cache metadata
	DiscoverTime time.Duration
	FetchTime    time.Duration
}
