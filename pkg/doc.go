// Package pkg provides the core libraries for nixcov binary cache coverage analysis.
//
// # Overview
//
// nixcov answers one question about a Nix build: how much of its runtime
// closure can be substituted from binary caches instead of built locally.
// The pkg directory is organized into four main areas:
//
//  1. Store model - decoding store paths, derivations, and narinfo records
//  2. Fetching - concurrent cache queries with retry and response caching
//  3. Output - coverage reports and Graphviz graph rendering
//  4. Orchestration - the discover, fetch, classify pipeline
//
// # Architecture
//
// The typical data flow through nixcov:
//
//	.drv files on disk
//	         ↓
//	    [drv] package (decode derivation recipes)
//	         ↓
//	    [store] package (walk the input graph into a store model)
//	         ↓
//	    [fetch] package (query binary caches for narinfo records)
//	         ↓
//	    [store] package (runtime closure + coverage classification)
//	         ↓
//	    coverage report / DOT / SVG output
//
// # Quick Start
//
// Check cache coverage for a derivation:
//
//	import (
//	    "context"
//	    "fmt"
//	    "github.com/nixcov/nixcov/pkg/pipeline"
//	)
//
//	runner := pipeline.NewRunner(nil, nil)
//	defer runner.Close()
//
//	res, err := runner.Execute(context.Background(), pipeline.Options{
//	    DrvPaths: []string{"/nix/store/...-hello-2.10.drv"},
//	    Caches:   []string{"https://cache.nixos.org"},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d of %d paths available\n", res.Coverage.Found, res.Coverage.Total)
//
// # Main Packages
//
// ## Store Model
//
// [storepath] - Fixed-width store path hashes. Every store item is
// addressed by the 32-character base32 prefix of its file name; the hash
// is kept as an opaque byte array and used as the map key everywhere.
//
// [drv] - Decoder for Nix derivation (.drv) files in the ATerm format:
// outputs, input derivations, input sources, platform, builder, and
// environment.
//
// [narinfo] - Decoder for .narinfo records served by binary caches,
// including the literal "404" body some backends use to mean absent.
//
// [store] - The in-memory store model. Discovery walks .drv files from
// disk into Items (derivations, outputs, sources, narinfo records),
// closures expand runtime reachability, and Coverage classifies every
// closure member as found or missing.
//
// ## Fetching
//
// [fetch] - Concurrent narinfo lookups across one or more cache roots
// with a bounded worker pool. Resolved records are merged back into the
// store so classification sees them.
//
// [cache] - Response cache backends: file-based for the CLI, Redis for
// shared environments, a scoped wrapper for per-root key prefixes, and a
// null cache for tests.
//
// [httputil] - Retry with exponential backoff for transient cache
// failures.
//
// ## Output
//
// [dot] - Graphviz rendering of the store graph: DOT text and SVG via
// the graphviz library, with optional closure filtering and detailed
// per-node labels.
//
// ## Orchestration
//
// [pipeline] - The complete coverage pipeline (discover, fetch,
// classify) used by the CLI. Stages can run individually for progress
// reporting or together through Execute.
//
// [errors] - Coded errors with user-facing messages and input
// validation shared across packages.
//
// [observability] - Hook interfaces for metrics and tracing, with no-op
// defaults. The fetch client and pipeline runner call these at cache,
// HTTP, and stage boundaries.
//
// [buildinfo] - Version metadata stamped at build time.
//
// # Common Workflows
//
// Walk a build closure without touching the network:
//
//	st := store.New(nil) // nil means os.ReadFile
//	root, _ := st.DiscoverPath("/nix/store/...-hello-2.10.drv")
//	closure := store.NewClosure()
//	closure.AddRuntimeClosureOf(root, st)
//
// Decode a single derivation:
//
//	data, _ := os.ReadFile(path)
//	d, _ := drv.Parse(data)
//	name, _ := d.Name()
//
// Render the store graph:
//
//	g := dot.ToDOT(st, dot.Options{Detailed: true})
//	svg, _ := dot.RenderSVG(g)
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...           # All tests
//	go test ./pkg/store/...     # Specific package
//	go test -run Example ./...  # Examples only
//
// [storepath]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/storepath
// [drv]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/drv
// [narinfo]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/narinfo
// [store]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/store
// [fetch]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/fetch
// [cache]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/cache
// [httputil]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/httputil
// [dot]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/dot
// [pipeline]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/pipeline
// [errors]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/errors
// [observability]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/nixcov/nixcov/pkg/buildinfo
package pkg
