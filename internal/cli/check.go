package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/fetch"
	"github.com/nixcov/nixcov/pkg/httputil"
	"github.com/nixcov/nixcov/pkg/pipeline"
	"github.com/nixcov/nixcov/pkg/store"
)

// Report formats for the check command.
const (
	formatHuman = "human"
	formatJSON  = "json"
)

// checkOpts holds the command-line flags for the check command.
type checkOpts struct {
	caches      []string // binary cache root URLs, in query order
	concurrency int      // parallel narinfo lookups
	maxAttempts int      // attempts per cache for transient failures
	format      string   // human or json
	output      string   // output file path (stdout if empty)
	refresh     bool     // bypass cached narinfo responses
	noCache     bool     // disable the response cache entirely
}

// checkCommand creates the check command, the main entry point: discover
// the build-time closure of the given derivations, query the configured
// binary caches, and report runtime closure coverage.
func (c *CLI) checkCommand() *cobra.Command {
	opts := checkOpts{
		format:      formatHuman,
		concurrency: fetch.DefaultConcurrency,
		maxAttempts: httputil.DefaultAttempts,
	}

	cmd := &cobra.Command{
		Use:   "check <drv-path>...",
		Short: "Report binary cache coverage for derivation closures",
		Long: `Report how much of the runtime closure of one or more derivations a
binary cache can substitute.

Each .drv file is parsed and its build-time closure discovered, the
configured caches are queried for every declared output, and the runtime
closure of the given roots is classified as available or missing.

Caches are tried in order per output; a path absent everywhere is
reported missing, not treated as an error.

Examples:
  nixcov check /nix/store/b6gvzjyb2pg0kjfwrjmg1vfhh54ad73z-firefox-33.1.drv
  nixcov check --cache https://cache.nixos.org --cache https://example.org a.drv b.drv
  nixcov check --format json -o coverage.json a.drv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != formatHuman && opts.format != formatJSON {
				return errors.New(errors.ErrCodeInvalidFormat,
					"unknown format %q (supported: human, json)", opts.format)
			}
			c.applyConfig(cmd, &opts)
			return c.runCheck(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.caches, "cache", nil, "binary cache root URL (repeatable, ordered)")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", opts.concurrency, "maximum parallel narinfo lookups")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", opts.maxAttempts, "attempts per cache for transient failures")
	cmd.Flags().StringVar(&opts.format, "format", opts.format, "report format: human (default), json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached narinfo responses")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")

	return cmd
}

// applyConfig fills flag values the user left untouched from the config
// file. Flags beat config, config beats built-in defaults.
func (c *CLI) applyConfig(cmd *cobra.Command, opts *checkOpts) {
	if !cmd.Flags().Changed("cache") && len(c.Config.Caches) > 0 {
		opts.caches = c.Config.Caches
	}
	if !cmd.Flags().Changed("concurrency") && c.Config.Concurrency > 0 {
		opts.concurrency = c.Config.Concurrency
	}
	if !cmd.Flags().Changed("max-attempts") && c.Config.MaxAttempts > 0 {
		opts.maxAttempts = c.Config.MaxAttempts
	}
}

// runCheck executes the full pipeline stage by stage so each stage gets
// its own spinner: discover, fetch, classify, report.
func (c *CLI) runCheck(ctx context.Context, args []string, opts checkOpts) error {
	if len(opts.caches) == 0 {
		opts.caches = []string{fetch.DefaultCacheRoot}
	}

	popts := pipeline.Options{
		DrvPaths:    args,
		Caches:      opts.caches,
		MaxAttempts: opts.maxAttempts,
		Concurrency: opts.concurrency,
		CacheTTL:    c.Config.Cache.TTL(),
		Refresh:     opts.refresh,
	}
	if err := popts.Validate(); err != nil {
		return err
	}

	respCache, err := newCache(c.Config, opts.noCache)
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(respCache, c.Logger)
	defer runner.Close()

	spinner := newSpinnerWithContext(ctx, "Discovering build closure...")
	spinner.Start()
	st, roots, err := runner.Discover(ctx, popts)
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("Discovery failed: %s", errors.UserMessage(err)))
		return err
	}
	spinner.Stop()
	printSuccess("Discovered %d store paths (%d roots)", st.Len(), len(roots))

	outputs := len(st.OutputHashes())
	prog := newProgress(c.Logger)
	spinner = newSpinnerWithContext(ctx, fmt.Sprintf("Querying %d caches for %d outputs...", len(opts.caches), outputs))
	spinner.Start()
	resolved, err := runner.Fetch(ctx, st, popts)
	if err != nil {
		spinner.StopWithError("Cache lookup failed")
		return err
	}
	spinner.Stop()
	prog.done(fmt.Sprintf("Resolved %d of %d outputs", resolved, outputs))

	_, cov, err := pipeline.Classify(st, roots)
	if err != nil {
		return err
	}

	if err := c.writeReport(cov, opts); err != nil {
		return err
	}
	if opts.format == formatHuman && opts.output == "" && len(cov.Missing) > 0 {
		printNewline()
		printNextStep("Inspect the runtime graph", fmt.Sprintf("nixcov graph %s --runtime", args[0]))
	}
	return nil
}

// writeReport renders the coverage report in the requested format. A
// human report on a terminal is styled; written to a file it degrades
// to plain text.
func (c *CLI) writeReport(cov *store.Coverage, opts checkOpts) error {
	if opts.format == formatHuman && opts.output == "" {
		printNewline()
		printCoverage(cov)
		printNewline()
		if len(cov.Missing) == 0 {
			printSuccess("The caches cover the entire runtime closure")
			return nil
		}
		printWarning("%d paths must be built locally:", len(cov.Missing))
		for _, name := range cov.Missing {
			printFile(name)
		}
		return nil
	}

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if opts.format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cov); err != nil {
			return err
		}
	} else if err := writeCoverageText(out, cov); err != nil {
		return err
	}
	if opts.output != "" {
		printFile(opts.output)
	}
	return nil
}

// writeCoverageText writes the report as plain text, one field per line.
func writeCoverageText(w io.Writer, cov *store.Coverage) error {
	_, err := fmt.Fprintf(w, "paths: %d\navailable: %d (%.0f%%)\ndownload: %s\nunpacked: %s\n",
		cov.Total, cov.Found, coveragePercent(cov),
		humanize.Bytes(cov.FileSize), humanize.Bytes(cov.NarSize))
	if err != nil {
		return err
	}
	for _, name := range cov.Missing {
		if _, err := fmt.Fprintf(w, "missing: %s\n", name); err != nil {
			return err
		}
	}
	return nil
}
