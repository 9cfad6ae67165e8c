package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/nixcov/nixcov/pkg/pipeline"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// closureOpts holds the command-line flags for the closure command.
type closureOpts struct {
	runtime bool   // list the runtime closure instead of the build-time one
	output  string // output file path (stdout if empty)
}

// closureCommand creates the closure command for listing store paths.
func (c *CLI) closureCommand() *cobra.Command {
	var opts closureOpts

	cmd := &cobra.Command{
		Use:   "closure <drv-path>...",
		Short: "List the closure of one or more derivations",
		Long: `List the store paths in the closure of one or more derivations.

By default the build-time closure is listed: every derivation, input
source, and declared output reachable from the given roots. With
--runtime only the paths needed to run the build results are listed,
computed offline; outputs without cache metadata fall back to their
producing recipe.

Each line shows the store hash, the entry kind, and the entry name.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runClosure(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.runtime, "runtime", false, "list the runtime closure")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

// runClosure discovers the given derivations and writes the listing.
func (c *CLI) runClosure(ctx context.Context, args []string, opts closureOpts) error {
	logger := loggerFromContext(ctx)

	prog := newProgress(logger)
	runner := pipeline.NewRunner(nil, logger)
	st, roots, err := runner.Discover(ctx, pipeline.Options{DrvPaths: args})
	if err != nil {
		return err
	}

	hashes, err := listHashes(st, roots, opts.runtime)
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Gathered %d store paths", len(hashes)))

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := writeListing(out, st, hashes); err != nil {
		return err
	}
	if opts.output != "" {
		printFile(opts.output)
	}
	return nil
}

// listHashes returns the hashes to list: the whole discovered store for
// the build-time closure, or the expanded runtime set.
func listHashes(st *store.Store, roots []storepath.Hash, runtime bool) ([]storepath.Hash, error) {
	if runtime {
		closure, err := pipeline.RuntimeClosure(st, roots)
		if err != nil {
			return nil, err
		}
		return closure.Hashes(), nil
	}

	hashes := make([]storepath.Hash, 0, st.Len())
	for h := range st.Items() {
		hashes = append(hashes, h)
	}
	slices.SortFunc(hashes, func(a, b storepath.Hash) int {
		return slices.Compare(a[:], b[:])
	})
	return hashes, nil
}

// writeListing writes one line per hash: hash, kind, name.
func writeListing(w io.Writer, st *store.Store, hashes []storepath.Hash) error {
	for _, h := range hashes {
		item, _ := st.Get(h)
		if _, err := fmt.Fprintf(w, "%s  %-10s  %s\n", h, kindOf(item), nameOf(item)); err != nil {
			return err
		}
	}
	return nil
}

// kindOf names the store entry kind for listing output. A hash in the
// runtime closure with no store entry is an unresolved leaf.
func kindOf(item store.Item) string {
	switch item.(type) {
	case store.Drv:
		return "derivation"
	case store.NarInfo:
		return "narinfo"
	case store.Output:
		return "output"
	case store.Source:
		return "source"
	default:
		return "missing"
	}
}

// nameOf extracts a display name for the entry, or "-" when none exists.
func nameOf(item store.Item) string {
	switch it := item.(type) {
	case store.Drv:
		if name, ok := it.Derivation.Name(); ok {
			return name + ".drv"
		}
	case store.NarInfo:
		if _, name, err := storepath.SplitPath(it.Info.StorePath); err == nil {
			return name
		}
	case store.Output:
		return it.Name
	case store.Source:
		return it.Name
	}
	return "-"
}
