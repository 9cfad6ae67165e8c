package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nixcov/nixcov/pkg/dot"
	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/pipeline"
)

// Graph output formats.
const (
	formatDOT = "dot"
	formatSVG = "svg"
)

// graphOpts holds the command-line flags for the graph command.
type graphOpts struct {
	runtime  bool   // restrict to the runtime closure
	detailed bool   // include hashes and kinds in node labels
	format   string // dot or svg
	output   string // output file path (stdout if empty)
}

// graphCommand creates the graph command for exporting the dependency
// graph.
func (c *CLI) graphCommand() *cobra.Command {
	opts := graphOpts{format: formatDOT}

	cmd := &cobra.Command{
		Use:   "graph <drv-path>...",
		Short: "Export the dependency graph as DOT or SVG",
		Long: `Export the dependency graph of one or more derivations.

By default the build-time graph is exported: derivations point at their
inputs and outputs at their producing derivation. With --runtime the
graph is restricted to the runtime closure of the given roots.

Available paths are drawn green, sources grey, missing paths red, and
unresolved outputs dashed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != formatDOT && opts.format != formatSVG {
				return errors.New(errors.ErrCodeInvalidFormat,
					"unknown format %q (supported: dot, svg)", opts.format)
			}
			return c.runGraph(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.runtime, "runtime", false, "restrict to the runtime closure")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include hashes and kinds in node labels")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: dot (default), svg")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (stdout if empty)")

	return cmd
}

// runGraph discovers the given derivations and writes the graph.
func (c *CLI) runGraph(ctx context.Context, args []string, opts graphOpts) error {
	logger := loggerFromContext(ctx)

	runner := pipeline.NewRunner(nil, logger)
	st, roots, err := runner.Discover(ctx, pipeline.Options{DrvPaths: args})
	if err != nil {
		return err
	}

	dopts := dot.Options{Detailed: opts.detailed}
	if opts.runtime {
		closure, err := pipeline.RuntimeClosure(st, roots)
		if err != nil {
			return err
		}
		dopts.Closure = closure
	}

	rendered := []byte(dot.ToDOT(st, dopts))
	if opts.format == formatSVG {
		prog := newProgress(logger)
		svg, err := dot.RenderSVG(string(rendered))
		if err != nil {
			return err
		}
		rendered = svg
		prog.done("Rendered SVG")
	}

	out, err := openOutput(opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := out.Write(rendered); err != nil {
		return err
	}
	if opts.output != "" {
		printFile(opts.output)
	}
	return nil
}
