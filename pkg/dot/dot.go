// Package dot exports the store graph in Graphviz DOT form.
//
// Nodes are store items keyed by hash. Edges follow the same expansion
// the closure walks use: derivations point at their inputs, outputs at
// their deriver, and resolved items at their runtime references. The
// output is deterministic: nodes and edges are emitted in hash order.
package dot

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Options configures graph export.
type Options struct {
	// Closure restricts the graph to the given hashes. Hashes in the
	// closure but absent from the store render as missing leaves.
	// When nil, the whole store is exported.
	Closure store.Closure

	// Detailed includes the full hash and item kind in node labels.
	// When false, only the human-readable name (or a hash prefix) is
	// shown.
	Detailed bool
}

// ToDOT renders the store graph as Graphviz DOT. The result can be
// written out directly or turned into an image with [RenderSVG].
func ToDOT(s *store.Store, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph store {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=12, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	hashes := nodeHashes(s, opts.Closure)
	members := make(map[storepath.Hash]bool, len(hashes))
	for _, h := range hashes {
		members[h] = true
	}

	for _, h := range hashes {
		item, _ := s.Get(h)
		fmt.Fprintf(&buf, "  %q [%s];\n", h.String(), strings.Join(attrs(h, item, opts.Detailed), ", "))
	}

	buf.WriteString("\n")
	for _, h := range hashes {
		item, _ := s.Get(h)
		for _, to := range expandsTo(item) {
			// Edges leaving the drawn set would make graphviz invent
			// unstyled nodes; a self edge is just noise.
			if to == h || !members[to] {
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q;\n", h.String(), to.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// nodeHashes returns the hashes to draw, sorted for deterministic
// output.
func nodeHashes(s *store.Store, c store.Closure) []storepath.Hash {
	if c != nil {
		return c.Hashes()
	}
	hashes := make([]storepath.Hash, 0, s.Len())
	for h := range s.Items() {
		hashes = append(hashes, h)
	}
	slices.SortFunc(hashes, func(a, b storepath.Hash) int {
		return slices.Compare(a[:], b[:])
	})
	return hashes
}

// expandsTo lists the hashes an item's expansion reaches, in a stable
// order.
func expandsTo(item store.Item) []storepath.Hash {
	switch it := item.(type) {
	case store.Drv:
		var out []storepath.Hash
		for _, in := range it.Derivation.InputDrvs {
			if h, err := storepath.FromPath(in.Path); err == nil {
				out = append(out, h)
			}
		}
		for _, src := range it.Derivation.InputSrcs {
			if h, err := storepath.FromPath(src); err == nil {
				out = append(out, h)
			}
		}
		return out
	case store.Output:
		return []storepath.Hash{it.Deriver}
	case store.NarInfo:
		var out []storepath.Hash
		for _, ref := range it.Info.References {
			if h, err := storepath.ParseHash(ref); err == nil {
				out = append(out, h)
			}
		}
		slices.SortFunc(out, func(a, b storepath.Hash) int {
			return slices.Compare(a[:], b[:])
		})
		return slices.Compact(out)
	default:
		return nil
	}
}

func attrs(h storepath.Hash, item store.Item, detailed bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label(h, item, detailed))}
	switch item.(type) {
	case store.NarInfo:
		attrs = append(attrs, "fillcolor=palegreen")
	case store.Output:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	case store.Source:
		attrs = append(attrs, "fillcolor=lightgrey")
	case nil:
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fillcolor=mistyrose")
	}
	return attrs
}

func label(h storepath.Hash, item store.Item, detailed bool) string {
	name := itemName(h, item)
	if !detailed {
		return name
	}
	return name + "\n" + h.String() + "\n" + kind(item)
}

// itemName picks the human-readable node name, falling back to a hash
// prefix when no name is recorded.
func itemName(h storepath.Hash, item store.Item) string {
	switch it := item.(type) {
	case store.Drv:
		if name, ok := it.Derivation.Name(); ok {
			return name + ".drv"
		}
	case store.Output:
		return it.Name
	case store.NarInfo:
		if _, name, err := storepath.SplitPath(it.Info.StorePath); err == nil {
			return name
		}
	case store.Source:
		return it.Name
	}
	return h.String()[:8] + "…"
}

func kind(item store.Item) string {
	switch item.(type) {
	case store.Drv:
		return "derivation"
	case store.Output:
		return "unresolved output"
	case store.NarInfo:
		return "available"
	case store.Source:
		return "source"
	default:
		return "missing"
	}
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
