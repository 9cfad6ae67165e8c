package pipeline

import (
	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Classify expands the runtime closure of the given root derivations
// and classifies it against the store. It needs no network access and
// can run on a store in any fetch state: unresolved outputs simply fall
// back to their producing recipe.
func Classify(st *store.Store, roots []storepath.Hash) (store.Closure, *store.Coverage, error) {
	closure, err := RuntimeClosure(st, roots)
	if err != nil {
		return nil, nil, err
	}
	cov, err := closure.Coverage(st)
	if err != nil {
		return nil, nil, err
	}
	return closure, cov, nil
}

// RuntimeClosure expands the combined runtime closure of every root
// derivation. Expansion starts at the outputs each root declares, not
// at the recipes themselves: coverage is a question about the build
// results, and a recipe whose outputs are all substitutable never needs
// to run.
func RuntimeClosure(st *store.Store, roots []storepath.Hash) (store.Closure, error) {
	closure := store.NewClosure()
	for _, root := range roots {
		outs, err := rootOutputs(st, root)
		if err != nil {
			return nil, err
		}
		for _, out := range outs {
			if err := closure.AddRuntimeClosureOf(out, st); err != nil {
				return nil, err
			}
		}
	}
	return closure, nil
}

// rootOutputs returns the hashes of every output a root derivation
// declares. Discovery guarantees every root is present as a Drv;
// anything else signals a corrupted store.
func rootOutputs(st *store.Store, root storepath.Hash) ([]storepath.Hash, error) {
	item, ok := st.Get(root)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "root %s missing from store", root)
	}
	d, ok := item.(store.Drv)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "root %s is not a derivation", root)
	}
	outs := make([]storepath.Hash, 0, len(d.Derivation.Outputs))
	for _, out := range d.Derivation.Outputs {
		h, err := storepath.FromPath(out.Path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid output path %q", out.Path)
		}
		outs = append(outs, h)
	}
	return outs, nil
}
