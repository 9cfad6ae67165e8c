package store

import (
	"slices"

	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Closure is the set of store hashes reachable at runtime from one or
// more roots. Built once per query, read-only afterwards.
type Closure map[storepath.Hash]bool

// NewClosure returns an empty closure.
func NewClosure() Closure { return make(Closure) }

// Hashes returns the members of the closure in stable (byte) order.
func (c Closure) Hashes() []storepath.Hash {
	hashes := make([]storepath.Hash, 0, len(c))
	for h := range c {
		hashes = append(hashes, h)
	}
	slices.SortFunc(hashes, func(a, b storepath.Hash) int {
		return slices.Compare(a[:], b[:])
	})
	return hashes
}

// AddRuntimeClosureOf expands the runtime dependency set of root into c.
// The runtime graph is distinct from the build-time graph:
//
//   - NarInfo expands to its references, the actual runtime links.
//   - Output expands to its deriver: with no metadata the path must be
//     built locally, so its dependencies are the producing recipe's.
//   - Drv expands to the concrete output paths of its input derivations.
//   - Source entries and hashes absent from the store are leaves.
//
// Every hash is marked visited before its expansion is pushed, so the
// walk terminates on diamond-shaped and cyclic reference graphs.
func (c Closure) AddRuntimeClosureOf(root storepath.Hash, s *Store) error {
	stack := []storepath.Hash{root}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if c[h] {
			continue
		}
		c[h] = true

		item, ok := s.Get(h)
		if !ok {
			// Unresolved leaf; Coverage reports it missing.
			continue
		}

		switch it := item.(type) {
		case NarInfo:
			for _, name := range it.Info.References {
				ref, err := storepath.ParseHash(name)
				if err != nil {
					return errors.Wrap(errors.ErrCodeMalformedNarInfo, err,
						"invalid reference %q in metadata for %s", name, it.Info.StorePath)
				}
				stack = append(stack, ref)
			}
		case Output:
			stack = append(stack, it.Deriver)
		case Drv:
			paths, err := s.resolveInputs(it.Derivation)
			if err != nil {
				return err
			}
			for _, p := range paths {
				out, err := storepath.FromPath(p)
				if err != nil {
					return errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid output path %q", p)
				}
				stack = append(stack, out)
			}
		case Source:
			// Sources are copied, not built; no runtime dependencies.
		}
	}
	return nil
}

// Coverage summarizes how much of a runtime closure a binary cache can
// substitute.
type Coverage struct {
	Total    uint64   `json:"total"`
	Found    uint64   `json:"found"`
	FileSize uint64   `json:"file_size"`
	NarSize  uint64   `json:"nar_size"`
	Missing  []string `json:"missing"`
}

// Coverage classifies every hash in the closure against the store:
// fetched metadata counts as found and contributes its sizes, a bare
// derivation or an absent hash is recorded missing by name, sources are
// always satisfied, and outputs defer to their producing derivation.
// Missing is sorted and de-duplicated so output is stable across runs.
func (c Closure) Coverage(s *Store) (*Coverage, error) {
	cov := &Coverage{
		Total:   uint64(len(c)),
		Missing: []string{},
	}
	for h := range c {
		if err := cov.classify(s, h); err != nil {
			return nil, err
		}
	}
	slices.Sort(cov.Missing)
	cov.Missing = slices.Compact(cov.Missing)
	return cov, nil
}

// classify walks Output entries to their producing derivation, then
// records the terminal kind. An output must never derive itself; that
// means the store graph is corrupt.
func (cov *Coverage) classify(s *Store, h storepath.Hash) error {
	for {
		item, ok := s.Get(h)
		if !ok {
			cov.Missing = append(cov.Missing, h.String())
			return nil
		}

		switch it := item.(type) {
		case NarInfo:
			cov.Found++
			cov.FileSize += it.Info.FileSize
			cov.NarSize += it.Info.NarSize
			return nil
		case Drv:
			name, ok := it.Derivation.Name()
			if !ok {
				name = h.String()
			}
			cov.Missing = append(cov.Missing, name)
			return nil
		case Source:
			return nil
		case Output:
			if it.Deriver == h {
				return errors.New(errors.ErrCodeStoreCorrupt, "output %s derives itself", h)
			}
			h = it.Deriver
		}
	}
}
