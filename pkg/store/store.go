// Package store holds the discovered derivation graph and the coverage
// computations over it.
//
// A [Store] maps content hashes to [Item] entries and is built in two
// stages: [Store.Discover] registers the build-time closure of one or
// more derivations, then fetched cache metadata is merged in through
// [Store.Merge]. A [Closure] is the runtime dependency set expanded from
// a root hash, and [Closure.Coverage] classifies it against the store.
//
// The store is exclusively owned by the calling pipeline stage: discovery
// mutates it from a single call tree, the fetch stage mutates it from a
// single merge loop, and the traversals only read. Nothing here locks.
package store

import (
	"os"

	"github.com/nixcov/nixcov/pkg/drv"
	"github.com/nixcov/nixcov/pkg/errors"
	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// ReadFileFunc reads the complete content of a derivation file. It is
// injected so tests can serve derivations from memory.
type ReadFileFunc func(path string) ([]byte, error)

// Store is the owner of every discovered [Item], indexed by content hash.
type Store struct {
	items    map[storepath.Hash]Item
	readFile ReadFileFunc
}

// New creates an empty store. A nil readFile defaults to os.ReadFile.
func New(readFile ReadFileFunc) *Store {
	if readFile == nil {
		readFile = os.ReadFile
	}
	return &Store{
		items:    make(map[storepath.Hash]Item),
		readFile: readFile,
	}
}

// Get returns the item registered for h.
func (s *Store) Get(h storepath.Hash) (Item, bool) {
	item, ok := s.items[h]
	return item, ok
}

// Len returns the number of registered items.
func (s *Store) Len() int { return len(s.items) }

// Items returns the live hash-to-item map. Callers must treat it as
// read-only.
func (s *Store) Items() map[storepath.Hash]Item { return s.items }

// insert registers an item unless the hash is already taken. Entries are
// created once and never overwritten; only Merge upgrades them.
func (s *Store) insert(h storepath.Hash, item Item) {
	if _, ok := s.items[h]; !ok {
		s.items[h] = item
	}
}

// DiscoverPath reads and parses the derivation file at path and registers
// its build-time closure. It returns the derivation's own hash, the root
// for later closure expansion.
func (s *Store) DiscoverPath(path string) (storepath.Hash, error) {
	h, err := storepath.FromPath(path)
	if err != nil {
		return h, errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid derivation path %q", path)
	}
	root, err := s.parseFile(path)
	if err != nil {
		return h, err
	}
	return h, s.Discover(h, root)
}

// Discover registers root under h together with its entire build-time
// closure: every input source, every declared output, and the transitive
// closure of every input derivation. Already-present hashes are skipped,
// which both memoizes shared subgraphs and makes the call idempotent.
// Any read or parse failure aborts discovery; a partial closure is not
// usable.
func (s *Store) Discover(h storepath.Hash, root *drv.Derivation) error {
	// Each frame is a derivation to register: the root arrives parsed,
	// input references are read lazily at pop time so a derivation
	// shared between many parents is read at most once.
	type frame struct {
		hash storepath.Hash
		path string
		drv  *drv.Derivation
	}
	stack := []frame{{hash: h, drv: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := s.items[f.hash]; ok {
			continue
		}

		cur := f.drv
		if cur == nil {
			var err error
			if cur, err = s.parseFile(f.path); err != nil {
				return err
			}
		}

		s.items[f.hash] = Drv{Derivation: cur}

		for _, src := range cur.InputSrcs {
			srcHash, srcName, err := storepath.SplitPath(src)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid input source %q", src)
			}
			s.insert(srcHash, Source{Name: srcName})
		}

		for _, out := range cur.Outputs {
			outHash, outName, err := storepath.SplitPath(out.Path)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid output path %q", out.Path)
			}
			s.insert(outHash, Output{Name: outName, Deriver: f.hash})
		}

		for _, in := range cur.InputDrvs {
			inHash, err := storepath.FromPath(in.Path)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid input derivation path %q", in.Path)
			}
			stack = append(stack, frame{hash: inHash, path: in.Path})
		}
	}
	return nil
}

func (s *Store) parseFile(path string) (*drv.Derivation, error) {
	data, err := s.readFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "reading derivation %s", path)
	}
	d, err := drv.Parse(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMalformedDrv, err, "parsing derivation %s", path)
	}
	return d, nil
}

// Merge records fetched metadata for h: a vacant hash inserts a new
// entry, an Output entry is upgraded in place, and any other existing
// kind is left untouched. It reports whether the entry was actually
// inserted or upgraded; callers log the conflicting case. Merges are
// per-key monotonic, so applying them in any order yields the same
// final store.
func (s *Store) Merge(h storepath.Hash, info *narinfo.NarInfo) bool {
	switch s.items[h].(type) {
	case nil, Output:
		s.items[h] = NarInfo{Info: info}
		return true
	default:
		return false
	}
}

// OutputHashes returns every hash currently recorded as a declared
// output: the candidate set for cache lookups.
func (s *Store) OutputHashes() []storepath.Hash {
	var hashes []storepath.Hash
	for h, item := range s.items {
		if _, ok := item.(Output); ok {
			hashes = append(hashes, h)
		}
	}
	return hashes
}

// resolveInputs returns the concrete output paths of every input
// derivation d consumes, by looking the input's declared outputs up by
// key. Discovery guarantees every input hash is present as a Drv;
// anything else signals a corrupted store, not bad input data.
func (s *Store) resolveInputs(d *drv.Derivation) ([]string, error) {
	var paths []string
	for _, in := range d.InputDrvs {
		inHash, err := storepath.FromPath(in.Path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "invalid input derivation path %q", in.Path)
		}
		item, ok := s.items[inHash]
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal, "input derivation %s missing from store", in.Path)
		}
		inDrv, ok := item.(Drv)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal, "input derivation %s registered as %T", in.Path, item)
		}
		for _, key := range in.Outputs {
			out, ok := inDrv.Derivation.Output(key)
			if !ok {
				return nil, errors.New(errors.ErrCodeInternal, "derivation %s declares no output %q", in.Path, key)
			}
			paths = append(paths, out.Path)
		}
	}
	return paths, nil
}
