package store

import (
	"github.com/nixcov/nixcov/pkg/drv"
	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Item is one entry of the store graph. Exactly four kinds exist: a
// parsed derivation, fetched cache metadata, an input source, and a
// declared output. Entries are created once per hash and only ever
// change through the single upgrade Merge performs (Output to NarInfo).
type Item interface{ isItem() }

// Drv is a derivation registered during build-time discovery.
type Drv struct {
	Derivation *drv.Derivation
}

// NarInfo is cache metadata fetched for a store path.
type NarInfo struct {
	Info *narinfo.NarInfo
}

// Source is an input source copied into the store verbatim. Sources
// need no further data: they are never built, so a name suffices.
type Source struct {
	Name string
}

// Output records that a hash is a declared output of the derivation at
// Deriver. It does not assert the output exists anywhere; it only
// records which recipe would produce it.
type Output struct {
	Name    string
	Deriver storepath.Hash
}

func (Drv) isItem()     {}
func (NarInfo) isItem() {}
func (Source) isItem()  {}
func (Output) isItem()  {}
