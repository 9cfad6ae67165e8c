// Package narinfo decodes .narinfo records served by Nix binary caches.
//
// A narinfo record describes one store path the cache can substitute: where
// its NAR archive lives, its sizes and hashes, and which other store items
// it references at runtime. Records are newline-delimited `Key: value`
// lines in fixed order, conventionally served at
// {cache_root}/{32-char-hash}.narinfo.
package narinfo

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nixcov/nixcov/pkg/errors"
)

// NarInfo is one decoded cache-metadata record.
type NarInfo struct {
	StorePath   string
	URL         string
	Compression string
	FileHash    string
	FileSize    uint64
	NarHash     string
	NarSize     uint64
	References  []string // bare store-item names, not full paths
	Deriver     string   // optional; empty when the cache omits the line
	Sig         string
}

// absentBody is served by at least one real cache backend in an HTTP-200
// response to mean "path not here"; it must be treated exactly like an
// HTTP 404 status.
var absentBody = []byte("404")

// Parse decodes a narinfo response body. It returns ok=false with no
// error when the body is the literal `404` absence sentinel. A malformed
// body is an error, never silently treated as absent. Fields must appear
// in their fixed order; bytes after the Sig line are ignored, since real
// caches append additional signature lines.
func Parse(body []byte) (*NarInfo, bool, error) {
	if bytes.Equal(body, absentBody) {
		return nil, false, nil
	}

	p := &parser{data: body}
	ni := &NarInfo{}
	var err error
	if ni.StorePath, err = p.line("StorePath"); err != nil {
		return nil, false, err
	}
	if ni.URL, err = p.line("URL"); err != nil {
		return nil, false, err
	}
	if ni.Compression, err = p.line("Compression"); err != nil {
		return nil, false, err
	}
	if ni.FileHash, err = p.line("FileHash"); err != nil {
		return nil, false, err
	}
	if ni.FileSize, err = p.size("FileSize"); err != nil {
		return nil, false, err
	}
	if ni.NarHash, err = p.line("NarHash"); err != nil {
		return nil, false, err
	}
	if ni.NarSize, err = p.size("NarSize"); err != nil {
		return nil, false, err
	}
	refs, err := p.line("References")
	if err != nil {
		return nil, false, err
	}
	ni.References = strings.Fields(refs)
	if v, ok := p.maybeLine("Deriver"); ok {
		ni.Deriver = v
	}
	if ni.Sig, err = p.line("Sig"); err != nil {
		return nil, false, err
	}
	return ni, true, nil
}

type parser struct {
	data []byte
	pos  int
}

func (p *parser) errf(format string, args ...any) error {
	return errors.New(errors.ErrCodeMalformedNarInfo, format, args...)
}

// line consumes a `key: value` line terminated by a newline. The value
// may be empty.
func (p *parser) line(key string) (string, error) {
	prefix := key + ": "
	if !bytes.HasPrefix(p.data[p.pos:], []byte(prefix)) {
		return "", p.errf("expected %q line at offset %d", key, p.pos)
	}
	p.pos += len(prefix)
	nl := bytes.IndexByte(p.data[p.pos:], '\n')
	if nl < 0 {
		return "", p.errf("unterminated %q line", key)
	}
	val := string(p.data[p.pos : p.pos+nl])
	p.pos += nl + 1
	return val, nil
}

// maybeLine consumes a `key: value` line if its prefix is present.
// A present prefix with no terminating newline is still consumed as far
// as possible and reported by the next mandatory line.
func (p *parser) maybeLine(key string) (string, bool) {
	if !bytes.HasPrefix(p.data[p.pos:], []byte(key+": ")) {
		return "", false
	}
	v, err := p.line(key)
	if err != nil {
		return "", false
	}
	return v, true
}

// size consumes a line whose value must be an unsigned decimal integer.
func (p *parser) size(key string) (uint64, error) {
	v, err := p.line(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, p.errf("%s is not an unsigned integer: %q", key, v)
	}
	return n, nil
}
