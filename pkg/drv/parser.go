package drv

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/nixcov/nixcov/pkg/errors"
)

// Parse decodes the complete content of a derivation file. The entire
// input must be consumed; trailing bytes after the closing parenthesis
// are an error, so truncated or appended files never decode silently.
func Parse(data []byte) (*Derivation, error) {
	p := &parser{data: data}
	d, err := p.derivation()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.data) {
		return nil, p.errf("trailing bytes after derivation")
	}
	return d, nil
}

// parser is a position cursor over the full file content. Every method
// consumes from pos on success and leaves pos unspecified on error; the
// first error aborts the whole decode.
type parser struct {
	data []byte
	pos  int
}

func (p *parser) errf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.New(errors.ErrCodeMalformedDrv, "%s at offset %d", msg, p.pos)
}

// expect consumes c or fails.
func (p *parser) expect(c byte) error {
	if p.pos >= len(p.data) || p.data[p.pos] != c {
		return p.errf("expected %q", c)
	}
	p.pos++
	return nil
}

// peek returns the next byte without consuming it, or 0 at end of input.
func (p *parser) peek() byte {
	if p.pos >= len(p.data) {
		return 0
	}
	return p.data[p.pos]
}

func (p *parser) derivation() (*Derivation, error) {
	const head = "Derive("
	if !bytes.HasPrefix(p.data[p.pos:], []byte(head)) {
		return nil, p.errf("expected %q", head)
	}
	p.pos += len(head)

	var d Derivation
	var err error
	if d.Outputs, err = p.outputList(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.InputDrvs, err = p.inputDrvList(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.InputSrcs, err = p.stringList(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.Platform, err = p.string(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.Builder, err = p.string(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.BuilderArgs, err = p.stringList(); err != nil {
		return nil, err
	}
	if err = p.expect(','); err != nil {
		return nil, err
	}
	if d.Env, err = p.envList(); err != nil {
		return nil, err
	}
	if err = p.expect(')'); err != nil {
		return nil, err
	}
	return &d, nil
}

// string decodes a double-quoted string. Only \\, \", \n and \t are
// recognized escapes; anything else after a backslash is an error.
func (p *parser) string() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.data) {
				return "", p.errf("unterminated escape")
			}
			switch p.data[p.pos] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return "", p.errf("invalid escape \\%c", p.data[p.pos])
			}
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errf("unterminated string")
}

// output decodes (key, path, hashAlgo, hash).
func (p *parser) output() (Output, error) {
	var o Output
	var err error
	if err = p.expect('('); err != nil {
		return o, err
	}
	if o.Key, err = p.string(); err != nil {
		return o, err
	}
	if err = p.expect(','); err != nil {
		return o, err
	}
	if o.Path, err = p.string(); err != nil {
		return o, err
	}
	if err = p.expect(','); err != nil {
		return o, err
	}
	if o.HashAlgo, err = p.string(); err != nil {
		return o, err
	}
	if err = p.expect(','); err != nil {
		return o, err
	}
	if o.Hash, err = p.string(); err != nil {
		return o, err
	}
	if err = p.expect(')'); err != nil {
		return o, err
	}
	return o, nil
}

// inputDrv decodes (path, [outputKeys...]).
func (p *parser) inputDrv() (InputDrv, error) {
	var in InputDrv
	var err error
	if err = p.expect('('); err != nil {
		return in, err
	}
	if in.Path, err = p.string(); err != nil {
		return in, err
	}
	if err = p.expect(','); err != nil {
		return in, err
	}
	if in.Outputs, err = p.stringList(); err != nil {
		return in, err
	}
	if err = p.expect(')'); err != nil {
		return in, err
	}
	return in, nil
}

// envPair decodes (key, value).
func (p *parser) envPair() (EnvPair, error) {
	var e EnvPair
	var err error
	if err = p.expect('('); err != nil {
		return e, err
	}
	if e.Key, err = p.string(); err != nil {
		return e, err
	}
	if err = p.expect(','); err != nil {
		return e, err
	}
	if e.Value, err = p.string(); err != nil {
		return e, err
	}
	if err = p.expect(')'); err != nil {
		return e, err
	}
	return e, nil
}

// Lists are comma-separated with no trailing comma and may be empty.

func (p *parser) stringList() ([]string, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var items []string
	for p.peek() != ']' {
		if len(items) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		s, err := p.string()
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	p.pos++
	return items, nil
}

func (p *parser) outputList() ([]Output, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var items []Output
	for p.peek() != ']' {
		if len(items) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		o, err := p.output()
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	p.pos++
	return items, nil
}

func (p *parser) inputDrvList() ([]InputDrv, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var items []InputDrv
	for p.peek() != ']' {
		if len(items) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		in, err := p.inputDrv()
		if err != nil {
			return nil, err
		}
		items = append(items, in)
	}
	p.pos++
	return items, nil
}

func (p *parser) envList() ([]EnvPair, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var items []EnvPair
	for p.peek() != ']' {
		if len(items) > 0 {
			if err := p.expect(','); err != nil {
				return nil, err
			}
		}
		e, err := p.envPair()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	p.pos++
	return items, nil
}
