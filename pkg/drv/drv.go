// Package drv decodes Nix derivation (.drv) files.
//
// A derivation file is an ATerm-style term with fixed, positional fields:
//
//	Derive(outputs, inputDrvs, inputSrcs, platform, builder, args, env)
//
// The grammar is not self-describing: every production is introduced by a
// distinct literal (`Derive(`, `[`, `(`, `"`), so decoding is a single
// deterministic pass with no backtracking. Files are small and read
// wholesale before decoding; [Parse] therefore takes the complete file
// content and rejects any unconsumed trailing bytes.
package drv

// Derivation is a decoded .drv file: the recipe for building one or more
// store outputs.
type Derivation struct {
	Outputs     []Output
	InputDrvs   []InputDrv
	InputSrcs   []string
	Platform    string
	Builder     string
	BuilderArgs []string
	Env         []EnvPair
}

// Output is one declared build product of a derivation. HashAlgo and Hash
// are empty except for fixed-output derivations.
type Output struct {
	Key      string
	Path     string
	HashAlgo string
	Hash     string
}

// InputDrv references another derivation file and the subset of its
// outputs this derivation consumes.
type InputDrv struct {
	Path    string
	Outputs []string
}

// EnvPair is one environment binding. Env is kept as an ordered list
// rather than a map: derivations may repeat keys, and the first match
// wins on lookup.
type EnvPair struct {
	Key   string
	Value string
}

// Output returns the declared output with the given key.
func (d *Derivation) Output(key string) (Output, bool) {
	for _, o := range d.Outputs {
		if o.Key == key {
			return o, true
		}
	}
	return Output{}, false
}

// LookupEnv returns the value of the first environment pair with the
// given key.
func (d *Derivation) LookupEnv(key string) (string, bool) {
	for _, p := range d.Env {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Name returns the conventional "name" environment value, which nix sets
// on every derivation it writes.
func (d *Derivation) Name() (string, bool) {
	return d.LookupEnv("name")
}
