package dot

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

var (
	hashA = strings.Repeat("a", storepath.HashLength)
	hashB = strings.Repeat("b", storepath.HashLength)
	outA  = strings.Repeat("c", storepath.HashLength)
	outB  = strings.Repeat("d", storepath.HashLength)
	srcS  = strings.Repeat("s", storepath.HashLength)

	drvAPath = "/nix/store/" + hashA + "-a-1.0.drv"
	drvBPath = "/nix/store/" + hashB + "-b-1.0.drv"
	outAPath = "/nix/store/" + outA + "-a-1.0"
	outBPath = "/nix/store/" + outB + "-b-1.0"
	srcPath  = "/nix/store/" + srcS + "-builder.sh"

	drvAText = `Derive([("out","` + outAPath + `","","")],[("` + drvBPath + `",["out"])],["` + srcPath + `"],"x86_64-linux","/bin/sh",[],[("name","a-1.0")])`
	drvBText = `Derive([("out","` + outBPath + `","","")],[],[],"x86_64-linux","/bin/sh",[],[("name","b-1.0")])`
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	files := map[string]string{drvAPath: drvAText, drvBPath: drvBText}
	s := store.New(func(path string) ([]byte, error) {
		content, ok := files[path]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
		}
		return []byte(content), nil
	})
	if _, err := s.DiscoverPath(drvAPath); err != nil {
		t.Fatalf("DiscoverPath error: %v", err)
	}
	return s
}

func mustHash(t *testing.T, name string) storepath.Hash {
	t.Helper()
	h, err := storepath.ParseHash(name)
	if err != nil {
		t.Fatalf("ParseHash(%q) error: %v", name, err)
	}
	return h
}

func TestToDOT(t *testing.T) {
	s := testStore(t)
	got := ToDOT(s, Options{})

	if !strings.HasPrefix(got, "digraph store {") {
		t.Errorf("missing digraph header:\n%s", got)
	}

	// One node per store item, labeled by name.
	for _, label := range []string{"a-1.0.drv", "b-1.0.drv", "a-1.0", "b-1.0", "builder.sh"} {
		if !strings.Contains(got, fmt.Sprintf("label=%q", label)) {
			t.Errorf("missing node label %q", label)
		}
	}

	// Expansion edges: drv A to its input drv and source, outputs to
	// their derivers.
	edges := []string{
		fmt.Sprintf("%q -> %q", hashA, hashB),
		fmt.Sprintf("%q -> %q", hashA, srcS),
		fmt.Sprintf("%q -> %q", outA, hashA),
		fmt.Sprintf("%q -> %q", outB, hashB),
	}
	for _, e := range edges {
		if !strings.Contains(got, e) {
			t.Errorf("missing edge %s", e)
		}
	}
}

func TestToDOTDeterministic(t *testing.T) {
	s := testStore(t)
	if ToDOT(s, Options{}) != ToDOT(s, Options{}) {
		t.Error("repeated export differs")
	}
}

func TestToDOTStyles(t *testing.T) {
	s := testStore(t)
	s.Merge(mustHash(t, outA), &narinfo.NarInfo{
		StorePath:  outAPath,
		References: []string{outB + "-b-1.0"},
	})

	got := ToDOT(s, Options{})

	if !strings.Contains(got, "fillcolor=palegreen") {
		t.Error("resolved item should be green")
	}
	if !strings.Contains(got, "fillcolor=lightgrey") {
		t.Error("source should be grey")
	}
	// Resolved items point at their references instead of the deriver.
	if !strings.Contains(got, fmt.Sprintf("%q -> %q", outA, outB)) {
		t.Error("missing reference edge")
	}
	if strings.Contains(got, fmt.Sprintf("%q -> %q", outA, hashA)) {
		t.Error("resolved item should not keep its deriver edge")
	}
}

func TestToDOTClosure(t *testing.T) {
	s := testStore(t)

	c := store.NewClosure()
	if err := c.AddRuntimeClosureOf(mustHash(t, outB), s); err != nil {
		t.Fatalf("AddRuntimeClosureOf error: %v", err)
	}

	got := ToDOT(s, Options{Closure: c})

	// The runtime closure of outB is {outB, drvB}: nothing from the
	// A side may leak in.
	if !strings.Contains(got, fmt.Sprintf("%q -> %q", outB, hashB)) {
		t.Error("missing closure edge")
	}
	for _, name := range []string{hashA, outA, srcS} {
		if strings.Contains(got, name) {
			t.Errorf("closure export leaked %s", name)
		}
	}
}

func TestToDOTMissingLeaf(t *testing.T) {
	s := store.New(nil)
	unknown := strings.Repeat("q", storepath.HashLength)
	c := store.Closure{mustHash(t, unknown): true}

	got := ToDOT(s, Options{Closure: c})
	if !strings.Contains(got, "fillcolor=mistyrose") {
		t.Error("hash absent from the store should render as missing")
	}
}

func TestToDOTDetailed(t *testing.T) {
	s := testStore(t)
	got := ToDOT(s, Options{Detailed: true})

	for _, kind := range []string{"derivation", "unresolved output", "source"} {
		if !strings.Contains(got, kind) {
			t.Errorf("detailed labels should name the %s kind", kind)
		}
	}
	if strings.Contains(ToDOT(s, Options{}), "derivation") {
		t.Error("plain labels should not name kinds")
	}
}
