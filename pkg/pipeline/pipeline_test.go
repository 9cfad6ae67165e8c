package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/nixcov/nixcov/pkg/storepath"
)

// Fixture: one derivation with two outputs, no inputs.
var (
	drvHashName = strings.Repeat("a", storepath.HashLength)
	outHash     = strings.Repeat("d", storepath.HashLength)
	devHash     = strings.Repeat("f", storepath.HashLength)

	drvPath = "/nix/store/" + drvHashName + "-pkg-1.0.drv"
	outPath = "/nix/store/" + outHash + "-pkg-1.0"
	devPath = "/nix/store/" + devHash + "-pkg-1.0-dev"

	drvText = `Derive([("dev","` + devPath + `","",""),("out","` + outPath + `","","")],[],[],"x86_64-linux","/bin/sh",[],[("name","pkg-1.0")])`
)

func fixtureOptions(caches ...string) Options {
	return Options{
		DrvPaths: []string{drvPath},
		Caches:   caches,
		ReadFile: func(path string) ([]byte, error) {
			if path != drvPath {
				return nil, os.ErrNotExist
			}
			return []byte(drvText), nil
		},
		MaxAttempts: 1,
	}
}

func testRunner() *Runner {
	return NewRunner(nil, log.NewWithOptions(io.Discard, log.Options{}))
}

func mustHash(t *testing.T, name string) storepath.Hash {
	t.Helper()
	h, err := storepath.ParseHash(name)
	if err != nil {
		t.Fatalf("ParseHash(%q) error: %v", name, err)
	}
	return h
}

// narBody builds a well-formed narinfo record for the given store path.
func narBody(storePath string, refs ...string) string {
	return "StorePath: " + storePath + "\n" +
		"URL: nar/1bk2rfgjlsx3arw8iy19hr5g4kqnw0w224dbs1bjgbzaqg7wjjcs.nar.xz\n" +
		"Compression: xz\n" +
		"FileHash: sha256:1bk2rfgjlsx3arw8iy19hr5g4kqnw0w224dbs1bjgbzaqg7wjjcs\n" +
		"FileSize: 100\n" +
		"NarHash: sha256:0hrmyjq4qzpjbp6cgwhqdcsmnc2b937kcgapja2brm4yh1bqqn01\n" +
		"NarSize: 200\n" +
		"References: " + strings.Join(refs, " ") + "\n" +
		"Sig: cache.nixos.org-1:aaaa\n"
}

func TestExecuteFullCoverage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/" + outHash + ".narinfo":
			w.Write([]byte(narBody(outPath, devHash+"-pkg-1.0-dev")))
		case "/" + devHash + ".narinfo":
			w.Write([]byte(narBody(devPath)))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer server.Close()

	result, err := testRunner().Execute(context.Background(), fixtureOptions(server.URL))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Stats.Paths != 3 {
		t.Errorf("Stats.Paths = %d, want 3", result.Stats.Paths)
	}
	if result.Stats.Outputs != 2 || result.Stats.Resolved != 2 {
		t.Errorf("Stats = %d resolved of %d outputs, want 2 of 2",
			result.Stats.Resolved, result.Stats.Outputs)
	}
	if result.Coverage.Total != 2 || result.Coverage.Found != 2 {
		t.Errorf("coverage = %d of %d, want 2 of 2", result.Coverage.Found, result.Coverage.Total)
	}
	if len(result.Coverage.Missing) != 0 {
		t.Errorf("missing = %v, want none", result.Coverage.Missing)
	}

	// With every output substitutable the recipe stays out of the closure.
	if result.Closure[mustHash(t, drvHashName)] {
		t.Error("closure included the root recipe")
	}
}

func TestExecuteAllMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	result, err := testRunner().Execute(context.Background(), fixtureOptions(server.URL))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Stats.Resolved != 0 {
		t.Errorf("Stats.Resolved = %d, want 0", result.Stats.Resolved)
	}
	// Both outputs fall back to the recipe, which is reported missing
	// once by name.
	if result.Coverage.Total != 3 || result.Coverage.Found != 0 {
		t.Errorf("coverage = %d of %d, want 0 of 3", result.Coverage.Found, result.Coverage.Total)
	}
	if len(result.Coverage.Missing) != 1 || result.Coverage.Missing[0] != "pkg-1.0" {
		t.Errorf("missing = %v, want [pkg-1.0]", result.Coverage.Missing)
	}
}

func TestRuntimeClosureRootsAtOutputs(t *testing.T) {
	st, roots, err := testRunner().Discover(context.Background(), fixtureOptions())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	closure, err := RuntimeClosure(st, roots)
	if err != nil {
		t.Fatalf("RuntimeClosure failed: %v", err)
	}

	// Without metadata both outputs fall back to the recipe.
	for _, name := range []string{outHash, devHash, drvHashName} {
		if !closure[mustHash(t, name)] {
			t.Errorf("closure missing %s", name)
		}
	}
	if len(closure) != 3 {
		t.Errorf("closure has %d members, want 3", len(closure))
	}
}

func TestDiscoverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := testRunner().Discover(ctx, fixtureOptions())
	if err != context.Canceled {
		t.Errorf("Discover error = %v, want context.Canceled", err)
	}
}

func TestDiscoverMissingFile(t *testing.T) {
	opts := fixtureOptions()
	opts.ReadFile = func(string) ([]byte, error) { return nil, os.ErrNotExist }

	if _, _, err := testRunner().Discover(context.Background(), opts); err == nil {
		t.Fatal("expected error for unreadable derivation")
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"no paths", Options{}, true},
		{"valid path", Options{DrvPaths: []string{drvPath}}, false},
		{"relative path", Options{DrvPaths: []string{"relative.drv"}}, true},
		{"not a drv", Options{DrvPaths: []string{"/nix/store/" + drvHashName + "-pkg-1.0"}}, true},
		{"bad cache scheme", Options{DrvPaths: []string{drvPath}, Caches: []string{"ftp://x"}}, true},
		{"http cache", Options{DrvPaths: []string{drvPath}, Caches: []string{"http://127.0.0.1:8080"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunnerClose(t *testing.T) {
	r := testRunner()
	if err := r.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
