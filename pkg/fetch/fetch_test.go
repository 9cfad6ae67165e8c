package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/nixcov/nixcov/pkg/narinfo"
	"github.com/nixcov/nixcov/pkg/store"
	"github.com/nixcov/nixcov/pkg/storepath"
)

// Fixture: one derivation with two outputs, no inputs.
var (
	drvHashName = strings.Repeat("a", storepath.HashLength)
	outHashD    = strings.Repeat("d", storepath.HashLength)
	outHashE    = strings.Repeat("e", storepath.HashLength)

	drvPath  = "/nix/store/" + drvHashName + "-pkg-1.0.drv"
	outPathD = "/nix/store/" + outHashD + "-pkg-1.0"
	outPathE = "/nix/store/" + outHashE + "-pkg-1.0-dev"

	drvText = `Derive([("dev","` + outPathE + `","",""),("out","` + outPathD + `","","")],[],[],"x86_64-linux","/bin/sh",[],[("name","pkg-1.0")])`
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(func(path string) ([]byte, error) {
		if path != drvPath {
			return nil, os.ErrNotExist
		}
		return []byte(drvText), nil
	})
	if _, err := s.DiscoverPath(drvPath); err != nil {
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

// countingServer tracks request counts per URL path.
type countingServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newCountingServer(handler func(path string, hit int, w http.ResponseWriter)) *countingServer {
	cs := &countingServer{hits: make(map[string]int)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		hit := cs.hits[r.URL.Path]
		cs.mu.Unlock()
		handler(r.URL.Path, hit, w)
	}))
	return cs
}

func (cs *countingServer) count(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func (cs *countingServer) paths() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	var out []string
	for p := range cs.hits {
		out = append(out, p)
	}
	return out
}

func TestFetch(t *testing.T) {
	server := newCountingServer(func(path string, _ int, w http.ResponseWriter) {
		if path == "/"+outHashD+".narinfo" {
			w.Write([]byte(narBody(outPathD)))
		} else {
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
	defer server.Close()

	s := testStore(t)
	count, err := Fetch(context.Background(), s, Options{Roots: []string{server.URL}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// The found output is upgraded, the absent one stays unresolved.
	if item, _ := s.Get(mustHash(t, outHashD)); item == nil {
		t.Error("found output missing from store")
	} else if _, ok := item.(store.NarInfo); !ok {
		t.Errorf("found output = %T, want store.NarInfo", item)
	}
	if item, _ := s.Get(mustHash(t, outHashE)); item == nil {
		t.Error("absent output missing from store")
	} else if _, ok := item.(store.Output); !ok {
		t.Errorf("absent output = %T, want store.Output", item)
	}
	if left := s.OutputHashes(); len(left) != 1 || left[0] != mustHash(t, outHashE) {
		t.Errorf("unresolved outputs = %v, want [%s]", left, outHashE)
	}
}

func TestFetchFallsBackToNextRoot(t *testing.T) {
	first := newCountingServer(func(_ string, _ int, w http.ResponseWriter) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer first.Close()
	second := newCountingServer(func(path string, _ int, w http.ResponseWriter) {
		switch path {
		case "/" + outHashD + ".narinfo":
			w.Write([]byte(narBody(outPathD)))
		case "/" + outHashE + ".narinfo":
			w.Write([]byte(narBody(outPathE)))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
	defer second.Close()

	s := testStore(t)
	count, err := Fetch(context.Background(), s, Options{Roots: []string{first.URL, second.URL}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	// Absence is authoritative: exactly one request per output on the
	// first root, no retries burned before moving on.
	for _, h := range []string{outHashD, outHashE} {
		if got := first.count("/" + h + ".narinfo"); got != 1 {
			t.Errorf("first root hit %d times for %s, want 1", got, h)
		}
	}
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	server := newCountingServer(func(path string, hit int, w http.ResponseWriter) {
		if path == "/"+outHashD+".narinfo" {
			if hit == 1 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Write([]byte(narBody(outPathD)))
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer server.Close()

	s := testStore(t)
	count, err := Fetch(context.Background(), s, Options{Roots: []string{server.URL}, MaxAttempts: 3})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if got := server.count("/" + outHashD + ".narinfo"); got != 2 {
		t.Errorf("server hit %d times, want 2 (one retry)", got)
	}
}

func TestFetchSkipsResolvedOutputs(t *testing.T) {
	server := newCountingServer(func(_ string, _ int, w http.ResponseWriter) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer server.Close()

	s := testStore(t)

	// Resolve one output up front; only the other is a candidate.
	if !s.Merge(mustHash(t, outHashD), &narinfo.NarInfo{StorePath: outPathD}) {
		t.Fatal("Merge failed")
	}

	count, err := Fetch(context.Background(), s, Options{Roots: []string{server.URL}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if paths := server.paths(); len(paths) != 1 || paths[0] != "/"+outHashE+".narinfo" {
		t.Errorf("queried paths = %v, want only the unresolved output", paths)
	}
}

func TestFetchEmptyStore(t *testing.T) {
	s := store.New(nil)
	count, err := Fetch(context.Background(), s, Options{Roots: []string{"http://127.0.0.1:0"}})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestFetchCancelled(t *testing.T) {
	server := newCountingServer(func(_ string, _ int, w http.ResponseWriter) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := testStore(t)
	_, err := Fetch(ctx, s, Options{Roots: []string{server.URL}})
	if err != context.Canceled {
		t.Errorf("Fetch error = %v, want context.Canceled", err)
	}
}

func TestFetchLogsFailures(t *testing.T) {
	server := newCountingServer(func(_ string, _ int, w http.ResponseWriter) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})
	defer server.Close()

	var logs []string
	s := testStore(t)
	count, err := Fetch(context.Background(), s, Options{
		Roots:  []string{server.URL},
		Logger: func(format string, args ...any) { logs = append(logs, fmt.Sprintf(format, args...)) },
	})
	if err != nil {
		t.Fatalf("Fetch should degrade gracefully, got %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(logs) != 2 {
		t.Fatalf("logged %d warnings, want 2 (one per output)", len(logs))
	}
	for _, msg := range logs {
		if !strings.Contains(msg, "lookup failed") {
			t.Errorf("unexpected log message: %s", msg)
		}
	}
}
