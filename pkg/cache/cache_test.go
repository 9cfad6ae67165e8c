package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	// Set does nothing (no error)
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	// Delete does nothing (no error)
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()

	// Miss before Set
	_, hit, err := c.Get(ctx, "narinfo:abc")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("Get before Set should miss")
	}

	// Roundtrip
	body := []byte("StorePath: /nix/store/x\n")
	if err := c.Set(ctx, "narinfo:abc", body, 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "narinfo:abc")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !hit {
		t.Fatal("Get after Set should hit")
	}
	if string(data) != string(body) {
		t.Errorf("Get returned %q, want %q", data, body)
	}

	// Delete removes the entry; deleting again is fine
	if err := c.Delete(ctx, "narinfo:abc"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "narinfo:abc"); hit {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "narinfo:abc"); err != nil {
		t.Errorf("Delete of absent key should not error: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	// An already-expired entry reads as a miss
	if err := c.Set(ctx, "old", []byte("x"), -time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "old"); hit {
		t.Error("expired entry should miss")
	}

	// Zero ttl never expires
	if err := c.Set(ctx, "keep", []byte("y"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "keep"); !hit {
		t.Error("zero-ttl entry should not expire")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	if err := c.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// Corrupt the entry on disk; the next Get treats it as a miss
	// and removes the file.
	hash := Hash([]byte("key"))
	path := filepath.Join(dir, hash[:2], hash[2:]+".json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, hit, err := c.Get(ctx, "key"); err != nil || hit {
		t.Errorf("corrupt entry: hit=%v err=%v, want miss", hit, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestFileCacheDir(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	if got := c.(*FileCache).Dir(); got != dir {
		t.Errorf("Dir() = %q, want %q", got, dir)
	}
}

func TestScopedCache(t *testing.T) {
	ctx := context.Background()
	shared, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	a := NewScopedCache(shared, "cache-a:")
	b := NewScopedCache(shared, "cache-b:")

	if err := a.Set(ctx, "hash", []byte("from a"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// Same key under a different prefix stays independent
	if _, hit, _ := b.Get(ctx, "hash"); hit {
		t.Error("scopes should not share entries")
	}
	data, hit, err := a.Get(ctx, "hash")
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v, want hit", hit, err)
	}
	if string(data) != "from a" {
		t.Errorf("Get returned %q", data)
	}

	// Closing a scope leaves the shared cache usable
	if err := a.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if _, hit, _ := shared.Get(ctx, "cache-a:hash"); !hit {
		t.Error("underlying entry should survive scope close")
	}
}

func TestScopedCacheNilInner(t *testing.T) {
	ctx := context.Background()
	c := NewScopedCache(nil, "p:")
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("nil inner should behave like the null cache")
	}
}

func TestHash(t *testing.T) {
	// Test determinism
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	// Test different inputs produce different hashes
	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// Test hash length (SHA-256 produces 64 hex chars)
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestKey(t *testing.T) {
	// Same namespace and parts give the same key
	k1 := Key("narinfo", "https://cache.nixos.org")
	k2 := Key("narinfo", "https://cache.nixos.org")
	if k1 != k2 {
		t.Error("Key should be deterministic")
	}

	// Different cache URLs must not collide
	k3 := Key("narinfo", "https://other.example.org")
	if k1 == k3 {
		t.Error("Different parts should produce different keys")
	}

	// Namespace is a readable prefix
	if k1[:8] != "narinfo:" {
		t.Errorf("Key should start with namespace: %s", k1)
	}
}

func TestRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedisCache("://not-a-url"); err == nil {
		t.Error("NewRedisCache should reject malformed URLs")
	}
}
