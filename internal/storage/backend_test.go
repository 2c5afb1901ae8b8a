// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	file, err := OpenFileBackend(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("OpenFileBackend: %v", err)
	}
	sq, err := OpenSQLiteBackend(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { sq.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"file":   file,
		"sqlite": sq,
	}
}

func TestBackend_Contract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := b.Get("missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
			}

			if err := b.Set("b", "2"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.Set("a", "1"); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := b.Set("a", "one"); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}

			v, ok, err := b.Get("a")
			if err != nil || !ok || v != "one" {
				t.Errorf("Get(a) = %q, %v, %v", v, ok, err)
			}

			keys, err := b.Keys()
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"a", "b"}) {
				t.Errorf("Keys = %v", keys)
			}

			if err := b.Delete("a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := b.Delete("never-set"); err != nil {
				t.Errorf("Delete(missing) = %v", err)
			}
			if _, ok, _ := b.Get("a"); ok {
				t.Error("a still present after Delete")
			}
		})
	}
}

func TestFileBackend_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	b, err := OpenFileBackend(path)
	if err != nil {
		t.Fatalf("OpenFileBackend: %v", err)
	}
	if err := b.Set(KeyMemory, "likes tea"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("state file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("state file perm = %o, want 600", perm)
	}

	again, err := OpenFileBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, _, _ := again.Get(KeyMemory); v != "likes tea" {
		t.Errorf("reopened value = %q", v)
	}
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenFileBackend(path); err == nil {
		t.Fatal("expected error for corrupt state file")
	}
}

func TestFileBackend_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatal(err)
	}
	b, err := OpenFileBackend(path)
	if err != nil {
		t.Fatalf("OpenFileBackend(empty) = %v", err)
	}
	if keys, _ := b.Keys(); len(keys) != 0 {
		t.Errorf("Keys = %v, want none", keys)
	}
}

func TestSQLiteBackend_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	b, err := OpenSQLiteBackend(path)
	if err != nil {
		t.Fatalf("OpenSQLiteBackend: %v", err)
	}
	if err := b.Set(KeySettings, `{"model":"x"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	again, err := OpenSQLiteBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if v, ok, err := again.Get(KeySettings); err != nil || !ok || v != `{"model":"x"}` {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
}

func TestBackend_ClosedRejects(t *testing.T) {
	b := NewMemoryBackend()
	b.Close()
	if err := b.Set("k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}
