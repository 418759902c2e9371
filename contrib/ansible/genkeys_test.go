package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBestKeys(t *testing.T) {
	keys := bestKeys(3, 20, nil)
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1].hash, keys[i].hash) > 0 {
			t.Fatal("keys are not ordered by hash")
		}
	}
}

func TestWriteHost(t *testing.T) {
	dir := t.TempDir()
	key := newKey()
	if err := writeHost(dir, 10, key); err != nil {
		t.Fatal(err)
	}
	vars, err := os.ReadFile(filepath.Join(dir, "a", "vars"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(vars), "vault_rnsd_private_key") {
		t.Fatalf("unexpected vars %q", vars)
	}
	vault, err := os.ReadFile(filepath.Join(dir, "a", "vault"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(string(vault), "\n") != 1 || len(vault) != len("vault_rnsd_private_key: ")+128+1 {
		t.Fatalf("unexpected vault %q", vault)
	}
}
