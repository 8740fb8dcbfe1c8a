package fsstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestReadJSONMissingFile(t *testing.T) {
	var out map[string]string
	ok, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &out)
	if err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if ok {
		t.Fatalf("ReadJSON() reported content for a missing file")
	}
}

func TestReadJSONCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	var out map[string]string
	_, err := ReadJSON(path, &out)
	if !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("ReadJSON() error = %v, want ErrDecodeFailed", err)
	}
}

func TestWriteJSONAtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	in := map[string]string{"topic": "gophers"}
	if err := WriteJSONAtomic(path, in, FileOptions{}); err != nil {
		t.Fatalf("WriteJSONAtomic() error = %v", err)
	}
	var out map[string]string
	ok, err := ReadJSON(path, &out)
	if err != nil || !ok {
		t.Fatalf("ReadJSON() ok=%v error = %v", ok, err)
	}
	if out["topic"] != "gophers" {
		t.Fatalf("round trip mismatch: %v", out)
	}

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}
