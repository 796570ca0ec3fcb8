package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileCreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	if err := WriteFile(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != "first" {
		t.Fatalf("got %q, err %v", got, err)
	}

	if err := WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("WriteFile (replace): %v", err)
	}
	got, err = os.ReadFile(path)
	if err != nil || string(got) != "second" {
		t.Fatalf("got %q, err %v", got, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file after replace, got %d", len(entries))
	}
}

func TestAppendFileAddsTerminatedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.jsonl")

	if err := AppendFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
	if err := AppendFile(path, []byte(`{"a":2}`), 0o600); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "{\"a\":1}\n{\"a\":2}\n"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}
