package local

import (
	"context"
	"path/filepath"
	"testing"
)

func TestWriteAndRead(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	ctx := context.Background()
	path, err := store.Write(ctx, "rcpt_abc.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "rcpt_abc.pdf" {
		t.Fatalf("unexpected artifact path %s", path)
	}

	if !store.Exists("rcpt_abc.pdf") {
		t.Fatal("artifact should exist after write")
	}

	got, err := store.Read(ctx, "rcpt_abc.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "%PDF" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestWriteRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	path, err := store.Write(context.Background(), "../escape.pdf", []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("artifact escaped the store root: %s", path)
	}
}

func TestNewStoreRequiresRoot(t *testing.T) {
	if _, err := NewStore("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}
