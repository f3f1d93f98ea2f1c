package mesh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "kitchen"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kitchen", "meta.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := DirSource{Dir: dir}
	data, err := src.Fetch(context.Background(), "kitchen/meta.json")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Fetch() = %q, want {}", data)
	}

	_, err = src.Fetch(context.Background(), "missing.json")
	var notFound *AssetNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected AssetNotFoundError, got %v", err)
	}
}

func TestDirSource_ConfinedToDir(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "maps")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := DirSource{Dir: dir}.Fetch(context.Background(), "../secret.txt")
	var notFound *AssetNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected AssetNotFoundError, got %v", err)
	}
}

func TestDirSource_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DirSource{Dir: t.TempDir()}.Fetch(ctx, "x")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(MapsConfig{Dir: "/data"})
	if err != nil {
		t.Fatalf("NewSource(dir) error = %v", err)
	}
	if src != (DirSource{Dir: "/data"}) {
		t.Errorf("NewSource(dir) = %#v", src)
	}

	src, err = NewSource(MapsConfig{Dir: "/data", BaseURL: "http://robot.local/maps"})
	if err != nil {
		t.Fatalf("NewSource(url) error = %v", err)
	}
	if _, ok := src.(*HTTPSource); !ok {
		t.Errorf("NewSource(url) = %T, want *HTTPSource", src)
	}

	if _, err := NewSource(MapsConfig{}); err == nil {
		t.Error("expected an error without dir or base URL")
	}
}
