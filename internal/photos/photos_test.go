package photos

import (
	"errors"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStore_SaveOpenRemove(t *testing.T) {
	s := NewStore(t.TempDir(), 64)
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))

	name, err := s.Save("alice", img)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(name, ".jpg") || len(name) != 36+4 {
		t.Errorf("filename = %q, want <uuid>.jpg", name)
	}

	f, err := s.Open("alice", name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(f)
	f.Close()
	if err != nil {
		t.Fatalf("stored file is not a JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 32 {
		t.Errorf("stored size = %dx%d, want 64x32", cfg.Width, cfg.Height)
	}

	res := s.Remove("alice", name)
	if !res.OK() || !res.Removed {
		t.Errorf("Remove = %v", res)
	}
	res = s.Remove("alice", name)
	if !res.OK() || res.Removed {
		t.Errorf("second Remove = %v, want already absent", res)
	}
	if _, err := s.Open("alice", name); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open removed photo: expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsTraversal(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	tests := []struct {
		name     string
		personID string
		filename string
	}{
		{"parent person", "..", "x.jpg"},
		{"slash in file", "alice", "../bob/x.jpg"},
		{"backslash", "alice", `..\x.jpg`},
		{"empty", "", "x.jpg"},
		{"dot", "alice", "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Path(tt.personID, tt.filename); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Path(%q, %q) error = %v, want ErrInvalidName", tt.personID, tt.filename, err)
			}
		})
	}
	if res := s.RemoveAll("../etc"); res.OK() {
		t.Error("RemoveAll accepted a traversal id")
	}
}

func TestStore_RemoveAll(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0)
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	s.Save("bob", img)
	s.Save("bob", img)

	res := s.RemoveAll("bob")
	if !res.OK() || !res.Removed {
		t.Errorf("RemoveAll = %v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "bob")); !os.IsNotExist(err) {
		t.Error("person directory still exists")
	}
	if res := s.RemoveAll("bob"); !res.OK() || res.Removed {
		t.Errorf("second RemoveAll = %v", res)
	}
}
