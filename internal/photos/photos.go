// Package photos stores downscaled JPEG copies of enrollment photos on disk,
// one directory per person.
package photos

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/imageio"
)

var (
	// ErrInvalidName is returned for ids or filenames that are not a single path element
	ErrInvalidName = errors.New("invalid photo path element")
	// ErrNotFound is returned when a photo file does not exist
	ErrNotFound = errors.New("photo not found")
)

// Store writes photos under a root directory.
type Store struct {
	dir     string
	maxSize int
}

// NewStore creates a store rooted at dir. Photos larger than maxSize on either
// side are downscaled before saving.
func NewStore(dir string, maxSize int) *Store {
	return &Store{dir: dir, maxSize: maxSize}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

func validElement(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// Path returns the file path of a photo after validating both elements.
func (s *Store) Path(personID, filename string) (string, error) {
	if !validElement(personID) || !validElement(filename) {
		return "", fmt.Errorf("%w: %q/%q", ErrInvalidName, personID, filename)
	}
	return filepath.Join(s.dir, personID, filename), nil
}

// Save downscales img, encodes it as JPEG and writes it under a new random
// filename, which is returned.
func (s *Store) Save(personID string, img image.Image) (string, error) {
	filename := uuid.NewString() + ".jpg"
	path, err := s.Path(personID, filename)
	if err != nil {
		return "", err
	}

	data, err := imageio.EncodeJPEG(imageio.Fit(img, s.maxSize), constants.PhotoJPEGQuality)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating photo directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming photo: %w", err)
	}
	return filename, nil
}

// Open opens a stored photo for reading.
func (s *Store) Open(personID, filename string) (*os.File, error) {
	path, err := s.Path(personID, filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path elements validated above
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("opening photo: %w", err)
	}
	return f, nil
}

// RemoveResult reports a best-effort file removal. Callers log Err and carry on.
type RemoveResult struct {
	Path    string
	Removed bool  // something was deleted
	Err     error // nil when the file was removed or already absent
}

// OK reports whether the removal left nothing behind.
func (r RemoveResult) OK() bool {
	return r.Err == nil
}

func (r RemoveResult) String() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("failed to remove %s: %v", r.Path, r.Err)
	case r.Removed:
		return "removed " + r.Path
	default:
		return r.Path + " already absent"
	}
}

// Remove deletes one photo. A missing file is not an error.
func (s *Store) Remove(personID, filename string) RemoveResult {
	path, err := s.Path(personID, filename)
	if err != nil {
		return RemoveResult{Path: filename, Err: err}
	}
	err = os.Remove(path)
	switch {
	case err == nil:
		return RemoveResult{Path: path, Removed: true}
	case errors.Is(err, fs.ErrNotExist):
		return RemoveResult{Path: path}
	default:
		return RemoveResult{Path: path, Err: err}
	}
}

// RemoveAll deletes a person's photo directory.
func (s *Store) RemoveAll(personID string) RemoveResult {
	if !validElement(personID) {
		return RemoveResult{Path: personID, Err: fmt.Errorf("%w: %q", ErrInvalidName, personID)}
	}
	path := filepath.Join(s.dir, personID)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return RemoveResult{Path: path}
	}
	if err := os.RemoveAll(path); err != nil {
		return RemoveResult{Path: path, Err: err}
	}
	return RemoveResult{Path: path, Removed: true}
}
