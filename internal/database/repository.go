package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced person or group does not exist
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingLimit is returned when a person already holds the maximum number of embeddings
	ErrEmbeddingLimit = errors.New("embedding limit reached for person")
	// ErrInvalidEmbedding is returned for empty or wrongly sized vectors
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// PersonReader provides read-only access to persons
type PersonReader interface {
	// GetPerson returns the person with photos and embedding count, nil if not found
	GetPerson(ctx context.Context, id string) (*Person, error)
	// ListPersons returns all persons ordered by name
	ListPersons(ctx context.Context) ([]Person, error)
	// SearchPersons matches names ignoring case and diacritics
	SearchPersons(ctx context.Context, query string) ([]Person, error)
}

// PersonWriter provides write access to persons and their photo records
type PersonWriter interface {
	PersonReader

	// UpsertPerson creates the person or renames an existing one
	UpsertPerson(ctx context.Context, id, name string) error
	// DeletePerson removes the person with its embeddings, memberships and photo records.
	// Returns the photo filenames that were attached so callers can remove the files.
	DeletePerson(ctx context.Context, id string) ([]string, error)
	// AddPhoto records a stored photo filename for a person
	AddPhoto(ctx context.Context, personID, filename string) error
	// RemovePhoto deletes a photo record, reporting whether it existed
	RemovePhoto(ctx context.Context, personID, filename string) (bool, error)
}

// GroupReader provides read-only access to groups
type GroupReader interface {
	GetGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	// MembersOf returns the person ids in a group, ErrNotFound for an unknown group
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}

// GroupWriter provides write access to groups and membership
type GroupWriter interface {
	GroupReader

	// SaveGroup creates a group or replaces its name and guide
	SaveGroup(ctx context.Context, g Group) error
	UpdateGroup(ctx context.Context, id string, upd GroupUpdate) error
	DeleteGroup(ctx context.Context, id string) (bool, error)
	// AddMember is idempotent; both the group and the person must exist
	AddMember(ctx context.Context, groupID, personID string) error
	RemoveMember(ctx context.Context, groupID, personID string) (bool, error)
}

// EmbeddingReader provides read-only access to face embeddings
type EmbeddingReader interface {
	// LoadEmbeddings returns embeddings ordered by id. A nil filter loads all of them;
	// a non-nil empty filter loads none.
	LoadEmbeddings(ctx context.Context, personIDs []string) ([]StoredEmbedding, error)
	// CountEmbeddings returns the total number of embeddings stored
	CountEmbeddings(ctx context.Context) (int, error)
	// CountByPerson returns the number of embeddings per person id
	CountByPerson(ctx context.Context) (map[string]int, error)
}

// EmbeddingWriter provides write access to face embeddings
type EmbeddingWriter interface {
	EmbeddingReader

	// InsertEmbedding stores a vector for an existing person
	InsertEmbedding(ctx context.Context, personID string, embedding []float32, createdAt time.Time) (int64, error)
	// EnrollEmbedding creates the person if absent (never renaming an existing one),
	// checks the per-person cap (0 disables it) and inserts the vector atomically.
	EnrollEmbedding(ctx context.Context, personID, personName string, embedding []float32, createdAt time.Time, maxPerPerson int) (int64, error)
	// DeleteEmbeddingsByPerson removes all vectors of a person
	DeleteEmbeddingsByPerson(ctx context.Context, personID string) (int, error)
}

// NearestSearcher finds stored embeddings closest to a query vector
type NearestSearcher interface {
	FindNearest(ctx context.Context, embedding []float32, limit int) ([]NearestEmbedding, error)
}

// Store bundles everything the service needs from a backend
type Store interface {
	PersonWriter
	GroupWriter
	EmbeddingWriter
	NearestSearcher

	// Stats returns counts for diagnostics
	Stats(ctx context.Context) (*Stats, error)
	// ClearAll removes every person, embedding, group and membership
	ClearAll(ctx context.Context) error
	Close() error
}
