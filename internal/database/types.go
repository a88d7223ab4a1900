package database

import (
	"time"
)

// Person is an enrolled identity
type Person struct {
	ID             string
	Name           string
	Photos         []string // stored photo filenames
	EmbeddingCount int
	CreatedAt      time.Time
}

// Group is a named set of persons used to narrow recognition
type Group struct {
	ID        string
	Name      string
	GuideID   string // person id of the group's guide, empty if unset
	Members   []string
	CreatedAt time.Time
}

// StoredEmbedding represents a face embedding stored in the database.
// Embeddings are unit length and never change after insert.
type StoredEmbedding struct {
	ID        int64
	PersonID  string
	Embedding []float32
	Dim       int
	CreatedAt time.Time
}

// NearestEmbedding is a search hit with its cosine similarity to the query
type NearestEmbedding struct {
	StoredEmbedding
	Similarity float64
}

// GroupUpdate carries optional group fields; nil leaves a field unchanged
type GroupUpdate struct {
	Name    *string
	GuideID *string
}

// Stats summarizes store contents
type Stats struct {
	Persons    int
	Embeddings int
	Groups     int
	PerPerson  map[string]int
}
