package postgres

import (
	"context"
	"fmt"

	"github.com/omri0111-web/facepace-public/internal/database"
)

// Store combines the PostgreSQL repositories into a database.Store.
type Store struct {
	*PersonRepository
	*GroupRepository
	*EmbeddingRepository

	pool *Pool
}

var (
	_ database.Store         = (*Store)(nil)
	_ database.HNSWRebuilder = (*Store)(nil)
)

// NewStore creates a store over an initialized pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		PersonRepository:    NewPersonRepository(pool),
		GroupRepository:     NewGroupRepository(pool),
		EmbeddingRepository: NewEmbeddingRepository(pool),
		pool:                pool,
	}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *Pool {
	return s.pool
}

// DeletePerson removes the person and drops their vectors from the HNSW index.
func (s *Store) DeletePerson(ctx context.Context, id string) ([]string, error) {
	filenames, err := s.PersonRepository.DeletePerson(ctx, id)
	if err != nil {
		return nil, err
	}
	s.indexDropPerson(id)
	return filenames, nil
}

// Stats returns counts for diagnostics
func (s *Store) Stats(ctx context.Context) (*database.Stats, error) {
	stats := &database.Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(*) FROM groups)
	`).Scan(&stats.Persons, &stats.Embeddings, &stats.Groups)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	stats.PerPerson, err = s.CountByPerson(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearAll removes every person, embedding, group and membership.
func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		"TRUNCATE persons, person_photos, embeddings, groups, group_members RESTART IDENTITY"); err != nil {
		return fmt.Errorf("clear tables: %w", err)
	}
	s.indexReset()
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
