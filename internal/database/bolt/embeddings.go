package bolt

import (
	"context"
	"fmt"
	"time"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"go.etcd.io/bbolt"
)

// LoadEmbeddings returns embeddings ordered by id. A nil filter loads all of them.
func (s *Store) LoadEmbeddings(_ context.Context, personIDs []string) ([]database.StoredEmbedding, error) {
	if personIDs != nil && len(personIDs) == 0 {
		return nil, nil
	}
	var allowed map[string]bool
	if personIDs != nil {
		allowed = make(map[string]bool, len(personIDs))
		for _, id := range personIDs {
			allowed[id] = true
		}
	}

	var result []database.StoredEmbedding
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Keys are big-endian ids, so ForEach yields id order.
		return tx.Bucket(bucketEmbeddings).ForEach(func(k, v []byte) error {
			emb, err := decodeEmbedding(keyID(k), v)
			if err != nil {
				return fmt.Errorf("embedding %d: %w", keyID(k), err)
			}
			if allowed == nil || allowed[emb.PersonID] {
				result = append(result, emb)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountEmbeddings returns the total number of stored embeddings
func (s *Store) CountEmbeddings(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketEmbeddings).Stats().KeyN
		return nil
	})
	return n, err
}

// CountByPerson returns the number of embeddings per person id
func (s *Store) CountByPerson(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPersonEmbeddings).ForEach(func(k, _ []byte) error {
			// person\x00 followed by an 8 byte id
			if len(k) > 9 {
				counts[string(k[:len(k)-9])]++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func insertEmbedding(tx *bbolt.Tx, personID string, emb []float32, createdAt time.Time) (int64, error) {
	b := tx.Bucket(bucketEmbeddings)
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("next embedding id: %w", err)
	}
	id := int64(seq) //nolint:gosec // sequence stays far below MaxInt64
	if err := b.Put(idKey(id), encodeEmbedding(personID, emb, createdAt)); err != nil {
		return 0, fmt.Errorf("put embedding: %w", err)
	}
	if err := tx.Bucket(bucketPersonEmbeddings).Put(compositeKey([]byte(personID), idKey(id)), present); err != nil {
		return 0, fmt.Errorf("index embedding: %w", err)
	}
	return id, nil
}

func deletePersonEmbeddings(tx *bbolt.Tx, personID string) (int, error) {
	index := tx.Bucket(bucketPersonEmbeddings)
	prefix := prefixKey(personID)
	keys := keysWithPrefix(index, prefix)

	embeddings := tx.Bucket(bucketEmbeddings)
	for _, k := range keys {
		if err := embeddings.Delete(k[len(prefix):]); err != nil {
			return 0, fmt.Errorf("delete embedding: %w", err)
		}
	}
	if err := deleteKeys(index, keys); err != nil {
		return 0, fmt.Errorf("delete embedding index: %w", err)
	}
	return len(keys), nil
}

// InsertEmbedding stores a vector for an existing person
func (s *Store) InsertEmbedding(_ context.Context, personID string, embedding []float32, createdAt time.Time) (int64, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPersons).Get([]byte(personID)) == nil {
			return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		var err error
		id, err = insertEmbedding(tx, personID, embedding, createdAt)
		return err
	})
	return id, err
}

// EnrollEmbedding creates the person when absent, enforces the per-person cap and
// inserts the vector in one write transaction.
func (s *Store) EnrollEmbedding(
	_ context.Context, personID, personName string, embedding []float32, createdAt time.Time, maxPerPerson int,
) (int64, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return 0, err
	}
	var id int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPersons).Get([]byte(personID)) == nil {
			if err := putPerson(tx, personID, personRecord{Name: personName, CreatedAt: createdAt}); err != nil {
				return err
			}
		}
		if maxPerPerson > 0 {
			count := len(keysWithPrefix(tx.Bucket(bucketPersonEmbeddings), prefixKey(personID)))
			if count >= maxPerPerson {
				return fmt.Errorf("person %s has %d embeddings: %w", personID, count, database.ErrEmbeddingLimit)
			}
		}
		var err error
		id, err = insertEmbedding(tx, personID, embedding, createdAt)
		return err
	})
	return id, err
}

// DeleteEmbeddingsByPerson removes all vectors of a person
func (s *Store) DeleteEmbeddingsByPerson(_ context.Context, personID string) (int, error) {
	var n int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		n, err = deletePersonEmbeddings(tx, personID)
		return err
	})
	return n, err
}

// FindNearest scores every stored embedding against the query, best first.
func (s *Store) FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.NearestEmbedding, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	all, err := s.LoadEmbeddings(ctx, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]database.NearestEmbedding, 0, len(all))
	for _, emb := range all {
		hits = append(hits, database.NearestEmbedding{
			StoredEmbedding: emb,
			Similarity:      facematch.CosineSimilarity(embedding, emb.Embedding),
		})
	}
	database.SortNearest(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Stats returns counts for diagnostics
func (s *Store) Stats(ctx context.Context) (*database.Stats, error) {
	stats := &database.Stats{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.Persons = tx.Bucket(bucketPersons).Stats().KeyN
		stats.Embeddings = tx.Bucket(bucketEmbeddings).Stats().KeyN
		stats.Groups = tx.Bucket(bucketGroups).Stats().KeyN
		return nil
	})
	if err != nil {
		return nil, err
	}
	stats.PerPerson, err = s.CountByPerson(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearAll removes every person, embedding, group and membership. The schema
// version is kept.
func (s *Store) ClearAll(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if string(name) == string(bucketMeta) {
				continue
			}
			if err := tx.DeleteBucket(name); err != nil {
				return fmt.Errorf("delete bucket %s: %w", name, err)
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}
