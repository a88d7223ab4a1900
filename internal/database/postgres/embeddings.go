package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRepository provides PostgreSQL-backed embedding storage with optional in-memory HNSW index
type EmbeddingRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	hnswMu        sync.RWMutex
}

// NewEmbeddingRepository creates a new PostgreSQL embedding repository
func NewEmbeddingRepository(pool *Pool) *EmbeddingRepository {
	return &EmbeddingRepository{pool: pool}
}

const embeddingColumns = "id, person_id, embedding, dim, created_at"

// LoadEmbeddings returns embeddings ordered by id. A nil filter loads all of them.
func (r *EmbeddingRepository) LoadEmbeddings(ctx context.Context, personIDs []string) ([]database.StoredEmbedding, error) {
	if personIDs != nil && len(personIDs) == 0 {
		return nil, nil
	}

	query := "SELECT " + embeddingColumns + " FROM embeddings ORDER BY id"
	var args []any
	if personIDs != nil {
		query = "SELECT " + embeddingColumns + " FROM embeddings WHERE person_id = ANY($1) ORDER BY id"
		args = append(args, pq.Array(personIDs))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	return scanEmbeddings(rows)
}

func scanEmbeddings(rows *sql.Rows) ([]database.StoredEmbedding, error) {
	var result []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.PersonID, &vec, &emb.Dim, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		emb.Embedding = vec.Slice()
		result = append(result, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return result, nil
}

// CountEmbeddings returns the total number of stored embeddings
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// CountByPerson returns the number of embeddings per person id
func (r *EmbeddingRepository) CountByPerson(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, "SELECT person_id, COUNT(*) FROM embeddings GROUP BY person_id")
	if err != nil {
		return nil, fmt.Errorf("count embeddings by person: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var personID string
		var n int
		if err := rows.Scan(&personID, &n); err != nil {
			return nil, fmt.Errorf("scan embedding count: %w", err)
		}
		counts[personID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding counts: %w", err)
	}
	return counts, nil
}

// InsertEmbedding stores a vector for an existing person
func (r *EmbeddingRepository) InsertEmbedding(ctx context.Context, personID string, embedding []float32, createdAt time.Time) (int64, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return 0, err
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO embeddings (person_id, embedding, dim, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, personID, pgvector.NewVector(embedding), len(embedding), createdAt).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		return 0, fmt.Errorf("insert embedding: %w", err)
	}

	r.indexAdd(database.StoredEmbedding{
		ID: id, PersonID: personID, Embedding: embedding, Dim: len(embedding), CreatedAt: createdAt,
	})
	return id, nil
}

// EnrollEmbedding creates the person when absent, enforces the per-person cap and
// inserts the vector in one transaction. The person row is locked so concurrent
// enrollments for the same person cannot both pass the cap check.
func (r *EmbeddingRepository) EnrollEmbedding(
	ctx context.Context, personID, personName string, embedding []float32, createdAt time.Time, maxPerPerson int,
) (int64, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return 0, err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO persons (person_id, person_name)
		VALUES ($1, $2)
		ON CONFLICT (person_id) DO NOTHING
	`, personID, personName); err != nil {
		return 0, fmt.Errorf("ensure person: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "SELECT 1 FROM persons WHERE person_id = $1 FOR UPDATE", personID); err != nil {
		return 0, fmt.Errorf("lock person: %w", err)
	}

	if maxPerPerson > 0 {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM embeddings WHERE person_id = $1", personID).Scan(&count); err != nil {
			return 0, fmt.Errorf("count person embeddings: %w", err)
		}
		if count >= maxPerPerson {
			return 0, fmt.Errorf("person %s has %d embeddings: %w", personID, count, database.ErrEmbeddingLimit)
		}
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO embeddings (person_id, embedding, dim, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, personID, pgvector.NewVector(embedding), len(embedding), createdAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert embedding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit enrollment: %w", err)
	}

	r.indexAdd(database.StoredEmbedding{
		ID: id, PersonID: personID, Embedding: embedding, Dim: len(embedding), CreatedAt: createdAt,
	})
	return id, nil
}

// DeleteEmbeddingsByPerson removes all vectors of a person
func (r *EmbeddingRepository) DeleteEmbeddingsByPerson(ctx context.Context, personID string) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM embeddings WHERE person_id = $1", personID)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	r.indexDropPerson(personID)
	return int(n), nil
}

// FindNearest returns the stored embeddings closest to the query, best first.
// Uses the in-memory HNSW index when enabled, otherwise the pgvector cosine operator.
func (r *EmbeddingRepository) FindNearest(ctx context.Context, embedding []float32, limit int) ([]database.NearestEmbedding, error) {
	if err := database.ValidateEmbedding(embedding, constants.EmbeddingDim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	r.hnswMu.RLock()
	useHNSW := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()

	if useHNSW {
		return r.findNearestHNSW(embedding, limit)
	}
	return r.findNearestPostgres(ctx, embedding, limit)
}

func (r *EmbeddingRepository) findNearestHNSW(embedding []float32, limit int) ([]database.NearestEmbedding, error) {
	r.hnswMu.RLock()
	idx := r.hnswIndex
	r.hnswMu.RUnlock()

	// Request extra candidates so deleted nodes filtered out by the index do not starve the result.
	ids, distances, err := idx.Search(embedding, limit*database.HNSWSearchMultiplier)
	if errors.Is(err, database.ErrIndexNotInitialized) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("HNSW search: %w", err)
	}

	hits := make([]database.NearestEmbedding, 0, len(ids))
	for i, id := range ids {
		emb := idx.Get(id)
		if emb == nil {
			continue
		}
		hits = append(hits, database.NearestEmbedding{StoredEmbedding: *emb, Similarity: 1 - distances[i]})
	}
	database.SortNearest(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *EmbeddingRepository) findNearestPostgres(ctx context.Context, embedding []float32, limit int) ([]database.NearestEmbedding, error) {
	query := `
		SELECT ` + embeddingColumns + `, embedding <=> $1 AS distance
		FROM embeddings
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest embeddings: %w", err)
	}
	defer rows.Close()

	var hits []database.NearestEmbedding
	for rows.Next() {
		var hit database.NearestEmbedding
		var vec pgvector.Vector
		var distance float64
		if err := rows.Scan(&hit.ID, &hit.PersonID, &vec, &hit.Dim, &hit.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("scan nearest embedding: %w", err)
		}
		hit.Embedding = vec.Slice()
		hit.Similarity = 1 - distance
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest embeddings: %w", err)
	}
	return hits, nil
}

func (r *EmbeddingRepository) stats(ctx context.Context) (count, maxID int64, err error) {
	err = r.pool.QueryRow(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM embeddings").Scan(&count, &maxID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get embedding stats: %w", err)
	}
	return count, maxID, nil
}

// tryLoadIndex loads a persisted graph when its metadata still matches the table.
func (r *EmbeddingRepository) tryLoadIndex(ctx context.Context, indexPath string, count, maxID int64) bool {
	meta, err := database.LoadHNSWMetadata(indexPath)
	if err != nil || !meta.IsFresh(count, maxID) {
		return false
	}

	idx := database.NewHNSWIndex()
	if err := idx.Load(indexPath); err != nil {
		fmt.Printf("Embedding index: failed to load from disk: %v (will rebuild)\n", err)
		return false
	}
	embeddings, err := r.LoadEmbeddings(ctx, nil)
	if err != nil {
		fmt.Printf("Embedding index: failed to load embeddings: %v (will rebuild)\n", err)
		return false
	}
	idx.Attach(embeddings)
	r.hnswIndex = idx
	fmt.Printf("Embedding index: loaded from disk (%d embeddings)\n", len(embeddings))
	return true
}

// EnableHNSW loads or builds an in-memory HNSW index for nearest-embedding search.
// If indexPath is provided, it will try to load from disk first and save after building.
func (r *EmbeddingRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	return r.enableHNSW(ctx, indexPath, true)
}

func (r *EmbeddingRepository) enableHNSW(ctx context.Context, indexPath string, allowLoad bool) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	count, maxID, err := r.stats(ctx)
	if err != nil {
		return err
	}

	if allowLoad && indexPath != "" && r.tryLoadIndex(ctx, indexPath, count, maxID) {
		r.hnswEnabled = true
		return nil
	}

	embeddings, err := r.LoadEmbeddings(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	r.hnswIndex.Build(embeddings)

	if indexPath != "" && len(embeddings) > 0 {
		if err := r.hnswIndex.SaveWithMetadata(indexPath, database.MetadataFor(embeddings)); err != nil {
			fmt.Printf("Warning: failed to save HNSW index to disk: %v\n", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries
func (r *EmbeddingRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled
func (r *EmbeddingRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of embeddings in the HNSW index
func (r *EmbeddingRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data, ignoring any persisted graph
func (r *EmbeddingRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.enableHNSW(ctx, indexPath, false)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured)
func (r *EmbeddingRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" {
		fmt.Println("Embedding index save: no path configured, skipping")
		return nil
	}
	if r.hnswIndex == nil {
		fmt.Println("Embedding index save: no index in memory, skipping")
		return nil
	}

	count, maxID, err := r.stats(context.Background())
	if err != nil {
		return err
	}

	meta := database.HNSWIndexMetadata{EmbeddingCount: count, MaxEmbeddingID: maxID, BuildTime: time.Now()}
	if err := r.hnswIndex.SaveWithMetadata(r.hnswIndexPath, meta); err != nil {
		return fmt.Errorf("saving HNSW embedding index: %w", err)
	}

	fmt.Printf("Embedding index save: saved successfully (count=%d, max_id=%d)\n", count, maxID)
	return nil
}

func (r *EmbeddingRepository) indexAdd(emb database.StoredEmbedding) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(emb)
	}
}

func (r *EmbeddingRepository) indexDropPerson(personID string) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.DeletePerson(personID)
	}
}

func (r *EmbeddingRepository) indexReset() {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Build(nil)
	}
}
