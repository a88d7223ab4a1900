package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// pqForeignKeyViolation is the SQLSTATE for a missing referenced row.
const pqForeignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// PersonRepository provides PostgreSQL-backed person storage
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

// GetPerson returns the person with photos and embedding count, nil if not found
func (r *PersonRepository) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	query := `
		SELECT p.person_id, p.person_name, p.created_at,
			(SELECT COUNT(*) FROM embeddings e WHERE e.person_id = p.person_id)
		FROM persons p
		WHERE p.person_id = $1
	`

	var p database.Person
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.EmbeddingCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}

	photos, err := r.photosByPerson(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p.Photos = photos[id]
	return &p, nil
}

// ListPersons returns all persons ordered by name
func (r *PersonRepository) ListPersons(ctx context.Context) ([]database.Person, error) {
	query := `
		SELECT p.person_id, p.person_name, p.created_at, COUNT(e.id)
		FROM persons p
		LEFT JOIN embeddings e ON e.person_id = p.person_id
		GROUP BY p.person_id, p.person_name, p.created_at
		ORDER BY p.person_name, p.person_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.EmbeddingCount); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}

	photos, err := r.photosByPerson(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range persons {
		persons[i].Photos = photos[persons[i].ID]
	}
	return persons, nil
}

// SearchPersons matches names ignoring case and diacritics
func (r *PersonRepository) SearchPersons(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := r.ListPersons(ctx)
	if err != nil {
		return nil, err
	}

	needle := facematch.NormalizePersonName(strings.TrimSpace(query))
	var matched []database.Person
	for _, p := range persons {
		if strings.Contains(facematch.NormalizePersonName(p.Name), needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// photosByPerson loads photo filenames keyed by person id; nil ids loads all.
func (r *PersonRepository) photosByPerson(ctx context.Context, ids []string) (map[string][]string, error) {
	query := "SELECT person_id, filename FROM person_photos ORDER BY person_id, created_at, filename"
	var args []any
	if ids != nil {
		query = `SELECT person_id, filename FROM person_photos
			WHERE person_id = ANY($1) ORDER BY person_id, created_at, filename`
		args = append(args, pq.Array(ids))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query person photos: %w", err)
	}
	defer rows.Close()

	photos := make(map[string][]string)
	for rows.Next() {
		var personID, filename string
		if err := rows.Scan(&personID, &filename); err != nil {
			return nil, fmt.Errorf("scan person photo: %w", err)
		}
		photos[personID] = append(photos[personID], filename)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person photos: %w", err)
	}
	return photos, nil
}

// UpsertPerson creates the person or renames an existing one
func (r *PersonRepository) UpsertPerson(ctx context.Context, id, name string) error {
	query := `
		INSERT INTO persons (person_id, person_name)
		VALUES ($1, $2)
		ON CONFLICT (person_id) DO UPDATE SET person_name = EXCLUDED.person_name
	`
	if _, err := r.pool.Exec(ctx, query, id, name); err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

// DeletePerson removes the person; embeddings, memberships and photo rows cascade.
func (r *PersonRepository) DeletePerson(ctx context.Context, id string) ([]string, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	rows, err := tx.QueryContext(ctx,
		"SELECT filename FROM person_photos WHERE person_id = $1 ORDER BY created_at, filename", id)
	if err != nil {
		return nil, fmt.Errorf("query person photos: %w", err)
	}
	var filenames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan person photo: %w", err)
		}
		filenames = append(filenames, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person photos: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM persons WHERE person_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("delete person: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("person %s: %w", id, database.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit person delete: %w", err)
	}
	return filenames, nil
}

// AddPhoto records a stored photo filename for a person
func (r *PersonRepository) AddPhoto(ctx context.Context, personID, filename string) error {
	query := `
		INSERT INTO person_photos (person_id, filename)
		VALUES ($1, $2)
		ON CONFLICT (person_id, filename) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, personID, filename); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		return fmt.Errorf("insert person photo: %w", err)
	}
	return nil
}

// RemovePhoto deletes a photo record, reporting whether it existed
func (r *PersonRepository) RemovePhoto(ctx context.Context, personID, filename string) (bool, error) {
	result, err := r.pool.Exec(ctx,
		"DELETE FROM person_photos WHERE person_id = $1 AND filename = $2", personID, filename)
	if err != nil {
		return false, fmt.Errorf("delete person photo: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
