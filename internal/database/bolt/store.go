// Package bolt implements database.Store on a single bbolt file, used as a
// standalone backend or as a local mirror of PostgreSQL.
package bolt

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"go.etcd.io/bbolt"
)

// SchemaVersion is written to the meta bucket at open. Increment it when the
// record layout changes.
const SchemaVersion = 1

var (
	bucketPersons          = []byte("persons")
	bucketPhotos           = []byte("photos")            // person\x00filename -> created_at
	bucketEmbeddings       = []byte("embeddings")        // id -> encoded record
	bucketPersonEmbeddings = []byte("person_embeddings") // person\x00id -> present
	bucketGroups           = []byte("groups")
	bucketMembers          = []byte("members") // group\x00person -> present
	bucketMeta             = []byte("meta")
	keySchemaVersion       = []byte("schema_version")

	allBuckets = [][]byte{
		bucketPersons, bucketPhotos, bucketEmbeddings, bucketPersonEmbeddings,
		bucketGroups, bucketMembers, bucketMeta,
	}
)

type personRecord struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type groupRecord struct {
	Name      string    `json:"name"`
	GuideID   string    `json:"guide_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a bbolt-backed database.Store. Nearest search is brute force.
type Store struct {
	db *bbolt.DB
}

var _ database.Store = (*Store)(nil)

// Open opens or creates the store file and checks its schema version.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if data := meta.Get(keySchemaVersion); data != nil {
			var version int
			if err := json.Unmarshal(data, &version); err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			if version > SchemaVersion {
				return fmt.Errorf("database created by newer version (v%d > v%d)", version, SchemaVersion)
			}
		}
		data, err := json.Marshal(SchemaVersion)
		if err != nil {
			return err
		}
		return meta.Put(keySchemaVersion, data)
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB returns the underlying bbolt handle.
func (s *Store) DB() *bbolt.DB {
	return s.db
}

// Close closes the database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing bolt db: %w", err)
	}
	return nil
}

// keysWithPrefix collects copies of the keys starting with prefix.
func keysWithPrefix(b *bbolt.Bucket, prefix []byte) [][]byte {
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, bytes.Clone(k))
	}
	return keys
}

func deleteKeys(b *bbolt.Bucket, keys [][]byte) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func readPerson(tx *bbolt.Tx, id string) (*database.Person, error) {
	data := tx.Bucket(bucketPersons).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var rec personRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode person %s: %w", id, err)
	}

	p := &database.Person{ID: id, Name: rec.Name, CreatedAt: rec.CreatedAt}
	prefix := prefixKey(id)
	for _, k := range keysWithPrefix(tx.Bucket(bucketPhotos), prefix) {
		p.Photos = append(p.Photos, string(k[len(prefix):]))
	}
	p.EmbeddingCount = len(keysWithPrefix(tx.Bucket(bucketPersonEmbeddings), prefix))
	return p, nil
}

// GetPerson returns the person with photos and embedding count, nil if not found
func (s *Store) GetPerson(_ context.Context, id string) (*database.Person, error) {
	var p *database.Person
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		p, err = readPerson(tx, id)
		return err
	})
	return p, err
}

// ListPersons returns all persons ordered by name
func (s *Store) ListPersons(_ context.Context) ([]database.Person, error) {
	var persons []database.Person
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPersons).ForEach(func(k, _ []byte) error {
			p, err := readPerson(tx, string(k))
			if err != nil {
				return err
			}
			persons = append(persons, *p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(persons, func(a, b database.Person) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return persons, nil
}

// SearchPersons matches names ignoring case and diacritics
func (s *Store) SearchPersons(ctx context.Context, query string) ([]database.Person, error) {
	persons, err := s.ListPersons(ctx)
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

func putPerson(tx *bbolt.Tx, id string, rec personRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketPersons).Put([]byte(id), data)
}

// UpsertPerson creates the person or renames an existing one
func (s *Store) UpsertPerson(_ context.Context, id, name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := personRecord{Name: name, CreatedAt: time.Now().UTC()}
		if data := tx.Bucket(bucketPersons).Get([]byte(id)); data != nil {
			var old personRecord
			if err := json.Unmarshal(data, &old); err == nil {
				rec.CreatedAt = old.CreatedAt
			}
		}
		return putPerson(tx, id, rec)
	})
}

// DeletePerson removes the person with embeddings, memberships and photo records.
func (s *Store) DeletePerson(_ context.Context, id string) ([]string, error) {
	var filenames []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		persons := tx.Bucket(bucketPersons)
		if persons.Get([]byte(id)) == nil {
			return fmt.Errorf("person %s: %w", id, database.ErrNotFound)
		}

		prefix := prefixKey(id)
		photoKeys := keysWithPrefix(tx.Bucket(bucketPhotos), prefix)
		for _, k := range photoKeys {
			filenames = append(filenames, string(k[len(prefix):]))
		}
		if err := deleteKeys(tx.Bucket(bucketPhotos), photoKeys); err != nil {
			return err
		}

		if _, err := deletePersonEmbeddings(tx, id); err != nil {
			return err
		}

		members := tx.Bucket(bucketMembers)
		suffix := append([]byte{sep}, id...)
		var memberKeys [][]byte
		if err := members.ForEach(func(k, _ []byte) error {
			if bytes.HasSuffix(k, suffix) {
				memberKeys = append(memberKeys, bytes.Clone(k))
			}
			return nil
		}); err != nil {
			return err
		}
		if err := deleteKeys(members, memberKeys); err != nil {
			return err
		}

		return persons.Delete([]byte(id))
	})
	if err != nil {
		return nil, err
	}
	return filenames, nil
}

// AddPhoto records a stored photo filename for a person
func (s *Store) AddPhoto(_ context.Context, personID, filename string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketPersons).Get([]byte(personID)) == nil {
			return fmt.Errorf("person %s: %w", personID, database.ErrNotFound)
		}
		ts, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPhotos).Put(compositeKey([]byte(personID), []byte(filename)), ts)
	})
}

// RemovePhoto deletes a photo record, reporting whether it existed
func (s *Store) RemovePhoto(_ context.Context, personID, filename string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPhotos)
		key := compositeKey([]byte(personID), []byte(filename))
		existed = b.Get(key) != nil
		return b.Delete(key)
	})
	return existed, err
}
