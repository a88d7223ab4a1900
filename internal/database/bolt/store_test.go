package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "facepace.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func axis(i, j int, tilt float32) []float32 {
	v := make([]float32, constants.EmbeddingDim)
	v[i] = 1
	v[j] += tilt
	return facematch.Normalize(v)
}

func TestEmbeddingCodec(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)
	emb := []float32{0.5, -0.25, 1e-7, 3}

	got, err := decodeEmbedding(7, encodeEmbedding("žofie", emb, created))
	if err != nil {
		t.Fatalf("decodeEmbedding: %v", err)
	}
	if got.ID != 7 || got.PersonID != "žofie" || !got.CreatedAt.Equal(created) || got.Dim != 4 {
		t.Errorf("decoded header = %+v", got)
	}
	for i := range emb {
		if got.Embedding[i] != emb[i] {
			t.Errorf("value %d: got %v, want %v", i, got.Embedding[i], emb[i])
		}
	}

	if _, err := decodeEmbedding(1, []byte{5, 0, 'a'}); !errors.Is(err, errCorruptRecord) {
		t.Errorf("expected errCorruptRecord, got %v", err)
	}
}

func TestStore_EnrollAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := s.EnrollEmbedding(ctx, "alice", "Alice", axis(0, 1, 0), now, 2); err != nil {
		t.Fatalf("EnrollEmbedding: %v", err)
	}
	if _, err := s.EnrollEmbedding(ctx, "alice", "Renamed", axis(0, 1, 0.1), now, 2); err != nil {
		t.Fatalf("EnrollEmbedding: %v", err)
	}
	if _, err := s.EnrollEmbedding(ctx, "alice", "Alice", axis(0, 2, 0.1), now, 2); !errors.Is(err, database.ErrEmbeddingLimit) {
		t.Errorf("expected ErrEmbeddingLimit, got %v", err)
	}
	if _, err := s.EnrollEmbedding(ctx, "bob", "Bob", axis(1, 0, 0), now, 0); err != nil {
		t.Fatalf("EnrollEmbedding: %v", err)
	}

	p, err := s.GetPerson(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Name != "Alice" || p.EmbeddingCount != 2 {
		t.Errorf("GetPerson = %+v, want Alice with 2 embeddings", p)
	}

	all, err := s.LoadEmbeddings(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", all[i].ID, all[i-1].ID)
		}
	}

	tests := []struct {
		name   string
		filter []string
		want   int
	}{
		{"bob only", []string{"bob"}, 1},
		{"both", []string{"alice", "bob"}, 3},
		{"unknown", []string{"carol"}, 0},
		{"empty filter", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.LoadEmbeddings(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d embeddings, want %d", len(got), tt.want)
			}
		})
	}

	counts, _ := s.CountByPerson(ctx)
	if counts["alice"] != 2 || counts["bob"] != 1 {
		t.Errorf("CountByPerson = %v", counts)
	}
}

func TestStore_InsertValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertEmbedding(ctx, "ghost", axis(0, 1, 0), time.Now()); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpsertPerson(ctx, "alice", "Alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertEmbedding(ctx, "alice", []float32{1, 0}, time.Now()); !errors.Is(err, database.ErrInvalidEmbedding) {
		t.Errorf("expected ErrInvalidEmbedding, got %v", err)
	}
}

func TestStore_FindNearest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.EnrollEmbedding(ctx, "alice", "Alice", axis(0, 1, 0), now, 0)
	s.EnrollEmbedding(ctx, "bob", "Bob", axis(1, 0, 0), now, 0)
	s.EnrollEmbedding(ctx, "carol", "Carol", axis(2, 0, 0), now, 0)

	hits, err := s.FindNearest(ctx, axis(1, 0, 0.2), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].PersonID != "bob" || hits[1].PersonID != "alice" {
		t.Errorf("hits = %s, %s; want bob, alice", hits[0].PersonID, hits[1].PersonID)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Error("hits not ordered by similarity")
	}
}

func TestStore_GroupsAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.EnrollEmbedding(ctx, "alice", "Alice", axis(0, 1, 0), now, 0)
	s.EnrollEmbedding(ctx, "bob", "Bob", axis(1, 0, 0), now, 0)

	if err := s.SaveGroup(ctx, database.Group{ID: "g1", Name: "Hikers"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"alice", "bob", "bob"} {
		if err := s.AddMember(ctx, "g1", id); err != nil {
			t.Fatalf("AddMember(%s): %v", id, err)
		}
	}
	if err := s.AddMember(ctx, "g1", "ghost"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("AddMember unknown person: expected ErrNotFound, got %v", err)
	}
	if err := s.AddMember(ctx, "nope", "alice"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("AddMember unknown group: expected ErrNotFound, got %v", err)
	}

	members, err := s.MembersOf(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Errorf("MembersOf = %v, want alice and bob", members)
	}

	name := "Climbers"
	if err := s.UpdateGroup(ctx, "g1", database.GroupUpdate{Name: &name}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateGroup(ctx, "nope", database.GroupUpdate{Name: &name}); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("UpdateGroup unknown: expected ErrNotFound, got %v", err)
	}

	if err := s.AddPhoto(ctx, "bob", "one.jpg"); err != nil {
		t.Fatal(err)
	}
	files, err := s.DeletePerson(ctx, "bob")
	if err != nil {
		t.Fatalf("DeletePerson: %v", err)
	}
	if len(files) != 1 || files[0] != "one.jpg" {
		t.Errorf("DeletePerson files = %v", files)
	}

	g, _ := s.GetGroup(ctx, "g1")
	if g == nil || g.Name != "Climbers" || len(g.Members) != 1 || g.Members[0] != "alice" {
		t.Errorf("GetGroup after delete = %+v", g)
	}
	if n, _ := s.CountEmbeddings(ctx); n != 1 {
		t.Errorf("CountEmbeddings = %d, want 1", n)
	}

	deleted, err := s.DeleteGroup(ctx, "g1")
	if err != nil || !deleted {
		t.Errorf("DeleteGroup = %v, %v", deleted, err)
	}
	if _, err := s.MembersOf(ctx, "g1"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("MembersOf deleted group: expected ErrNotFound, got %v", err)
	}
}

func TestStore_SearchAndClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.UpsertPerson(ctx, "p1", "Jiří Novák")
	s.UpsertPerson(ctx, "p2", "Anna Dvořák")
	s.EnrollEmbedding(ctx, "p1", "", axis(0, 1, 0), time.Now(), 0)

	found, err := s.SearchPersons(ctx, "jiri")
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != "p1" {
		t.Errorf("SearchPersons = %+v, want p1", found)
	}

	stats, _ := s.Stats(ctx)
	if stats.Persons != 2 || stats.Embeddings != 1 || stats.PerPerson["p1"] != 1 {
		t.Errorf("Stats = %+v", stats)
	}

	if err := s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	persons, _ := s.ListPersons(ctx)
	if len(persons) != 0 {
		t.Errorf("ListPersons after clear = %d", len(persons))
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facepace.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, []byte("99"))
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Error("expected error opening a newer schema")
	}
}
