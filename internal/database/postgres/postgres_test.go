//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/facematch"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := Initialize(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to initialize pool: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return pool, cleanup
}

// axis returns a unit vector of the embedding dimension pointing along axis i,
// tilted slightly towards axis j.
func axis(i, j int, tilt float32) []float32 {
	v := make([]float32, constants.EmbeddingDim)
	v[i] = 1
	v[j] += tilt
	return facematch.Normalize(v)
}

func TestStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("EnrollCreatesPerson", func(t *testing.T) {
		id, err := store.EnrollEmbedding(ctx, "alice", "Alice Novákova", axis(0, 1, 0), now, 2)
		if err != nil {
			t.Fatalf("EnrollEmbedding: %v", err)
		}
		if id <= 0 {
			t.Errorf("embedding id = %d, want > 0", id)
		}

		p, err := store.GetPerson(ctx, "alice")
		if err != nil {
			t.Fatalf("GetPerson: %v", err)
		}
		if p == nil || p.Name != "Alice Novákova" || p.EmbeddingCount != 1 {
			t.Errorf("GetPerson = %+v, want Alice with 1 embedding", p)
		}
	})

	t.Run("EnrollKeepsExistingName", func(t *testing.T) {
		if _, err := store.EnrollEmbedding(ctx, "alice", "Someone Else", axis(0, 1, 0.05), now, 2); err != nil {
			t.Fatalf("EnrollEmbedding: %v", err)
		}
		p, _ := store.GetPerson(ctx, "alice")
		if p.Name != "Alice Novákova" {
			t.Errorf("name = %q, want unchanged", p.Name)
		}
	})

	t.Run("EnrollCap", func(t *testing.T) {
		_, err := store.EnrollEmbedding(ctx, "alice", "Alice", axis(0, 2, 0.1), now, 2)
		if !errors.Is(err, database.ErrEmbeddingLimit) {
			t.Errorf("expected ErrEmbeddingLimit, got %v", err)
		}
	})

	t.Run("InsertRequiresPerson", func(t *testing.T) {
		_, err := store.InsertEmbedding(ctx, "ghost", axis(3, 4, 0), now)
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("InsertRejectsWrongDim", func(t *testing.T) {
		_, err := store.InsertEmbedding(ctx, "alice", []float32{1, 0}, now)
		if !errors.Is(err, database.ErrInvalidEmbedding) {
			t.Errorf("expected ErrInvalidEmbedding, got %v", err)
		}
	})

	if err := store.UpsertPerson(ctx, "bob", "Bob"); err != nil {
		t.Fatalf("UpsertPerson: %v", err)
	}
	if _, err := store.InsertEmbedding(ctx, "bob", axis(1, 0, 0), now); err != nil {
		t.Fatalf("InsertEmbedding: %v", err)
	}

	t.Run("LoadEmbeddingsFilter", func(t *testing.T) {
		all, err := store.LoadEmbeddings(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("got %d embeddings, want 3", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].ID <= all[i-1].ID {
				t.Error("embeddings not ordered by id")
			}
		}

		bobs, _ := store.LoadEmbeddings(ctx, []string{"bob"})
		if len(bobs) != 1 || bobs[0].PersonID != "bob" {
			t.Errorf("filtered load = %+v, want one bob row", bobs)
		}

		none, _ := store.LoadEmbeddings(ctx, []string{})
		if len(none) != 0 {
			t.Errorf("empty filter returned %d rows", len(none))
		}
	})

	t.Run("FindNearest", func(t *testing.T) {
		hits, err := store.FindNearest(ctx, axis(1, 0, 0), 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 2 || hits[0].PersonID != "bob" {
			t.Fatalf("FindNearest = %+v, want bob first", hits)
		}
		if hits[0].Similarity < 0.999 {
			t.Errorf("similarity = %v, want ~1", hits[0].Similarity)
		}
	})

	t.Run("FindNearestHNSW", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "embeddings.hnsw")
		if err := store.EnableHNSW(ctx, path); err != nil {
			t.Fatalf("EnableHNSW: %v", err)
		}
		defer store.DisableHNSW()

		if store.HNSWCount() != 3 {
			t.Errorf("HNSWCount() = %d, want 3", store.HNSWCount())
		}
		hits, err := store.FindNearest(ctx, axis(0, 1, 0), 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(hits) != 1 || hits[0].PersonID != "alice" {
			t.Errorf("FindNearest = %+v, want alice", hits)
		}
		if err := store.SaveHNSWIndex(); err != nil {
			t.Errorf("SaveHNSWIndex: %v", err)
		}
	})

	t.Run("Groups", func(t *testing.T) {
		if err := store.SaveGroup(ctx, database.Group{ID: "g1", Name: "Hikers"}); err != nil {
			t.Fatalf("SaveGroup: %v", err)
		}
		if err := store.AddMember(ctx, "g1", "bob"); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
		if err := store.AddMember(ctx, "g1", "bob"); err != nil {
			t.Errorf("repeated AddMember: %v", err)
		}
		if err := store.AddMember(ctx, "g1", "ghost"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("AddMember unknown person: expected ErrNotFound, got %v", err)
		}

		members, err := store.MembersOf(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0] != "bob" {
			t.Errorf("MembersOf = %v, want [bob]", members)
		}
		if _, err := store.MembersOf(ctx, "nope"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("MembersOf unknown group: expected ErrNotFound, got %v", err)
		}

		guide := "alice"
		if err := store.UpdateGroup(ctx, "g1", database.GroupUpdate{GuideID: &guide}); err != nil {
			t.Fatalf("UpdateGroup: %v", err)
		}
		g, _ := store.GetGroup(ctx, "g1")
		if g == nil || g.Name != "Hikers" || g.GuideID != "alice" {
			t.Errorf("GetGroup = %+v, want Hikers guided by alice", g)
		}
	})

	t.Run("PhotosAndDelete", func(t *testing.T) {
		if err := store.AddPhoto(ctx, "bob", "a.jpg"); err != nil {
			t.Fatalf("AddPhoto: %v", err)
		}
		files, err := store.DeletePerson(ctx, "bob")
		if err != nil {
			t.Fatalf("DeletePerson: %v", err)
		}
		if len(files) != 1 || files[0] != "a.jpg" {
			t.Errorf("DeletePerson files = %v, want [a.jpg]", files)
		}

		members, _ := store.MembersOf(ctx, "g1")
		if len(members) != 0 {
			t.Errorf("membership not cascaded: %v", members)
		}
		counts, _ := store.CountByPerson(ctx)
		if counts["bob"] != 0 {
			t.Errorf("bob still has %d embeddings", counts["bob"])
		}
		if _, err := store.DeletePerson(ctx, "bob"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("second delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SearchPersons", func(t *testing.T) {
		found, err := store.SearchPersons(ctx, "novakova")
		if err != nil {
			t.Fatal(err)
		}
		if len(found) != 1 || found[0].ID != "alice" {
			t.Errorf("SearchPersons = %+v, want alice", found)
		}
	})

	t.Run("StatsAndClear", func(t *testing.T) {
		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.Persons != 1 || stats.Embeddings != 2 || stats.Groups != 1 {
			t.Errorf("Stats = %+v", stats)
		}

		if err := store.ClearAll(ctx); err != nil {
			t.Fatalf("ClearAll: %v", err)
		}
		n, _ := store.CountEmbeddings(ctx)
		if n != 0 {
			t.Errorf("CountEmbeddings after clear = %d", n)
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_create_persons.sql",
		"002_create_embeddings.sql",
		"003_create_groups.sql",
		"004_create_vector_index.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}
	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Migrate is idempotent.
	if err := pool.Migrate(ctx); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
}
