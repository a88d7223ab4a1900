package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/database"
	"github.com/omri0111-web/facepace-public/internal/database/bolt"
	"github.com/omri0111-web/facepace-public/internal/database/postgres"
	"github.com/omri0111-web/facepace-public/internal/extractor"
)

// openStore opens the backend selected by STORAGE_BACKEND. withIndex loads the
// PostgreSQL HNSW index for commands that search or keep it current.
func openStore(ctx context.Context, cfg *config.Config, withIndex bool) (database.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		store, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if withIndex {
			initEmbeddingHNSW(ctx, store.EmbeddingRepository, cfg.Database.HNSWIndexPath)
		}
		return store, nil
	case config.BackendBolt:
		store, err := openBolt(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)",
			cfg.Storage.Backend, config.BackendPostgres, config.BackendBolt)
	}
}

// openPostgres connects and migrates without building the HNSW index.
func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return postgres.NewStore(pool), nil
}

func openBolt(cfg *config.Config) (*bolt.Store, error) {
	fmt.Printf("Opening local database %s...\n", cfg.Local.BoltPath)
	store, err := bolt.Open(cfg.Local.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}
	return store, nil
}

// initEmbeddingHNSW builds or loads the embedding HNSW index for fast nearest search.
func initEmbeddingHNSW(ctx context.Context, embeddingRepo *postgres.EmbeddingRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading embedding HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for face embeddings...\n")
	}
	if err := embeddingRepo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build embedding HNSW index: %v\n", err)
		fmt.Printf("Nearest search will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Embedding HNSW index ready with %d embeddings (persisted to %s)\n", embeddingRepo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Embedding HNSW index built with %d embeddings (in-memory only)\n", embeddingRepo.HNSWCount())
	}
}

// saveHNSWIndex persists the index if the store keeps one.
func saveHNSWIndex(store database.Store) {
	rebuilder, ok := store.(database.HNSWRebuilder)
	if !ok || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save embedding HNSW index: %v\n", err)
	} else {
		fmt.Println("Embedding HNSW index saved to disk")
	}
}

// newExtractorHandle creates a handle around the model server client.
func newExtractorHandle(cfg *config.Config) *extractor.Handle {
	client := extractor.NewClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	return extractor.NewHandle(client, cfg.Embedding.Serialize)
}

// initExtractor prepares the model with the configured pack, for commands
// that run inference without a prior /init call.
func initExtractor(ctx context.Context, cfg *config.Config) (*extractor.Handle, error) {
	handle := newExtractorHandle(cfg)
	opts := extractor.InitOptions{
		ModelPack: cfg.Embedding.ModelPack,
		DetWidth:  cfg.Embedding.DetWidth,
		DetHeight: cfg.Embedding.DetHeight,
	}
	fmt.Printf("Preparing model pack %s at %s...\n", opts.ModelPack, cfg.Embedding.URL)
	if err := handle.Init(ctx, opts); err != nil {
		return nil, fmt.Errorf("failed to initialize face model: %w", err)
	}
	return handle, nil
}
