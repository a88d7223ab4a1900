package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/omri0111-web/facepace-public/internal/constants"
	"github.com/omri0111-web/facepace-public/internal/facematch"
)

// SyncMode selects how Sync treats data already in the destination.
type SyncMode string

const (
	// SyncReplace clears the destination before copying.
	SyncReplace SyncMode = "replace"
	// SyncMerge keeps the destination and adds what is missing.
	SyncMerge SyncMode = "merge"
)

// ParseSyncMode validates a mode name.
func ParseSyncMode(s string) (SyncMode, error) {
	switch m := SyncMode(s); m {
	case SyncReplace, SyncMerge:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q (want replace or merge)", s)
	}
}

// SyncSource is the read side of a store.
type SyncSource interface {
	PersonReader
	GroupReader
	EmbeddingReader
}

// SyncResult counts what Sync wrote.
type SyncResult struct {
	Persons    int
	Embeddings int
	Skipped    int // embeddings already present in merge mode
	Groups     int
}

// Sync copies persons, photo records, embeddings, groups and memberships from
// src into dst. In merge mode existing persons keep their name and embeddings
// identical to one already stored for the same person are skipped.
// Source vectors that drifted off unit length are normalized before the
// comparison and the write. onEmbedding, when set, is called once per source embedding.
func Sync(ctx context.Context, src SyncSource, dst Store, mode SyncMode, onEmbedding func()) (*SyncResult, error) {
	if mode == SyncReplace {
		if err := dst.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear destination: %w", err)
		}
	}

	result := &SyncResult{}

	persons, err := src.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source persons: %w", err)
	}
	for _, p := range persons {
		existing, err := dst.GetPerson(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("get person %s: %w", p.ID, err)
		}
		if existing == nil {
			if err := dst.UpsertPerson(ctx, p.ID, p.Name); err != nil {
				return nil, fmt.Errorf("create person %s: %w", p.ID, err)
			}
			result.Persons++
		}
		for _, photo := range p.Photos {
			if err := dst.AddPhoto(ctx, p.ID, photo); err != nil {
				return nil, fmt.Errorf("add photo %s/%s: %w", p.ID, photo, err)
			}
		}
	}

	embeddings, err := src.LoadEmbeddings(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load source embeddings: %w", err)
	}
	var known map[string][][]float32
	if mode == SyncMerge {
		local, err := dst.LoadEmbeddings(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load destination embeddings: %w", err)
		}
		known = make(map[string][][]float32)
		for _, e := range local {
			known[e.PersonID] = append(known[e.PersonID], e.Embedding)
		}
	}
	for _, e := range embeddings {
		if onEmbedding != nil {
			onEmbedding()
		}
		emb := e.Embedding
		if !facematch.IsUnit(emb, constants.UnitNormTolerance) {
			emb = facematch.Normalize(emb)
		}
		if slices.ContainsFunc(known[e.PersonID], func(v []float32) bool { return slices.Equal(v, emb) }) {
			result.Skipped++
			continue
		}
		if _, err := dst.InsertEmbedding(ctx, e.PersonID, emb, e.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert embedding %d: %w", e.ID, err)
		}
		result.Embeddings++
	}

	groups, err := src.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source groups: %w", err)
	}
	for _, g := range groups {
		existing, err := dst.GetGroup(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("get group %s: %w", g.ID, err)
		}
		if existing == nil {
			if err := dst.SaveGroup(ctx, g); err != nil {
				return nil, fmt.Errorf("save group %s: %w", g.ID, err)
			}
			result.Groups++
		}
		for _, member := range g.Members {
			if err := dst.AddMember(ctx, g.ID, member); err != nil {
				return nil, fmt.Errorf("add member %s to %s: %w", member, g.ID, err)
			}
		}
	}

	return result, nil
}
