package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/models"
)

func TestMemoryNotFoundSentinel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.GetFrame(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetFrame err=%v, want ErrNotFound", err)
	}
	if _, err := store.GetFrameDetail(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetFrameDetail err=%v, want ErrNotFound", err)
	}
	if _, err := store.GetChunk(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetChunk err=%v, want ErrNotFound", err)
	}
	if _, err := store.GetChunkByReference(ctx, "ghost_ref"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetChunkByReference err=%v, want ErrNotFound", err)
	}
	if err := store.DeleteEmbedding(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteEmbedding err=%v, want ErrNotFound", err)
	}
}

func TestMemoryRejectsDuplicateInserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.InsertFrame(ctx, &models.Frame{FrameID: "frame1", FolderName: "folderA"}); err != nil {
		t.Fatalf("InsertFrame: %v", err)
	}
	if _, err := store.InsertFrame(ctx, &models.Frame{FrameID: "frame1", FolderName: "folderA"}); err == nil {
		t.Fatal("duplicate frame insert must fail")
	}

	chunk := models.Chunk{ChunkID: uuid.New(), FrameID: "frame1", ReferenceID: "folderA_frame1_chunk_0"}
	if err := store.InsertChunk(ctx, &chunk); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}
	dup := chunk
	dup.ChunkID = uuid.New()
	if err := store.InsertChunk(ctx, &dup); err == nil {
		t.Fatal("duplicate chunk reference insert must fail")
	}
}

func TestMemoryEmbeddingOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	chunkID := uuid.New()
	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	newer := uuid.MustParse("00000000-0000-0000-0000-000000000009")
	tieBig := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	tieSmall := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	for _, e := range []models.Embedding{
		{EmbeddingID: newer, ChunkID: uuid.NullUUID{UUID: chunkID, Valid: true}, CreatedAt: base.Add(time.Minute)},
		{EmbeddingID: tieBig, ChunkID: uuid.NullUUID{UUID: chunkID, Valid: true}, CreatedAt: base},
		{EmbeddingID: tieSmall, ChunkID: uuid.NullUUID{UUID: chunkID, Valid: true}, CreatedAt: base},
	} {
		store.SeedEmbedding(e)
	}

	rows, err := store.ListEmbeddingsByChunk(ctx, chunkID)
	if err != nil {
		t.Fatalf("ListEmbeddingsByChunk: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows)=%d, want 3", len(rows))
	}
	// Oldest first; identical timestamps fall back to the smaller id.
	if rows[0].EmbeddingID != tieSmall || rows[1].EmbeddingID != tieBig || rows[2].EmbeddingID != newer {
		t.Fatalf("order=%v %v %v", rows[0].EmbeddingID, rows[1].EmbeddingID, rows[2].EmbeddingID)
	}
}

func TestMemoryUpdateEmbeddingReference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemory()

	id := uuid.New()
	store.SeedEmbedding(models.Embedding{EmbeddingID: id, ReferenceID: "old_ref", CreatedAt: time.Now()})

	if err := store.UpdateEmbeddingReference(ctx, id, "new_ref"); err != nil {
		t.Fatalf("UpdateEmbeddingReference: %v", err)
	}
	rows, _ := store.ListEmbeddings(ctx)
	if rows[0].ReferenceID != "new_ref" {
		t.Fatalf("reference=%q", rows[0].ReferenceID)
	}
	if !rows[0].UpdatedAt.After(rows[0].CreatedAt) && !rows[0].UpdatedAt.Equal(rows[0].CreatedAt) {
		t.Fatal("updated_at not touched")
	}
}
