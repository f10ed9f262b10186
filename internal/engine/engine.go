// Package engine implements idempotent create-or-update operations
// against the three storage zones. Every ingestion path (OCR batch,
// LLM batch, record-store sync, migration) writes through it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/refid"
	"github.com/framegraph/framegraph/internal/storage"
)

// ErrOrphanReference means an attempt to create a chunk or embedding
// whose parent does not exist. The engine refuses the write; it never
// fabricates parents.
var ErrOrphanReference = errors.New("orphan reference")

// Engine is the upsert layer over the storage zones. All operations
// are idempotent per row and safe to re-run with identical inputs.
type Engine struct {
	zones  storage.Zones
	dim    int
	logger *slog.Logger
}

// New builds an Engine. dim is the system-wide embedding dimension.
func New(zones storage.Zones, dim int, logger *slog.Logger) *Engine {
	return &Engine{zones: zones, dim: dim, logger: logger}
}

// UpsertFrame inserts a frame if absent (matched by frameID) or updates
// its mutable fields (file name, image URL). The frame id itself is
// never changed. Returns the content-zone row id.
func (e *Engine) UpsertFrame(ctx context.Context, frameID, folder, fileName, imageURL string) (int64, error) {
	if _, err := refid.FrameRef(folder, frameID); err != nil {
		return 0, err
	}

	existing, err := e.zones.GetFrame(ctx, frameID)
	if err == nil {
		if existing.FileName != fileName || existing.ImageURL != imageURL {
			if err := e.zones.UpdateFrame(ctx, frameID, fileName, imageURL); err != nil {
				return 0, err
			}
		}
		return existing.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	frame := &models.Frame{
		FrameID:    frameID,
		FolderName: folder,
		FileName:   fileName,
		ImageURL:   imageURL,
		CreatedAt:  time.Now(),
	}
	return e.zones.InsertFrame(ctx, frame)
}

// UpsertFrameDetail inserts a detail row for the frame if none exists,
// otherwise applies only the fields supplied in the patch. The
// reference id is (re)asserted from the frame's folder and id on every
// call, so drift cannot survive an upsert.
func (e *Engine) UpsertFrameDetail(ctx context.Context, frameID string, patch models.FrameDetailPatch) error {
	frame, err := e.zones.GetFrame(ctx, frameID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: frame detail for missing frame %s", ErrOrphanReference, frameID)
	}
	if err != nil {
		return err
	}

	ref, err := refid.FrameRef(frame.FolderName, frame.FrameID)
	if err != nil {
		return err
	}

	detail, err := e.zones.GetFrameDetail(ctx, frameID)
	if errors.Is(err, storage.ErrNotFound) {
		now := time.Now()
		detail = &models.FrameDetail{
			FrameID:       frameID,
			WorkflowStage: models.StageInitial,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		patch.Apply(detail)
		detail.ReferenceID = ref
		return e.zones.InsertFrameDetail(ctx, detail)
	}
	if err != nil {
		return err
	}

	patch.Apply(detail)
	detail.ReferenceID = ref
	detail.UpdatedAt = time.Now()
	return e.zones.UpdateFrameDetail(ctx, detail)
}

// EnsureChunk returns the id of the chunk with the given reference id,
// creating it with a fresh UUID when absent. The parent frame must
// already exist and the reference id must parse back to it.
func (e *Engine) EnsureChunk(ctx context.Context, frameID, referenceID string, index int) (uuid.UUID, error) {
	frameRef, parsedIndex, err := refid.ParseChunkRef(referenceID)
	if err != nil {
		return uuid.Nil, err
	}

	frame, err := e.zones.GetFrame(ctx, frameID)
	if errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%w: chunk %s for missing frame %s", ErrOrphanReference, referenceID, frameID)
	}
	if err != nil {
		return uuid.Nil, err
	}

	wantRef, err := refid.FrameRef(frame.FolderName, frame.FrameID)
	if err != nil {
		return uuid.Nil, err
	}
	if frameRef != wantRef {
		return uuid.Nil, fmt.Errorf("%w: chunk %s does not belong to frame %s", ErrOrphanReference, referenceID, wantRef)
	}

	existing, err := e.zones.GetChunkByReference(ctx, referenceID)
	if err == nil {
		if existing.FrameID != frameID {
			return uuid.Nil, fmt.Errorf("chunk %s is owned by frame %s, not %s", referenceID, existing.FrameID, frameID)
		}
		return existing.ChunkID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, err
	}

	if index < 0 {
		index = parsedIndex
	}
	chunk := &models.Chunk{
		ChunkID:       uuid.New(),
		FrameID:       frameID,
		ReferenceID:   referenceID,
		ChunkIndex:    index,
		WorkflowStage: models.StageInitial,
		CreatedAt:     time.Now(),
	}
	if err := e.zones.InsertChunk(ctx, chunk); err != nil {
		return uuid.Nil, err
	}
	return chunk.ChunkID, nil
}

// EnsureEmbedding returns the id of the chunk's embedding, inserting
// one when absent. Duplicate cleanup runs first so at most one row
// survives per chunk. The owning chunk's reference id wins over the
// supplied one, keeping the zones drift-free.
func (e *Engine) EnsureEmbedding(ctx context.Context, chunkID uuid.UUID, referenceID, text string, vector []float32, model string) (uuid.UUID, error) {
	chunk, err := e.zones.GetChunk(ctx, chunkID)
	if errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%w: embedding for missing chunk %s", ErrOrphanReference, chunkID)
	}
	if err != nil {
		return uuid.Nil, err
	}

	if len(vector) != e.dim {
		return uuid.Nil, fmt.Errorf("embedding for chunk %s has dimension %d, expected %d", chunk.ReferenceID, len(vector), e.dim)
	}
	if referenceID != chunk.ReferenceID {
		e.logger.Warn("embedding reference differs from owning chunk, using chunk's",
			"supplied", referenceID, "chunk", chunk.ReferenceID)
	}

	if _, err := e.CleanupDuplicateEmbeddings(ctx, chunkID); err != nil {
		return uuid.Nil, err
	}

	existing, err := e.zones.ListEmbeddingsByChunk(ctx, chunkID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(existing) > 0 {
		survivor := existing[0]
		if survivor.ReferenceID != chunk.ReferenceID {
			if err := e.zones.UpdateEmbeddingReference(ctx, survivor.EmbeddingID, chunk.ReferenceID); err != nil {
				return uuid.Nil, err
			}
		}
		return survivor.EmbeddingID, nil
	}

	now := time.Now()
	emb := &models.Embedding{
		EmbeddingID:   uuid.New(),
		ReferenceID:   chunk.ReferenceID,
		ReferenceType: models.RefTypeChunk,
		ChunkID:       uuid.NullUUID{UUID: chunkID, Valid: true},
		TextContent:   text,
		Vector:        vector,
		ModelName:     model,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.zones.InsertEmbedding(ctx, emb); err != nil {
		return uuid.Nil, err
	}
	return emb.EmbeddingID, nil
}

// EnsureProcessingRecord inserts a ledger row for (frameID, chunkID)
// if none exists yet.
func (e *Engine) EnsureProcessingRecord(ctx context.Context, frameID string, chunkID uuid.UUID, airtableID, status string) error {
	existing, err := e.zones.ListProcessingRecords(ctx, frameID, chunkID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	record := &models.ProcessingRecord{
		FrameID:             frameID,
		ChunkID:             chunkID,
		AirtableRecordID:    airtableID,
		ProcessingStatus:    status,
		ChunkType:           "text",
		ChunkFormat:         "plain",
		ProcessingMetadata:  models.Document{},
		ProcessingTimestamp: time.Now(),
	}
	return e.zones.InsertProcessingRecord(ctx, record)
}

// CleanupDuplicateEmbeddings enforces at-most-one embedding per chunk:
// rows are ordered by creation time ascending (ties broken by smallest
// embedding id), the first is kept, the rest deleted. Returns the
// number of rows removed.
func (e *Engine) CleanupDuplicateEmbeddings(ctx context.Context, chunkID uuid.UUID) (int, error) {
	rows, err := e.zones.ListEmbeddingsByChunk(ctx, chunkID)
	if err != nil {
		return 0, err
	}
	if len(rows) <= 1 {
		return 0, nil
	}

	removed := 0
	for _, dup := range rows[1:] {
		if err := e.zones.DeleteEmbedding(ctx, dup.EmbeddingID); err != nil {
			return removed, err
		}
		removed++
	}
	e.logger.Info("pruned duplicate embeddings", "chunk_id", chunkID, "removed", removed)
	return removed, nil
}
