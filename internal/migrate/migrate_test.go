package migrate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/engine"
	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/storage"
	"github.com/framegraph/framegraph/internal/verify"
)

const testDim = 4

func testMigrator() (*Migrator, *storage.Memory) {
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, testDim, logger)
	verifier := verify.New(store, testDim, 0, logger)
	return New(store, eng, verifier, logger), store
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3, 0.4}
}

func legacyFrameRow(ref string) models.LegacyEmbedding {
	return models.LegacyEmbedding{
		EmbeddingID:   uuid.New(),
		ReferenceID:   ref,
		ReferenceType: models.RefTypeFrame,
		TextContent:   "a recorded screen",
		ImageURL:      "https://img/" + ref + ".jpg",
		Vector:        testVector(),
		ModelName:     "legacy-model",
		CreatedAt:     time.Date(2024, 11, 5, 9, 0, 0, 0, time.UTC),
	}
}

func legacyChunkRow(ref string) models.LegacyEmbedding {
	row := legacyFrameRow(ref)
	row.ReferenceType = models.RefTypeChunk
	row.ImageURL = ""
	return row
}

func stepByName(t *testing.T, report *RunReport, name string) StepReport {
	t.Helper()
	for _, s := range report.Steps {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("step %s missing from report", name)
	return StepReport{}
}

func TestMigrateLegacyFrameRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := testMigrator()

	// Slash-delimited legacy id: normalized first, then materialized.
	store.SeedLegacy(legacyFrameRow("folderA/frame1"))

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	legacy, _ := store.ListLegacyEmbeddings(ctx)
	if legacy[0].ReferenceID != "folderA_frame1" {
		t.Fatalf("legacy ref=%q, want folderA_frame1", legacy[0].ReferenceID)
	}

	frames, _ := store.ListFrames(ctx)
	if len(frames) != 1 {
		t.Fatalf("len(frames)=%d, want 1", len(frames))
	}
	if frames[0].FrameID != "frame1" || frames[0].FolderName != "folderA" {
		t.Fatalf("frame=%+v", frames[0])
	}

	details, _ := store.ListFrameDetails(ctx)
	if len(details) != 1 {
		t.Fatalf("len(details)=%d, want 1", len(details))
	}
	if details[0].ReferenceID != "folderA_frame1" {
		t.Fatalf("detail ref=%q", details[0].ReferenceID)
	}
	if details[0].WorkflowStage != models.StageMigrated {
		t.Fatalf("stage=%q, want %q", details[0].WorkflowStage, models.StageMigrated)
	}

	chunks, _ := store.ListChunks(ctx)
	if len(chunks) != 0 {
		t.Fatalf("frame-typed legacy row produced %d chunks, want 0", len(chunks))
	}

	if !report.OK() {
		t.Fatalf("report not OK: %+v", report)
	}
}

func TestMigrateLegacyChunkRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := testMigrator()

	store.SeedLegacy(
		legacyFrameRow("folderA_frame1"),
		legacyChunkRow("folderA_frame1_Chunk1"),
	)

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunks, _ := store.ListChunks(ctx)
	if len(chunks) != 1 {
		t.Fatalf("len(chunks)=%d, want 1", len(chunks))
	}
	if chunks[0].ReferenceID != "folderA_frame1_Chunk1" {
		t.Fatalf("chunk ref=%q", chunks[0].ReferenceID)
	}
	if chunks[0].ChunkIndex != 0 {
		t.Fatalf("chunk index=%d, want 0 (legacy _Chunk1 is 1-based)", chunks[0].ChunkIndex)
	}

	embs, _ := store.ListEmbeddingsByChunk(ctx, chunks[0].ChunkID)
	if len(embs) != 1 {
		t.Fatalf("len(embeddings)=%d, want 1", len(embs))
	}
	if embs[0].ModelName != "legacy-model" || embs[0].TextContent != "a recorded screen" {
		t.Fatalf("embedding content not carried over: %+v", embs[0])
	}

	records, _ := store.ListProcessingRecords(ctx, "frame1", chunks[0].ChunkID)
	if len(records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(records))
	}
	if records[0].ProcessingStatus != models.StatusMigrated {
		t.Fatalf("status=%q, want %q", records[0].ProcessingStatus, models.StatusMigrated)
	}

	if report.Verification == nil || !report.Verification.OK() {
		t.Fatalf("verification not clean: %+v", report.Verification)
	}
}

func TestMigrateRerunIsNoOp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := testMigrator()

	store.SeedLegacy(
		legacyFrameRow("folderA/frame1"),
		legacyChunkRow("folderA/frame1/chunk_0"),
	)

	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	chunks, _ := store.ListChunks(ctx)
	if len(chunks) != 1 || chunks[0].ReferenceID != "folderA_frame1_chunk_0" {
		t.Fatalf("chunks after first run=%+v, want one with ref folderA_frame1_chunk_0", chunks)
	}
	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if got := stepByName(t, report, "normalize_legacy_references"); got.Processed != 0 {
		t.Fatalf("normalize reprocessed %d rows on rerun", got.Processed)
	}

	frames, _ := store.ListFrames(ctx)
	embs, _ := store.ListEmbeddings(ctx)
	records, _ := store.ListAllProcessingRecords(ctx)
	chunks, _ = store.ListChunks(ctx)
	if len(frames) != 1 || len(chunks) != 1 || len(embs) != 1 || len(records) != 1 {
		t.Fatalf("rerun duplicated rows: frames=%d chunks=%d embeddings=%d records=%d",
			len(frames), len(chunks), len(embs), len(records))
	}
	if !report.OK() {
		t.Fatalf("rerun report not OK: %+v", report)
	}
}

func TestMigrateSkipsChunkWithoutParentFrame(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := testMigrator()

	// Chunk row only: no frame-typed row exists for its parent.
	store.SeedLegacy(legacyChunkRow("folderB_frame9_chunk_0"))

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	chunks, _ := store.ListChunks(ctx)
	if len(chunks) != 0 {
		t.Fatalf("orphan chunk was materialized: %+v", chunks)
	}

	step := stepByName(t, report, "materialize_chunks")
	if step.Skipped != 1 || step.Errored != 0 {
		t.Fatalf("materialize_chunks skipped=%d errored=%d, want 1/0", step.Skipped, step.Errored)
	}
}

func TestMigratePerRowErrorDoesNotAbort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, store := testMigrator()

	bad := legacyFrameRow("nounderscore")
	store.SeedLegacy(bad, legacyFrameRow("folderA_frame1"))

	report, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	step := stepByName(t, report, "materialize_frames")
	if step.Errored != 1 || step.Processed != 1 {
		t.Fatalf("materialize_frames errored=%d processed=%d, want 1/1", step.Errored, step.Processed)
	}

	frames, _ := store.ListFrames(ctx)
	if len(frames) != 1 {
		t.Fatalf("good row not migrated: %d frames", len(frames))
	}
	if report.OK() {
		t.Fatal("report should not be OK with a per-row error")
	}
}
