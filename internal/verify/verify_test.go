package verify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/engine"
	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/storage"
)

const testDim = 4

func testVerifier() (*Verifier, *engine.Engine, *storage.Memory) {
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, testDim, logger)
	return New(store, testDim, 0, logger), eng, store
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3, 0.4}
}

// seedHealthy builds one frame with one chunk, embedding and
// processing record through the engine, which keeps every invariant.
// A legacy row covers the frame reference so the cross-zone
// set-difference is empty, as it is after a completed backfill.
func seedHealthy(t *testing.T, eng *engine.Engine, store *storage.Memory) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	store.SeedLegacy(models.LegacyEmbedding{
		EmbeddingID:   uuid.New(),
		ReferenceID:   "folderA_frame1",
		ReferenceType: models.RefTypeFrame,
		Vector:        testVector(),
		CreatedAt:     time.Now(),
	})
	if _, err := eng.UpsertFrame(ctx, "frame1", "folderA", "f.jpg", ""); err != nil {
		t.Fatalf("UpsertFrame: %v", err)
	}
	if err := eng.UpsertFrameDetail(ctx, "frame1", models.FrameDetailPatch{}); err != nil {
		t.Fatalf("UpsertFrameDetail: %v", err)
	}
	chunkID, err := eng.EnsureChunk(ctx, "frame1", "folderA_frame1_chunk_0", 0)
	if err != nil {
		t.Fatalf("EnsureChunk: %v", err)
	}
	if _, err := eng.EnsureEmbedding(ctx, chunkID, "folderA_frame1_chunk_0", "text", testVector(), "m"); err != nil {
		t.Fatalf("EnsureEmbedding: %v", err)
	}
	if err := eng.EnsureProcessingRecord(ctx, "frame1", chunkID, "", models.StatusCompleted); err != nil {
		t.Fatalf("EnsureProcessingRecord: %v", err)
	}
	return chunkID
}

func checkByName(t *testing.T, report *Report, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s missing from report", name)
	return CheckResult{}
}

func TestRunCleanDataset(t *testing.T) {
	t.Parallel()
	v, eng, store := testVerifier()
	seedHealthy(t, eng, store)

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.OK() {
		t.Fatalf("clean dataset reported violations:\n%s", report.Summary())
	}
	if len(report.Checks) != 7 {
		t.Fatalf("len(checks)=%d, want 7", len(report.Checks))
	}
}

func TestVectorShapeViolation(t *testing.T) {
	t.Parallel()
	v, eng, store := testVerifier()
	chunkID := seedHealthy(t, eng, store)

	// One embedding with the wrong dimension slips in beside the good one.
	store.SeedEmbedding(models.Embedding{
		EmbeddingID: uuid.New(),
		ReferenceID: "folderA_frame1_chunk_0",
		ChunkID:     uuid.NullUUID{UUID: chunkID, Valid: true},
		Vector:      make([]float32, 512),
		CreatedAt:   time.Now(),
	})

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	check := checkByName(t, report, "vector_shape")
	if check.Violations != 1 {
		t.Fatalf("vector_shape violations=%d, want 1", check.Violations)
	}
	if report.OK() {
		t.Fatal("report should not be OK")
	}
}

func TestCrossZoneViolationIsSymmetric(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v, eng, store := testVerifier()
	seedHealthy(t, eng, store)

	// Embedding zone knows a reference the metadata zone never saw.
	store.SeedLegacy(models.LegacyEmbedding{
		EmbeddingID:   uuid.New(),
		ReferenceID:   "folderZ_frame9",
		ReferenceType: models.RefTypeFrame,
		Vector:        testVector(),
		CreatedAt:     time.Now(),
	})
	// And the metadata zone has a chunk no embedding covers.
	if _, err := eng.EnsureChunk(ctx, "frame1", "folderA_frame1_chunk_1", 1); err != nil {
		t.Fatalf("EnsureChunk: %v", err)
	}

	report, err := v.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	check := checkByName(t, report, "cross_zone_existence")
	if check.Violations != 2 {
		t.Fatalf("cross_zone violations=%d, want 2: %v", check.Violations, check.Examples)
	}
}

func TestChunkParentageViolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v, eng, store := testVerifier()
	seedHealthy(t, eng, store)

	// A chunk whose parent frame has no detail row, inserted directly
	// so the engine's orphan check cannot refuse it.
	if err := store.InsertChunk(ctx, &models.Chunk{
		ChunkID:     uuid.New(),
		FrameID:     "frame9",
		ReferenceID: "folderZ_frame9_chunk_0",
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	report, err := v.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	check := checkByName(t, report, "chunk_parentage")
	if check.Violations != 1 {
		t.Fatalf("chunk_parentage violations=%d, want 1: %v", check.Violations, check.Examples)
	}
}

func TestRepairPrunesDuplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	v, eng, store := testVerifier()
	chunkID := seedHealthy(t, eng, store)

	for i := 0; i < 2; i++ {
		store.SeedEmbedding(models.Embedding{
			EmbeddingID: uuid.New(),
			ReferenceID: "folderA_frame1_chunk_0",
			ChunkID:     uuid.NullUUID{UUID: chunkID, Valid: true},
			Vector:      testVector(),
			CreatedAt:   time.Now(),
		})
	}

	before, err := v.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if checkByName(t, before, "chunk_embedding_cardinality").Violations != 1 {
		t.Fatalf("expected a cardinality violation before repair:\n%s", before.Summary())
	}

	removed, err := v.Repair(ctx, eng)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed=%d, want 2", removed)
	}

	after, err := v.Run(ctx)
	if err != nil {
		t.Fatalf("Run after repair: %v", err)
	}
	if !after.OK() {
		t.Fatalf("violations remain after repair:\n%s", after.Summary())
	}
}

func TestReportJSONAndSummary(t *testing.T) {
	t.Parallel()
	v, eng, store := testVerifier()
	seedHealthy(t, eng, store)

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := report.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report JSON does not round-trip: %v", err)
	}
	if len(decoded.Checks) != len(report.Checks) {
		t.Fatalf("decoded %d checks, want %d", len(decoded.Checks), len(report.Checks))
	}

	summary := report.Summary()
	if !strings.Contains(summary, "vector_shape") {
		t.Fatalf("summary missing check name:\n%s", summary)
	}
}

func TestMaxExamplesCapsOutput(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := New(store, testDim, 2, logger)

	for i := 0; i < 5; i++ {
		store.SeedLegacy(models.LegacyEmbedding{
			EmbeddingID: uuid.New(),
			ReferenceID: "folderZ_frame" + string(rune('0'+i)),
			Vector:      make([]float32, 3),
			CreatedAt:   time.Now(),
		})
	}

	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	check := checkByName(t, report, "vector_shape")
	if check.Violations != 5 {
		t.Fatalf("violations=%d, want 5", check.Violations)
	}
	if len(check.Examples) != 2 {
		t.Fatalf("len(examples)=%d, want 2", len(check.Examples))
	}
}
