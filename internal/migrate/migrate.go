// Package migrate backfills the chunk-aware zones from the legacy
// unchunked embeddings table. Every step is idempotent and the whole
// procedure can be re-run any number of times without duplicating rows.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/framegraph/framegraph/internal/engine"
	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/refid"
	"github.com/framegraph/framegraph/internal/storage"
	"github.com/framegraph/framegraph/internal/verify"
)

// StepReport counts the outcome of one migration step.
type StepReport struct {
	Name      string `json:"name"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Errored   int    `json:"errored"`
}

// RunReport is the outcome of a full migration run, including the
// closing verification report.
type RunReport struct {
	Steps        []StepReport   `json:"steps"`
	Verification *verify.Report `json:"verification,omitempty"`
}

// OK reports whether the run completed with no per-row errors and a
// clean verification.
func (r *RunReport) OK() bool {
	for _, s := range r.Steps {
		if s.Errored > 0 {
			return false
		}
	}
	return r.Verification == nil || r.Verification.OK()
}

// Migrator drives the backfill. It writes only through the upsert
// engine, so a failure between rows leaves the zones valid.
type Migrator struct {
	zones    storage.Zones
	engine   *engine.Engine
	verifier *verify.Verifier
	logger   *slog.Logger
}

// New builds a Migrator.
func New(zones storage.Zones, eng *engine.Engine, verifier *verify.Verifier, logger *slog.Logger) *Migrator {
	return &Migrator{zones: zones, engine: eng, verifier: verifier, logger: logger}
}

// Run executes the steps in dependency order. A per-row failure is
// logged and counted; only an unreadable zone aborts the run.
func (m *Migrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{}

	steps := []struct {
		name string
		fn   func(context.Context) (StepReport, error)
	}{
		{"normalize_legacy_references", m.normalizeLegacyReferences},
		{"materialize_frames", m.materializeFrames},
		{"materialize_frame_details", m.materializeFrameDetails},
		{"materialize_chunks", m.materializeChunks},
		{"materialize_chunk_embeddings", m.materializeChunkEmbeddings},
		{"materialize_processing_records", m.materializeProcessingRecords},
	}
	for _, step := range steps {
		result, err := step.fn(ctx)
		if err != nil {
			return report, fmt.Errorf("migration step %s: %w", step.name, err)
		}
		result.Name = step.name
		report.Steps = append(report.Steps, result)
		m.logger.Info("migration step finished",
			"step", step.name,
			"processed", result.Processed,
			"skipped", result.Skipped,
			"errored", result.Errored)
	}

	verification, err := m.verifier.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("migration verification: %w", err)
	}
	report.Verification = verification
	return report, nil
}

// normalizeLegacyReferences rewrites slash-delimited legacy reference
// ids into the canonical underscore form. A pure string rewrite so
// that already-correct rows are a no-op.
func (m *Migrator) normalizeLegacyReferences(ctx context.Context) (StepReport, error) {
	var report StepReport
	rows, err := m.zones.ListLegacyEmbeddings(ctx)
	if err != nil {
		return report, err
	}
	for _, row := range rows {
		if !strings.Contains(row.ReferenceID, "/") {
			report.Skipped++
			continue
		}
		normalized := refid.Normalize(row.ReferenceID)
		if err := m.zones.UpdateLegacyReference(ctx, row.EmbeddingID, normalized); err != nil {
			m.logger.Warn("failed to normalize legacy reference",
				"embedding_id", row.EmbeddingID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (m *Migrator) materializeFrames(ctx context.Context) (StepReport, error) {
	var report StepReport
	rows, err := m.zones.ListLegacyEmbeddings(ctx)
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{})
	for _, row := range rows {
		if row.ReferenceType != models.RefTypeFrame {
			continue
		}
		if _, ok := seen[row.ReferenceID]; ok {
			report.Skipped++
			continue
		}
		seen[row.ReferenceID] = struct{}{}

		folder, frameID, err := refid.ParseFrameRef(row.ReferenceID)
		if err != nil {
			m.logger.Warn("legacy frame reference does not parse",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}

		fileName := frameID + ".jpg"
		if row.ImageURL != "" {
			fileName = path.Base(row.ImageURL)
		}
		if _, err := m.engine.UpsertFrame(ctx, frameID, folder, fileName, row.ImageURL); err != nil {
			m.logger.Warn("failed to upsert frame from legacy row",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (m *Migrator) materializeFrameDetails(ctx context.Context) (StepReport, error) {
	var report StepReport
	rows, err := m.zones.ListLegacyEmbeddings(ctx)
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{})
	for _, row := range rows {
		if row.ReferenceType != models.RefTypeFrame {
			continue
		}
		if _, ok := seen[row.ReferenceID]; ok {
			continue
		}
		seen[row.ReferenceID] = struct{}{}

		_, frameID, err := refid.ParseFrameRef(row.ReferenceID)
		if err != nil {
			report.Errored++
			continue
		}

		patch := models.FrameDetailPatch{}
		if _, err := m.zones.GetFrameDetail(ctx, frameID); err != nil {
			// No richer source exists: seed a placeholder description.
			desc := "Backfilled from legacy embedding " + row.ReferenceID
			stage := models.StageMigrated
			patch.Description = &desc
			patch.WorkflowStage = &stage
			if row.TextContent != "" {
				patch.Summary = &row.TextContent
			}
		}
		if err := m.engine.UpsertFrameDetail(ctx, frameID, patch); err != nil {
			m.logger.Warn("failed to upsert frame detail from legacy row",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}

// materializeChunks creates chunk rows for chunk-typed legacy
// references. When the parent frame has not been migrated yet the row
// is skipped with a warning; the next run picks it up. Parents are
// never fabricated.
func (m *Migrator) materializeChunks(ctx context.Context) (StepReport, error) {
	var report StepReport
	rows, err := m.zones.ListLegacyEmbeddings(ctx)
	if err != nil {
		return report, err
	}

	seen := make(map[string]struct{})
	for _, row := range rows {
		if row.ReferenceType != models.RefTypeChunk {
			continue
		}
		if _, ok := seen[row.ReferenceID]; ok {
			report.Skipped++
			continue
		}
		seen[row.ReferenceID] = struct{}{}

		frameRef, index, err := refid.ParseChunkRef(row.ReferenceID)
		if err != nil {
			m.logger.Warn("legacy chunk reference does not parse",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		_, frameID, err := refid.ParseFrameRef(frameRef)
		if err != nil {
			report.Errored++
			continue
		}
		if _, err := m.zones.GetFrame(ctx, frameID); err != nil {
			m.logger.Warn("parent frame not migrated yet, skipping chunk",
				"reference_id", row.ReferenceID, "frame_ref", frameRef)
			report.Skipped++
			continue
		}

		// Legacy ad-hoc chunk refs stay as-is; only the delimiter was
		// normalized in step one.
		if _, err := m.engine.EnsureChunk(ctx, frameID, row.ReferenceID, index); err != nil {
			m.logger.Warn("failed to ensure chunk from legacy row",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (m *Migrator) materializeChunkEmbeddings(ctx context.Context) (StepReport, error) {
	var report StepReport
	rows, err := m.zones.ListLegacyEmbeddings(ctx)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		if row.ReferenceType != models.RefTypeChunk {
			continue
		}
		chunk, err := m.zones.GetChunkByReference(ctx, row.ReferenceID)
		if err != nil {
			report.Skipped++
			continue
		}
		if _, err := m.engine.EnsureEmbedding(ctx, chunk.ChunkID, row.ReferenceID,
			row.TextContent, row.Vector, row.ModelName); err != nil {
			m.logger.Warn("failed to ensure embedding from legacy row",
				"reference_id", row.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}

func (m *Migrator) materializeProcessingRecords(ctx context.Context) (StepReport, error) {
	var report StepReport
	chunks, err := m.zones.ListChunks(ctx)
	if err != nil {
		return report, err
	}

	for _, c := range chunks {
		existing, err := m.zones.ListProcessingRecords(ctx, c.FrameID, c.ChunkID)
		if err != nil {
			report.Errored++
			continue
		}
		if len(existing) > 0 {
			report.Skipped++
			continue
		}
		if err := m.engine.EnsureProcessingRecord(ctx, c.FrameID, c.ChunkID, "", models.StatusMigrated); err != nil {
			m.logger.Warn("failed to ensure processing record",
				"reference_id", c.ReferenceID, "error", err)
			report.Errored++
			continue
		}
		report.Processed++
	}
	return report, nil
}
