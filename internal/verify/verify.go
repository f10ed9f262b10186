// Package verify implements the read-only consistency audit over the
// three storage zones. It never mutates data; the separate repair mode
// performs duplicate-embedding cleanup and nothing else.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/refid"
	"github.com/framegraph/framegraph/internal/storage"
)

// DefaultMaxExamples caps how many violating ids a check reports.
const DefaultMaxExamples = 5

// CheckResult is the outcome of one independent check.
type CheckResult struct {
	Name       string   `json:"name"`
	Examined   int      `json:"examined"`
	Violations int      `json:"violations"`
	Examples   []string `json:"examples,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Report aggregates every check. It marshals to JSON for machine
// consumption and renders a compact summary for logs.
type Report struct {
	GeneratedAt     time.Time     `json:"generated_at"`
	Checks          []CheckResult `json:"checks"`
	TotalViolations int           `json:"total_violations"`
}

// OK reports whether the audit found zero violations.
func (r *Report) OK() bool {
	return r.TotalViolations == 0
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Summary renders a one-line-per-check text summary.
func (r *Report) Summary() string {
	var b strings.Builder
	for _, c := range r.Checks {
		fmt.Fprintf(&b, "%-28s examined=%d violations=%d", c.Name, c.Examined, c.Violations)
		if len(c.Examples) > 0 {
			fmt.Fprintf(&b, " e.g. %s", strings.Join(c.Examples, ", "))
		}
		for _, w := range c.Warnings {
			fmt.Fprintf(&b, " [warn: %s]", w)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Cleaner is the narrow repair capability: duplicate-embedding cleanup
// only. Satisfied by the upsert engine.
type Cleaner interface {
	CleanupDuplicateEmbeddings(ctx context.Context, chunkID uuid.UUID) (int, error)
}

// Verifier walks all three zones and reports every invariant
// violation. Checks are independent; a violation in one never stops
// the others. Only genuine I/O failures abort a run.
type Verifier struct {
	zones       storage.Zones
	dim         int
	maxExamples int
	logger      *slog.Logger
}

// New builds a Verifier. dim is the expected embedding dimension;
// maxExamples caps example ids per check (0 means the default of 5).
func New(zones storage.Zones, dim, maxExamples int, logger *slog.Logger) *Verifier {
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	return &Verifier{zones: zones, dim: dim, maxExamples: maxExamples, logger: logger}
}

type snapshot struct {
	frames  []models.Frame
	details []models.FrameDetail
	chunks  []models.Chunk
	records []models.ProcessingRecord
	embs    []models.Embedding
	legacy  []models.LegacyEmbedding
}

func (v *Verifier) load(ctx context.Context) (*snapshot, error) {
	var (
		s   snapshot
		err error
	)
	if s.frames, err = v.zones.ListFrames(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if s.details, err = v.zones.ListFrameDetails(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if s.chunks, err = v.zones.ListChunks(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if s.records, err = v.zones.ListAllProcessingRecords(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if s.embs, err = v.zones.ListEmbeddings(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if s.legacy, err = v.zones.ListLegacyEmbeddings(ctx); err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	return &s, nil
}

// Run executes every check and returns the full report. The returned
// error is non-nil only when a zone could not be read at all.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	s, err := v.load(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{GeneratedAt: time.Now()}
	checks := []func(*snapshot) CheckResult{
		v.checkExistence,
		v.checkReferenceFormat,
		v.checkCrossZone,
		v.checkChunkParentage,
		v.checkVectorShape,
		v.checkEmbeddingCardinality,
		v.checkProcessingRecords,
	}
	for _, check := range checks {
		result := check(s)
		report.Checks = append(report.Checks, result)
		report.TotalViolations += result.Violations
	}
	return report, nil
}

// Repair runs duplicate-embedding cleanup for every chunk and nothing
// else. Returns the total number of rows pruned.
func (v *Verifier) Repair(ctx context.Context, cleaner Cleaner) (int, error) {
	chunks, err := v.zones.ListChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("verifier repair: %w", err)
	}
	total := 0
	for _, c := range chunks {
		removed, err := cleaner.CleanupDuplicateEmbeddings(ctx, c.ChunkID)
		if err != nil {
			v.logger.Warn("cleanup failed", "chunk_id", c.ChunkID, "error", err)
			continue
		}
		total += removed
	}
	return total, nil
}

func (v *Verifier) capped(examples []string) []string {
	if len(examples) > v.maxExamples {
		return examples[:v.maxExamples]
	}
	return examples
}

func (v *Verifier) checkExistence(s *snapshot) CheckResult {
	result := CheckResult{Name: "zone_existence"}
	zones := []struct {
		name string
		n    int
	}{
		{"frames", len(s.frames)},
		{"frame_details", len(s.details)},
		{"chunks", len(s.chunks)},
		{"processing_records", len(s.records)},
		{"chunk_embeddings", len(s.embs)},
		{"legacy_embeddings", len(s.legacy)},
	}
	for _, z := range zones {
		result.Examined++
		if z.n == 0 {
			result.Warnings = append(result.Warnings, z.name+" is empty")
		}
	}
	return result
}

func (v *Verifier) checkReferenceFormat(s *snapshot) CheckResult {
	result := CheckResult{Name: "reference_format"}
	var bad []string
	for _, d := range s.details {
		result.Examined++
		if !refid.IsFrameRef(d.ReferenceID) {
			bad = append(bad, d.ReferenceID)
		}
	}
	for _, c := range s.chunks {
		result.Examined++
		if !refid.IsValid(c.ReferenceID) || !refid.IsChunkRef(c.ReferenceID) {
			bad = append(bad, c.ReferenceID)
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}

// checkCrossZone is the symmetric set-difference between reference ids
// in the embeddings zone and those in the metadata zone.
func (v *Verifier) checkCrossZone(s *snapshot) CheckResult {
	result := CheckResult{Name: "cross_zone_existence"}

	metaRefs := make(map[string]struct{}, len(s.details)+len(s.chunks))
	for _, d := range s.details {
		metaRefs[d.ReferenceID] = struct{}{}
	}
	for _, c := range s.chunks {
		metaRefs[c.ReferenceID] = struct{}{}
	}

	embRefs := make(map[string]struct{}, len(s.embs)+len(s.legacy))
	for _, e := range s.embs {
		embRefs[e.ReferenceID] = struct{}{}
	}
	for _, e := range s.legacy {
		embRefs[e.ReferenceID] = struct{}{}
	}

	var bad []string
	for ref := range embRefs {
		result.Examined++
		if _, ok := metaRefs[ref]; !ok {
			bad = append(bad, ref+" (embedding without metadata)")
		}
	}
	for ref := range metaRefs {
		result.Examined++
		if _, ok := embRefs[ref]; !ok {
			bad = append(bad, ref+" (metadata without embedding)")
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}

func (v *Verifier) checkChunkParentage(s *snapshot) CheckResult {
	result := CheckResult{Name: "chunk_parentage"}

	frameRefs := make(map[string]struct{}, len(s.details))
	for _, d := range s.details {
		frameRefs[d.ReferenceID] = struct{}{}
	}

	var bad []string
	for _, c := range s.chunks {
		result.Examined++
		frameRef, _, err := refid.ParseChunkRef(c.ReferenceID)
		if err != nil {
			bad = append(bad, c.ReferenceID)
			continue
		}
		if _, ok := frameRefs[frameRef]; !ok {
			bad = append(bad, c.ReferenceID)
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}

func (v *Verifier) checkVectorShape(s *snapshot) CheckResult {
	result := CheckResult{Name: "vector_shape"}
	var bad []string
	for _, e := range s.embs {
		result.Examined++
		if len(e.Vector) != v.dim {
			bad = append(bad, e.EmbeddingID.String())
		}
	}
	for _, e := range s.legacy {
		result.Examined++
		if len(e.Vector) != v.dim {
			bad = append(bad, e.EmbeddingID.String())
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}

func (v *Verifier) checkEmbeddingCardinality(s *snapshot) CheckResult {
	result := CheckResult{Name: "chunk_embedding_cardinality"}

	perChunk := make(map[uuid.UUID]int)
	for _, e := range s.embs {
		if e.ChunkID.Valid {
			perChunk[e.ChunkID.UUID]++
		}
	}

	var bad []string
	for _, c := range s.chunks {
		result.Examined++
		if perChunk[c.ChunkID] > 1 {
			bad = append(bad, c.ReferenceID)
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}

func (v *Verifier) checkProcessingRecords(s *snapshot) CheckResult {
	result := CheckResult{Name: "chunk_processing_records"}

	perChunk := make(map[uuid.UUID]int)
	for _, r := range s.records {
		perChunk[r.ChunkID]++
	}

	var bad []string
	for _, c := range s.chunks {
		result.Examined++
		if perChunk[c.ChunkID] == 0 {
			bad = append(bad, c.ReferenceID)
		}
	}
	result.Violations = len(bad)
	result.Examples = v.capped(bad)
	return result
}
