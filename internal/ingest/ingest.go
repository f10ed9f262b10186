// Package ingest drives the batch pipeline that pulls pending frame
// records from the record store, runs OCR and LLM analysis, and writes
// everything through the upsert engine. A failure on one record never
// stops the rest of the batch.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/framegraph/framegraph/internal/airtable"
	"github.com/framegraph/framegraph/internal/analyzer"
	"github.com/framegraph/framegraph/internal/engine"
	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/refid"
)

// Record-store field names for frame records.
const (
	FieldFolderName = "FolderName"
	FieldFrameID    = "FrameID"
	FieldFileID     = "DriveFileID"
	FieldImageURL   = "ImageURL"
	FieldProcessed  = "Processed"
)

// DefaultFilter selects records not yet processed.
const DefaultFilter = "NOT({Processed})"

// RecordStore is the narrow record-store interface the pipeline needs.
type RecordStore interface {
	FindRecords(ctx context.Context, filter string) ([]airtable.Record, error)
	UpdateRecord(ctx context.Context, id string, fields map[string]any) error
}

// FileStore downloads raw image bytes by file id.
type FileStore interface {
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// OCR extracts text from an image.
type OCR interface {
	Text(ctx context.Context, image []byte) (string, error)
}

// Analyzer filters OCR text through the LLM.
type Analyzer interface {
	Analyze(ctx context.Context, text, imagePath string) analyzer.Analysis
}

// Embedder turns chunk text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, content string) ([]float32, error)
	Model() string
}

// Summary counts the outcome of one ingestion run.
type Summary struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Errored   int64 `json:"errored"`
}

// Options tunes the pipeline.
type Options struct {
	Workers      int
	ChunkWindow  int
	ChunkOverlap int
	Filter       string
}

// Pipeline wires the collaborators to the upsert engine.
type Pipeline struct {
	records  RecordStore
	files    FileStore
	ocr      OCR
	analyzer Analyzer
	embedder Embedder
	engine   *engine.Engine
	opts     Options
	logger   *slog.Logger
}

// New builds a Pipeline.
func New(records RecordStore, files FileStore, o OCR, a Analyzer, emb Embedder, eng *engine.Engine, opts Options, logger *slog.Logger) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	return &Pipeline{
		records:  records,
		files:    files,
		ocr:      o,
		analyzer: a,
		embedder: emb,
		engine:   eng,
		opts:     opts,
		logger:   logger,
	}
}

// Run processes every pending record with bounded concurrency. The
// returned error is non-nil only when the record store itself is
// unreachable; per-record failures end up in the summary.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	records, err := p.records.FindRecords(ctx, p.opts.Filter)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch pending records: %w", err)
	}
	p.logger.Info("ingestion started", "pending", len(records), "workers", p.opts.Workers)

	var processed, skipped, errored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for _, record := range records {
		g.Go(func() error {
			switch err := p.processRecord(gctx, record); {
			case err == nil:
				processed.Add(1)
			case errSkip(err):
				p.logger.Warn("record skipped", "record_id", record.ID, "reason", err)
				skipped.Add(1)
			default:
				p.logger.Error("record failed", "record_id", record.ID, "error", err)
				errored.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary = Summary{
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Errored:   errored.Load(),
	}
	p.logger.Info("ingestion finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errored", summary.Errored)
	return summary, nil
}

type skipError struct{ reason string }

func (e skipError) Error() string { return e.reason }

func errSkip(err error) bool {
	_, ok := err.(skipError)
	return ok
}

func stringField(r airtable.Record, name string) string {
	if v, ok := r.Fields[name].(string); ok {
		return v
	}
	return ""
}

func (p *Pipeline) processRecord(ctx context.Context, record airtable.Record) error {
	folder := stringField(record, FieldFolderName)
	frameID := stringField(record, FieldFrameID)
	fileID := stringField(record, FieldFileID)
	imageURL := stringField(record, FieldImageURL)
	if folder == "" || frameID == "" || fileID == "" {
		return skipError{fmt.Sprintf("record %s is missing folder, frame id, or file id", record.ID)}
	}

	frameRef, err := refid.FrameRef(folder, frameID)
	if err != nil {
		return err
	}

	image, err := p.files.Download(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to download image: %w", err)
	}

	imagePath, cleanup, err := stageImage(image)
	if err != nil {
		return err
	}
	defer cleanup()

	ocrText, err := p.ocr.Text(ctx, image)
	if err != nil {
		return fmt.Errorf("ocr failed: %w", err)
	}

	analysis := p.analyzer.Analyze(ctx, ocrText, imagePath)

	if _, err := p.engine.UpsertFrame(ctx, frameID, folder, frameID+".jpg", imageURL); err != nil {
		return err
	}

	stage := models.StageLLMProcessed
	if err := p.engine.UpsertFrameDetail(ctx, frameID, models.FrameDetailPatch{
		Description:   &analysis.FilteredText,
		OCRData:       &ocrText,
		WorkflowStage: &stage,
		TechnicalDetails: models.NormalizeDocument(map[string]any{
			"contains_sensitive_info": analysis.ContainsSensitiveInfo,
			"sensitive_content_types": analysis.SensitiveContentTypes,
			"source_record_id":        record.ID,
		}),
	}); err != nil {
		return err
	}

	for i, text := range SplitWords(analysis.FilteredText, p.opts.ChunkWindow, p.opts.ChunkOverlap) {
		chunkRef, err := refid.ChunkRef(frameRef, i)
		if err != nil {
			return err
		}
		chunkID, err := p.engine.EnsureChunk(ctx, frameID, chunkRef, i)
		if err != nil {
			return err
		}

		vector, err := p.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", chunkRef, err)
		}
		if _, err := p.engine.EnsureEmbedding(ctx, chunkID, chunkRef, text, vector, p.embedder.Model()); err != nil {
			return err
		}
		if err := p.engine.EnsureProcessingRecord(ctx, frameID, chunkID, record.ID, models.StatusCompleted); err != nil {
			return err
		}
	}

	done := models.StageAirtableProcessed
	if err := p.engine.UpsertFrameDetail(ctx, frameID, models.FrameDetailPatch{WorkflowStage: &done}); err != nil {
		return err
	}

	if err := p.records.UpdateRecord(ctx, record.ID, map[string]any{FieldProcessed: true}); err != nil {
		return fmt.Errorf("failed to mark record processed: %w", err)
	}
	return nil
}

func stageImage(image []byte) (string, func(), error) {
	tmp, err := os.CreateTemp("", "ingest-*.jpg")
	if err != nil {
		return "", nil, fmt.Errorf("failed to stage image: %w", err)
	}
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("failed to stage image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("failed to stage image: %w", err)
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
