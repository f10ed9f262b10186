package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/models"
)

var (
	// ErrNotFound is the sentinel for a missing row in any zone.
	ErrNotFound = errors.New("not found")
	// ErrSchemaMismatch means a zone table is missing or its vector
	// column has an unexpected dimension. Fatal for batch runs.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// ContentZone holds raw frame records.
type ContentZone interface {
	GetFrame(ctx context.Context, frameID string) (*models.Frame, error)
	InsertFrame(ctx context.Context, f *models.Frame) (int64, error)
	UpdateFrame(ctx context.Context, frameID, fileName, imageURL string) error
	ListFrames(ctx context.Context) ([]models.Frame, error)
}

// MetadataZone holds descriptive detail, chunk-level detail, and the
// processing-status ledger.
type MetadataZone interface {
	GetFrameDetail(ctx context.Context, frameID string) (*models.FrameDetail, error)
	InsertFrameDetail(ctx context.Context, d *models.FrameDetail) error
	UpdateFrameDetail(ctx context.Context, d *models.FrameDetail) error
	ListFrameDetails(ctx context.Context) ([]models.FrameDetail, error)

	GetChunk(ctx context.Context, chunkID uuid.UUID) (*models.Chunk, error)
	GetChunkByReference(ctx context.Context, referenceID string) (*models.Chunk, error)
	InsertChunk(ctx context.Context, c *models.Chunk) error
	ListChunks(ctx context.Context) ([]models.Chunk, error)

	ListProcessingRecords(ctx context.Context, frameID string, chunkID uuid.UUID) ([]models.ProcessingRecord, error)
	ListAllProcessingRecords(ctx context.Context) ([]models.ProcessingRecord, error)
	InsertProcessingRecord(ctx context.Context, r *models.ProcessingRecord) error
}

// EmbeddingZone holds the chunk-aware vector table and the legacy
// unchunked one. Per-chunk listings are ordered by creation time, then
// embedding id, ascending.
type EmbeddingZone interface {
	ListEmbeddingsByChunk(ctx context.Context, chunkID uuid.UUID) ([]models.Embedding, error)
	ListEmbeddings(ctx context.Context) ([]models.Embedding, error)
	InsertEmbedding(ctx context.Context, e *models.Embedding) error
	UpdateEmbeddingReference(ctx context.Context, embeddingID uuid.UUID, referenceID string) error
	DeleteEmbedding(ctx context.Context, embeddingID uuid.UUID) error

	ListLegacyEmbeddings(ctx context.Context) ([]models.LegacyEmbedding, error)
	UpdateLegacyReference(ctx context.Context, embeddingID uuid.UUID, referenceID string) error
}

// Zones is the full three-zone access layer. All operations are
// row-level; no call spans a transaction across rows, which is what
// keeps batch jobs interruptible between rows.
type Zones interface {
	ContentZone
	MetadataZone
	EmbeddingZone
}
