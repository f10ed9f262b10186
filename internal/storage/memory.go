package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framegraph/framegraph/internal/models"
)

// Memory is an in-memory Zones implementation. It backs unit tests and
// dry runs; the semantics (ordering, ErrNotFound) match Postgres.
type Memory struct {
	mu sync.Mutex

	nextFrameID  int64
	nextRecordID int64

	frames       []models.Frame
	frameDetails []models.FrameDetail
	chunks       []models.Chunk
	records      []models.ProcessingRecord
	embeddings   []models.Embedding
	legacy       []models.LegacyEmbedding
}

// NewMemory returns an empty in-memory zone set.
func NewMemory() *Memory {
	return &Memory{}
}

// SeedLegacy loads rows into the legacy embeddings table.
func (s *Memory) SeedLegacy(rows ...models.LegacyEmbedding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacy = append(s.legacy, rows...)
}

// SeedEmbedding loads a row into the chunk-aware embeddings table
// without any invariant enforcement, for injecting violations.
func (s *Memory) SeedEmbedding(e models.Embedding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings = append(s.embeddings, e)
}

func (s *Memory) GetFrame(_ context.Context, frameID string) (*models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.frames {
		if f.FrameID == frameID {
			cp := f
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("frame %s: %w", frameID, ErrNotFound)
}

func (s *Memory) InsertFrame(_ context.Context, f *models.Frame) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.frames {
		if existing.FrameID == f.FrameID {
			return 0, fmt.Errorf("frame %s already exists", f.FrameID)
		}
	}
	s.nextFrameID++
	f.ID = s.nextFrameID
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.frames = append(s.frames, *f)
	return f.ID, nil
}

func (s *Memory) UpdateFrame(_ context.Context, frameID, fileName, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frames {
		if s.frames[i].FrameID == frameID {
			s.frames[i].FileName = fileName
			s.frames[i].ImageURL = imageURL
			return nil
		}
	}
	return fmt.Errorf("frame %s: %w", frameID, ErrNotFound)
}

func (s *Memory) ListFrames(_ context.Context) ([]models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Frame(nil), s.frames...), nil
}

func (s *Memory) GetFrameDetail(_ context.Context, frameID string) (*models.FrameDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.frameDetails {
		if d.FrameID == frameID {
			cp := d
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("frame detail %s: %w", frameID, ErrNotFound)
}

func (s *Memory) InsertFrameDetail(_ context.Context, d *models.FrameDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.frameDetails {
		if existing.FrameID == d.FrameID {
			return fmt.Errorf("frame detail %s already exists", d.FrameID)
		}
	}
	s.frameDetails = append(s.frameDetails, *d)
	return nil
}

func (s *Memory) UpdateFrameDetail(_ context.Context, d *models.FrameDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frameDetails {
		if s.frameDetails[i].FrameID == d.FrameID {
			s.frameDetails[i] = *d
			return nil
		}
	}
	return fmt.Errorf("frame detail %s: %w", d.FrameID, ErrNotFound)
}

func (s *Memory) ListFrameDetails(_ context.Context) ([]models.FrameDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FrameDetail(nil), s.frameDetails...), nil
}

func (s *Memory) GetChunk(_ context.Context, chunkID uuid.UUID) (*models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if c.ChunkID == chunkID {
			cp := c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
}

func (s *Memory) GetChunkByReference(_ context.Context, referenceID string) (*models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if c.ReferenceID == referenceID {
			cp := c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", referenceID, ErrNotFound)
}

func (s *Memory) InsertChunk(_ context.Context, c *models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.chunks {
		if existing.ReferenceID == c.ReferenceID {
			return fmt.Errorf("chunk %s already exists", c.ReferenceID)
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.chunks = append(s.chunks, *c)
	return nil
}

func (s *Memory) ListChunks(_ context.Context) ([]models.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Chunk(nil), s.chunks...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].FrameID != out[j].FrameID {
			return out[i].FrameID < out[j].FrameID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (s *Memory) ListProcessingRecords(_ context.Context, frameID string, chunkID uuid.UUID) ([]models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ProcessingRecord
	for _, r := range s.records {
		if r.FrameID == frameID && r.ChunkID == chunkID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memory) ListAllProcessingRecords(_ context.Context) ([]models.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProcessingRecord(nil), s.records...), nil
}

func (s *Memory) InsertProcessingRecord(_ context.Context, r *models.ProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecordID++
	r.ID = s.nextRecordID
	if r.ProcessingTimestamp.IsZero() {
		r.ProcessingTimestamp = time.Now()
	}
	s.records = append(s.records, *r)
	return nil
}

func sortEmbeddings(out []models.Embedding) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EmbeddingID.String() < out[j].EmbeddingID.String()
	})
}

func (s *Memory) ListEmbeddingsByChunk(_ context.Context, chunkID uuid.UUID) ([]models.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Embedding
	for _, e := range s.embeddings {
		if e.ChunkID.Valid && e.ChunkID.UUID == chunkID {
			out = append(out, e)
		}
	}
	sortEmbeddings(out)
	return out, nil
}

func (s *Memory) ListEmbeddings(_ context.Context) ([]models.Embedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.Embedding(nil), s.embeddings...)
	sortEmbeddings(out)
	return out, nil
}

func (s *Memory) InsertEmbedding(_ context.Context, e *models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	s.embeddings = append(s.embeddings, *e)
	return nil
}

func (s *Memory) UpdateEmbeddingReference(_ context.Context, embeddingID uuid.UUID, referenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.embeddings {
		if s.embeddings[i].EmbeddingID == embeddingID {
			s.embeddings[i].ReferenceID = referenceID
			s.embeddings[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("embedding %s: %w", embeddingID, ErrNotFound)
}

func (s *Memory) DeleteEmbedding(_ context.Context, embeddingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.embeddings {
		if s.embeddings[i].EmbeddingID == embeddingID {
			s.embeddings = append(s.embeddings[:i], s.embeddings[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("embedding %s: %w", embeddingID, ErrNotFound)
}

func (s *Memory) ListLegacyEmbeddings(_ context.Context) ([]models.LegacyEmbedding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.LegacyEmbedding(nil), s.legacy...)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EmbeddingID.String() < out[j].EmbeddingID.String()
	})
	return out, nil
}

func (s *Memory) UpdateLegacyReference(_ context.Context, embeddingID uuid.UUID, referenceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.legacy {
		if s.legacy[i].EmbeddingID == embeddingID {
			s.legacy[i].ReferenceID = referenceID
			return nil
		}
	}
	return fmt.Errorf("legacy embedding %s: %w", embeddingID, ErrNotFound)
}
