package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/framegraph/framegraph/internal/models"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

func (c PostgresConfig) connString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

// Postgres implements Zones over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgres connects to PostgreSQL and verifies the connection.
// dim is the system-wide embedding dimension used by CheckSchema.
func NewPostgres(ctx context.Context, config PostgresConfig, dim int) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, dim: dim}, nil
}

// Close closes the database connection
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var zoneTables = []string{
	"frames",
	"frame_details",
	"chunks",
	"processing_records",
	"chunk_embeddings",
	"legacy_embeddings",
}

// CheckSchema verifies that every zone table exists and that the vector
// columns carry the configured dimension. Returns ErrSchemaMismatch on
// any discrepancy.
func (s *Postgres) CheckSchema(ctx context.Context) error {
	for _, table := range zoneTables {
		var exists bool
		err := s.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
			table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check for table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("%w: table %s is missing", ErrSchemaMismatch, table)
		}
	}

	for _, table := range []string{"chunk_embeddings", "legacy_embeddings"} {
		var dim int
		err := s.pool.QueryRow(ctx,
			"SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'",
			table).Scan(&dim)
		if err != nil {
			return fmt.Errorf("failed to check vector dimension of %s: %w", table, err)
		}
		if dim != s.dim {
			return fmt.Errorf("%w: %s.embedding is vector(%d), expected vector(%d)", ErrSchemaMismatch, table, dim, s.dim)
		}
	}

	return nil
}

// --- content zone ---

func (s *Postgres) GetFrame(ctx context.Context, frameID string) (*models.Frame, error) {
	var f models.Frame
	err := s.pool.QueryRow(ctx,
		`SELECT id, frame_id, folder_name, file_name, image_url, created_at
		FROM frames WHERE frame_id = $1`,
		frameID).Scan(&f.ID, &f.FrameID, &f.FolderName, &f.FileName, &f.ImageURL, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("frame %s: %w", frameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame %s: %w", frameID, err)
	}
	return &f, nil
}

func (s *Postgres) InsertFrame(ctx context.Context, f *models.Frame) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO frames (frame_id, folder_name, file_name, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		f.FrameID, f.FolderName, f.FileName, f.ImageURL, f.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame %s: %w", f.FrameID, err)
	}
	return id, nil
}

func (s *Postgres) UpdateFrame(ctx context.Context, frameID, fileName, imageURL string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE frames SET file_name = $2, image_url = $3 WHERE frame_id = $1",
		frameID, fileName, imageURL)
	if err != nil {
		return fmt.Errorf("failed to update frame %s: %w", frameID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("frame %s: %w", frameID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListFrames(ctx context.Context) ([]models.Frame, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, frame_id, folder_name, file_name, image_url, created_at
		FROM frames ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer rows.Close()

	var frames []models.Frame
	for rows.Next() {
		var f models.Frame
		if err := rows.Scan(&f.ID, &f.FrameID, &f.FolderName, &f.FileName, &f.ImageURL, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// --- metadata zone: frame details ---

func (s *Postgres) GetFrameDetail(ctx context.Context, frameID string) (*models.FrameDetail, error) {
	var (
		d       models.FrameDetail
		details []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT frame_id, reference_id, description, summary, tools_used, actions_performed,
		technical_details, workflow_stage, context_relationship, tags, ocr_data, created_at, updated_at
		FROM frame_details WHERE frame_id = $1`,
		frameID).Scan(&d.FrameID, &d.ReferenceID, &d.Description, &d.Summary, &d.ToolsUsed,
		&d.ActionsPerformed, &details, &d.WorkflowStage, &d.ContextRelationship, &d.Tags,
		&d.OCRData, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("frame detail %s: %w", frameID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame detail %s: %w", frameID, err)
	}
	if d.TechnicalDetails, err = unmarshalDocument(details); err != nil {
		return nil, fmt.Errorf("frame detail %s: %w", frameID, err)
	}
	return &d, nil
}

func (s *Postgres) InsertFrameDetail(ctx context.Context, d *models.FrameDetail) error {
	details, err := marshalDocument(d.TechnicalDetails)
	if err != nil {
		return fmt.Errorf("frame detail %s: %w", d.FrameID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO frame_details
		(frame_id, reference_id, description, summary, tools_used, actions_performed,
		technical_details, workflow_stage, context_relationship, tags, ocr_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.FrameID, d.ReferenceID, d.Description, d.Summary, d.ToolsUsed, d.ActionsPerformed,
		details, d.WorkflowStage, d.ContextRelationship, d.Tags, d.OCRData, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert frame detail %s: %w", d.FrameID, err)
	}
	return nil
}

func (s *Postgres) UpdateFrameDetail(ctx context.Context, d *models.FrameDetail) error {
	details, err := marshalDocument(d.TechnicalDetails)
	if err != nil {
		return fmt.Errorf("frame detail %s: %w", d.FrameID, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE frame_details SET
		reference_id = $2, description = $3, summary = $4, tools_used = $5, actions_performed = $6,
		technical_details = $7, workflow_stage = $8, context_relationship = $9, tags = $10,
		ocr_data = $11, updated_at = $12
		WHERE frame_id = $1`,
		d.FrameID, d.ReferenceID, d.Description, d.Summary, d.ToolsUsed, d.ActionsPerformed,
		details, d.WorkflowStage, d.ContextRelationship, d.Tags, d.OCRData, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update frame detail %s: %w", d.FrameID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("frame detail %s: %w", d.FrameID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListFrameDetails(ctx context.Context) ([]models.FrameDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_id, reference_id, description, summary, tools_used, actions_performed,
		technical_details, workflow_stage, context_relationship, tags, ocr_data, created_at, updated_at
		FROM frame_details ORDER BY frame_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list frame details: %w", err)
	}
	defer rows.Close()

	var out []models.FrameDetail
	for rows.Next() {
		var (
			d       models.FrameDetail
			details []byte
		)
		if err := rows.Scan(&d.FrameID, &d.ReferenceID, &d.Description, &d.Summary, &d.ToolsUsed,
			&d.ActionsPerformed, &details, &d.WorkflowStage, &d.ContextRelationship, &d.Tags,
			&d.OCRData, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan frame detail: %w", err)
		}
		if d.TechnicalDetails, err = unmarshalDocument(details); err != nil {
			return nil, fmt.Errorf("frame detail %s: %w", d.FrameID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- metadata zone: chunks ---

const chunkColumns = `chunk_id, frame_id, reference_id, chunk_index, description, summary,
	technical_details, workflow_stage, tags, ocr_data, created_at`

func scanChunk(row pgx.Row) (*models.Chunk, error) {
	var (
		c       models.Chunk
		details []byte
	)
	err := row.Scan(&c.ChunkID, &c.FrameID, &c.ReferenceID, &c.ChunkIndex, &c.Description,
		&c.Summary, &details, &c.WorkflowStage, &c.Tags, &c.OCRData, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.TechnicalDetails, err = unmarshalDocument(details); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Postgres) GetChunk(ctx context.Context, chunkID uuid.UUID) (*models.Chunk, error) {
	c, err := scanChunk(s.pool.QueryRow(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE chunk_id = $1", chunkID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", chunkID, err)
	}
	return c, nil
}

func (s *Postgres) GetChunkByReference(ctx context.Context, referenceID string) (*models.Chunk, error) {
	c, err := scanChunk(s.pool.QueryRow(ctx,
		"SELECT "+chunkColumns+" FROM chunks WHERE reference_id = $1", referenceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", referenceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", referenceID, err)
	}
	return c, nil
}

func (s *Postgres) InsertChunk(ctx context.Context, c *models.Chunk) error {
	details, err := marshalDocument(c.TechnicalDetails)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", c.ReferenceID, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chunks
		(chunk_id, frame_id, reference_id, chunk_index, description, summary,
		technical_details, workflow_stage, tags, ocr_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ChunkID, c.FrameID, c.ReferenceID, c.ChunkIndex, c.Description, c.Summary,
		details, c.WorkflowStage, c.Tags, c.OCRData, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chunk %s: %w", c.ReferenceID, err)
	}
	return nil
}

func (s *Postgres) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+chunkColumns+" FROM chunks ORDER BY frame_id, chunk_index")
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// --- metadata zone: processing records ---

const recordColumns = `id, frame_id, chunk_id, airtable_record_id, processing_status,
	chunk_type, chunk_format, processing_metadata, processing_timestamp`

func (s *Postgres) queryRecords(ctx context.Context, query string, args ...any) ([]models.ProcessingRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing records: %w", err)
	}
	defer rows.Close()

	var out []models.ProcessingRecord
	for rows.Next() {
		var (
			r    models.ProcessingRecord
			meta []byte
		)
		if err := rows.Scan(&r.ID, &r.FrameID, &r.ChunkID, &r.AirtableRecordID, &r.ProcessingStatus,
			&r.ChunkType, &r.ChunkFormat, &meta, &r.ProcessingTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan processing record: %w", err)
		}
		if r.ProcessingMetadata, err = unmarshalDocument(meta); err != nil {
			return nil, fmt.Errorf("processing record %d: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) ListProcessingRecords(ctx context.Context, frameID string, chunkID uuid.UUID) ([]models.ProcessingRecord, error) {
	return s.queryRecords(ctx,
		"SELECT "+recordColumns+" FROM processing_records WHERE frame_id = $1 AND chunk_id = $2 ORDER BY id",
		frameID, chunkID)
}

func (s *Postgres) ListAllProcessingRecords(ctx context.Context) ([]models.ProcessingRecord, error) {
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM processing_records ORDER BY id")
}

func (s *Postgres) InsertProcessingRecord(ctx context.Context, r *models.ProcessingRecord) error {
	meta, err := marshalDocument(r.ProcessingMetadata)
	if err != nil {
		return fmt.Errorf("processing record for chunk %s: %w", r.ChunkID, err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO processing_records
		(frame_id, chunk_id, airtable_record_id, processing_status, chunk_type, chunk_format,
		processing_metadata, processing_timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		r.FrameID, r.ChunkID, r.AirtableRecordID, r.ProcessingStatus, r.ChunkType, r.ChunkFormat,
		meta, r.ProcessingTimestamp).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert processing record for chunk %s: %w", r.ChunkID, err)
	}
	return nil
}

// --- embeddings zone ---

const embeddingColumns = `embedding_id, reference_id, reference_type, chunk_id, text_content,
	image_url, embedding, model_name, created_at, updated_at`

func scanEmbedding(row pgx.Row) (*models.Embedding, error) {
	var (
		e       models.Embedding
		chunkID *uuid.UUID
		vec     pgvector.Vector
	)
	err := row.Scan(&e.EmbeddingID, &e.ReferenceID, &e.ReferenceType, &chunkID, &e.TextContent,
		&e.ImageURL, &vec, &e.ModelName, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if chunkID != nil {
		e.ChunkID = uuid.NullUUID{UUID: *chunkID, Valid: true}
	}
	e.Vector = vec.Slice()
	return &e, nil
}

func (s *Postgres) listEmbeddings(ctx context.Context, query string, args ...any) ([]models.Embedding, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Postgres) ListEmbeddingsByChunk(ctx context.Context, chunkID uuid.UUID) ([]models.Embedding, error) {
	return s.listEmbeddings(ctx,
		"SELECT "+embeddingColumns+" FROM chunk_embeddings WHERE chunk_id = $1 ORDER BY created_at, embedding_id",
		chunkID)
}

func (s *Postgres) ListEmbeddings(ctx context.Context) ([]models.Embedding, error) {
	return s.listEmbeddings(ctx,
		"SELECT "+embeddingColumns+" FROM chunk_embeddings ORDER BY created_at, embedding_id")
}

func (s *Postgres) InsertEmbedding(ctx context.Context, e *models.Embedding) error {
	var chunkID any
	if e.ChunkID.Valid {
		chunkID = e.ChunkID.UUID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chunk_embeddings
		(embedding_id, reference_id, reference_type, chunk_id, text_content, image_url,
		embedding, model_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.EmbeddingID, e.ReferenceID, e.ReferenceType, chunkID, e.TextContent, e.ImageURL,
		pgvector.NewVector(e.Vector), e.ModelName, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert embedding %s: %w", e.ReferenceID, err)
	}
	return nil
}

func (s *Postgres) UpdateEmbeddingReference(ctx context.Context, embeddingID uuid.UUID, referenceID string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE chunk_embeddings SET reference_id = $2, updated_at = now() WHERE embedding_id = $1",
		embeddingID, referenceID)
	if err != nil {
		return fmt.Errorf("failed to update embedding %s: %w", embeddingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("embedding %s: %w", embeddingID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) DeleteEmbedding(ctx context.Context, embeddingID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM chunk_embeddings WHERE embedding_id = $1", embeddingID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding %s: %w", embeddingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("embedding %s: %w", embeddingID, ErrNotFound)
	}
	return nil
}

func (s *Postgres) ListLegacyEmbeddings(ctx context.Context) ([]models.LegacyEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT embedding_id, reference_id, reference_type, text_content, image_url,
		embedding, model_name, created_at
		FROM legacy_embeddings ORDER BY created_at, embedding_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.LegacyEmbedding
	for rows.Next() {
		var (
			e   models.LegacyEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&e.EmbeddingID, &e.ReferenceID, &e.ReferenceType, &e.TextContent,
			&e.ImageURL, &vec, &e.ModelName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan legacy embedding: %w", err)
		}
		e.Vector = vec.Slice()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) UpdateLegacyReference(ctx context.Context, embeddingID uuid.UUID, referenceID string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE legacy_embeddings SET reference_id = $2 WHERE embedding_id = $1",
		embeddingID, referenceID)
	if err != nil {
		return fmt.Errorf("failed to update legacy embedding %s: %w", embeddingID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("legacy embedding %s: %w", embeddingID, ErrNotFound)
	}
	return nil
}

// --- document helpers ---

func marshalDocument(d models.Document) ([]byte, error) {
	if d == nil {
		d = models.Document{}
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return b, nil
}

func unmarshalDocument(b []byte) (models.Document, error) {
	if len(b) == 0 {
		return models.Document{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return models.NormalizeDocument(m), nil
}

// InitSchema creates the vector extension and all zone tables if they
// don't exist. dim is the embedding dimension baked into the vector
// columns.
func InitSchema(ctx context.Context, config PostgresConfig, dim int) error {
	conn, err := pgx.Connect(ctx, config.connString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}
	if !exists {
		if _, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            frame_id VARCHAR(255) NOT NULL,
            folder_name VARCHAR(255) NOT NULL,
            file_name VARCHAR(255) NOT NULL,
            image_url TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(frame_id)
        );

        CREATE TABLE IF NOT EXISTS frame_details (
            frame_id VARCHAR(255) PRIMARY KEY REFERENCES frames(frame_id) ON DELETE CASCADE,
            reference_id VARCHAR(255) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            summary TEXT NOT NULL DEFAULT '',
            tools_used TEXT[] NOT NULL DEFAULT '{}',
            actions_performed TEXT[] NOT NULL DEFAULT '{}',
            technical_details JSONB NOT NULL DEFAULT '{}',
            workflow_stage VARCHAR(64) NOT NULL DEFAULT 'initial',
            context_relationship TEXT NOT NULL DEFAULT '',
            tags TEXT[] NOT NULL DEFAULT '{}',
            ocr_data TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS chunks (
            chunk_id UUID PRIMARY KEY,
            frame_id VARCHAR(255) NOT NULL REFERENCES frames(frame_id) ON DELETE CASCADE,
            reference_id VARCHAR(255) NOT NULL,
            chunk_index INTEGER NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            summary TEXT NOT NULL DEFAULT '',
            technical_details JSONB NOT NULL DEFAULT '{}',
            workflow_stage VARCHAR(64) NOT NULL DEFAULT 'initial',
            tags TEXT[] NOT NULL DEFAULT '{}',
            ocr_data TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(reference_id)
        );

        CREATE TABLE IF NOT EXISTS processing_records (
            id SERIAL PRIMARY KEY,
            frame_id VARCHAR(255) NOT NULL,
            chunk_id UUID NOT NULL,
            airtable_record_id VARCHAR(255) NOT NULL DEFAULT '',
            processing_status VARCHAR(32) NOT NULL DEFAULT 'pending',
            chunk_type VARCHAR(64) NOT NULL DEFAULT 'text',
            chunk_format VARCHAR(64) NOT NULL DEFAULT 'plain',
            processing_metadata JSONB NOT NULL DEFAULT '{}',
            processing_timestamp TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS chunk_embeddings (
            embedding_id UUID PRIMARY KEY,
            reference_id VARCHAR(255) NOT NULL,
            reference_type VARCHAR(16) NOT NULL,
            chunk_id UUID,
            text_content TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            embedding vector(%d),
            model_name VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );

        CREATE TABLE IF NOT EXISTS legacy_embeddings (
            embedding_id UUID PRIMARY KEY,
            reference_id VARCHAR(255) NOT NULL,
            reference_type VARCHAR(16) NOT NULL,
            text_content TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            embedding vector(%d),
            model_name VARCHAR(255) NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );
    `, dim, dim))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_folder ON frames(folder_name);
        CREATE INDEX IF NOT EXISTS idx_frame_details_reference ON frame_details(reference_id);
        CREATE INDEX IF NOT EXISTS idx_chunks_frame_id ON chunks(frame_id);
        CREATE INDEX IF NOT EXISTS idx_processing_records_chunk ON processing_records(frame_id, chunk_id);
        CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_chunk ON chunk_embeddings(chunk_id);
        CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_reference ON chunk_embeddings(reference_id);
        CREATE INDEX IF NOT EXISTS idx_embedding_vector ON chunk_embeddings USING ivfflat (embedding vector_l2_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
