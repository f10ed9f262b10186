package models

import (
	"time"

	"github.com/google/uuid"
)

// Processing statuses for a chunk's ledger entry.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusMigrated  = "migrated"
)

// Workflow stages for frame and chunk metadata.
const (
	StageInitial           = "initial"
	StageLLMProcessed      = "llm_processed"
	StageAirtableProcessed = "airtable_processed"
	StageMigrated          = "migrated"
)

// Reference types carried by embedding rows.
const (
	RefTypeFrame = "frame"
	RefTypeChunk = "chunk"
)

// Frame is one source image in the content zone.
type Frame struct {
	ID         int64
	FrameID    string
	FolderName string
	FileName   string
	ImageURL   string
	CreatedAt  time.Time
}

// FrameDetail is the 1:1 descriptive record for a frame in the
// metadata zone.
type FrameDetail struct {
	FrameID             string
	ReferenceID         string
	Description         string
	Summary             string
	ToolsUsed           []string
	ActionsPerformed    []string
	TechnicalDetails    Document
	WorkflowStage       string
	ContextRelationship string
	Tags                []string
	OCRData             string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FrameDetailPatch is a partial update for a FrameDetail. Nil pointer
// and nil slice/map fields are left untouched.
type FrameDetailPatch struct {
	Description         *string
	Summary             *string
	ToolsUsed           []string
	ActionsPerformed    []string
	TechnicalDetails    Document
	WorkflowStage       *string
	ContextRelationship *string
	Tags                []string
	OCRData             *string
}

// Apply copies the patch's populated fields onto d.
func (p FrameDetailPatch) Apply(d *FrameDetail) {
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.ToolsUsed != nil {
		d.ToolsUsed = p.ToolsUsed
	}
	if p.ActionsPerformed != nil {
		d.ActionsPerformed = p.ActionsPerformed
	}
	if p.TechnicalDetails != nil {
		d.TechnicalDetails = p.TechnicalDetails
	}
	if p.WorkflowStage != nil {
		d.WorkflowStage = *p.WorkflowStage
	}
	if p.ContextRelationship != nil {
		d.ContextRelationship = *p.ContextRelationship
	}
	if p.Tags != nil {
		d.Tags = p.Tags
	}
	if p.OCRData != nil {
		d.OCRData = *p.OCRData
	}
}

// Chunk is a subdivision of a frame's text content in the metadata zone.
type Chunk struct {
	ChunkID          uuid.UUID
	FrameID          string
	ReferenceID      string
	ChunkIndex       int
	Description      string
	Summary          string
	TechnicalDetails Document
	WorkflowStage    string
	Tags             []string
	OCRData          string
	CreatedAt        time.Time
}

// ProcessingRecord is the processing-status ledger entry for a chunk,
// kept separate from the chunk's descriptive content so retries cannot
// corrupt it.
type ProcessingRecord struct {
	ID                  int64
	FrameID             string
	ChunkID             uuid.UUID
	AirtableRecordID    string
	ProcessingStatus    string
	ChunkType           string
	ChunkFormat         string
	ProcessingMetadata  Document
	ProcessingTimestamp time.Time
}

// Embedding is a chunk-aware vector row in the embeddings zone.
type Embedding struct {
	EmbeddingID   uuid.UUID
	ReferenceID   string
	ReferenceType string
	ChunkID       uuid.NullUUID
	TextContent   string
	ImageURL      string
	Vector        []float32
	ModelName     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LegacyEmbedding is an unchunked vector row from the older embeddings
// table: one row per frame (or per ad-hoc chunk), possibly with a
// slash-delimited reference id. Read by the migration procedure.
type LegacyEmbedding struct {
	EmbeddingID   uuid.UUID
	ReferenceID   string
	ReferenceType string
	TextContent   string
	ImageURL      string
	Vector        []float32
	ModelName     string
	CreatedAt     time.Time
}
