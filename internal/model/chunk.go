package model

import "time"

// Chunk types stored on DocumentChunk.
const (
	ChunkTypeHeader    = "header"
	ChunkTypeTable     = "table"
	ChunkTypeParagraph = "paragraph"
	ChunkTypeTerms     = "terms"
	ChunkTypeMetadata  = "metadata"
)

// DocumentChunk is a bounded span of document text stored for lexical
// retrieval. Chunks are regenerated wholesale when a document is reprocessed.
type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	ChunkType  string `json:"chunk_type"`
	PageNumber *int   `json:"page_number,omitempty"`

	SessionID string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`

	// Denormalized from the owning document for search responses.
	VendorName       string `json:"vendor_name,omitempty"`
	DocumentNumber   string `json:"document_number,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
}
