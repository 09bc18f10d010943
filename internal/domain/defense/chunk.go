package defense

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// DocumentChunk is one bounded span of a document, the unit of embedding and
// retrieval. Rows are written in bulk during session preparation, never
// mutated, and deleted en masse on teardown. ChunkIndex is strictly
// increasing within a document. Chunks carry both document_id and session_id
// so retrieval can be session-scoped even if a document is ever reused.
type DocumentChunk struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	SessionID   uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	ChunkIndex int    `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string `gorm:"column:content;type:text;not null" json:"content"`
	SpanStart  int    `gorm:"column:span_start;not null;default:0" json:"span_start"`
	SpanEnd    int    `gorm:"column:span_end;not null;default:0" json:"span_end"`

	// Embedding holds the vector as a jsonb float array; its width is the
	// provider's dimensionality and is opaque to this model.
	Embedding datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }

// RetrievalResult is the transient output of a similarity query. It is never
// persisted; it lives for one request/response cycle.
type RetrievalResult struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
