package defense

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Session status values. Transitions only move forward: preparing → ready →
// in_progress → completed. Nothing ever returns to preparing.
const (
	SessionStatusPreparing  = "preparing"
	SessionStatusReady      = "ready"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type DefenseSession struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	DocumentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Title  string `gorm:"column:title;not null" json:"title"`
	Status string `gorm:"column:status;not null;default:'preparing';index" json:"status"`

	// TotalChunks is written once, when chunking+embedding+storage succeeds.
	TotalChunks int `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`

	// Transcript is an append-only jsonb array of ConversationMessage.
	// Full history is kept for display; only a bounded suffix ever enters
	// a prompt.
	Transcript datatypes.JSON `gorm:"type:jsonb;column:transcript;not null;default:'[]'" json:"transcript"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DefenseSession) TableName() string { return "defense_session" }

type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Messages decodes the stored transcript. A corrupt transcript is treated
// as empty rather than failing a read path.
func (s *DefenseSession) Messages() []ConversationMessage {
	if len(s.Transcript) == 0 {
		return nil
	}
	var out []ConversationMessage
	if err := json.Unmarshal(s.Transcript, &out); err != nil {
		return nil
	}
	return out
}
