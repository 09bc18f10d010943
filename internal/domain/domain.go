package domain

import (
	"github.com/vivavoce/defense-backend/internal/domain/defense"
	"github.com/vivavoce/defense-backend/internal/domain/materials"
)

type Document = materials.Document

type DefenseSession = defense.DefenseSession
type DocumentChunk = defense.DocumentChunk
type ConversationMessage = defense.ConversationMessage
type RetrievalResult = defense.RetrievalResult

const (
	DocumentStatusProcessing = materials.DocumentStatusProcessing
	DocumentStatusCompleted  = materials.DocumentStatusCompleted
	DocumentStatusFailed     = materials.DocumentStatusFailed

	SessionStatusPreparing  = defense.SessionStatusPreparing
	SessionStatusReady      = defense.SessionStatusReady
	SessionStatusInProgress = defense.SessionStatusInProgress
	SessionStatusCompleted  = defense.SessionStatusCompleted

	RoleUser      = defense.RoleUser
	RoleAssistant = defense.RoleAssistant
)
