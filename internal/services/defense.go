package services

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vivavoce/defense-backend/internal/chunker"
	"github.com/vivavoce/defense-backend/internal/data/repos"
	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	"github.com/vivavoce/defense-backend/internal/pkg/envutil"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/rediscache"
)

// DefenseService owns the session lifecycle: preparing a document for
// defense, reporting status while ingestion runs, and tearing a session
// down.
type DefenseService interface {
	// Prepare persists the document and session records, kicks off the
	// ingestion pipeline in the background, and returns immediately with
	// the session still in preparing. Callers poll status until ready.
	Prepare(ctx context.Context, ownerUserID uuid.UUID, filename string, data []byte, title string) (*types.DefenseSession, error)

	GetSession(ctx context.Context, sessionID, ownerUserID uuid.UUID) (*types.DefenseSession, error)
	ListSessions(ctx context.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error)
	SessionStatus(ctx context.Context, sessionID, ownerUserID uuid.UUID) (string, error)

	// CompleteSession ends the defense. Completed is terminal; later
	// transcript appends no longer move the status.
	CompleteSession(ctx context.Context, sessionID, ownerUserID uuid.UUID) error

	// Teardown deletes the session's chunks before the session row, so
	// a concurrent reader never observes a session without its chunks.
	Teardown(ctx context.Context, sessionID, ownerUserID uuid.UUID) error
}

type defenseService struct {
	log         *logger.Logger
	documents   repos.DocumentRepo
	sessions    repos.DefenseSessionRepo
	rag         RAGService
	extract     TextExtractService
	embedder    EmbeddingService
	vectors     VectorService
	statusCache rediscache.StatusCache

	prepareTimeout time.Duration
}

func NewDefenseService(
	log *logger.Logger,
	documents repos.DocumentRepo,
	sessions repos.DefenseSessionRepo,
	rag RAGService,
	extract TextExtractService,
	embedder EmbeddingService,
	vectors VectorService,
	statusCache rediscache.StatusCache,
) (DefenseService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if documents == nil || sessions == nil || rag == nil || extract == nil || embedder == nil || vectors == nil {
		return nil, fmt.Errorf("missing defense service deps")
	}
	if statusCache == nil {
		statusCache = rediscache.NoopStatusCache{}
	}
	return &defenseService{
		log:            log.With("service", "DefenseService"),
		documents:      documents,
		sessions:       sessions,
		rag:            rag,
		extract:        extract,
		embedder:       embedder,
		vectors:        vectors,
		statusCache:    statusCache,
		prepareTimeout: envutil.Duration("PREPARE_TIMEOUT", 10*time.Minute),
	}, nil
}

func (s *defenseService) Prepare(ctx context.Context, ownerUserID uuid.UUID, filename string, data []byte, title string) (*types.DefenseSession, error) {
	if ownerUserID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	filename = strings.TrimSpace(filename)
	if filename == "" || len(data) == 0 {
		return nil, fmt.Errorf("prepare: %w: file required", pkgerrors.ErrInvalidArgument)
	}

	dbc := dbctx.Context{Ctx: ctx}

	doc, err := s.documents.Create(dbc, &types.Document{
		OwnerUserID:  ownerUserID,
		OriginalName: filename,
		MimeType:     mime.TypeByExtension(filepath.Ext(filename)),
		SizeBytes:    int64(len(data)),
		Status:       types.DocumentStatusProcessing,
	})
	if err != nil {
		return nil, fmt.Errorf("prepare: create document: %w", err)
	}

	sessionTitle := strings.TrimSpace(title)
	if sessionTitle == "" {
		sessionTitle = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	session, err := s.rag.CreateSession(dbc, ownerUserID, doc.ID, sessionTitle)
	if err != nil {
		return nil, fmt.Errorf("prepare: create session: %w", err)
	}

	s.statusCache.SetStatus(ctx, ownerUserID, session.ID, string(types.SessionStatusPreparing))

	// The upload response does not wait for ingestion. The pipeline runs
	// detached with its own deadline; callers poll session status.
	go s.runPipeline(doc.ID, session.ID, ownerUserID, filename, data)

	return session, nil
}

func (s *defenseService) runPipeline(documentID, sessionID, ownerUserID uuid.UUID, filename string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), s.prepareTimeout)
	defer cancel()
	dbc := dbctx.Context{Ctx: ctx}

	log := s.log.With("document_id", documentID.String(), "session_id", sessionID.String())

	fail := func(stage string, err error) {
		log.Error("session preparation failed", "stage", stage, "error", err)
		msg := fmt.Sprintf("%s: %v", stage, err)
		if mErr := s.documents.MarkFailed(dbc, documentID, msg); mErr != nil {
			log.Error("could not mark document failed", "error", mErr)
		}
		// The session stays in preparing; callers treat a session stuck
		// there as failed and may delete and retry.
	}

	text, err := s.extract.Extract(ctx, filename, data)
	if err != nil {
		fail("extract", err)
		return
	}

	chunks := chunker.SplitSpans(text, chunker.DefaultMaxSize, chunker.DefaultOverlap)
	if len(chunks) == 0 {
		fail("chunk", fmt.Errorf("document produced no chunks"))
		return
	}
	log.Info("document chunked", "chunks", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		fail("embed", err)
		return
	}

	if _, err := s.vectors.StoreChunks(dbc, StoreScope{
		DocumentID:  documentID,
		OwnerUserID: ownerUserID,
		SessionID:   sessionID,
	}, chunks, vectors); err != nil {
		fail("store", err)
		return
	}

	if err := s.sessions.MarkReady(dbc, sessionID, len(chunks)); err != nil {
		fail("finalize", err)
		return
	}
	if err := s.documents.MarkCompleted(dbc, documentID); err != nil {
		fail("finalize", err)
		return
	}

	s.statusCache.SetStatus(ctx, ownerUserID, sessionID, string(types.SessionStatusReady))
	log.Info("defense session ready", "total_chunks", len(chunks))
}

func (s *defenseService) GetSession(ctx context.Context, sessionID, ownerUserID uuid.UUID) (*types.DefenseSession, error) {
	return s.sessions.GetByID(dbctx.Context{Ctx: ctx}, sessionID, ownerUserID)
}

func (s *defenseService) ListSessions(ctx context.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error) {
	return s.sessions.ListByOwner(dbctx.Context{Ctx: ctx}, ownerUserID)
}

func (s *defenseService) SessionStatus(ctx context.Context, sessionID, ownerUserID uuid.UUID) (string, error) {
	if status, ok := s.statusCache.GetStatus(ctx, ownerUserID, sessionID); ok {
		return status, nil
	}
	session, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, sessionID, ownerUserID)
	if err != nil {
		return "", err
	}
	s.statusCache.SetStatus(ctx, ownerUserID, sessionID, string(session.Status))
	return string(session.Status), nil
}

func (s *defenseService) CompleteSession(ctx context.Context, sessionID, ownerUserID uuid.UUID) error {
	if err := s.sessions.Complete(dbctx.Context{Ctx: ctx}, sessionID, ownerUserID); err != nil {
		return err
	}
	s.statusCache.SetStatus(ctx, ownerUserID, sessionID, string(types.SessionStatusCompleted))
	return nil
}

func (s *defenseService) Teardown(ctx context.Context, sessionID, ownerUserID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}

	// Ownership check up front; a wrong owner reads as not found.
	if _, err := s.sessions.GetByID(dbc, sessionID, ownerUserID); err != nil {
		return err
	}

	deleted, err := s.vectors.DeleteSession(dbc, sessionID)
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}

	if err := s.sessions.Delete(dbc, sessionID, ownerUserID); err != nil {
		return fmt.Errorf("teardown: delete session: %w", err)
	}

	s.statusCache.Invalidate(ctx, ownerUserID, sessionID)
	s.log.Info("session torn down",
		"session_id", sessionID.String(),
		"chunks_deleted", deleted,
	)
	return nil
}
