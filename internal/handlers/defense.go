package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/services"
)

// maxUploadBytes bounds the document upload. Plain-text theses are small;
// anything beyond this is almost certainly the wrong file.
const maxUploadBytes = 10 << 20

type DefenseHandler struct {
	log     *logger.Logger
	defense services.DefenseService
	rag     services.RAGService
}

func NewDefenseHandler(log *logger.Logger, defense services.DefenseService, rag services.RAGService) *DefenseHandler {
	return &DefenseHandler{
		log:     log.With("handler", "DefenseHandler"),
		defense: defense,
		rag:     rag,
	}
}

// ownerID reads the caller identity placed by the identity middleware (or,
// absent one, the X-User-ID header directly).
func ownerID(c *gin.Context) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
	if raw == "" {
		RespondError(c, http.StatusUnauthorized, "missing_identity", fmt.Errorf("X-User-ID header required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "invalid_identity", fmt.Errorf("X-User-ID must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_session_id", fmt.Errorf("session id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/defense/sessions
// Multipart upload: "file" (required) and "title" (optional). Responds 202
// with the preparing session; callers poll status until ready.
func (h *DefenseHandler) CreateSession(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", fmt.Errorf("multipart field 'file' required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("upload exceeds %d bytes", maxUploadBytes))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "unreadable_file", err)
		return
	}
	if len(data) > maxUploadBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large", fmt.Errorf("upload exceeds %d bytes", maxUploadBytes))
		return
	}

	session, err := h.defense.Prepare(c.Request.Context(), owner, fileHeader.Filename, data, c.PostForm("title"))
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": session})
}

// GET /api/defense/sessions
func (h *DefenseHandler) ListSessions(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	sessions, err := h.defense.ListSessions(c.Request.Context(), owner)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/defense/sessions/:id
func (h *DefenseHandler) GetSession(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.defense.GetSession(c.Request.Context(), id, owner)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// GET /api/defense/sessions/:id/status
// Cache-backed; cheap enough to poll while preparation runs.
func (h *DefenseHandler) SessionStatus(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	status, err := h.defense.SessionStatus(c.Request.Context(), id, owner)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": status})
}

// POST /api/defense/sessions/:id/start
func (h *DefenseHandler) StartDefense(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	res, err := h.rag.StartDefense(dbctx.Context{Ctx: c.Request.Context()}, id, owner)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

// POST /api/defense/sessions/:id/chat
func (h *DefenseHandler) Chat(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	res, err := h.rag.Chat(dbctx.Context{Ctx: c.Request.Context()}, id, owner, req.Message)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, res)
}

// POST /api/defense/sessions/:id/complete
func (h *DefenseHandler) CompleteSession(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.defense.CompleteSession(c.Request.Context(), id, owner); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "completed"})
}

// DELETE /api/defense/sessions/:id
func (h *DefenseHandler) DeleteSession(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		return
	}
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.defense.Teardown(c.Request.Context(), id, owner); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
