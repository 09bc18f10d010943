package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vivavoce/defense-backend/internal/data/repos"
	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/openai"
	"github.com/vivavoce/defense-backend/internal/platform/rediscache"
)

const (
	// historyWindow is how many trailing transcript messages ride along
	// on each turn for continuity.
	historyWindow = 6

	chatTopK    = 5
	openingTopK = 3

	// openingQuery stands in for a user utterance when generating the
	// opening question: there is no student input yet, so retrieval is
	// seeded with a generic probe for the document's framing.
	openingQuery = "main topic thesis introduction purpose"

	fallbackReply   = "I couldn't generate a response. Please try again."
	fallbackOpening = "Please summarize your thesis and explain why this topic is significant."
)

const examinerPersona = `You are a STRICT PROFESSOR conducting an oral thesis defense examination.

YOUR ROLE:
- You are evaluating a student who has submitted their thesis/report
- Ask probing, challenging questions about their work
- Do NOT accept vague or incomplete answers
- Push the student to demonstrate deep understanding
- Reference specific parts of their document when questioning

YOUR BEHAVIOR:
- Be formal and professional
- Ask ONE focused question at a time
- If the student's answer is weak, point out the weakness and ask for clarification
- Occasionally acknowledge good answers briefly, then move to harder questions
- Use phrases like "Explain further...", "What evidence supports...", "How does this relate to..."

CRITICAL RULES:
- ONLY ask questions about topics that appear in the provided document context
- If asked about something NOT in the document, say "That topic is not covered in your submitted document. Let's focus on what you've written."
- Keep responses concise (2-4 sentences max)
- Always end with a question to keep the defense going

LANGUAGE: Respond in the same language the student uses.`

// ChatResult is one completed turn: the examiner's reply plus the
// document excerpts it was grounded on.
type ChatResult struct {
	Response         string   `json:"response"`
	RetrievedContext []string `json:"retrievedContext"`
}

type RAGService interface {
	CreateSession(dbc dbctx.Context, ownerUserID, documentID uuid.UUID, title string) (*types.DefenseSession, error)
	GetSession(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID) (*types.DefenseSession, error)
	ListSessions(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error)

	// Chat runs one defense turn: retrieve, generate, persist the
	// user/assistant pair. A failed generation leaves the transcript
	// untouched so the caller can resubmit the same input.
	Chat(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID, userMessage string) (ChatResult, error)

	// StartDefense generates the examiner's opening question and
	// appends only the assistant message.
	StartDefense(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID) (ChatResult, error)
}

type ragService struct {
	log         *logger.Logger
	sessionRepo repos.DefenseSessionRepo
	vectors     VectorService
	ai          openai.Client
	statusCache rediscache.StatusCache
}

func NewRAGService(
	log *logger.Logger,
	sessionRepo repos.DefenseSessionRepo,
	vectors VectorService,
	ai openai.Client,
	statusCache rediscache.StatusCache,
) (RAGService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sessionRepo == nil {
		return nil, fmt.Errorf("session repo required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector service required")
	}
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	if statusCache == nil {
		statusCache = rediscache.NoopStatusCache{}
	}
	return &ragService{
		log:         log.With("service", "RAGService"),
		sessionRepo: sessionRepo,
		vectors:     vectors,
		ai:          ai,
		statusCache: statusCache,
	}, nil
}

func (s *ragService) CreateSession(dbc dbctx.Context, ownerUserID, documentID uuid.UUID, title string) (*types.DefenseSession, error) {
	if ownerUserID == uuid.Nil || documentID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	return s.sessionRepo.Create(dbc, &types.DefenseSession{
		OwnerUserID: ownerUserID,
		DocumentID:  documentID,
		Title:       strings.TrimSpace(title),
		Status:      types.SessionStatusPreparing,
	})
}

func (s *ragService) GetSession(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID) (*types.DefenseSession, error) {
	return s.sessionRepo.GetByID(dbc, sessionID, ownerUserID)
}

func (s *ragService) ListSessions(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.DefenseSession, error) {
	return s.sessionRepo.ListByOwner(dbc, ownerUserID)
}

func (s *ragService) Chat(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID, userMessage string) (ChatResult, error) {
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return ChatResult{}, fmt.Errorf("chat: %w: empty message", pkgerrors.ErrInvalidArgument)
	}

	session, err := s.sessionRepo.GetByID(dbc, sessionID, ownerUserID)
	if err != nil {
		return ChatResult{}, err
	}
	if session.Status == types.SessionStatusPreparing {
		return ChatResult{}, pkgerrors.ErrSessionNotReady
	}

	results, err := s.vectors.SearchByText(dbc, sessionID, userMessage, chatTopK)
	if err != nil {
		return ChatResult{}, fmt.Errorf("chat retrieval: %w", err)
	}
	excerpts := contents(results)

	var prompt strings.Builder
	prompt.WriteString(excerptBlock(excerpts))
	prompt.WriteString(historyBlock(session.Messages()))
	prompt.WriteString("\n\nSTUDENT'S CURRENT RESPONSE: ")
	prompt.WriteString(userMessage)
	prompt.WriteString("\n\nYOUR REPLY (as the Strict Professor):")

	reply, err := s.ai.GenerateChat(dbc.Ctx, examinerPersona, []openai.ChatMessage{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		// Transcript stays untouched, the caller may retry the turn.
		return ChatResult{}, fmt.Errorf("chat generation: %w: %w", pkgerrors.ErrUpstream, err)
	}
	if reply == "" {
		reply = fallbackReply
	}

	now := time.Now().UTC()
	pair := []types.ConversationMessage{
		{Role: types.RoleUser, Content: userMessage, Timestamp: now},
		{Role: types.RoleAssistant, Content: reply, Timestamp: now},
	}
	if err := s.sessionRepo.AppendTranscript(dbc, sessionID, pair); err != nil {
		return ChatResult{}, fmt.Errorf("chat persist: %w", err)
	}
	// The append may have moved the status; drop any cached value so
	// pollers read the fresh row.
	s.statusCache.Invalidate(dbc.Ctx, ownerUserID, sessionID)

	return ChatResult{Response: reply, RetrievedContext: excerpts}, nil
}

func (s *ragService) StartDefense(dbc dbctx.Context, sessionID, ownerUserID uuid.UUID) (ChatResult, error) {
	session, err := s.sessionRepo.GetByID(dbc, sessionID, ownerUserID)
	if err != nil {
		return ChatResult{}, err
	}
	if session.Status == types.SessionStatusPreparing {
		return ChatResult{}, pkgerrors.ErrSessionNotReady
	}

	results, err := s.vectors.SearchByText(dbc, sessionID, openingQuery, openingTopK)
	if err != nil {
		return ChatResult{}, fmt.Errorf("opening retrieval: %w", err)
	}
	excerpts := contents(results)

	var prompt strings.Builder
	prompt.WriteString("DOCUMENT CONTEXT:\n")
	if len(excerpts) > 0 {
		prompt.WriteString(strings.Join(excerpts, "\n\n"))
	} else {
		prompt.WriteString("[No specific context found for this query]")
	}
	prompt.WriteString("\n\nGenerate an opening question for this oral defense. The question should:\n")
	prompt.WriteString("1. Be challenging but fair\n")
	prompt.WriteString("2. Focus on a key aspect of the student's work\n")
	prompt.WriteString("3. Set the tone for a rigorous academic defense\n")
	prompt.WriteString("\nYOUR OPENING QUESTION:")

	reply, err := s.ai.GenerateChat(dbc.Ctx, examinerPersona, []openai.ChatMessage{
		{Role: "user", Content: prompt.String()},
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("opening generation: %w: %w", pkgerrors.ErrUpstream, err)
	}
	if reply == "" {
		reply = fallbackOpening
	}

	opening := []types.ConversationMessage{
		{Role: types.RoleAssistant, Content: reply, Timestamp: time.Now().UTC()},
	}
	if err := s.sessionRepo.AppendTranscript(dbc, sessionID, opening); err != nil {
		return ChatResult{}, fmt.Errorf("opening persist: %w", err)
	}
	s.statusCache.Invalidate(dbc.Ctx, ownerUserID, sessionID)

	return ChatResult{Response: reply, RetrievedContext: excerpts}, nil
}

func contents(results []types.RetrievalResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Content)
	}
	return out
}

// excerptBlock labels each retrieved excerpt by index; an explicit
// no-context marker steers the model to deflect instead of improvise.
func excerptBlock(excerpts []string) string {
	if len(excerpts) == 0 {
		return "\n\n[No specific context found for this query]"
	}
	var b strings.Builder
	b.WriteString("\n\nRELEVANT DOCUMENT EXCERPTS:\n")
	for i, c := range excerpts {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, c)
	}
	return b.String()
}

func historyBlock(msgs []types.ConversationMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	if len(msgs) > historyWindow {
		msgs = msgs[len(msgs)-historyWindow:]
	}
	var b strings.Builder
	b.WriteString("\n\nPREVIOUS CONVERSATION:\n")
	for i, m := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.ToUpper(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
