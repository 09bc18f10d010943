package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/vivavoce/defense-backend/internal/domain"
	"github.com/vivavoce/defense-backend/internal/pkg/dbctx"
	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/services"
)

type stubDefenseService struct {
	statusErr error
	status    string
}

func (s *stubDefenseService) Prepare(context.Context, uuid.UUID, string, []byte, string) (*types.DefenseSession, error) {
	return nil, pkgerrors.ErrInvalidArgument
}

func (s *stubDefenseService) GetSession(context.Context, uuid.UUID, uuid.UUID) (*types.DefenseSession, error) {
	return nil, pkgerrors.ErrNotFound
}

func (s *stubDefenseService) ListSessions(context.Context, uuid.UUID) ([]*types.DefenseSession, error) {
	return nil, nil
}

func (s *stubDefenseService) SessionStatus(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return s.status, s.statusErr
}

func (s *stubDefenseService) CompleteSession(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func (s *stubDefenseService) Teardown(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubRAGService struct {
	chatErr error
}

func (s *stubRAGService) CreateSession(dbctx.Context, uuid.UUID, uuid.UUID, string) (*types.DefenseSession, error) {
	return nil, nil
}

func (s *stubRAGService) GetSession(dbctx.Context, uuid.UUID, uuid.UUID) (*types.DefenseSession, error) {
	return nil, nil
}

func (s *stubRAGService) ListSessions(dbctx.Context, uuid.UUID) ([]*types.DefenseSession, error) {
	return nil, nil
}

func (s *stubRAGService) Chat(dbctx.Context, uuid.UUID, uuid.UUID, string) (services.ChatResult, error) {
	if s.chatErr != nil {
		return services.ChatResult{}, s.chatErr
	}
	return services.ChatResult{Response: "Explain further.", RetrievedContext: []string{"excerpt"}}, nil
}

func (s *stubRAGService) StartDefense(dbctx.Context, uuid.UUID, uuid.UUID) (services.ChatResult, error) {
	return services.ChatResult{}, pkgerrors.ErrSessionNotReady
}

func newTestRouter(t *testing.T, defense services.DefenseService, rag services.RAGService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	h := NewDefenseHandler(log, defense, rag)
	r := gin.New()
	r.GET("/api/defense/sessions/:id/status", h.SessionStatus)
	r.POST("/api/defense/sessions/:id/start", h.StartDefense)
	r.POST("/api/defense/sessions/:id/chat", h.Chat)
	return r
}

func doReq(r *gin.Engine, method, path, owner, body string) *httptest.ResponseRecorder {
	var rdr *strings.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	} else {
		rdr = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rdr)
	if owner != "" {
		req.Header.Set("X-User-ID", owner)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMissingIdentityHeader(t *testing.T) {
	r := newTestRouter(t, &stubDefenseService{status: "ready"}, &stubRAGService{})
	w := doReq(r, http.MethodGet, "/api/defense/sessions/"+uuid.NewString()+"/status", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", w.Code)
	}
	w = doReq(r, http.MethodGet, "/api/defense/sessions/"+uuid.NewString()+"/status", "not-a-uuid", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	owner := uuid.NewString()
	sid := uuid.NewString()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", pkgerrors.ErrNotFound, http.StatusNotFound},
		{"not ready", pkgerrors.ErrSessionNotReady, http.StatusConflict},
		{"upstream", pkgerrors.ErrUpstream, http.StatusBadGateway},
		{"bad input", pkgerrors.ErrInvalidArgument, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, &stubDefenseService{statusErr: tc.err}, &stubRAGService{chatErr: tc.err})
			w := doReq(r, http.MethodGet, "/api/defense/sessions/"+sid+"/status", owner, "")
			if w.Code != tc.want {
				t.Fatalf("status endpoint: want=%d got=%d", tc.want, w.Code)
			}
			w = doReq(r, http.MethodPost, "/api/defense/sessions/"+sid+"/chat", owner, `{"message":"hi"}`)
			if w.Code != tc.want {
				t.Fatalf("chat endpoint: want=%d got=%d", tc.want, w.Code)
			}
		})
	}
}

func TestStartBeforeReadyConflicts(t *testing.T) {
	r := newTestRouter(t, &stubDefenseService{}, &stubRAGService{})
	w := doReq(r, http.MethodPost, "/api/defense/sessions/"+uuid.NewString()+"/start", uuid.NewString(), "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status: want=409 got=%d", w.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if env.Error.Code != "session_not_ready" {
		t.Fatalf("error code: want=session_not_ready got=%q", env.Error.Code)
	}
}

func TestChatRejectsMalformedBody(t *testing.T) {
	r := newTestRouter(t, &stubDefenseService{}, &stubRAGService{})
	w := doReq(r, http.MethodPost, "/api/defense/sessions/"+uuid.NewString()+"/chat", uuid.NewString(), `{`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", w.Code)
	}
}

func TestInvalidSessionID(t *testing.T) {
	r := newTestRouter(t, &stubDefenseService{}, &stubRAGService{})
	w := doReq(r, http.MethodGet, "/api/defense/sessions/abc/status", uuid.NewString(), "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", w.Code)
	}
}
