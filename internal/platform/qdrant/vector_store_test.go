package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/vector"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	sessionID := uuid.New()

	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/defense_chunks/points" {
			t.Fatalf("path: want=%q got=%q", "/collections/defense_chunks/points", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{"content": "some paragraph", "chunk_index": 0}
	err := s.Upsert(context.Background(), sessionID, []vector.Vector{
		{ID: "chunk-0", Values: []float32{1, 2, 3}, Metadata: meta},
		{ID: "chunk-1", Values: []float32{4, 5, 6}, Metadata: map[string]any{"content": "another", "chunk_index": 1}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	pointsRaw, ok := captured["points"].([]any)
	if !ok {
		t.Fatalf("points type: got=%T", captured["points"])
	}
	if len(pointsRaw) != 2 {
		t.Fatalf("points length: want=2 got=%d", len(pointsRaw))
	}

	first, ok := pointsRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("point[0] type: got=%T", pointsRaw[0])
	}
	if first["id"] != s.pointID(sessionID, "chunk-0") {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload, ok := first["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload type: got=%T", first["payload"])
	}
	if payload[payloadSessionIDKey] != sessionID.String() {
		t.Fatalf("payload session id: want=%q got=%v", sessionID, payload[payloadSessionIDKey])
	}
	if payload[payloadVectorIDKey] != "chunk-0" {
		t.Fatalf("payload vector id: want=%q got=%v", "chunk-0", payload[payloadVectorIDKey])
	}
	if payload["content"] != "some paragraph" {
		t.Fatalf("payload content: got=%v", payload["content"])
	}

	if _, exists := meta[payloadSessionIDKey]; exists {
		t.Fatalf("input metadata mutated: session id key should not exist")
	}
	if _, exists := meta[payloadVectorIDKey]; exists {
		t.Fatalf("input metadata mutated: vector id key should not exist")
	}
}

func TestVectorStoreQueryMatchesSessionFilterAndCandidatePool(t *testing.T) {
	sessionID := uuid.New()

	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/defense_chunks/points/search" {
			t.Fatalf("path: want=%q got=%q", "/collections/defense_chunks/points/search", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{
				"id":    "ignored-b",
				"score": 0.40,
				"payload": map[string]any{
					payloadVectorIDKey: "chunk-1",
					"content":          "second best",
				},
			},
			{
				"id":    "ignored-a",
				"score": 0.90,
				"payload": map[string]any{
					payloadVectorIDKey: "chunk-0",
					"content":          "best",
				},
			},
		}), nil
	})

	matches, err := s.QueryMatches(context.Background(), sessionID, []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches length: want=2 got=%d", len(matches))
	}
	if matches[0].ID != "chunk-0" || matches[1].ID != "chunk-1" {
		t.Fatalf("match ordering mismatch: got=%v", []string{matches[0].ID, matches[1].ID})
	}
	if matches[0].Payload["content"] != "best" {
		t.Fatalf("match payload: got=%v", matches[0].Payload)
	}

	if captured["limit"] != float64(5) {
		t.Fatalf("limit: want=5 got=%v", captured["limit"])
	}
	params, ok := captured["params"].(map[string]any)
	if !ok {
		t.Fatalf("params type: got=%T", captured["params"])
	}
	if params["hnsw_ef"] != float64(50) {
		t.Fatalf("hnsw_ef: want=50 got=%v", params["hnsw_ef"])
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("must: got=%v", filter["must"])
	}
	cond, ok := must[0].(map[string]any)
	if !ok || cond["key"] != payloadSessionIDKey {
		t.Fatalf("session condition: got=%v", must[0])
	}
	match, ok := cond["match"].(map[string]any)
	if !ok || match["value"] != sessionID.String() {
		t.Fatalf("session match: got=%v", cond["match"])
	}
}

func TestVectorStoreQueryMatchesScoreNormalization(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{
				"id":      "ignored",
				"score":   3.0,
				"payload": map[string]any{payloadVectorIDKey: "chunk-0"},
			},
		}), nil
	})
	s.distance = "euclid"

	matches, err := s.QueryMatches(context.Background(), uuid.New(), []float32{1, 2, 3}, 1)
	if err != nil {
		t.Fatalf("QueryMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches length: want=1 got=%d", len(matches))
	}
	if matches[0].Score != 0.25 {
		t.Fatalf("normalized score: want=0.25 got=%v", matches[0].Score)
	}
}

func TestVectorStoreDeleteSessionUsesFilter(t *testing.T) {
	sessionID := uuid.New()

	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost {
			t.Fatalf("method: want=%s got=%s", http.MethodPost, r.Method)
		}
		if r.URL.Path != "/collections/defense_chunks/points/delete" {
			t.Fatalf("path: want=%q got=%q", "/collections/defense_chunks/points/delete", r.URL.Path)
		}
		if r.URL.RawQuery != "wait=true" {
			t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	if err := s.DeleteSession(context.Background(), sessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter type: got=%T", captured["filter"])
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("must: got=%v", filter["must"])
	}
	cond, ok := must[0].(map[string]any)
	if !ok || cond["key"] != payloadSessionIDKey {
		t.Fatalf("session condition: got=%v", must[0])
	}
}

func TestVectorStoreUpsertDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	err := s.Upsert(context.Background(), uuid.New(), []vector.Vector{
		{ID: "chunk-0", Values: []float32{1, 2}},
	})
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorValidation {
		t.Fatalf("error code: want=%q got=%q", OperationErrorValidation, opErrTyped.Code)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("query", "timeout", context.DeadlineExceeded)
	var opErrTyped *OperationError
	if !errors.As(err, &opErrTyped) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErrTyped.Code != OperationErrorTimeout {
		t.Fatalf("error code: want=%q got=%q", OperationErrorTimeout, opErrTyped.Code)
	}
	if !IsUnavailable(err) {
		t.Fatalf("timeout should classify as unavailable")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(opErr("query", OperationErrorTransportFailed, "conn refused", fmt.Errorf("boom"))) {
		t.Fatalf("transport failure should classify as unavailable")
	}
	if !IsUnavailable(&OperationError{Code: OperationErrorQueryFailed, Operation: "query", StatusCode: 503}) {
		t.Fatalf("5xx should classify as unavailable")
	}
	if !IsUnavailable(&OperationError{Code: OperationErrorQueryFailed, Operation: "query", StatusCode: 404, Message: "Collection doesn't exist"}) {
		t.Fatalf("missing collection should classify as unavailable")
	}
	if IsUnavailable(&OperationError{Code: OperationErrorQueryFailed, Operation: "query", StatusCode: 400}) {
		t.Fatalf("4xx should not classify as unavailable")
	}
	if IsUnavailable(opErr("upsert", OperationErrorValidation, "bad vector", nil)) {
		t.Fatalf("validation errors should not classify as unavailable")
	}
	if IsUnavailable(fmt.Errorf("plain error")) {
		t.Fatalf("plain errors should not classify as unavailable")
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *vectorStore {
	t.Helper()
	client := &http.Client{
		Transport: roundTripFunc(roundTrip),
	}
	return &vectorStore{
		log:      newTestLogger(t),
		cfg:      Config{Collection: "defense_chunks", VectorDim: 3},
		baseURL:  "http://qdrant.local",
		http:     client,
		distance: "cosine",
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	payload := map[string]any{
		"result": result,
		"status": "ok",
		"time":   0.001,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
