package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	pkgerrors "github.com/vivavoce/defense-backend/internal/pkg/errors"
	"github.com/vivavoce/defense-backend/internal/pkg/logger"
	"github.com/vivavoce/defense-backend/internal/platform/openai"
)

type fakeAI struct {
	mu         sync.Mutex
	embedCalls [][]string
	embedFn    func(inputs []string) ([][]float32, error)

	chatCalls []fakeChatCall
	chatFn    func(system string, messages []openai.ChatMessage) (string, error)
}

type fakeChatCall struct {
	system   string
	messages []openai.ChatMessage
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls = append(f.embedCalls, inputs)
	f.mu.Unlock()
	if f.embedFn != nil {
		return f.embedFn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1, 2}
	}
	return out, nil
}

func (f *fakeAI) GenerateChat(_ context.Context, system string, messages []openai.ChatMessage) (string, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, fakeChatCall{system: system, messages: messages})
	f.mu.Unlock()
	if f.chatFn != nil {
		return f.chatFn(system, messages)
	}
	return "What is your central claim?", nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestEmbedManyPreservesOrder(t *testing.T) {
	ai := &fakeAI{}
	svc, err := NewEmbeddingService(testLogger(t), ai)
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}

	texts := make([]string, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0)
	}

	got, err := svc.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(got) != len(texts) {
		t.Fatalf("length: want=%d got=%d", len(texts), len(got))
	}
	for i, vec := range got {
		if len(vec) == 0 {
			t.Fatalf("vector %d missing", i)
		}
		if vec[0] != float32(len(texts[i])) {
			t.Fatalf("vector %d out of order: got=%v want first element %d", i, vec, len(texts[i]))
		}
	}
	// One provider call per input, issued per batch.
	if len(ai.embedCalls) != len(texts) {
		t.Fatalf("embed calls: want=%d got=%d", len(texts), len(ai.embedCalls))
	}
}

func TestEmbedManyEmptyInput(t *testing.T) {
	svc, err := NewEmbeddingService(testLogger(t), &fakeAI{})
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}
	got, err := svc.EmbedMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedMany: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d", len(got))
	}
}

func TestEmbedOneEmptyVectorIsUpstreamError(t *testing.T) {
	ai := &fakeAI{
		embedFn: func(inputs []string) ([][]float32, error) {
			return [][]float32{{}}, nil
		},
	}
	svc, err := NewEmbeddingService(testLogger(t), ai)
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}

	_, err = svc.EmbedOne(context.Background(), "hello")
	if !errors.Is(err, pkgerrors.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestEmbedManyPropagatesProviderError(t *testing.T) {
	boom := fmt.Errorf("rate limited")
	ai := &fakeAI{
		embedFn: func(inputs []string) ([][]float32, error) {
			return nil, boom
		},
	}
	svc, err := NewEmbeddingService(testLogger(t), ai)
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}

	_, err = svc.EmbedMany(context.Background(), []string{"a", "b"})
	if !errors.Is(err, pkgerrors.ErrUpstream) {
		t.Fatalf("expected ErrUpstream wrapping, got %v", err)
	}
}
