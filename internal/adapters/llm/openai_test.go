package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
)

func TestOpenAI_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-test" || len(req.Messages) != 1 || req.Messages[0].Content != "Hi" {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Hello!"}}]}`)
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(server.URL, "sk-test", "gpt-test")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := adapter.Generate(context.Background(), testPrompt("Hi"))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp != "Hello!" {
		t.Errorf("unexpected response: %s", resp)
	}
}

func TestOpenAI_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"Our plans "}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"start at $10."}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	adapter, _ := NewOpenAIAdapter(server.URL, "sk-test", "")
	ch, err := adapter.GenerateStream(context.Background(), testPrompt("pricing"))
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	text, last := collect(t, ch)
	if text != "Our plans start at $10." {
		t.Errorf("unexpected text: %q", text)
	}
	if !last.Done {
		t.Errorf("expected done, got %+v", last)
	}
}

func TestOpenAI_StreamWithoutDone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
	}))
	defer server.Close()

	adapter, _ := NewOpenAIAdapter(server.URL, "sk-test", "")
	ch, _ := adapter.GenerateStream(context.Background(), testPrompt("x"))
	_, last := collect(t, ch)
	if entities.GenerationErrorKindOf(last.Error) != entities.GenerationNetwork {
		t.Errorf("expected network error for truncated stream, got %+v", last)
	}
}

func TestOpenAI_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   entities.GenerationErrorKind
	}{
		{http.StatusUnauthorized, entities.GenerationAuth},
		{http.StatusForbidden, entities.GenerationAuth},
		{http.StatusTooManyRequests, entities.GenerationRateLimit},
		{http.StatusGatewayTimeout, entities.GenerationTimeout},
		{http.StatusBadGateway, entities.GenerationNetwork},
		{http.StatusBadRequest, entities.GenerationUnknown},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			fmt.Fprint(w, `{"error":{"message":"nope"}}`)
		}))

		adapter, _ := NewOpenAIAdapter(server.URL, "sk-test", "")
		_, err := adapter.Generate(context.Background(), testPrompt("x"))
		if got := entities.GenerationErrorKindOf(err); got != tt.want {
			t.Errorf("status %d: got %s, want %s", tt.status, got, tt.want)
		}
		_, err = adapter.GenerateStream(context.Background(), testPrompt("x"))
		if got := entities.GenerationErrorKindOf(err); got != tt.want {
			t.Errorf("stream status %d: got %s, want %s", tt.status, got, tt.want)
		}
		server.Close()
	}
}

func TestOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIAdapter("", "", ""); err == nil {
		t.Error("missing api key should fail")
	}
}

func TestOpenAI_StreamMatchesGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			content, _ := json.Marshal(strings.Join(answerChunks, ""))
			fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%s}}]}`, content)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range answerChunks {
			content, _ := json.Marshal(c)
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%s}}]}\n\n", content)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	adapter, err := NewOpenAIAdapter(server.URL, "sk-test", "gpt-test")
	if err != nil {
		t.Fatal(err)
	}
	assertStreamMatchesGenerate(t, adapter, testPrompt("pricing"))
}
