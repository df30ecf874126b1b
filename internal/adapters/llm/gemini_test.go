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

func TestGemini_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "key" {
			t.Error("missing api key header")
		}
		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "Hi" {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Hello"},{"text":" there"}]}}]}`)
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(server.URL, "key", "gemini-test")
	if err != nil {
		t.Fatal(err)
	}
	resp, err := adapter.Generate(context.Background(), testPrompt("Hi"))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp != "Hello there" {
		t.Errorf("unexpected response: %q", resp)
	}
}

func TestGemini_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:streamGenerateContent" || r.URL.Query().Get("alt") != "sse" {
			t.Errorf("unexpected url: %s", r.URL)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"Our plans "}]}}]}`+"\r\n\r\n")
		fmt.Fprint(w, `data: {"candidates":[{"content":{"parts":[{"text":"start at $10."}]},"finishReason":"STOP"}]}`+"\r\n\r\n")
	}))
	defer server.Close()

	adapter, _ := NewGeminiAdapter(server.URL, "key", "gemini-test")
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

func TestGemini_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer server.Close()

	adapter, _ := NewGeminiAdapter(server.URL, "key", "")
	if _, err := adapter.Generate(context.Background(), testPrompt("x")); err == nil {
		t.Error("blocked prompt should fail")
	}
}

func TestGemini_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	adapter, _ := NewGeminiAdapter(server.URL, "bad", "")
	_, err := adapter.Generate(context.Background(), testPrompt("x"))
	if entities.GenerationErrorKindOf(err) != entities.GenerationAuth {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestGemini_RequiresKey(t *testing.T) {
	if _, err := NewGeminiAdapter("", "", ""); err == nil {
		t.Error("missing api key should fail")
	}
}

func TestGemini_StreamMatchesGenerate(t *testing.T) {
	part := func(text string) string {
		b, _ := json.Marshal(text)
		return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, b)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":generateContent") {
			fmt.Fprint(w, part(strings.Join(answerChunks, "")))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range answerChunks {
			fmt.Fprintf(w, "data: %s\r\n\r\n", part(c))
		}
	}))
	defer server.Close()

	adapter, err := NewGeminiAdapter(server.URL, "key", "gemini-test")
	if err != nil {
		t.Fatal(err)
	}
	assertStreamMatchesGenerate(t, adapter, testPrompt("pricing"))
}
