package llm

import (
	"errors"
	"strings"
	"testing"
)

type sseEvent struct{ name, data string }

func TestReadSSE(t *testing.T) {
	body := ": comment\n" +
		"event: message\n" +
		"data: first\n" +
		"\n" +
		"data: multi\n" +
		"data: line\r\n" +
		"\r\n" +
		"data: trailing"

	var got []sseEvent
	err := readSSE(strings.NewReader(body), func(name, data string) error {
		got = append(got, sseEvent{name, data})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []sseEvent{{"message", "first"}, {"", "multi\nline"}, {"", "trailing"}}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadSSE_StopsOnCallbackError(t *testing.T) {
	body := "data: a\n\ndata: b\n\n"
	calls := 0
	err := readSSE(strings.NewReader(body), func(_, _ string) error {
		calls++
		return errStopStream
	})
	if !errors.Is(err, errStopStream) {
		t.Errorf("expected errStopStream, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}
