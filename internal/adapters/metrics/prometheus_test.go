package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

func TestMetrics_TurnFinished(t *testing.T) {
	m := New()

	m.TurnFinished(ports.TurnReport{Outcome: ports.TurnCompleted, Retrieved: 1, Attempts: 1, Duration: time.Second})
	m.TurnFinished(ports.TurnReport{Outcome: ports.TurnFailed, ErrorKind: entities.GenerationTimeout, Attempts: 1})
	m.TurnFinished(ports.TurnReport{Outcome: ports.TurnCancelled})

	if got := testutil.ToFloat64(m.turns.WithLabelValues("completed")); got != 1 {
		t.Errorf("completed turns = %v", got)
	}
	if got := testutil.ToFloat64(m.turns.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed turns = %v", got)
	}
	if got := testutil.ToFloat64(m.genErrors.WithLabelValues("timeout")); got != 1 {
		t.Errorf("timeout errors = %v", got)
	}
	if got := testutil.CollectAndCount(m.genErrors); got != 1 {
		t.Errorf("cancelled turns must not count as errors, got %d series", got)
	}
}

func TestMetrics_TurnRejected(t *testing.T) {
	m := New()

	m.TurnRejected("c1", entities.ErrBusy)
	m.TurnRejected("c1", entities.ErrBusy)
	m.TurnRejected("c1", entities.ErrEmptyQuery)
	m.TurnRejected("c1", errors.New("boom"))

	if got := testutil.ToFloat64(m.rejected.WithLabelValues("busy")); got != 2 {
		t.Errorf("busy rejections = %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("empty_query")); got != 1 {
		t.Errorf("empty rejections = %v", got)
	}
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("other")); got != 1 {
		t.Errorf("other rejections = %v", got)
	}
}

func TestMetrics_CorpusLoaded(t *testing.T) {
	m := New()
	m.CorpusLoaded(3, 2)

	if got := testutil.ToFloat64(m.corpusDocs); got != 3 {
		t.Errorf("corpus documents = %v", got)
	}
	if got := testutil.ToFloat64(m.corpusVersion); got != 2 {
		t.Errorf("corpus version = %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/health", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`ragchat_http_requests_total{code="200",method="GET",route="/health"} 1`,
		"ragchat_corpus_documents",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
