package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/domain/ports"
)

// mockSource implements ports.CorpusSource for testing
type mockSource struct {
	mu    sync.Mutex
	docs  []entities.Document
	err   error
	loads int
}

func (m *mockSource) Load(ctx context.Context) ([]entities.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

func (m *mockSource) set(docs []entities.Document, err error) {
	m.mu.Lock()
	m.docs, m.err = docs, err
	m.mu.Unlock()
}

func (m *mockSource) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// mockWatcher implements ports.FileWatcher for testing
type mockWatcher struct {
	events  chan ports.FileEvent
	stopped chan struct{}
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{events: make(chan ports.FileEvent, 10), stopped: make(chan struct{})}
}

func (w *mockWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	return w.events, nil
}

func (w *mockWatcher) Stop() error {
	close(w.stopped)
	return nil
}

func mockStoreFactory(docs []entities.Document) (ports.DocumentStore, error) {
	seen := map[string]bool{}
	for _, d := range docs {
		if d.ID == "" || seen[d.ID] {
			return nil, errors.New("invalid id")
		}
		seen[d.ID] = true
	}
	return &mockStore{docs: docs}, nil
}

func TestIngestUseCase_Load(t *testing.T) {
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, nil, zap.NewNop())

	if uc.Current() != nil {
		t.Fatal("no snapshot expected before load")
	}
	corpus, err := uc.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if corpus.Version != 1 || len(corpus.Store.All()) != 1 {
		t.Errorf("unexpected snapshot: %+v", corpus)
	}
	if ids := corpus.Retriever.Retrieve("pricing").IDs(); len(ids) != 1 {
		t.Errorf("default retriever should be wired, got %v", ids)
	}
	if uc.Current() != corpus {
		t.Error("Current should return the loaded snapshot")
	}
}

func TestIngestUseCase_OnLoadHook(t *testing.T) {
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, nil, zap.NewNop())

	var versions []int
	uc.OnLoad(func(c *Corpus) { versions = append(versions, c.Version) })

	uc.Load(context.Background())
	src.set(nil, errors.New("disk gone"))
	uc.Load(context.Background())
	src.set(pricingCorpus().docs, nil)
	uc.Load(context.Background())

	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Errorf("hook should see successful loads only, got %v", versions)
	}
}

func TestIngestUseCase_FailedReloadKeepsSnapshot(t *testing.T) {
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, nil, zap.NewNop())

	first, err := uc.Load(context.Background())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	src.set([]entities.Document{{ID: "dup"}, {ID: "dup"}}, nil)
	if _, err := uc.Load(context.Background()); err == nil {
		t.Error("duplicate ids should fail the load")
	}
	src.set(nil, errors.New("disk gone"))
	if _, err := uc.Load(context.Background()); err == nil {
		t.Error("source error should fail the load")
	}

	if uc.Current() != first {
		t.Error("failed reloads must keep the previous snapshot")
	}
}

func TestIngestUseCase_ReloadDoesNotMutateSnapshot(t *testing.T) {
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, nil, zap.NewNop())

	first, _ := uc.Load(context.Background())
	src.set(sampleCorpus().docs, nil)
	second, err := uc.Load(context.Background())
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if second.Version != 2 {
		t.Errorf("expected version 2, got %d", second.Version)
	}
	if len(first.Store.All()) != 1 {
		t.Error("earlier snapshot changed after reload")
	}
	if len(second.Retriever.Retrieve("pricing")) != 0 {
		t.Error("new snapshot should use the new documents")
	}
}

func TestIngestUseCase_WatchReloadsOnChange(t *testing.T) {
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, nil, zap.NewNop())
	if _, err := uc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	w := newMockWatcher()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- uc.Watch(ctx, w, "corpus", 50*time.Millisecond) }()

	// A burst of events collapses into one reload.
	for i := 0; i < 3; i++ {
		w.events <- ports.FileEvent{Path: "corpus/a.md", Operation: ports.FileModified}
	}

	deadline := time.Now().Add(2 * time.Second)
	for uc.Current().Version < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if uc.Current().Version != 2 {
		t.Errorf("expected one reload, got version %d", uc.Current().Version)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned %v", err)
	}
	select {
	case <-w.stopped:
	default:
		t.Error("watcher should be stopped")
	}
	if src.loadCount() != 2 {
		t.Errorf("expected 2 loads, got %d", src.loadCount())
	}
}

// closingRetriever records Close calls.
type closingRetriever struct {
	*SubstringRetriever
	mu     sync.Mutex
	closed int
}

func (r *closingRetriever) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func (r *closingRetriever) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func TestIngestUseCase_ClosesReplacedSnapshotAfterRelease(t *testing.T) {
	var built []*closingRetriever
	factory := func(store ports.DocumentStore) (ports.Retriever, error) {
		r := &closingRetriever{SubstringRetriever: NewSubstringRetriever(store)}
		built = append(built, r)
		return r, nil
	}
	src := &mockSource{docs: pricingCorpus().docs}
	uc := NewIngestUseCase(src, mockStoreFactory, factory, zap.NewNop())

	if _, err := uc.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	held := uc.Acquire()
	if held == nil || held.Version != 1 {
		t.Fatalf("expected version 1 held, got %+v", held)
	}

	if _, err := uc.Load(context.Background()); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if built[0].closeCount() != 0 {
		t.Error("a held snapshot must stay open after reload")
	}

	held.Release()
	if built[0].closeCount() != 1 {
		t.Error("replaced snapshot should close once released")
	}
	if held.Acquire() {
		t.Error("a closed snapshot cannot be acquired")
	}

	if built[1].closeCount() != 0 {
		t.Error("current snapshot must stay open")
	}
	uc.Close()
	if built[1].closeCount() != 1 {
		t.Error("Close should close the unheld current snapshot")
	}
	if uc.Current() != nil || uc.Acquire() != nil {
		t.Error("no snapshot expected after Close")
	}
}

func TestIngestUseCase_ConversationHoldsSnapshot(t *testing.T) {
	var built []*closingRetriever
	factory := func(store ports.DocumentStore) (ports.Retriever, error) {
		r := &closingRetriever{SubstringRetriever: NewSubstringRetriever(store)}
		built = append(built, r)
		return r, nil
	}
	uc := NewIngestUseCase(&mockSource{docs: pricingCorpus().docs}, mockStoreFactory, factory, zap.NewNop())
	uc.Load(context.Background())

	corpus := uc.Acquire()
	m := NewConversationManager(corpus.Retriever, NewContextAssembler(AssemblerOptions{}), &mockGenerator{answer: "ok"}, zap.NewNop(),
		ConversationOptions{OnClose: corpus.Release})
	uc.Load(context.Background())

	if built[0].closeCount() != 0 {
		t.Fatal("snapshot closed while the conversation is open")
	}
	m.Close()
	m.Close()
	if built[0].closeCount() != 1 {
		t.Errorf("expected one close after the conversation ended, got %d", built[0].closeCount())
	}
}
