package worker

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/klpod221/kode-judge/internal/queue"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/sandbox"
	"github.com/klpod221/kode-judge/internal/store"
)

// fakeQueue hands out each queued id once, then blocks until the passed
// context is done or the timeout elapses, so loop() exits cleanly on
// cancellation.
type fakeQueue struct {
	mu      sync.Mutex
	ids     []string
	states  map[string]queue.WorkerState
	failed  int
	drained bool
}

func newFakeQueue(ids ...string) *fakeQueue {
	return &fakeQueue{ids: ids, states: map[string]queue.WorkerState{}}
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	q.mu.Lock()
	if len(q.ids) > 0 {
		id := q.ids[0]
		q.ids = q.ids[1:]
		q.mu.Unlock()
		return id, true, nil
	}
	q.drained = true
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-time.After(timeout):
		return "", false, nil
	}
}

func (q *fakeQueue) RegisterWorker(ctx context.Context, name string) error   { return nil }
func (q *fakeQueue) UnregisterWorker(ctx context.Context, name string) error { return nil }

func (q *fakeQueue) SetWorkerState(ctx context.Context, name string, state queue.WorkerState) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states[name] = state
	return nil
}

func (q *fakeQueue) IncrFailed(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed++
	return nil
}

// fakeRunner returns a canned result regardless of spec, recording the
// last spec it was called with.
type fakeRunner struct {
	mu       sync.Mutex
	result   *domain.SandboxResult
	err      error
	lastSpec sandbox.Spec
	calls    int
}

func (r *fakeRunner) Run(ctx context.Context, spec sandbox.Spec) (*domain.SandboxResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.lastSpec = spec
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

// fakeStore is a minimal in-memory store.Store good enough to drive the
// Worker Pool's ten-step transition through its paces.
type fakeStore struct {
	mu   sync.Mutex
	subs map[string]domain.Submission
}

func newFakeStore(subs ...domain.Submission) *fakeStore {
	m := map[string]domain.Submission{}
	for _, s := range subs {
		m[s.ID] = s
	}
	return &fakeStore{subs: m}
}

func (s *fakeStore) Create(ctx context.Context, sub domain.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	return sub.ID, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (domain.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.Submission{}, store.ErrNotFound
	}
	return sub, nil
}

func (s *fakeStore) GetMany(ctx context.Context, ids []string) ([]domain.Submission, error) {
	return nil, nil
}

func (s *fakeStore) List(ctx context.Context, page, pageSize int) (domain.Page, error) {
	return domain.Page{}, nil
}

func (s *fakeStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.Status != domain.StatusPending {
		return store.ErrIllegalTransition
	}
	sub.Status = domain.StatusProcessing
	s.subs[id] = sub
	return nil
}

func (s *fakeStore) UpdateResult(ctx context.Context, id string, upd store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok || sub.Status != domain.StatusProcessing {
		return store.ErrIllegalTransition
	}
	sub.Status = upd.Status
	sub.Stdout = upd.Stdout
	sub.Stderr = upd.Stderr
	sub.CompileOutput = upd.CompileOutput
	sub.Meta = upd.Meta
	s.subs[id] = sub
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) snapshot(id string) domain.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	return cat
}

func TestProcessRunsToFinished(t *testing.T) {
	exitZero := 0
	st := newFakeStore(domain.Submission{
		ID:         "s1",
		LanguageID: 1, // python, no compile stage
		SourceCode: []byte("print('hi')"),
		Status:     domain.StatusPending,
	})
	rv := rendezvous.New()
	rv.Register("s1")

	p := &Pool{
		Store:   st,
		Queue:   newFakeQueue(),
		Catalog: mustCatalog(t),
		Runner: &fakeRunner{result: &domain.SandboxResult{
			Stdout:   []byte("hi\n"),
			ExitCode: &exitZero,
		}},
		Rendezvous: rv,
		Logger:     testLogger(),
	}

	p.process(context.Background(), "worker-1", "s1", testLogger())

	got := st.snapshot("s1")
	if got.Status != domain.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", got.Status)
	}
	if string(got.Stdout) != "hi\n" {
		t.Errorf("unexpected stdout: %q", got.Stdout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rv.Await(ctx, "s1"); err != nil {
		t.Errorf("expected rendezvous publish, got %v", err)
	}
}

func TestProcessUnknownLanguageYieldsError(t *testing.T) {
	st := newFakeStore(domain.Submission{
		ID:         "s2",
		LanguageID: 999,
		SourceCode: []byte("whatever"),
		Status:     domain.StatusPending,
	})

	p := &Pool{
		Store:      st,
		Queue:      newFakeQueue(),
		Catalog:    mustCatalog(t),
		Runner:     &fakeRunner{},
		Rendezvous: rendezvous.New(),
		Logger:     testLogger(),
	}

	p.process(context.Background(), "worker-1", "s2", testLogger())

	got := st.snapshot("s2")
	if got.Status != domain.StatusError {
		t.Fatalf("expected ERROR, got %s", got.Status)
	}
	if string(got.Stderr) != "Unknown language" {
		t.Errorf("unexpected stderr: %q", got.Stderr)
	}
}

func TestProcessCompileFailureSkipsRunStage(t *testing.T) {
	nonZero := 1
	st := newFakeStore(domain.Submission{
		ID:         "s3",
		LanguageID: 3, // go, has a compile stage
		SourceCode: []byte("not valid go"),
		Status:     domain.StatusPending,
	})

	runner := &fakeRunner{result: &domain.SandboxResult{
		Stderr:   []byte("syntax error"),
		ExitCode: &nonZero,
	}}

	p := &Pool{
		Store:      st,
		Queue:      newFakeQueue(),
		Catalog:    mustCatalog(t),
		Runner:     runner,
		Rendezvous: rendezvous.New(),
		Logger:     testLogger(),
	}

	p.process(context.Background(), "worker-1", "s3", testLogger())

	got := st.snapshot("s3")
	if got.Status != domain.StatusError {
		t.Fatalf("expected ERROR on compile failure, got %s", got.Status)
	}
	if string(got.CompileOutput) != "syntax error" {
		t.Errorf("unexpected compile output: %q", got.CompileOutput)
	}
	if runner.calls != 1 {
		t.Errorf("expected run stage to be skipped after compile failure, runner called %d times", runner.calls)
	}
}

func TestProcessExpectedOutputComparison(t *testing.T) {
	exitZero := 0
	expected := []byte("42\n")
	st := newFakeStore(domain.Submission{
		ID:             "s4",
		LanguageID:     1,
		SourceCode:     []byte("print(42)"),
		ExpectedOutput: expected,
		Status:         domain.StatusPending,
	})

	p := &Pool{
		Store:   st,
		Queue:   newFakeQueue(),
		Catalog: mustCatalog(t),
		Runner: &fakeRunner{result: &domain.SandboxResult{
			Stdout:   []byte("41\n"),
			ExitCode: &exitZero,
		}},
		Rendezvous: rendezvous.New(),
		Logger:     testLogger(),
	}

	p.process(context.Background(), "worker-1", "s4", testLogger())

	got := st.snapshot("s4")
	if got.Meta == nil || got.Meta.OutputMatches == nil {
		t.Fatalf("expected output_matches to be set")
	}
	if *got.Meta.OutputMatches {
		t.Errorf("expected output_matches=false for mismatched stdout")
	}
}

func TestProcessSkipsSubmissionNotPending(t *testing.T) {
	exitZero := 0
	st := newFakeStore(domain.Submission{
		ID:         "s5",
		LanguageID: 1,
		SourceCode: []byte("print(1)"),
		Status:     domain.StatusProcessing, // already claimed/deleted out of PENDING
	})
	rv := rendezvous.New()
	rv.Register("s5")

	p := &Pool{
		Store:   st,
		Queue:   newFakeQueue(),
		Catalog: mustCatalog(t),
		Runner: &fakeRunner{result: &domain.SandboxResult{
			Stdout:   []byte("1\n"),
			ExitCode: &exitZero,
		}},
		Rendezvous: rv,
		Logger:     testLogger(),
	}

	// MarkProcessing requires PENDING, so this submission (already
	// PROCESSING) is rejected at step 2 and process returns early.
	p.process(context.Background(), "worker-1", "s5", testLogger())

	got := st.snapshot("s5")
	if got.Status != domain.StatusProcessing {
		t.Fatalf("expected status untouched at PROCESSING, got %s", got.Status)
	}
}
