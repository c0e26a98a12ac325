package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/config"
	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/store"
)

type fakeStore struct {
	mu   sync.Mutex
	subs map[string]domain.Submission
	next int
}

func newFakeStore() *fakeStore {
	return &fakeStore{subs: map[string]domain.Submission{}}
}

func (s *fakeStore) Create(ctx context.Context, sub domain.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := sub.ID
	if id == "" {
		id = "generated-id"
	}
	sub.ID = id
	sub.Status = domain.StatusPending
	s.subs[id] = sub
	return id, nil
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
	return domain.Page{CurrentPage: page, PageSize: pageSize}, nil
}

func (s *fakeStore) MarkProcessing(ctx context.Context, id string) error { return nil }

func (s *fakeStore) UpdateResult(ctx context.Context, id string, upd store.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return store.ErrIllegalTransition
	}
	sub.Status = upd.Status
	sub.Stdout = upd.Stdout
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

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	ids     []string
	failNth int
	calls   int
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.failNth > 0 && q.calls == q.failNth {
		return errors.New("enqueue failed")
	}
	q.ids = append(q.ids, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeEnqueuer) {
	t.Helper()
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}
	st := newFakeStore()
	q := &fakeEnqueuer{}
	svc := &Service{
		Store:      st,
		Queue:      q,
		Catalog:    cat,
		Rendezvous: rendezvous.New(),
		Sandbox: config.Sandbox{
			CPUTimeLimit:           2.0,
			CPUExtraTime:           0.5,
			WallTimeLimit:          5.0,
			MemoryLimit:            128000,
			MaxProcesses:           128,
			MaxFileSize:            10240,
			NumberOfRuns:           1,
			MaxAdditionalFiles:     10,
			MaxAdditionalFilesSize: 2048,
		},
		WaitMode: 100 * time.Millisecond,
	}
	return svc, st, q
}

func TestCreateSubmissionFireAndForget(t *testing.T) {
	svc, st, q := newTestService(t)

	id, sub, err := svc.CreateSubmission(context.Background(), domain.Submission{
		LanguageID: 1,
		SourceCode: []byte("print(1)"),
	}, false)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty id")
	}
	if sub != nil {
		t.Fatal("expected nil submission in fire-and-forget mode")
	}
	if st.count() != 1 {
		t.Errorf("expected one stored submission, got %d", st.count())
	}
	if len(q.ids) != 1 || q.ids[0] != id {
		t.Errorf("expected submission enqueued, got %v", q.ids)
	}
}

func TestCreateSubmissionRejectsUnknownLanguage(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.CreateSubmission(context.Background(), domain.Submission{
		LanguageID: 999,
		SourceCode: []byte("whatever"),
	}, false)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateSubmissionWaitModeReturnsTerminalResult(t *testing.T) {
	svc, st, _ := newTestService(t)

	go func() {
		time.Sleep(10 * time.Millisecond)
		st.mu.Lock()
		for id, sub := range st.subs {
			sub.Status = domain.StatusFinished
			sub.Stdout = []byte("done")
			st.subs[id] = sub
		}
		st.mu.Unlock()
		for id := range st.subs {
			svc.Rendezvous.Publish(id)
		}
	}()

	id, sub, err := svc.CreateSubmission(context.Background(), domain.Submission{
		LanguageID: 1,
		SourceCode: []byte("print(1)"),
	}, true)
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if sub == nil {
		t.Fatal("expected a populated submission in wait mode")
	}
	if sub.Status != domain.StatusFinished {
		t.Errorf("expected FINISHED, got %s", sub.Status)
	}
	if id == "" {
		t.Error("expected non-empty id")
	}
}

func TestCreateSubmissionWaitModeTimesOut(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.WaitMode = 20 * time.Millisecond

	_, _, err := svc.CreateSubmission(context.Background(), domain.Submission{
		LanguageID: 1,
		SourceCode: []byte("print(1)"),
	}, true)
	if !errors.Is(err, rendezvous.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCreateBatchRejectsWithoutPartialCommit(t *testing.T) {
	svc, st, q := newTestService(t)

	_, err := svc.CreateBatch(context.Background(), []domain.Submission{
		{LanguageID: 1, SourceCode: []byte("ok")},
		{LanguageID: 999, SourceCode: []byte("bad")},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if st.count() != 0 {
		t.Errorf("expected no partial commit, got %d stored submissions", st.count())
	}
	if len(q.ids) != 0 {
		t.Errorf("expected no enqueues on rejected batch, got %v", q.ids)
	}
}

func TestCreateBatchCreatesAllOnSuccess(t *testing.T) {
	svc, st, q := newTestService(t)

	ids, err := svc.CreateBatch(context.Background(), []domain.Submission{
		{LanguageID: 1, SourceCode: []byte("a")},
		{LanguageID: 2, SourceCode: []byte("b")},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if st.count() != 2 {
		t.Errorf("expected 2 stored submissions, got %d", st.count())
	}
	if len(q.ids) != 2 {
		t.Errorf("expected 2 enqueues, got %d", len(q.ids))
	}
}

func TestListSubmissionsValidatesPaging(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.ListSubmissions(context.Background(), 0, 10); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for page=0, got %v", err)
	}
	if _, err := svc.ListSubmissions(context.Background(), 1, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for page_size=0, got %v", err)
	}
	if _, err := svc.ListSubmissions(context.Background(), 1, 101); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for page_size=101, got %v", err)
	}
	if _, err := svc.ListSubmissions(context.Background(), 1, 20); err != nil {
		t.Errorf("expected valid paging to succeed, got %v", err)
	}
}

func TestValidateRejectsAdditionalFilePathSeparator(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.CreateSubmission(context.Background(), domain.Submission{
		LanguageID: 1,
		SourceCode: []byte("print(1)"),
		AdditionalFiles: []domain.AdditionalFile{
			{Name: "../escape.txt", Content: []byte("x")},
		},
	}, false)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for path-separator file name, got %v", err)
	}
}
