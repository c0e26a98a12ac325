// Package service is the Submission Service: it validates, persists,
// and enqueues submissions, and brokers wait-mode via the rendezvous.
// Validation is plain field-by-field checks returning a
// sentinel-wrapped error, split out of the HTTP layer since this
// judge's surface (batch create, batch get, delete, pagination) is
// larger than a single create endpoint.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/config"
	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/store"
)

// ErrValidation wraps a user-facing validation failure.
var ErrValidation = errors.New("service: validation error")

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Enqueuer is the subset of *queue.Queue the Submission Service needs,
// narrowed to an interface so tests can substitute a fake rather than
// require a live Redis.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string) error
}

// Service is the Submission Service: validation, persistence, queueing,
// and wait-mode coordination for one or many submissions.
type Service struct {
	Store      store.Store
	Queue      Enqueuer
	Catalog    *catalog.Catalog
	Rendezvous *rendezvous.Rendezvous
	Sandbox    config.Sandbox
	WaitMode   time.Duration
}

// CreateSubmission validates, persists and enqueues payload. If wait is
// false it returns the new id; if true it blocks (up to s.WaitMode) for
// the submission to reach a terminal state and returns the full record,
// or rendezvous.ErrTimeout.
func (s *Service) CreateSubmission(ctx context.Context, payload domain.Submission, wait bool) (string, *domain.Submission, error) {
	applyDefaults(&payload, s.Sandbox)

	if err := s.validate(payload); err != nil {
		return "", nil, err
	}

	id, err := s.Store.Create(ctx, payload)
	if err != nil {
		return "", nil, fmt.Errorf("create submission: %w", err)
	}

	if wait {
		s.Rendezvous.Register(id)
	}

	if err := s.Queue.Enqueue(ctx, id); err != nil {
		return "", nil, fmt.Errorf("enqueue submission: %w", err)
	}

	if !wait {
		return id, nil, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.WaitMode)
	defer cancel()

	if err := s.Rendezvous.Await(waitCtx, id); err != nil {
		return id, nil, err
	}

	sub, err := s.Store.Get(ctx, id)
	if err != nil {
		return id, nil, fmt.Errorf("reload submission after wait: %w", err)
	}
	return id, &sub, nil
}

// CreateBatch validates every payload before persisting any of them:
// if any element fails validation, the whole batch is rejected, naming
// the first offending index, with no partial commits.
func (s *Service) CreateBatch(ctx context.Context, payloads []domain.Submission) ([]string, error) {
	for i := range payloads {
		applyDefaults(&payloads[i], s.Sandbox)
		if err := s.validate(payloads[i]); err != nil {
			return nil, fmt.Errorf("payload[%d]: %w", i, err)
		}
	}

	ids := make([]string, 0, len(payloads))
	for _, payload := range payloads {
		id, err := s.Store.Create(ctx, payload)
		if err != nil {
			return nil, fmt.Errorf("create submission: %w", err)
		}
		if err := s.Queue.Enqueue(ctx, id); err != nil {
			return nil, fmt.Errorf("enqueue submission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) GetSubmission(ctx context.Context, id string) (domain.Submission, error) {
	return s.Store.Get(ctx, id)
}

func (s *Service) GetBatch(ctx context.Context, ids []string) ([]domain.Submission, error) {
	return s.Store.GetMany(ctx, ids)
}

func (s *Service) ListSubmissions(ctx context.Context, page, pageSize int) (domain.Page, error) {
	if page < 1 {
		return domain.Page{}, validationErrorf("page must be >= 1")
	}
	if pageSize < 1 || pageSize > 100 {
		return domain.Page{}, validationErrorf("page_size must be in [1,100]")
	}
	return s.Store.List(ctx, page, pageSize)
}

func (s *Service) DeleteSubmission(ctx context.Context, id string) error {
	return s.Store.Delete(ctx, id)
}

// applyDefaults fills any zero-valued numeric sandbox-limit field with
// the configured default, an override-over-default resolution. The
// boolean toggles are not taken from the configuration: a toggle the
// payload leaves unset stays false.
func applyDefaults(sub *domain.Submission, d config.Sandbox) {
	if sub.Limits.CPUTimeLimit == 0 {
		sub.Limits.CPUTimeLimit = d.CPUTimeLimit
	}
	if sub.Limits.CPUExtraTime == 0 {
		sub.Limits.CPUExtraTime = d.CPUExtraTime
	}
	if sub.Limits.WallTimeLimit == 0 {
		sub.Limits.WallTimeLimit = d.WallTimeLimit
	}
	if sub.Limits.MemoryLimitKB == 0 {
		sub.Limits.MemoryLimitKB = d.MemoryLimit
	}
	if sub.Limits.MaxProcessesAndOrThreads == 0 {
		sub.Limits.MaxProcessesAndOrThreads = d.MaxProcesses
	}
	if sub.Limits.MaxFileSizeKB == 0 {
		sub.Limits.MaxFileSizeKB = d.MaxFileSize
	}
	if sub.Limits.NumberOfRuns == 0 {
		sub.Limits.NumberOfRuns = d.NumberOfRuns
	}
}

// validate checks a submission payload before it is persisted.
func (s *Service) validate(sub domain.Submission) error {
	if _, err := s.Catalog.Get(sub.LanguageID); err != nil {
		return validationErrorf("language_id %d is unknown", sub.LanguageID)
	}

	if sub.SourceCode == nil {
		return validationErrorf("source_code is required")
	}

	if len(sub.AdditionalFiles) > s.Sandbox.MaxAdditionalFiles {
		return validationErrorf("additional_files count exceeds the configured limit of %d", s.Sandbox.MaxAdditionalFiles)
	}

	var totalSize int64
	for _, f := range sub.AdditionalFiles {
		if strings.ContainsAny(f.Name, `/\`) {
			return validationErrorf("additional_files name %q must not contain a path separator", f.Name)
		}
		totalSize += int64(len(f.Content))
	}
	if totalSize > s.Sandbox.MaxAdditionalFilesSize*1024 {
		return validationErrorf("additional_files total size exceeds the configured limit of %d KB", s.Sandbox.MaxAdditionalFilesSize)
	}

	for name, value := range map[string]float64{
		"cpu_time_limit":  sub.Limits.CPUTimeLimit,
		"cpu_extra_time":  sub.Limits.CPUExtraTime,
		"wall_time_limit": sub.Limits.WallTimeLimit,
	} {
		if value < 0 {
			return validationErrorf("%s must be non-negative", name)
		}
	}
	if sub.Limits.MemoryLimitKB < 0 {
		return validationErrorf("memory_limit must be non-negative")
	}
	if sub.Limits.MaxProcessesAndOrThreads < 0 {
		return validationErrorf("max_processes_and_or_threads must be non-negative")
	}
	if sub.Limits.MaxFileSizeKB < 0 {
		return validationErrorf("max_file_size must be non-negative")
	}
	if sub.Limits.NumberOfRuns < 1 {
		return validationErrorf("number_of_runs must be >= 1")
	}

	return nil
}
