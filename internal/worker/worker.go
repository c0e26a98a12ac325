// Package worker is the Worker Pool: N concurrent workers, each
// dequeuing one submission id at a time, invoking the Language Catalog
// and Sandbox Runner, then writing results back to the Submission
// Store. Each submission moves through prime box -> compile stage ->
// run stage -> cleanup, then a ten-step dequeue/process/commit loop.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/klpod221/kode-judge/internal/catalog"
	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/klpod221/kode-judge/internal/queue"
	"github.com/klpod221/kode-judge/internal/rendezvous"
	"github.com/klpod221/kode-judge/internal/sandbox"
	"github.com/klpod221/kode-judge/internal/store"
)

const dequeuePoll = 2 * time.Second

// JobQueue is the subset of *queue.Queue the Worker Pool needs,
// narrowed to an interface so tests can substitute a fake rather than
// require a live Redis.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error)
	RegisterWorker(ctx context.Context, name string) error
	UnregisterWorker(ctx context.Context, name string) error
	SetWorkerState(ctx context.Context, name string, state queue.WorkerState) error
	IncrFailed(ctx context.Context) error
}

// SandboxRunner is the subset of *sandbox.Runner the Worker Pool needs.
type SandboxRunner interface {
	Run(ctx context.Context, spec sandbox.Spec) (*domain.SandboxResult, error)
}

// Pool runs Concurrency goroutines pulling from the Job Queue.
type Pool struct {
	Concurrency int
	Store       store.Store
	Queue       JobQueue
	Catalog     *catalog.Catalog
	Runner      SandboxRunner
	Rendezvous  *rendezvous.Rendezvous
	Logger      *logrus.Entry

	wg sync.WaitGroup
}

// Run starts Concurrency worker goroutines and blocks until ctx is
// cancelled, at which point it waits for in-flight jobs to finish
// committing before returning (no hard kill of a running sandbox
// process).
func (p *Pool) Run(ctx context.Context) {
	for i := 1; i <= p.Concurrency; i++ {
		name := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go p.loop(ctx, name)
	}
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, name string) {
	defer p.wg.Done()

	log := p.Logger.WithField("worker", name)
	if err := p.Queue.RegisterWorker(ctx, name); err != nil {
		log.WithError(err).Error("failed to register worker")
	}
	defer p.Queue.UnregisterWorker(context.Background(), name)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, ok, err := p.Queue.Dequeue(ctx, dequeuePoll)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.WithError(err).Warn("dequeue failed")
			continue
		}
		if !ok {
			continue
		}

		p.process(context.WithoutCancel(ctx), name, id, log)
	}
}

// process carries one dequeued submission id through its ten-step
// transition: claim, resolve language, materialize files, compile,
// run, compare, and commit.
func (p *Pool) process(ctx context.Context, workerName, id string, log *logrus.Entry) {
	log = log.WithField("submission_id", id)

	if err := p.Queue.SetWorkerState(ctx, workerName, queue.WorkerBusy); err != nil {
		log.WithError(err).Warn("failed to mark worker busy")
	}
	defer func() {
		if err := p.Queue.SetWorkerState(ctx, workerName, queue.WorkerIdle); err != nil {
			log.WithError(err).Warn("failed to mark worker idle")
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("worker panicked mid-processing")
			_ = p.Queue.IncrFailed(context.Background())
		}
	}()

	// Step 2: transition to PROCESSING.
	if err := p.Store.MarkProcessing(ctx, id); err != nil {
		// Already gone (deleted) or already claimed by a racing
		// worker; either way there is nothing more to do.
		return
	}

	sub, err := p.Store.Get(ctx, id)
	if err != nil {
		return
	}

	// Step 3: resolve language.
	lang, err := p.Catalog.Get(sub.LanguageID)
	if err != nil {
		p.commit(ctx, id, store.Update{
			Status: domain.StatusError,
			Stderr: []byte("Unknown language"),
		}, log)
		return
	}

	// Step 4: materialize files (filename validation happens earlier,
	// at Submission Service validation time, so it is not repeated
	// here against an already-accepted submission).
	files := make([]domain.AdditionalFile, 0, len(sub.AdditionalFiles)+1)
	files = append(files, domain.AdditionalFile{Name: lang.SourceFilename, Content: sub.SourceCode})
	files = append(files, sub.AdditionalFiles...)

	var compileOutput []byte

	// Step 5: compile stage.
	if lang.CompileCmd != "" {
		result, err := p.Runner.Run(ctx, sandbox.Spec{
			CommandArgv: shellCommand(lang.CompileCmd),
			CwdFiles:    files,
			Limits:      sub.Limits,
		})
		if err != nil {
			p.commit(ctx, id, store.Update{
				Status: domain.StatusError,
				Stderr: []byte(err.Error()),
			}, log)
			return
		}
		compileOutput = result.Stderr
		if (result.ExitCode != nil && *result.ExitCode != 0) || result.Signal != nil {
			p.commit(ctx, id, store.Update{
				Status:        domain.StatusError,
				CompileOutput: compileOutput,
			}, log)
			return
		}
	}

	// Step 6: run stage.
	runResult, err := p.Runner.Run(ctx, sandbox.Spec{
		CommandArgv: shellCommand(lang.RunCmd),
		CwdFiles:    files,
		StdinBytes:  sub.Stdin,
		Limits:      sub.Limits,
	})
	if err != nil {
		p.commit(ctx, id, store.Update{
			Status:        domain.StatusError,
			CompileOutput: compileOutput,
			Stderr:        []byte(err.Error()),
		}, log)
		return
	}

	meta := &domain.Meta{
		Time:     runResult.Time,
		Memory:   runResult.MemoryKB,
		ExitCode: runResult.ExitCode,
		Signal:   runResult.Signal,
		Message:  runResult.Message,
	}

	// Step 8: expected_output comparison, byte-exact.
	if sub.ExpectedOutput != nil {
		matches := bytes.Equal(runResult.Stdout, sub.ExpectedOutput)
		meta.OutputMatches = &matches
	}

	// Step 7: FINISHED regardless of exit code/TLE; meta.message
	// already carries the classification from the Sandbox Runner.
	p.commit(ctx, id, store.Update{
		Status:        domain.StatusFinished,
		Stdout:        runResult.Stdout,
		Stderr:        runResult.Stderr,
		CompileOutput: compileOutput,
		Meta:          meta,
	}, log)
}

// commit performs steps 9-10: write the result, publish, and silently
// discard if the store reports the row was deleted mid-flight.
func (p *Pool) commit(ctx context.Context, id string, upd store.Update, log *logrus.Entry) {
	if err := p.Store.UpdateResult(ctx, id, upd); err != nil {
		if errors.Is(err, store.ErrIllegalTransition) {
			log.Info("discarding result for deleted submission")
			p.Rendezvous.Publish(id)
			return
		}
		log.WithError(err).Error("failed to commit result")
		return
	}
	p.Rendezvous.Publish(id)
}

// shellCommand splits a configured compile/run command string into an
// argv, honoring simple whitespace separation — catalog entries are
// trusted configuration, not untrusted input, so no shell quoting
// concerns apply here.
func shellCommand(cmd string) []string {
	return strings.Fields(cmd)
}
