// Package sandbox is the Sandbox Runner: it executes one command under
// strict OS-level resource isolation using the isolate binary, a
// cgroup-backed sandbox, and reports captured stdout/stderr plus a
// telemetry record.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klpod221/kode-judge/internal/domain"
	"github.com/sirupsen/logrus"
)

// ErrInternal marks a failure to even start the sandbox (missing
// binary, box allocation failure, permission error) as opposed to a
// failure of the program running inside it. Callers translate this to
// submission status ERROR — the error always carries enough text for
// the worker to store as diagnostic stderr.
var ErrInternal = errors.New("sandbox: internal error")

const defaultOutputCapBytes = 1 << 20 // 1 MiB per stream, generous cap for captured output.

// Spec is one Sandbox Runner invocation request.
type Spec struct {
	CommandArgv []string
	CwdFiles    []domain.AdditionalFile
	StdinBytes  []byte
	Limits      domain.Limits
}

// Runner drives isolate box lifecycle: init, run, cleanup.
type Runner struct {
	isolatePath string
	logger      *logrus.Entry
	nextBox     int32
}

// NewRunner returns a Runner that invokes the isolate binary at
// isolatePath (resolved via PATH if not absolute).
func NewRunner(isolatePath string, logger *logrus.Entry) *Runner {
	return &Runner{isolatePath: isolatePath, logger: logger}
}

// Run executes spec.CommandArgv, repeating it spec.Limits.NumberOfRuns
// times: telemetry of the slowest run is reported for time, the
// maximum memory across runs; stdout/stderr come from the last run
// executed; a non-zero exit or kill on any run stops further
// repetitions.
func (r *Runner) Run(ctx context.Context, spec Spec) (*domain.SandboxResult, error) {
	runs := spec.Limits.NumberOfRuns
	if runs < 1 {
		runs = 1
	}

	var (
		slowestTime float64
		maxMemory   int64
		last        *domain.SandboxResult
	)

	for i := 0; i < runs; i++ {
		result, err := r.runOnce(ctx, spec)
		if err != nil {
			return nil, err
		}
		last = result
		if result.Time > slowestTime {
			slowestTime = result.Time
		}
		if result.MemoryKB > maxMemory {
			maxMemory = result.MemoryKB
		}
		if result.ExitCode != nil && *result.ExitCode != 0 {
			break
		}
		if result.Signal != nil {
			break
		}
	}

	last.Time = slowestTime
	last.MemoryKB = maxMemory
	return last, nil
}

// runOnce performs a single isolate box create -> run -> cleanup cycle.
func (r *Runner) runOnce(ctx context.Context, spec Spec) (*domain.SandboxResult, error) {
	box, err := r.createBox(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create box: %v", ErrInternal, err)
	}
	defer r.cleanupBox(box)

	if err := r.writeFiles(box, spec.CwdFiles); err != nil {
		return nil, fmt.Errorf("%w: write files: %v", ErrInternal, err)
	}

	return r.safeCall(ctx, box, spec)
}

type box struct {
	id           int
	dir          string
	metadataPath string
}

// createBox allocates a fresh isolate box. Box ids are handed out
// round-robin from an atomic counter: each call gets its own id modulo
// a generous range so concurrent runners never collide.
func (r *Runner) createBox(ctx context.Context) (*box, error) {
	id := int(atomic.AddInt32(&r.nextBox, 1)-1) % 900

	cmd := exec.CommandContext(ctx, r.isolatePath, "--init", "--cg", fmt.Sprintf("-b%d", id))
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("isolate --init failed: %w", err)
	}

	dir := strings.TrimSpace(string(out))
	return &box{
		id:           id,
		dir:          filepath.Join(dir, "box"),
		metadataPath: filepath.Join(os.TempDir(), fmt.Sprintf("isolate-meta-%d-%d", id, time.Now().UnixNano())),
	}, nil
}

func (r *Runner) cleanupBox(b *box) {
	cmd := exec.Command(r.isolatePath, "--cleanup", "--cg", fmt.Sprintf("-b%d", b.id))
	if err := cmd.Run(); err != nil && r.logger != nil {
		r.logger.WithError(err).WithField("box", b.id).Warn("isolate cleanup failed")
	}
	os.Remove(b.metadataPath)
}

// writeFiles materializes each cwd file into the box's sandbox
// directory, rejecting path traversal.
func (r *Runner) writeFiles(b *box, files []domain.AdditionalFile) error {
	for _, f := range files {
		if strings.Contains(f.Name, "..") {
			return fmt.Errorf("file name %q contains path traversal", f.Name)
		}
		target := filepath.Join(b.dir, f.Name)
		rel, err := filepath.Rel(b.dir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("file name %q escapes sandbox directory", f.Name)
		}
		if dir := filepath.Dir(target); dir != b.dir {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(target, f.Content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// safeCall builds and runs one isolate invocation, then parses its
// metadata file into a SandboxResult, including flags for the network,
// stderr-redirect and per-process-limit toggles.
func (r *Runner) safeCall(ctx context.Context, b *box, spec Spec) (*domain.SandboxResult, error) {
	l := spec.Limits

	args := []string{
		"--run",
		fmt.Sprintf("-b%d", b.id),
		fmt.Sprintf("--meta=%s", b.metadataPath),
		"--cg",
		"-s",
		"-c", "/box",
		"-E", "HOME=/tmp",
	}

	if l.MaxProcessesAndOrThreads > 0 {
		args = append(args, fmt.Sprintf("--processes=%d", l.MaxProcessesAndOrThreads))
	}
	if l.MaxFileSizeKB > 0 {
		args = append(args, fmt.Sprintf("--fsize=%d", l.MaxFileSizeKB))
	}
	if l.WallTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--wall-time=%s", formatSeconds(l.WallTimeLimit)))
	}
	if l.CPUTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--time=%s", formatSeconds(l.CPUTimeLimit)))
	}
	if l.CPUExtraTime > 0 {
		args = append(args, fmt.Sprintf("--extra-time=%s", formatSeconds(l.CPUExtraTime)))
	}
	if l.MemoryLimitKB > 0 {
		if l.EnablePerProcessMemoryLimit {
			args = append(args, fmt.Sprintf("--mem=%d", l.MemoryLimitKB))
		} else {
			args = append(args, fmt.Sprintf("--cg-mem=%d", l.MemoryLimitKB))
		}
	}
	if l.EnablePerProcessTimeLimit {
		args = append(args, "--time-limit-per-process")
	}
	if l.EnableNetwork {
		args = append(args, "--share-net")
	}
	if l.RedirectStderrToStdout {
		args = append(args, "--stderr-to-stdout")
	}

	args = append(args, "--")
	args = append(args, spec.CommandArgv...)

	cmd := exec.CommandContext(ctx, r.isolatePath, args...)
	cmd.Stdin = bytes.NewReader(spec.StdinBytes)

	var stdoutBuf, stderrBuf boundedBuffer
	stdoutBuf.limit = defaultOutputCapBytes
	stderrBuf.limit = defaultOutputCapBytes
	cmd.Stdout = &stdoutBuf
	if l.RedirectStderrToStdout {
		cmd.Stderr = &stdoutBuf
	} else {
		cmd.Stderr = &stderrBuf
	}

	runErr := cmd.Run()

	meta, metaErr := parseMetadata(b.metadataPath)
	if metaErr != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrInternal, metaErr)
	}

	result := &domain.SandboxResult{
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		Time:     meta.wallTime,
		MemoryKB: meta.memory,
	}

	oomKilled := meta.cgOOMKilled || (meta.status == "SG" && meta.signal == "SIGKILL" &&
		l.MemoryLimitKB > 0 && meta.memory >= l.MemoryLimitKB)

	switch meta.status {
	case "TO", "OL", "EL":
		sig := "SIGKILL"
		result.Signal = &sig
		msg := classifyStatus(meta.status)
		result.Message = &msg
	case "SG":
		sig := meta.signal
		if sig == "" {
			sig = "SIGKILL"
		}
		result.Signal = &sig
		msg := "Runtime error"
		if oomKilled {
			msg = "Memory limit exceeded"
		}
		result.Message = &msg
	case "RE":
		code := meta.exitCode
		result.ExitCode = &code
		msg := "Runtime error"
		result.Message = &msg
	default:
		code := meta.exitCode
		result.ExitCode = &code
		msg := "OK"
		if code != 0 {
			msg = "Runtime error"
		}
		result.Message = &msg
	}

	if runErr != nil && meta.status == "" {
		msg := "Runtime error"
		result.Message = &msg
		if result.ExitCode == nil && result.Signal == nil {
			code := -1
			result.ExitCode = &code
		}
	}

	return result, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func classifyStatus(status string) string {
	switch status {
	case "TO":
		return "Time limit exceeded"
	case "OL":
		return "Output limit exceeded"
	case "EL":
		return "Extra time limit exceeded"
	default:
		return "Runtime error"
	}
}

// boundedBuffer caps how much output is retained, truncating silently
// once the limit is hit rather than growing without bound.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

var _ io.Writer = (*boundedBuffer)(nil)
