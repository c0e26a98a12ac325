// Package domain holds the core data model of the submission pipeline:
// languages, submissions, their lifecycle status, and sandbox telemetry.
package domain

import "time"

// Language is an immutable catalog entry describing how to compile and
// run source code for one language/version pair.
type Language struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	SourceFilename string `json:"source_filename"`
	CompileCmd     string `json:"compile_cmd,omitempty"`
	RunCmd         string `json:"run_cmd"`
}

// Status is the sum type of a Submission's lifecycle state. It is a
// distinct type rather than a bare string so the compiler rejects
// assignment from arbitrary strings; Valid reports whether a value is
// one of the closed set of known states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFinished   Status = "FINISHED"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusFinished, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is one of the terminal states after which
// no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// AdditionalFile is a named byte blob materialized alongside the source
// file in the sandbox scratch directory.
type AdditionalFile struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Limits is the sandbox-limit subset of a Submission, shared verbatim
// with sandbox.Spec so overrides flow through untouched.
type Limits struct {
	CPUTimeLimit                     float64 `json:"cpu_time_limit"`
	CPUExtraTime                     float64 `json:"cpu_extra_time"`
	WallTimeLimit                    float64 `json:"wall_time_limit"`
	MemoryLimitKB                    int64   `json:"memory_limit"`
	MaxProcessesAndOrThreads         int     `json:"max_processes_and_or_threads"`
	MaxFileSizeKB                    int64   `json:"max_file_size"`
	NumberOfRuns                     int     `json:"number_of_runs"`
	EnablePerProcessTimeLimit        bool    `json:"enable_per_process_and_thread_time_limit"`
	EnablePerProcessMemoryLimit      bool    `json:"enable_per_process_and_thread_memory_limit"`
	RedirectStderrToStdout           bool    `json:"redirect_stderr_to_stdout"`
	EnableNetwork                    bool    `json:"enable_network"`
}

// Meta is the telemetry record produced by one Sandbox Runner invocation
// (or the aggregate of number_of_runs invocations).
type Meta struct {
	Time          float64 `json:"time"`
	Memory        int64   `json:"memory"`
	ExitCode      *int    `json:"exit_code"`
	Signal        *string `json:"signal,omitempty"`
	Message       *string `json:"message,omitempty"`
	OutputMatches *bool   `json:"output_matches,omitempty"`
}

// Submission is the central entity of the judge: a single
// code-execution request and its evolving result.
type Submission struct {
	ID              string           `json:"id"`
	LanguageID      int              `json:"language_id"`
	SourceCode      []byte           `json:"source_code"`
	Stdin           []byte           `json:"stdin,omitempty"`
	ExpectedOutput  []byte           `json:"expected_output,omitempty"`
	AdditionalFiles []AdditionalFile `json:"additional_files,omitempty"`

	Limits

	Status        Status `json:"status"`
	Stdout        []byte `json:"stdout,omitempty"`
	Stderr        []byte `json:"stderr,omitempty"`
	CompileOutput []byte `json:"compile_output,omitempty"`
	Meta          *Meta  `json:"meta,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"-"`
}

// Page is the envelope returned by Submission Store / Submission
// Service list operations.
type Page struct {
	Items       []Submission `json:"items"`
	TotalItems  int          `json:"total_items"`
	TotalPages  int          `json:"total_pages"`
	CurrentPage int          `json:"current_page"`
	PageSize    int          `json:"page_size"`
}

// SandboxResult is what the Sandbox Runner returns for a single Run
// invocation.
type SandboxResult struct {
	Stdout   []byte
	Stderr   []byte
	Time     float64
	MemoryKB int64
	ExitCode *int
	Signal   *string
	Message  *string
}
