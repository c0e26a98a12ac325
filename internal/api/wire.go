package api

import (
	"fmt"
	"time"

	"github.com/klpod221/kode-judge/internal/domain"
)

// The wire DTOs below exist because encoding/json always base64-encodes
// Go []byte fields, which would make the base64_encoded=false case
// (raw text on the wire) impossible to express with domain.Submission
// directly. These types carry every byte field as a plain JSON string
// instead, and toDomain/newSubmissionResponse below do the base64
// transcoding explicitly (via encoding.go), rather than relying on
// json's implicit behavior.

type fileWire struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// submissionRequest is the POST /submissions/ body shape. Limit
// overrides are pointers so an absent field falls back to the
// configured default rather than the zero value.
type submissionRequest struct {
	LanguageID      int        `json:"language_id"`
	SourceCode      string     `json:"source_code"`
	Stdin           *string    `json:"stdin"`
	ExpectedOutput  *string    `json:"expected_output"`
	AdditionalFiles []fileWire `json:"additional_files"`

	CPUTimeLimit                *float64 `json:"cpu_time_limit"`
	CPUExtraTime                *float64 `json:"cpu_extra_time"`
	WallTimeLimit                *float64 `json:"wall_time_limit"`
	MemoryLimit                  *int64   `json:"memory_limit"`
	MaxProcessesAndOrThreads      *int    `json:"max_processes_and_or_threads"`
	MaxFileSize                   *int64  `json:"max_file_size"`
	NumberOfRuns                  *int    `json:"number_of_runs"`
	EnablePerProcessTimeLimit     *bool   `json:"enable_per_process_and_thread_time_limit"`
	EnablePerProcessMemoryLimit   *bool   `json:"enable_per_process_and_thread_memory_limit"`
	RedirectStderrToStdout        *bool   `json:"redirect_stderr_to_stdout"`
	EnableNetwork                 *bool   `json:"enable_network"`
}

// toDomain converts the request into a domain.Submission, decoding
// base64 fields if requested. Unset limit pointers are left at the Go
// zero value; service.applyDefaults fills the numeric ones in
// afterward, while unset boolean toggles stay false.
func (r submissionRequest) toDomain(base64Encoded bool) (domain.Submission, error) {
	sub := domain.Submission{
		LanguageID: r.LanguageID,
		SourceCode: []byte(r.SourceCode),
	}
	if r.Stdin != nil {
		sub.Stdin = []byte(*r.Stdin)
	}
	if r.ExpectedOutput != nil {
		sub.ExpectedOutput = []byte(*r.ExpectedOutput)
	}
	sub.AdditionalFiles = make([]domain.AdditionalFile, len(r.AdditionalFiles))
	for i, f := range r.AdditionalFiles {
		sub.AdditionalFiles[i] = domain.AdditionalFile{Name: f.Name, Content: []byte(f.Content)}
	}

	if r.CPUTimeLimit != nil {
		sub.Limits.CPUTimeLimit = *r.CPUTimeLimit
	}
	if r.CPUExtraTime != nil {
		sub.Limits.CPUExtraTime = *r.CPUExtraTime
	}
	if r.WallTimeLimit != nil {
		sub.Limits.WallTimeLimit = *r.WallTimeLimit
	}
	if r.MemoryLimit != nil {
		sub.Limits.MemoryLimitKB = *r.MemoryLimit
	}
	if r.MaxProcessesAndOrThreads != nil {
		sub.Limits.MaxProcessesAndOrThreads = *r.MaxProcessesAndOrThreads
	}
	if r.MaxFileSize != nil {
		sub.Limits.MaxFileSizeKB = *r.MaxFileSize
	}
	if r.NumberOfRuns != nil {
		sub.Limits.NumberOfRuns = *r.NumberOfRuns
	}
	if r.EnablePerProcessTimeLimit != nil {
		sub.Limits.EnablePerProcessTimeLimit = *r.EnablePerProcessTimeLimit
	}
	if r.EnablePerProcessMemoryLimit != nil {
		sub.Limits.EnablePerProcessMemoryLimit = *r.EnablePerProcessMemoryLimit
	}
	if r.RedirectStderrToStdout != nil {
		sub.Limits.RedirectStderrToStdout = *r.RedirectStderrToStdout
	}
	if r.EnableNetwork != nil {
		sub.Limits.EnableNetwork = *r.EnableNetwork
	}

	if err := decodeSubmissionFields(&sub, base64Encoded); err != nil {
		return domain.Submission{}, err
	}
	return sub, nil
}

// submissionResponse is the full Submission wire shape returned by
// GET/wait=true endpoints.
type submissionResponse struct {
	ID              string     `json:"id"`
	LanguageID      int        `json:"language_id"`
	SourceCode      string     `json:"source_code"`
	Stdin           string     `json:"stdin,omitempty"`
	ExpectedOutput  string     `json:"expected_output,omitempty"`
	AdditionalFiles []fileWire `json:"additional_files,omitempty"`

	Status        string   `json:"status"`
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
	CompileOutput *string  `json:"compile_output"`
	Meta          *metaDTO `json:"meta"`

	CreatedAt time.Time `json:"created_at"`
}

type metaDTO struct {
	Time          float64 `json:"time"`
	Memory        int64   `json:"memory"`
	ExitCode      *int    `json:"exit_code"`
	Signal        *string `json:"signal,omitempty"`
	Message       *string `json:"message,omitempty"`
	OutputMatches *bool   `json:"output_matches,omitempty"`
}

// newSubmissionResponse converts a domain.Submission into its wire
// form, applying base64 encoding to every byte field when requested.
func newSubmissionResponse(sub domain.Submission, base64Encoded bool) submissionResponse {
	sub = encodeSubmissionForOutput(sub, base64Encoded)

	resp := submissionResponse{
		ID:         sub.ID,
		LanguageID: sub.LanguageID,
		SourceCode: string(sub.SourceCode),
		Status:     string(sub.Status),
		CreatedAt:  sub.CreatedAt,
	}
	if sub.Stdin != nil {
		resp.Stdin = string(sub.Stdin)
	}
	if sub.ExpectedOutput != nil {
		resp.ExpectedOutput = string(sub.ExpectedOutput)
	}
	for _, f := range sub.AdditionalFiles {
		resp.AdditionalFiles = append(resp.AdditionalFiles, fileWire{Name: f.Name, Content: string(f.Content)})
	}

	if sub.Status.Terminal() {
		resp.Stdout = byteStringPtr(sub.Stdout)
		resp.Stderr = byteStringPtr(sub.Stderr)
		resp.CompileOutput = byteStringPtr(sub.CompileOutput)
		if sub.Meta != nil {
			resp.Meta = &metaDTO{
				Time:          sub.Meta.Time,
				Memory:        sub.Meta.Memory,
				ExitCode:      sub.Meta.ExitCode,
				Signal:        sub.Meta.Signal,
				Message:       sub.Meta.Message,
				OutputMatches: sub.Meta.OutputMatches,
			}
		}
	}

	return resp
}

func byteStringPtr(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// languageResponse is the /languages/* wire shape.
type languageResponse struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func newLanguageResponse(lang domain.Language) languageResponse {
	return languageResponse{ID: lang.ID, Name: lang.Name, Version: lang.Version}
}

// mustBase64 is a defensive check used before decode, so a
// malformed flag value produces the same 400 class error as malformed
// content rather than a silent false.
func mustBase64(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	switch raw {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid base64_encoded value: %q", raw)
	}
}
