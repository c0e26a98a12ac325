package store

import (
	"database/sql"
	"encoding/json"

	"github.com/klpod221/kode-judge/internal/domain"
)

const selectColumns = `
	SELECT id, language_id, source_code, stdin, expected_output, additional_files,
		cpu_time_limit, cpu_extra_time, wall_time_limit, memory_limit,
		max_processes, max_file_size, number_of_runs,
		per_process_time, per_process_memory, redirect_stderr, enable_network,
		status, stdout, stderr, compile_output, meta, created_at
	FROM submissions`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(s scanner) (domain.Submission, error) {
	var (
		sub         domain.Submission
		filesJSON   []byte
		metaJSON    []byte
		stdin       []byte
		expected    []byte
		stdout      []byte
		stderr      []byte
		compileOut  []byte
	)

	err := s.Scan(
		&sub.ID, &sub.LanguageID, &sub.SourceCode, &stdin, &expected, &filesJSON,
		&sub.Limits.CPUTimeLimit, &sub.Limits.CPUExtraTime, &sub.Limits.WallTimeLimit, &sub.Limits.MemoryLimitKB,
		&sub.Limits.MaxProcessesAndOrThreads, &sub.Limits.MaxFileSizeKB, &sub.Limits.NumberOfRuns,
		&sub.Limits.EnablePerProcessTimeLimit, &sub.Limits.EnablePerProcessMemoryLimit,
		&sub.Limits.RedirectStderrToStdout, &sub.Limits.EnableNetwork,
		&sub.Status, &stdout, &stderr, &compileOut, &metaJSON, &sub.CreatedAt,
	)
	if err != nil {
		return domain.Submission{}, err
	}

	sub.Stdin = stdin
	sub.ExpectedOutput = expected
	sub.Stdout = stdout
	sub.Stderr = stderr
	sub.CompileOutput = compileOut

	if len(filesJSON) > 0 {
		if err := json.Unmarshal(filesJSON, &sub.AdditionalFiles); err != nil {
			return domain.Submission{}, err
		}
	}
	if len(metaJSON) > 0 && string(metaJSON) != "null" {
		var meta domain.Meta
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return domain.Submission{}, err
		}
		sub.Meta = &meta
	}

	return sub, nil
}

// rowWithTotal adapts *sql.Rows (which has one extra trailing `total`
// column from the COUNT(*) OVER() window function) to the scanner
// interface scanSubmission expects, capturing the extra column.
type rowWithTotal struct {
	rows  *sql.Rows
	total *int
}

func (r rowWithTotal) Scan(dest ...interface{}) error {
	return r.rows.Scan(append(dest, r.total)...)
}

func scanSubmissionWithTotal(rows *sql.Rows) (domain.Submission, int, error) {
	var total int
	sub, err := scanSubmission(rowWithTotal{rows: rows, total: &total})
	return sub, total, err
}
