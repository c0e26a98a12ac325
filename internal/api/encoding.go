package api

import (
	"encoding/base64"
	"fmt"

	"github.com/klpod221/kode-judge/internal/domain"
)

// decodeSubmissionFields base64-decodes every byte field on sub when
// base64Encoded is true. Internal storage is always raw bytes; this is
// a pure transcoding step driven by a single request-wide flag.
func decodeSubmissionFields(sub *domain.Submission, base64Encoded bool) error {
	if !base64Encoded {
		return nil
	}

	var err error
	if sub.SourceCode, err = decodeField("source_code", sub.SourceCode); err != nil {
		return err
	}
	if sub.Stdin, err = decodeField("stdin", sub.Stdin); err != nil {
		return err
	}
	if sub.ExpectedOutput, err = decodeField("expected_output", sub.ExpectedOutput); err != nil {
		return err
	}
	for i := range sub.AdditionalFiles {
		decoded, err := decodeField(fmt.Sprintf("additional_files[%d].content", i), sub.AdditionalFiles[i].Content)
		if err != nil {
			return err
		}
		sub.AdditionalFiles[i].Content = decoded
	}
	return nil
}

func decodeField(name string, value []byte) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(value))
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", name, err)
	}
	return decoded, nil
}

// encodeSubmissionForOutput returns a copy of sub with every byte field
// base64-encoded for the wire when base64Encoded is true, leaving the
// stored record untouched.
func encodeSubmissionForOutput(sub domain.Submission, base64Encoded bool) domain.Submission {
	if !base64Encoded {
		return sub
	}
	sub.SourceCode = encodeField(sub.SourceCode)
	sub.Stdin = encodeField(sub.Stdin)
	sub.ExpectedOutput = encodeField(sub.ExpectedOutput)
	sub.Stdout = encodeField(sub.Stdout)
	sub.Stderr = encodeField(sub.Stderr)
	sub.CompileOutput = encodeField(sub.CompileOutput)
	files := make([]domain.AdditionalFile, len(sub.AdditionalFiles))
	for i, f := range sub.AdditionalFiles {
		files[i] = domain.AdditionalFile{Name: f.Name, Content: encodeField(f.Content)}
	}
	sub.AdditionalFiles = files
	return sub
}

func encodeField(value []byte) []byte {
	if value == nil {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString(value)
	return []byte(encoded)
}
