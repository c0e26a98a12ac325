package store

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/klpod221/kode-judge/internal/domain"
)

// fakeScanner stands in for *sql.Row / *sql.Rows: it assigns a
// pre-built list of column values into whatever destination pointers
// scanSubmission passes, in order, without a live database.
type fakeScanner struct {
	values []interface{}
}

func (f fakeScanner) Scan(dest ...interface{}) error {
	if len(dest) != len(f.values) {
		return errors.New("fakeScanner: column count mismatch")
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(f.values[i]))
	}
	return nil
}

func sampleRow() []interface{} {
	return []interface{}{
		"sub-1", 1, []byte("print(1)"), []byte("stdin"), []byte("expected"), []byte(`[{"name":"a.txt","content":"aGk="}]`),
		2.0, 0.5, 5.0, int64(128000),
		128, int64(10240), 1,
		false, false, false, false,
		domain.Status("FINISHED"), []byte("out"), []byte(""), []byte(""), []byte(`{"time":0.01,"memory":1024,"exit_code":0}`), time.Unix(0, 0),
	}
}

func TestScanSubmissionDecodesJSONColumns(t *testing.T) {
	sub, err := scanSubmission(fakeScanner{values: sampleRow()})
	if err != nil {
		t.Fatalf("scanSubmission: %v", err)
	}

	if sub.ID != "sub-1" {
		t.Errorf("unexpected id: %q", sub.ID)
	}
	if len(sub.AdditionalFiles) != 1 || sub.AdditionalFiles[0].Name != "a.txt" {
		t.Fatalf("unexpected additional_files: %+v", sub.AdditionalFiles)
	}
	if sub.Meta == nil || sub.Meta.Memory != 1024 {
		t.Fatalf("unexpected meta: %+v", sub.Meta)
	}
}

func TestScanSubmissionHandlesNullMeta(t *testing.T) {
	values := sampleRow()
	values[21] = []byte("null")
	sub, err := scanSubmission(fakeScanner{values: values})
	if err != nil {
		t.Fatalf("scanSubmission: %v", err)
	}
	if sub.Meta != nil {
		t.Errorf("expected nil meta for a null column, got %+v", sub.Meta)
	}
}

func TestScanSubmissionHandlesEmptyAdditionalFiles(t *testing.T) {
	values := sampleRow()
	values[5] = []byte(nil)
	sub, err := scanSubmission(fakeScanner{values: values})
	if err != nil {
		t.Fatalf("scanSubmission: %v", err)
	}
	if sub.AdditionalFiles != nil {
		t.Errorf("expected nil additional_files, got %+v", sub.AdditionalFiles)
	}
}

type fakeResult struct{ rowsAffected int64 }

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rowsAffected, nil }

func TestRequireOneRow(t *testing.T) {
	if err := requireOneRow(fakeResult{rowsAffected: 1}); err != nil {
		t.Errorf("expected no error for one affected row, got %v", err)
	}
	if err := requireOneRow(fakeResult{rowsAffected: 0}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition for zero affected rows, got %v", err)
	}
}

func TestNullableBytes(t *testing.T) {
	if nullableBytes(nil) != nil {
		t.Error("expected nil passthrough")
	}
	if got := nullableBytes([]byte("x")); got == nil {
		t.Error("expected non-nil passthrough")
	}
}
