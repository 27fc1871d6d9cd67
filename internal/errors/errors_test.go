package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewMissingColumn(t *testing.T) {
	err := NewMissingColumn("silver.logs_enriched", "status_code")

	if !Is(err, ErrMissingColumn) {
		t.Error("expected ErrMissingColumn in chain")
	}
	if !IsSchemaViolation(err) {
		t.Error("expected schema violation")
	}
	if !strings.Contains(err.Error(), `"status_code"`) {
		t.Errorf("message should name the column, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "silver.logs_enriched") {
		t.Errorf("message should name the table, got %q", err.Error())
	}
	if IsRetriable(err) {
		t.Error("schema violations are not retriable")
	}
}

func TestStorageIsRetriable(t *testing.T) {
	base := fmt.Errorf("dial tcp: connection refused")
	err := Storage(base, "insert gold.hourly_patterns")

	if !Is(err, ErrStorage) {
		t.Error("expected ErrStorage in chain")
	}
	if !IsRetriable(err) {
		t.Error("storage failures should be retriable")
	}

	// Double wrapping keeps a single sentinel.
	again := Storage(err, "replace gold")
	if strings.Count(again.Error(), ErrStorage.Error()) != 1 {
		t.Errorf("unexpected message %q", again.Error())
	}
}

func TestStageError(t *testing.T) {
	inner := NewMissingColumn("silver.logs_enriched", "event_ts")
	err := NewStageError("gold", "silver.logs_enriched", inner)

	var se *StageError
	if !As(err, &se) {
		t.Fatal("expected StageError")
	}
	if se.Layer != "gold" || se.Table != "silver.logs_enriched" {
		t.Errorf("unexpected context: %+v", se)
	}
	if !IsSchemaViolation(err) {
		t.Error("stage error should unwrap to schema violation")
	}

	if NewStageError("gold", "", nil) != nil {
		t.Error("nil error should stay nil")
	}

	// Same layer is not wrapped twice.
	if NewStageError("gold", "other", err) != err {
		t.Error("expected existing stage error to be returned as is")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Error("empty collector should return nil")
	}

	v.AddMissing("data_dir")
	v.AddField("warehouse.driver", "must be duckdb or clickhouse")

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !Is(err, ErrMissingField) || !Is(err, ErrInvalidConfig) {
		t.Error("expected both sentinels reachable")
	}
	if !strings.Contains(err.Error(), "2 errors") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
