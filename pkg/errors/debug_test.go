package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "licenses_license_key_key",
		TableName:      "licenses",
		Message:        "duplicate key value violates unique constraint",
	}
	err := Wrap(CodeDependency, fmt.Errorf("insert license: %w", pgErr), "create license")

	d := Dump(err)
	if d.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", d.Code)
	}
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "licenses_license_key_key" {
		t.Fatalf("unexpected pg fields %+v", d.PG)
	}
	if fields := d.LogFields(); fields["pg_table"] != "licenses" || fields["error_code"] != CodeDependency {
		t.Fatalf("unexpected log fields %v", fields)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d: %v", len(d.Chain), d.Chain)
	}
}

func TestDumpExtractsPqDetails(t *testing.T) {
	err := &pq.Error{Code: "23505", Constraint: "licenses_stripe_session_id_key", Table: "licenses"}

	d := Dump(err)
	if d.PG == nil || d.PG.Code != "23505" || d.PG.Constraint != "licenses_stripe_session_id_key" {
		t.Fatalf("unexpected pq fields %+v", d.PG)
	}
}

func TestDumpNil(t *testing.T) {
	if d := Dump(nil); d.TopMessage != "" || d.Chain != nil || d.PG != nil {
		t.Fatalf("expected empty dump, got %+v", d)
	}
	if fields := Dump(fmt.Errorf("plain")).LogFields(); fields["pg_code"] != nil {
		t.Fatalf("plain errors carry no pg fields, got %v", fields)
	}
}
