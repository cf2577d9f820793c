package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-bot/internal/domain"
	"github.com/shopspring/decimal"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_create_expenses.sql", true, "0001", "create_expenses"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("got version %q name %q", m[1], m[2])
			}
		})
	}
}

func TestReadMigrations_Embedded(t *testing.T) {
	migrations, err := readMigrations(migrationFiles, "proj", "ds")
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %d has version %d", i, m.Version)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("%s still has placeholders", m.Filename)
		}
		if !strings.Contains(m.SQL, "`proj.ds.") {
			t.Errorf("%s does not target proj.ds", m.Filename)
		}
	}
}

func TestReadMigrations_ChecksumIgnoresPlaceholders(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0001_a.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (id INT64);")},
		"migrations/README.md":  {Data: []byte("not a migration")},
		"migrations/0002_b.sql": {Data: []byte("SELECT 1;")},
	}

	a, err := readMigrations(fsys, "p1", "d1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := readMigrations(fsys, "p2", "d2")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(a))
	}
	if a[0].Checksum != b[0].Checksum {
		t.Error("checksum should not depend on project or dataset")
	}
	if a[0].SQL == b[0].SQL {
		t.Error("SQL should be rendered per project and dataset")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0001_a.sql": {Data: []byte("SELECT 1;")},
		"migrations/0001_b.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := readMigrations(fsys, "p", "d"); err == nil {
		t.Error("expected duplicate version error")
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "c1"},
		{Version: 2, Name: "b", Checksum: "c2"},
		{Version: 3, Name: "c", Checksum: "c3"},
	}

	pending, err := pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "c1"}, {Version: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Version != 3 {
		t.Errorf("pending = %+v", pending)
	}

	if _, err := pendingMigrations(all, []AppliedMigration{{Version: 1, Checksum: "changed"}}); err == nil {
		t.Error("expected checksum mismatch error")
	}
}

func TestMigrationStatus(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a"},
		{Version: 2, Name: "b"},
	}

	got := migrationStatus(all, []AppliedMigration{{Version: 1, AppliedBy: "expensebot"}})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Applied == nil || got[0].Applied.AppliedBy != "expensebot" {
		t.Errorf("migration 1 should be applied, got %+v", got[0].Applied)
	}
	if got[1].Applied != nil {
		t.Errorf("migration 2 should be pending, got %+v", got[1].Applied)
	}
}

func TestExpenseRowRoundTrip(t *testing.T) {
	desc := "Tarjeta ****1234"
	e := domain.Expense{
		ID:          "e1",
		UserKey:     "telegram:1",
		Amount:      decimal.RequireFromString("45.90"),
		Currency:    domain.CurrencyPEN,
		Category:    domain.CategoryFood,
		Merchant:    "Wong",
		Description: &desc,
		Date:        civil.Date{Year: 2024, Month: 3, Day: 1},
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	row := expenseRowFrom(e)
	if row.Amount.FloatString(2) != "45.90" {
		t.Errorf("NUMERIC amount = %s", row.Amount.FloatString(2))
	}
	if !row.Description.Valid {
		t.Error("description should be set")
	}

	got, err := row.toDomain()
	if err != nil {
		t.Fatal(err)
	}
	if !got.Amount.Equal(e.Amount) || got.Merchant != e.Merchant || got.Date != e.Date || *got.Description != desc {
		t.Errorf("round trip mismatch: %+v", got)
	}

	row.Amount = nil
	if _, err := row.toDomain(); err == nil {
		t.Error("expected error for NULL amount")
	}
}

func TestQualified(t *testing.T) {
	if got := qualified("p", "d", "expenses"); got != "`p.d.expenses`" {
		t.Errorf("qualified() = %s", got)
	}
}
