package store

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"
)

type fakeMigrator struct {
	applied map[int]bool
	ran     []int
	failOn  int
}

func (f *fakeMigrator) EnsureVersionTable(context.Context) error { return nil }

func (f *fakeMigrator) AppliedVersions(context.Context) (map[int]bool, error) {
	out := make(map[int]bool, len(f.applied))
	for k, v := range f.applied {
		out[k] = v
	}
	return out, nil
}

func (f *fakeMigrator) Apply(_ context.Context, m Migration) error {
	if m.Version == f.failOn {
		return errors.New("boom")
	}
	f.ran = append(f.ran, m.Version)
	f.applied[m.Version] = true
	return nil
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_add_column.sql":   {Data: []byte("ALTER TABLE t ADD c TEXT;")},
		"migrations/001_create_table.sql": {Data: []byte("CREATE TABLE t (id INT);")},
		"migrations/010_index.sql":        {Data: []byte("CREATE INDEX i ON t (id);")},
	}

	got, err := LoadMigrations(fsys, "migrations")
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	wantVersions := []int{1, 2, 10}
	if len(got) != len(wantVersions) {
		t.Fatalf("got %d migrations, want %d", len(got), len(wantVersions))
	}
	for i, v := range wantVersions {
		if got[i].Version != v {
			t.Errorf("migration %d version = %d, want %d", i, got[i].Version, v)
		}
	}
	if got[0].Name != "create_table" || got[0].SQL != "CREATE TABLE t (id INT);" {
		t.Errorf("first migration = %+v", got[0])
	}
	if LatestVersion(got) != 10 {
		t.Errorf("LatestVersion() = %d, want 10", LatestVersion(got))
	}
}

func TestLoadMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{
			name: "bad name",
			fsys: fstest.MapFS{"migrations/create.sql": {Data: []byte("x")}},
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"migrations/001_a.sql": {Data: []byte("x")},
				"migrations/001_b.sql": {Data: []byte("y")},
			},
		},
		{
			name: "missing directory",
			fsys: fstest.MapFS{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadMigrations(tt.fsys, "migrations"); err == nil {
				t.Error("LoadMigrations() error = nil, want error")
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	migrations := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	m := &fakeMigrator{applied: map[int]bool{1: true}}

	n, err := Migrate(context.Background(), m, migrations, nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}

	n, err = Migrate(context.Background(), m, migrations, nil)
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied %d, want 0", n)
	}
	if len(m.ran) != 2 || m.ran[0] != 2 || m.ran[1] != 3 {
		t.Errorf("ran = %v, want [2 3]", m.ran)
	}
}

func TestMigrate_StopsOnFailure(t *testing.T) {
	migrations := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	m := &fakeMigrator{applied: map[int]bool{}, failOn: 2}

	n, err := Migrate(context.Background(), m, migrations, nil)
	if err == nil {
		t.Fatal("Migrate() error = nil, want error")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failing, want 1", n)
	}
	if m.applied[3] {
		t.Error("migration 3 ran after migration 2 failed")
	}
}

func TestLookupQuery(t *testing.T) {
	queries := map[string]string{"monthly_spend": "SELECT 1"}
	if q, err := LookupQuery(queries, "monthly_spend"); err != nil || q != "SELECT 1" {
		t.Errorf("LookupQuery(monthly_spend) = %q, %v", q, err)
	}
	if _, err := LookupQuery(queries, "nope"); !errors.Is(err, ErrUnknownQuery) {
		t.Errorf("LookupQuery(nope) error = %v, want ErrUnknownQuery", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"Dominoes Pizza", "Dominoes Pizza"},
		{[]byte("2024-01"), "2024-01"},
		{int64(3), "3"},
		{473.333333, "473.33"},
		{float64(500), "500.00"},
		{time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), "2024-01-15"},
		{Inserted, "inserted"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
