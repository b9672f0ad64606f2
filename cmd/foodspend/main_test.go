package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	code, out, errOut := execute(t, args...)
	if code != exitOK {
		t.Fatalf("foodspend %s exited %d\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), code, out, errOut)
	}
	return out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, exitUsage},
		{"unknown command", []string{"frobnicate"}, exitUsage},
		{"help", []string{"help"}, exitOK},
		{"command help", []string{"stats", "-h"}, exitOK},
		{"bad flag", []string{"stats", "-nope"}, exitUsage},
		{"ingest without archive", []string{"ingest"}, exitUsage},
		{"month-wise without year", []string{"month-wise"}, exitUsage},
		{"month-wise bad year", []string{"month-wise", "twenty"}, exitUsage},
		{"restaurants bad rank", []string{"restaurants", "-by", "price"}, exitUsage},
		{"restaurants negative limit", []string{"restaurants", "-n", "-1"}, exitUsage},
		{"month-wise bad month", []string{"month-wise", "-month", "13", "2024"}, exitUsage},
		{"stats extra args", []string{"stats", "now"}, exitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, errOut := execute(t, tt.args...); code != tt.want {
				t.Errorf("exit code = %d, want %d\nstderr:\n%s", code, tt.want, errOut)
			}
		})
	}
}

func TestRun_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "orders.db")

	code, _, errOut := execute(t, "ingest", filepath.Join(dir, "missing.mbox"), "-db", db)
	if code != exitFailure {
		t.Fatalf("exit code = %d, want %d\nstderr:\n%s", code, exitFailure, errOut)
	}
	assertContains(t, errOut, "opening archive")
	if _, err := os.Stat(db); !os.IsNotExist(err) {
		t.Errorf("database created for a missing archive: %v", err)
	}
}

func TestRun_MissingConfig(t *testing.T) {
	code, _, _ := execute(t, "stats", "-config", filepath.Join(t.TempDir(), "nope.json"))
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "mail", "orders.mbox")
	db := filepath.Join(dir, "data", "orders.db")

	out := mustRun(t, "sample", archive)
	assertContains(t, out, "Wrote 4 sample emails")

	out = mustRun(t, "status", "-db", db)
	assertContains(t, out, "orders.db", "never")

	out = mustRun(t, "ingest", archive, "-db", db, "-v")
	assertContains(t, out,
		"Ingesting MBOX file: "+archive,
		"[+] ORD123456: Dominoes Pizza - 440.00",
		"Inserted: 3",
		"Skipped: 1",
	)

	out = mustRun(t, "status", "-db", db)
	assertContains(t, out, "orders.mbox", "3 inserted")

	out = mustRun(t, "stats", "-db", db)
	assertContains(t, out, "₹1,420.00", "₹473.33", "15 Jan 2024", "25 Jan 2024", "Weekend")

	out = mustRun(t, "year-wise", "-db", db)
	assertContains(t, out, "2024", "₹1,420.00")

	out = mustRun(t, "month-wise", "-db", db, "2024")
	assertContains(t, out, "Jan 2024", "₹1,420.00")

	out = mustRun(t, "month-wise", "2023", "-db", db)
	assertContains(t, out, "No orders in this period.")

	out = mustRun(t, "month-wise", "-db", db, "-month", "1", "2024")
	assertContains(t, out, "ORD123456", "ORD123458", "₹1,420.00")

	out = mustRun(t, "restaurants", "-db", db, "-name", "Biryani House")
	assertContains(t, out, "ORD123457", "₹680.00")
	if strings.Contains(out, "ORD123456") {
		t.Errorf("restaurants -name listed another restaurant's order:\n%s", out)
	}

	out = mustRun(t, "restaurants", "-db", db, "-n", "2")
	assertContains(t, out, "Biryani House", "Dominoes Pizza")
	if strings.Contains(out, "Cafe Coffee Day") {
		t.Errorf("restaurants -n 2 listed a third restaurant:\n%s", out)
	}

	out = mustRun(t, "query", "-list", "-db", db)
	assertContains(t, out, "monthly_spend", "weekday_weekend_split")

	out = mustRun(t, "query", "monthly_spend", "-db", db)
	assertContains(t, out, "2024-01", "1420.00")

	if code, _, _ := execute(t, "query", "no_such_query", "-db", db); code != exitUsage {
		t.Errorf("query no_such_query exit code = %d, want %d", code, exitUsage)
	}

	exportPath := filepath.Join(dir, "reports", "orders.csv")
	out = mustRun(t, "export", exportPath, "-db", db)
	assertContains(t, out, "Exported 3 orders", "(csv)")
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	assertContains(t, string(data), "order_id", "ORD123457", "Biryani House")

	if code, _, _ := execute(t, "export", exportPath, "-format", "pdf", "-db", db); code != exitUsage {
		t.Errorf("export -format pdf exit code = %d, want %d", code, exitUsage)
	}

	out = mustRun(t, "ingest", archive, "-db", db)
	assertContains(t, out, "Inserted: 0", "Updated: 3", "Skipped: 1")

	out = mustRun(t, "ingest", archive, "-since-last-run", "-db", db)
	assertContains(t, out, "Inserted: 0", "Updated: 0", "Skipped: 4")

	out = mustRun(t, "stats", "-db", db)
	assertContains(t, out, "₹1,420.00")
}
