package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ArionMiles/foodspend/pkg/extractor"
	"github.com/ArionMiles/foodspend/pkg/logging"
	"github.com/ArionMiles/foodspend/pkg/reader/mbox"
	"github.com/ArionMiles/foodspend/pkg/sample"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"001_zomato_2024-01-15_Your order", "001_zomato_2024-01-15_Your_order"},
		{`a/b\c:d*e?f"g<h>i|j`, "a_b_c_d_e_f_g_h_i_j"},
		{"__lead  and trail__", "lead_and_trail"},
		{strings.Repeat("x", 250), strings.Repeat("x", 200)},
		// "₹" is three bytes; the 200 byte limit falls inside the 67th one.
		{strings.Repeat("₹", 80), strings.Repeat("₹", 66)},
		{"x" + strings.Repeat("é", 120), "x" + strings.Repeat("é", 99)},
	}
	for _, tt := range tests {
		got := sanitizeFilename(tt.in)
		if got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("sanitizeFilename(%q) produced invalid UTF-8", tt.in)
		}
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()

	broken := sample.Orders()[0]
	broken.Subject = "Your Zomato order ORD999999 is confirmed"
	broken.Body = strings.ReplaceAll(broken.Body, "Total Amount: ₹440.00", "Total Amount: pending")
	broken.Body = strings.ReplaceAll(broken.Body, "ORD123456", "ORD999999")

	archivePath := filepath.Join(dir, "orders.mbox")
	if err := sample.WriteFile(archivePath, append(sample.Default(), broken, broken)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	archive, err := mbox.Open(archivePath, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ruleSet, err := extractor.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules() error = %v", err)
	}
	var chain extractor.Chain
	for _, r := range ruleSet {
		chain = append(chain, extractor.New(r, time.UTC, logging.Discard()))
	}

	outDir := filepath.Join(dir, "dump")
	res, err := dump(context.Background(), archive, chain, options{dir: outDir, limit: 1}, logging.Discard())
	if err != nil {
		t.Fatalf("dump() error = %v", err)
	}

	if res.total != 6 || res.relevant != 5 || res.unparsed != 2 || res.dumped != 1 {
		t.Errorf("result = %+v, want 6 read, 5 relevant, 2 unparsed, 1 dumped", res)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dumped %d files, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "001_zomato_2024-01-15_") || !strings.HasSuffix(name, ".txt") {
		t.Errorf("file name = %q", name)
	}
	data, err := os.ReadFile(filepath.Join(outDir, name))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "Error: ") || !strings.Contains(string(data), "Total Amount: pending") {
		t.Errorf("sample file missing error or body:\n%s", data)
	}

	var out bytes.Buffer
	res.print(&out, outDir)
	if !strings.Contains(out.String(), "  2 - Your Zomato order ORD999999 is confirmed") {
		t.Errorf("grouped subjects missing:\n%s", out.String())
	}
}
