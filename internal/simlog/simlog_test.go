package simlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAppendAndSummarize(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PREDICTOR_LOG_DIR", dir)

	entries := []Entry{
		{ID: "a", Trend: "UP", EntryPrice: 100, ExitPrice: 110, ProfitPct: 10, Success: true},
		{ID: "b", Trend: "UP", EntryPrice: 100, ExitPrice: 95, ProfitPct: -5, Success: false},
		{ID: "c", Trend: "DOWN", EntryPrice: 100, ExitPrice: 90, ProfitPct: 10, Success: true},
	}
	for _, e := range entries {
		if err := Append(e); err != nil {
			t.Fatal(err)
		}
	}

	path, err := SummarizeToday()
	if err != nil {
		t.Fatal(err)
	}
	if path == "" {
		t.Fatal("Expected a report path")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	// header, DOWN, UP, TOTAL
	if len(rows) != 4 {
		t.Fatalf("Expected 4 CSV rows, got %d", len(rows))
	}
	if rows[1][0] != "DOWN" || rows[1][1] != "1" {
		t.Errorf("Unexpected DOWN row: %v", rows[1])
	}
	if rows[2][0] != "UP" || rows[2][1] != "2" || rows[2][2] != "1" {
		t.Errorf("Unexpected UP row: %v", rows[2])
	}
	if rows[3][0] != "TOTAL" || rows[3][1] != "3" {
		t.Errorf("Unexpected TOTAL row: %v", rows[3])
	}
}

func TestSummarizeNothingLogged(t *testing.T) {
	t.Setenv("PREDICTOR_LOG_DIR", t.TempDir())
	path, err := SummarizeToday()
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Errorf("Expected no report without log entries, got %s", path)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PREDICTOR_LOG_DIR", dir)

	old := filepath.Join(dir, "2020-01-01.txt")
	if err := os.WriteFile(old, []byte(`{"id":"x"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	if err := CompressOlder(7); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected the old plain file removed")
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Error("Expected a gzipped replacement")
	}

	// Zero retention disables compression entirely.
	fresh := filepath.Join(dir, "fresh.txt")
	if err := os.WriteFile(fresh, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CompressOlder(0); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Retention 0 must leave files alone")
	}
}

func TestAppendSetsTimestamp(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PREDICTOR_LOG_DIR", dir)

	if err := Append(Entry{ID: "ts", Trend: "UP"}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dailyFilepath(time.Now().UTC()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"time":"`) {
		t.Error("Expected the append to stamp the entry time")
	}
}
