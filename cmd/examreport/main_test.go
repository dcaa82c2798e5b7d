package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/examreport/internal/report"
	"github.com/pavelanni/examreport/internal/store"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "m1.csv",
		"Student ID,First Name,Last Name,Quiz Name,Q1,Q2\n7,Ana,Diaz,Ensayo M1E8,1,1\n")
	bad := writeFile(t, dir, "bad.csv", "Name\nx\n")
	out := filepath.Join(dir, "out.csv")
	db := filepath.Join(dir, "test.db")

	cmd := rootCmd()
	cmd.SetArgs([]string{"convert", "--date", "2024-05-10", "-o", out, "--save", "--db", db, "--log-level", "error", good, bad})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("convert: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := report.ReadCSV(f)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(records) != 1 || records[0].StudentID != "7" || records[0].Correct != 2 || records[0].UploadDate != "2024-05-10" {
		t.Errorf("records = %+v", records)
	}
	if records[0].ScaledScore == nil || *records[0].ScaledScore != 150 {
		t.Errorf("score = %v, want 150", records[0].ScaledScore)
	}

	s, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	reports, err := s.ListReports(5)
	if err != nil || len(reports) != 1 || reports[0].RecordCount != 1 {
		t.Errorf("stored reports = %+v, %v", reports, err)
	}
}

func TestConvertCommandSkipsUnreadablePath(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.csv",
		"Student ID,First Name,Last Name,Quiz Name,Q1,Q2\n7,Ana,Diaz,Ensayo M1E8,1,0\n")
	missing := filepath.Join(dir, "gone.csv")
	out := filepath.Join(dir, "out.csv")

	cmd := rootCmd()
	cmd.SetArgs([]string{"convert", "--date", "2024-05-10", "-o", out, "--log-level", "error", good, missing})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("convert: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := report.ReadCSV(f)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(records) != 1 || records[0].StudentID != "7" || records[0].Correct != 1 {
		t.Errorf("records = %+v", records)
	}
}

func TestConvertCommandFailsWhenNothingProcessed(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.csv", "Name\nx\n")

	cmd := rootCmd()
	cmd.SetArgs([]string{"convert", "--date", "2024-05-10", "-o", filepath.Join(dir, "out.csv"), "--log-level", "error", bad})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no input") {
		t.Errorf("expected failure, got %v", err)
	}
}

func TestConvertCommandRejectsBadDate(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"convert", "--date", "2024-13-01", "x.csv"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected invalid date error")
	}
}

func TestSyncCommandRequiresSheet(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"sync", "--report", "abc", "--db", filepath.Join(t.TempDir(), "test.db")})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "sheet") {
		t.Errorf("expected missing --sheet error, got %v", err)
	}
}

func TestTableCommandUnknownSubject(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"table", "--log-level", "error", "HIST9"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected unknown subject error")
	}
}
