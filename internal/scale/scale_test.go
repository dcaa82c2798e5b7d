package scale

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/examreport/internal/model"
)

func loadDefaultTables(t *testing.T) *Tables {
	t.Helper()
	ts, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return ts
}

func TestConvertScenarios(t *testing.T) {
	ts := loadDefaultTables(t)

	tests := []struct {
		name    string
		subject model.Subject
		correct int
		want    int
	}{
		{"CLE8 between thresholds", "CLE8", 25, 400},
		{"M1E8 exact top threshold", "M1E8", 65, 750},
		{"M1E8 above question count", "M1E8", 70, 750},
		{"CLE8 zero", "CLE8", 0, 100},
		{"CLE8 negative clamps low", "CLE8", -3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ts.Convert(tt.correct, tt.subject)
			if !ok {
				t.Fatalf("Convert(%d, %s) reported unknown subject", tt.correct, tt.subject)
			}
			if got != tt.want {
				t.Errorf("Convert(%d, %s) = %d, want %d", tt.correct, tt.subject, got, tt.want)
			}
		})
	}
}

func TestConvertUnknownSubject(t *testing.T) {
	ts := loadDefaultTables(t)
	for _, s := range []model.Subject{model.SubjectUnknown, "", "HIST8"} {
		if score, ok := ts.Convert(30, s); ok {
			t.Errorf("Convert(30, %q) = %d, want absent", s, score)
		}
	}
}

func TestStepFunctionProperties(t *testing.T) {
	ts := loadDefaultTables(t)

	for _, tbl := range ts.All() {
		steps := tbl.Steps()
		t.Run(string(tbl.Subject), func(t *testing.T) {
			if steps[0].Correct != 0 {
				t.Fatalf("first threshold = %d, want 0", steps[0].Correct)
			}
			for c := -5; c < 0; c++ {
				if got := tbl.Lookup(c); got != steps[0].Score {
					t.Errorf("Lookup(%d) = %d, want %d", c, got, steps[0].Score)
				}
			}
			last := steps[len(steps)-1]
			for c := last.Correct; c < last.Correct+20; c++ {
				if got := tbl.Lookup(c); got != last.Score {
					t.Errorf("Lookup(%d) = %d, want top score %d", c, got, last.Score)
				}
			}
			for i := 0; i+1 < len(steps); i++ {
				for c := steps[i].Correct; c < steps[i+1].Correct; c++ {
					if got := tbl.Lookup(c); got != steps[i].Score {
						t.Errorf("Lookup(%d) = %d, want %d (threshold %d)", c, got, steps[i].Score, steps[i].Correct)
					}
				}
			}
		})
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		subject model.Subject
		steps   []Step
	}{
		{"empty", "X", nil},
		{"no code", "", []Step{{0, 1}}},
		{"reserved code", model.SubjectUnknown, []Step{{0, 1}}},
		{"first not zero", "X", []Step{{5, 1}, {10, 2}}},
		{"unsorted", "X", []Step{{0, 1}, {20, 2}, {10, 3}}},
		{"duplicate threshold", "X", []Step{{0, 1}, {10, 2}, {10, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.subject, "", tt.steps); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewTablesDuplicate(t *testing.T) {
	a, _ := NewTable("A", "", []Step{{0, 1}})
	b, _ := NewTable("A", "", []Step{{0, 2}})
	if _, err := NewTables(a, b); err == nil {
		t.Error("expected duplicate subject error")
	}
}

func TestInfer(t *testing.T) {
	ts := loadDefaultTables(t)

	tests := []struct {
		text string
		want model.Subject
	}{
		{"Ensayo CLE8 marzo", "CLE8"},
		{"ensayo m1e8", "M1E8"},
		{"M2E8 - segundo semestre", "M2E8"},
		{"Prueba FIS8", "FIS8"},
		{"bio8 final", "BIO8"},
		{"QUI8", "QUI8"},
		{"History midterm", model.SubjectUnknown},
		{"", model.SubjectUnknown},
		// Two codes present: the earlier subject in table order wins.
		{"QUI8 / CLE8 combined", "CLE8"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ts.Infer(tt.text); got != tt.want {
				t.Errorf("Infer(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	doc := `subjects:
  - code: HIST8
    name: History
    aliases: ["historia"]
    steps:
      - {correct: 0, score: 200}
      - {correct: 10, score: 500}
  - code: CLE8
    steps:
      - {correct: 0, score: 1}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	ts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ts.Subjects(); len(got) != 2 || got[0] != "HIST8" || got[1] != "CLE8" {
		t.Fatalf("Subjects() = %v, want [HIST8 CLE8]", got)
	}
	if got, _ := ts.Convert(12, "HIST8"); got != 500 {
		t.Errorf("Convert(12, HIST8) = %d, want 500", got)
	}
	if got, _ := ts.Convert(40, "CLE8"); got != 1 {
		t.Errorf("Convert(40, CLE8) = %d, want 1", got)
	}
	if _, ok := ts.Convert(40, "M1E8"); ok {
		t.Error("M1E8 should not exist in a replaced table set")
	}
	if got := ts.Infer("Prueba de Historia"); got != "HIST8" {
		t.Errorf("Infer via alias = %q, want HIST8", got)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"subjects":[{"code":"X","steps":[{"correct":3,"score":1}]}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for table not starting at 0")
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
