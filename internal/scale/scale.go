// Package scale maps raw correct-answer counts to calibrated scale scores.
package scale

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/examreport/internal/model"
)

// Step is one (threshold, score) pair of a step table.
type Step struct {
	Correct int `json:"correct" mapstructure:"correct"`
	Score   int `json:"score" mapstructure:"score"`
}

// Table is a piecewise-constant mapping from correct-answer count to score.
// Steps are sorted by Correct, strictly increasing.
type Table struct {
	Subject model.Subject
	Name    string
	Aliases []string
	steps   []Step
}

// NewTable validates steps and returns a table for subject.
func NewTable(subject model.Subject, name string, steps []Step) (*Table, error) {
	if subject == "" {
		return nil, errors.New("subject code is required")
	}
	if subject == model.SubjectUnknown {
		return nil, fmt.Errorf("subject code %q is reserved", subject)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%s: no steps", subject)
	}
	if steps[0].Correct != 0 {
		return nil, fmt.Errorf("%s: first threshold must be 0, got %d", subject, steps[0].Correct)
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].Correct <= steps[i-1].Correct {
			return nil, fmt.Errorf("%s: thresholds must be strictly increasing (%d after %d)",
				subject, steps[i].Correct, steps[i-1].Correct)
		}
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return &Table{Subject: subject, Name: name, steps: cp}, nil
}

// Lookup returns the score of the greatest threshold <= correct.
// Counts below the first threshold get the first score and counts at or
// above the last threshold get the last score.
func (t *Table) Lookup(correct int) int {
	// index of first threshold > correct
	i := sort.Search(len(t.steps), func(i int) bool { return t.steps[i].Correct > correct })
	if i == 0 {
		return t.steps[0].Score
	}
	return t.steps[i-1].Score
}

// Steps returns a copy of the table's steps.
func (t *Table) Steps() []Step {
	cp := make([]Step, len(t.steps))
	copy(cp, t.steps)
	return cp
}

// MaxCorrect returns the largest threshold in the table.
func (t *Table) MaxCorrect() int { return t.steps[len(t.steps)-1].Correct }

// Tables is an immutable, ordered set of subject tables. The order is the
// priority used when inferring a subject from free text.
type Tables struct {
	order []*Table
	index map[model.Subject]*Table
}

// NewTables builds a table set; subject codes must be unique.
func NewTables(tables ...*Table) (*Tables, error) {
	ts := &Tables{index: make(map[model.Subject]*Table, len(tables))}
	for _, t := range tables {
		if _, dup := ts.index[t.Subject]; dup {
			return nil, fmt.Errorf("duplicate subject %s", t.Subject)
		}
		ts.index[t.Subject] = t
		ts.order = append(ts.order, t)
	}
	return ts, nil
}

// Get returns the table for subject.
func (ts *Tables) Get(subject model.Subject) (*Table, bool) {
	t, ok := ts.index[subject]
	return t, ok
}

// Subjects returns subject codes in priority order.
func (ts *Tables) Subjects() []model.Subject {
	out := make([]model.Subject, 0, len(ts.order))
	for _, t := range ts.order {
		out = append(out, t.Subject)
	}
	return out
}

// All returns the tables in priority order.
func (ts *Tables) All() []*Table {
	out := make([]*Table, len(ts.order))
	copy(out, ts.order)
	return out
}

// Convert returns the scaled score for correct answers in subject.
// ok is false when the subject has no table; that is not an error.
func (ts *Tables) Convert(correct int, subject model.Subject) (score int, ok bool) {
	t, found := ts.index[subject]
	if !found {
		return 0, false
	}
	return t.Lookup(correct), true
}

// Infer finds the subject named in free text such as a quiz name.
// Matching is a case-insensitive substring test against each subject's code
// and then its aliases, walking subjects in priority order; the first hit
// wins. Text matching nothing yields model.SubjectUnknown.
func (ts *Tables) Infer(text string) model.Subject {
	upper := strings.ToUpper(text)
	for _, t := range ts.order {
		if strings.Contains(upper, strings.ToUpper(string(t.Subject))) {
			return t.Subject
		}
		for _, a := range t.Aliases {
			if a != "" && strings.Contains(upper, strings.ToUpper(a)) {
				return t.Subject
			}
		}
	}
	return model.SubjectUnknown
}
