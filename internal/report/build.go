package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examreport/internal/model"
)

// ParseDate checks that s is a calendar date in model.DateLayout.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid upload date %q: want YYYY-MM-DD", s)
	}
	return t.Format(model.DateLayout), nil
}

// Build assembles a batch and wraps the outcome as a new report.
func (a *Assembler) Build(inputs []Input, uploadDate string) model.Report {
	return NewReport(a.AssembleBatch(inputs, uploadDate), uploadDate)
}

// NewReport wraps assembled results as a new report with a fresh ID.
func NewReport(results []model.InputResult, uploadDate string) model.Report {
	records, _ := Combine(results)
	return model.Report{
		ID:          uuid.NewString(),
		UploadDate:  uploadDate,
		CreatedAt:   time.Now().UTC(),
		Inputs:      Summaries(results),
		Records:     records,
		RecordCount: len(records),
	}
}
