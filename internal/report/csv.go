package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/pavelanni/examreport/internal/model"
)

// Headers are the columns of the downloadable report, in order.
var Headers = []string{"Student ID", "First Name", "Last Name", "Correct", "Scaled Score", "Upload Date"}

// Row projects a record onto Headers. An absent score is an empty cell.
func Row(r model.Record) []string {
	score := ""
	if r.ScaledScore != nil {
		score = strconv.Itoa(*r.ScaledScore)
	}
	return []string{r.StudentID, r.FirstName, r.LastName, strconv.Itoa(r.Correct), score, r.UploadDate}
}

// WriteCSV writes records as the downloadable report.
func WriteCSV(w io.Writer, records []model.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("write row %s: %w", r.StudentID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a report written by WriteCSV. Only the six report fields
// are restored.
func ReadCSV(r io.Reader) ([]model.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Headers)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("parse report: missing header")
	}
	for i, h := range Headers {
		if rows[0][i] != h {
			return nil, fmt.Errorf("parse report: column %d is %q, want %q", i+1, rows[0][i], h)
		}
	}

	records := make([]model.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		correct, err := strconv.Atoi(row[3])
		if err != nil {
			return nil, fmt.Errorf("parse report: row %d: correct: %w", n+2, err)
		}
		rec := model.Record{
			StudentID:  row[0],
			FirstName:  row[1],
			LastName:   row[2],
			Correct:    correct,
			UploadDate: row[5],
		}
		if row[4] != "" {
			score, err := strconv.Atoi(row[4])
			if err != nil {
				return nil, fmt.Errorf("parse report: row %d: scaled score: %w", n+2, err)
			}
			rec.ScaledScore = &score
		}
		records = append(records, rec)
	}
	return records, nil
}
