// Package report turns answer-sheet exports into normalized score records.
package report

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/scale"
)

// MissingColumnError reports a required identity column absent from an input.
type MissingColumnError struct {
	Input  string
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required column %q", e.Input, e.Column)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Input is one uploaded file. Err is set when the file could not be read;
// the input then fails without stopping the rest of the batch.
type Input struct {
	Name string
	Data []byte
	Err  error
}

// Assembler builds records from delimited exports.
type Assembler struct {
	tables    *scale.Tables
	cols      model.ColumnConfig
	indicator *regexp.Regexp
}

// NewAssembler creates an assembler using tables for conversion.
func NewAssembler(tables *scale.Tables, cols model.ColumnConfig) (*Assembler, error) {
	if tables == nil {
		return nil, errors.New("score tables are required")
	}
	if cols.IndicatorPrefix == "" {
		return nil, errors.New("indicator column prefix is required")
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(cols.IndicatorPrefix) + `(\d+)$`)
	if err != nil {
		return nil, fmt.Errorf("compile indicator pattern: %w", err)
	}
	return &Assembler{tables: tables, cols: cols, indicator: re}, nil
}

type indicatorColumn struct {
	index int // position in the row
	num   int // question number from the header
	name  string
}

// Assemble reads one delimited input and converts every row. Failures are
// returned inside the result, never as a panic or a batch error.
func (a *Assembler) Assemble(name string, r io.Reader, uploadDate string) model.InputResult {
	res := model.InputResult{Name: name, Subject: model.SubjectUnknown}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		res.Err = fmt.Errorf("%s: parse: %w", name, err)
		return res
	}
	if len(rows) == 0 {
		res.Err = fmt.Errorf("%s: empty file", name)
		return res
	}

	header := normalizeHeader(rows[0])
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, seen := pos[h]; !seen {
			pos[h] = i
		}
	}

	idCol, firstCol, lastCol := -1, -1, -1
	for _, req := range []struct {
		name string
		dst  *int
	}{
		{a.cols.StudentID, &idCol},
		{a.cols.FirstName, &firstCol},
		{a.cols.LastName, &lastCol},
	} {
		i, ok := pos[req.name]
		if !ok {
			res.Err = &MissingColumnError{Input: name, Column: req.name}
			return res
		}
		*req.dst = i
	}

	indicators := a.indicatorColumns(header)
	res.Columns = len(indicators)

	body := rows[1:]
	res.Subject = a.inferSubject(pos, body)

	records := make([]model.Record, 0, len(body))
	for n, row := range body {
		correct, err := sumIndicators(row, indicators)
		if err != nil {
			res.Err = fmt.Errorf("%s: row %d: %w", name, n+2, err)
			return res
		}
		rec := model.Record{
			StudentID:  row[idCol],
			FirstName:  row[firstCol],
			LastName:   row[lastCol],
			Correct:    correct,
			UploadDate: uploadDate,
			Subject:    res.Subject,
			SourceFile: name,
		}
		if score, ok := a.tables.Convert(correct, res.Subject); ok {
			rec.ScaledScore = &score
		}
		records = append(records, rec)
	}
	res.Records = records
	return res
}

// AssembleBatch processes inputs independently, in order.
func (a *Assembler) AssembleBatch(inputs []Input, uploadDate string) []model.InputResult {
	results := make([]model.InputResult, 0, len(inputs))
	for _, in := range inputs {
		if in.Err != nil {
			res := model.InputResult{Name: in.Name, Subject: model.SubjectUnknown,
				Err: fmt.Errorf("%s: read: %w", in.Name, in.Err)}
			slog.Warn("input skipped", "file", in.Name, "error", res.Err)
			results = append(results, res)
			continue
		}
		res := a.Assemble(in.Name, bytes.NewReader(bytes.TrimPrefix(in.Data, utf8BOM)), uploadDate)
		res.FileHash = hashBytes(in.Data)
		if res.Err != nil {
			slog.Warn("input skipped", "file", in.Name, "error", res.Err)
		} else {
			slog.Info("input assembled", "file", in.Name, "subject", res.Subject,
				"rows", len(res.Records), "questions", res.Columns)
		}
		results = append(results, res)
	}
	return results
}

// Combine concatenates the records of successful inputs and collects the
// failures, both in input order. No deduplication is performed.
func Combine(results []model.InputResult) ([]model.Record, []model.InputSummary) {
	var records []model.Record
	var failures []model.InputSummary
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, summarize(r))
			continue
		}
		records = append(records, r.Records...)
	}
	return records, failures
}

// Summaries describes every input of a batch, in order.
func Summaries(results []model.InputResult) []model.InputSummary {
	out := make([]model.InputSummary, 0, len(results))
	for _, r := range results {
		out = append(out, summarize(r))
	}
	return out
}

func summarize(r model.InputResult) model.InputSummary {
	s := model.InputSummary{Name: r.Name, Subject: r.Subject, Rows: len(r.Records)}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// IndicatorHeaders returns the indicator column names of header ordered by
// question number.
func (a *Assembler) IndicatorHeaders(header []string) []string {
	header = normalizeHeader(header)
	cols := a.indicatorColumns(header)
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, header[c.index])
	}
	return out
}

func (a *Assembler) indicatorColumns(header []string) []indicatorColumn {
	var cols []indicatorColumn
	for i, h := range header {
		m := a.indicator.FindStringSubmatch(h)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		cols = append(cols, indicatorColumn{index: i, num: num, name: h})
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].num < cols[j].num })
	return cols
}

// inferSubject reads the quiz name from the first data row only.
func (a *Assembler) inferSubject(pos map[string]int, body [][]string) model.Subject {
	i, ok := pos[a.cols.QuizName]
	if !ok || len(body) == 0 {
		return model.SubjectUnknown
	}
	return a.tables.Infer(body[0][i])
}

// maxIndicator bounds a single indicator cell. Exports mark a question with
// 0 or 1; anything far above that is corrupt data.
const maxIndicator = 1000

func sumIndicators(row []string, cols []indicatorColumn) (int, error) {
	var total float64
	for _, c := range cols {
		v := strings.TrimSpace(row[c.index])
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("column %s: indicator value %q is not numeric", c.name, v)
		}
		if f < 0 || f > maxIndicator || f != math.Trunc(f) {
			return 0, fmt.Errorf("column %s: indicator value %q is not a count between 0 and %d", c.name, v, maxIndicator)
		}
		total += f
	}
	return int(total), nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
