package model

import (
	"context"
	"time"
)

// Subject is an exam subject code such as CLE8 or M1E8.
type Subject string

// SubjectUnknown marks an input whose quiz name matched no known subject.
const SubjectUnknown Subject = "UNKNOWN"

// DateLayout is the layout of upload dates in records and exports.
const DateLayout = "2006-01-02"

// Record is one student's normalized result.
type Record struct {
	StudentID   string `json:"student_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Correct     int    `json:"correct"`
	ScaledScore *int   `json:"scaled_score,omitempty"` // nil when the subject is unknown
	UploadDate  string `json:"upload_date"`

	// Not part of the CSV artifact.
	Subject    Subject `json:"subject"`
	SourceFile string  `json:"source_file"`
}

// InputResult is the outcome of assembling one uploaded input.
// Exactly one of Records or Err is meaningful.
type InputResult struct {
	Name     string
	Subject  Subject
	Columns  int // number of indicator columns found
	Records  []Record
	Err      error
	FileHash string
}

// OK reports whether the input was assembled successfully.
func (r InputResult) OK() bool { return r.Err == nil }

// InputSummary describes one input of a stored report.
type InputSummary struct {
	Name    string  `json:"name"`
	Subject Subject `json:"subject"`
	Rows    int     `json:"rows"`
	Error   string  `json:"error,omitempty"`
}

// Report is a processed batch of inputs.
type Report struct {
	ID          string         `json:"id"`
	UploadDate  string         `json:"upload_date"`
	CreatedAt   time.Time      `json:"created_at"`
	Inputs      []InputSummary `json:"inputs"`
	Records     []Record       `json:"records"`
	RecordCount int            `json:"record_count"`
	SyncedAt    *time.Time     `json:"synced_at,omitempty"`
}

// Failures returns the inputs that were dropped, in input order.
func (r Report) Failures() []InputSummary {
	var out []InputSummary
	for _, in := range r.Inputs {
		if in.Error != "" {
			out = append(out, in)
		}
	}
	return out
}

// Contact is a guardian contact for a student.
type Contact struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// ColumnConfig names the input columns the assembler looks for.
type ColumnConfig struct {
	StudentID       string
	FirstName       string
	LastName        string
	QuizName        string
	IndicatorPrefix string
}

// DefaultColumns returns the column names of a typical answer-sheet export.
func DefaultColumns() ColumnConfig {
	return ColumnConfig{
		StudentID:       "Student ID",
		FirstName:       "First Name",
		LastName:        "Last Name",
		QuizName:        "Quiz Name",
		IndicatorPrefix: "Q",
	}
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Columns      ColumnConfig
	BasePath     string // URL prefix for sub-path deployments
	MaxUploadMB  int
	SheetName    string // name of the sheet reports are synced to
	SchoolName   string // used in notices
	DefaultToday bool   // prefill the date selector with today's date
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
