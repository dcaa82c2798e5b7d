// Package sheet pushes normalized records to spreadsheet-like destinations.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/report"
	"github.com/pavelanni/examreport/internal/store"
)

// Sink accepts a normalized record set with its column headers.
type Sink interface {
	Sync(ctx context.Context, headers []string, records []model.Record) (Result, error)
}

// Result counts what a sync changed.
type Result struct {
	Appended int
	Updated  int
}

// RowUpserter is the storage a DB sheet writes to.
type RowUpserter interface {
	UpsertSheetRows(sheet string, headers []string, rows []store.SheetRow) (inserted, updated int, err error)
}

// DB is a sheet kept in the local database. Rows are keyed by student,
// subject, upload date and source file, so re-syncing a report updates
// instead of duplicating.
type DB struct {
	Name  string
	Store RowUpserter
}

// Sync implements Sink.
func (d *DB) Sync(ctx context.Context, headers []string, records []model.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	rows := make([]store.SheetRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, store.SheetRow{
			StudentID:  r.StudentID,
			Subject:    string(r.Subject),
			UploadDate: r.UploadDate,
			SourceFile: r.SourceFile,
			Cells:      report.Row(r),
		})
	}
	ins, upd, err := d.Store.UpsertSheetRows(d.Name, headers, rows)
	if err != nil {
		return Result{}, fmt.Errorf("sheet %s: %w", d.Name, err)
	}
	slog.Info("synced sheet", "sheet", d.Name, "appended", ins, "updated", upd)
	return Result{Appended: ins, Updated: upd}, nil
}

// CSVFile appends records to a CSV file, writing headers when the file is
// new or empty.
type CSVFile struct {
	Path string
}

// Sync implements Sink.
func (c *CSVFile) Sync(ctx context.Context, headers []string, records []model.Record) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f, err := os.OpenFile(c.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("open sheet file: %w", err)
	}
	defer f.Close()

	empty, err := isEmpty(f)
	if err != nil {
		return Result{}, err
	}

	w := csv.NewWriter(f)
	if empty {
		if err := w.Write(headers); err != nil {
			return Result{}, fmt.Errorf("write headers: %w", err)
		}
	}
	for _, r := range records {
		if err := w.Write(report.Row(r)); err != nil {
			return Result{}, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Result{}, err
	}
	slog.Info("appended to sheet file", "path", c.Path, "rows", len(records))
	return Result{Appended: len(records)}, nil
}

func isEmpty(f *os.File) (bool, error) {
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	return st.Size() == 0, nil
}

// Open returns a sink for target: a path ending in .csv selects a CSV file,
// anything else names a sheet in the database.
func Open(target string, db RowUpserter) (Sink, error) {
	if target == "" {
		return nil, errors.New("sheet target is required")
	}
	if strings.HasSuffix(strings.ToLower(target), ".csv") {
		return &CSVFile{Path: target}, nil
	}
	if db == nil {
		return nil, errors.New("database sheet requires a store")
	}
	return &DB{Name: target, Store: db}, nil
}
