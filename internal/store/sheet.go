package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SheetRow is one row of a synced sheet, keyed by student, subject, date
// and the input file the record came from. Two inputs of the same subject
// in one batch therefore keep separate rows.
type SheetRow struct {
	StudentID  string
	Subject    string
	UploadDate string
	SourceFile string
	Cells      []string
}

// UpsertSheetRows appends new rows to a sheet and overwrites rows whose key
// already exists. The header row is replaced on every call.
func (s *Store) UpsertSheetRows(sheet string, headers []string, rows []SheetRow) (inserted, updated int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	hdr, err := json.Marshal(headers)
	if err != nil {
		return 0, 0, err
	}
	if _, err := tx.Exec(
		`INSERT INTO sheet_headers (sheet, headers) VALUES (?, ?)
		 ON CONFLICT(sheet) DO UPDATE SET headers = ?`,
		sheet, string(hdr), string(hdr),
	); err != nil {
		return 0, 0, fmt.Errorf("write headers: %w", err)
	}

	now := time.Now()
	for _, r := range rows {
		cells, err := json.Marshal(r.Cells)
		if err != nil {
			return 0, 0, err
		}
		var exists int
		err = tx.QueryRow(
			`SELECT 1 FROM sheet_rows
			 WHERE sheet = ? AND student_id = ? AND subject = ? AND upload_date = ? AND source_file = ?`,
			sheet, r.StudentID, r.Subject, r.UploadDate, r.SourceFile,
		).Scan(&exists)
		switch {
		case err == sql.ErrNoRows:
			inserted++
		case err != nil:
			return 0, 0, err
		default:
			updated++
		}
		if _, err := tx.Exec(
			`INSERT INTO sheet_rows (sheet, student_id, subject, upload_date, source_file, cells, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(sheet, student_id, subject, upload_date, source_file) DO UPDATE SET cells = ?, updated_at = ?`,
			sheet, r.StudentID, r.Subject, r.UploadDate, r.SourceFile, string(cells), now, string(cells), now,
		); err != nil {
			return 0, 0, fmt.Errorf("upsert row %s: %w", r.StudentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

// SheetRows returns a sheet's header and rows ordered by date, then student.
func (s *Store) SheetRows(sheet string) ([]string, [][]string, error) {
	var hdr string
	err := s.db.QueryRow(`SELECT headers FROM sheet_headers WHERE sheet = ?`, sheet).Scan(&hdr)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	var headers []string
	if err := json.Unmarshal([]byte(hdr), &headers); err != nil {
		return nil, nil, fmt.Errorf("decode headers: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY upload_date, student_id, subject, source_file`, sheet)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, cells)
	}
	return headers, out, rows.Err()
}
