package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/examreport/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		upload_date TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		synced_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS report_inputs (
		report_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		name TEXT NOT NULL,
		subject TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (report_id, seq),
		FOREIGN KEY (report_id) REFERENCES reports(id)
	);

	CREATE TABLE IF NOT EXISTS report_records (
		report_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		student_id TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		correct INTEGER NOT NULL,
		scaled_score INTEGER,
		upload_date TEXT NOT NULL,
		subject TEXT NOT NULL,
		source_file TEXT NOT NULL,
		PRIMARY KEY (report_id, seq),
		FOREIGN KEY (report_id) REFERENCES reports(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		UNIQUE (student_id, email)
	);

	CREATE TABLE IF NOT EXISTS sheet_rows (
		sheet TEXT NOT NULL,
		student_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		upload_date TEXT NOT NULL,
		source_file TEXT NOT NULL DEFAULT '',
		cells TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (sheet, student_id, subject, upload_date, source_file)
	);

	CREATE TABLE IF NOT EXISTS sheet_headers (
		sheet TEXT PRIMARY KEY,
		headers TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveReport stores a processed batch with its inputs and records.
func (s *Store) SaveReport(rep model.Report) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO reports (id, upload_date, created_at) VALUES (?, ?, ?)`,
		rep.ID, rep.UploadDate, rep.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for i, in := range rep.Inputs {
		if _, err := tx.Exec(
			`INSERT INTO report_inputs (report_id, seq, name, subject, row_count, error) VALUES (?, ?, ?, ?, ?, ?)`,
			rep.ID, i, in.Name, in.Subject, in.Rows, in.Error,
		); err != nil {
			return fmt.Errorf("insert input %s: %w", in.Name, err)
		}
	}

	for i, r := range rep.Records {
		if _, err := tx.Exec(
			`INSERT INTO report_records
			 (report_id, seq, student_id, first_name, last_name, correct, scaled_score, upload_date, subject, source_file)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.ID, i, r.StudentID, r.FirstName, r.LastName, r.Correct, r.ScaledScore, r.UploadDate, r.Subject, r.SourceFile,
		); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetReport loads a report by ID. Returns sql.ErrNoRows if not found.
func (s *Store) GetReport(id string) (*model.Report, error) {
	rep := model.Report{ID: id}
	var synced sql.NullTime
	err := s.db.QueryRow(
		`SELECT upload_date, created_at, synced_at FROM reports WHERE id = ?`, id,
	).Scan(&rep.UploadDate, &rep.CreatedAt, &synced)
	if err != nil {
		return nil, err
	}
	if synced.Valid {
		rep.SyncedAt = &synced.Time
	}

	rows, err := s.db.Query(
		`SELECT name, subject, row_count, error FROM report_inputs WHERE report_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var in model.InputSummary
		if err := rows.Scan(&in.Name, &in.Subject, &in.Rows, &in.Error); err != nil {
			return nil, err
		}
		rep.Inputs = append(rep.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rep.Records, err = s.GetRecords(id)
	if err != nil {
		return nil, err
	}
	rep.RecordCount = len(rep.Records)
	return &rep, nil
}

// GetRecords returns a report's records in their original order.
func (s *Store) GetRecords(reportID string) ([]model.Record, error) {
	rows, err := s.db.Query(
		`SELECT student_id, first_name, last_name, correct, scaled_score, upload_date, subject, source_file
		 FROM report_records WHERE report_id = ? ORDER BY seq`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.Record
	for rows.Next() {
		var r model.Record
		var score sql.NullInt64
		if err := rows.Scan(&r.StudentID, &r.FirstName, &r.LastName, &r.Correct, &score, &r.UploadDate, &r.Subject, &r.SourceFile); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			r.ScaledScore = &v
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListReports returns the most recent reports, newest first, without records.
func (s *Store) ListReports(limit int) ([]model.Report, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.upload_date, r.created_at, r.synced_at,
		        (SELECT COUNT(*) FROM report_records rr WHERE rr.report_id = r.id)
		 FROM reports r ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var reports []model.Report
	for rows.Next() {
		var rep model.Report
		var synced sql.NullTime
		if err := rows.Scan(&rep.ID, &rep.UploadDate, &rep.CreatedAt, &synced, &rep.RecordCount); err != nil {
			return nil, err
		}
		if synced.Valid {
			rep.SyncedAt = &synced.Time
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// MarkSynced records when a report was pushed to a sheet.
func (s *Store) MarkSynced(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE reports SET synced_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
