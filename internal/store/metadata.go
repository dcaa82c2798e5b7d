package store

import (
	"database/sql"
	"time"
)

// GetImportedFileHash returns the hash last recorded for an input name.
// Returns empty string and nil error if the name was never seen.
func (s *Store) GetImportedFileHash(name string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, name).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash upserts the hash recorded for an input name.
func (s *Store) SetImportedFileHash(name, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, imported_at = ?`,
		name, hash, time.Now(), hash, time.Now(),
	)
	return err
}
