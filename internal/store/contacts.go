package store

import (
	"log/slog"

	"github.com/pavelanni/examreport/internal/model"
)

// UpsertContact stores a guardian contact. Re-importing the same
// (student, email) pair updates the name.
func (s *Store) UpsertContact(c model.Contact) error {
	_, err := s.db.Exec(
		`INSERT INTO contacts (student_id, name, email) VALUES (?, ?, ?)
		 ON CONFLICT(student_id, email) DO UPDATE SET name = ?`,
		c.StudentID, c.Name, c.Email, c.Name,
	)
	if err != nil {
		slog.Error("failed to upsert contact", "student_id", c.StudentID, "error", err)
	}
	return err
}

// ContactsFor returns the guardian contacts of a student.
func (s *Store) ContactsFor(studentID string) ([]model.Contact, error) {
	rows, err := s.db.Query(
		`SELECT student_id, name, email FROM contacts WHERE student_id = ? ORDER BY id`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.StudentID, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ContactCount returns the total number of contacts.
func (s *Store) ContactCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}
