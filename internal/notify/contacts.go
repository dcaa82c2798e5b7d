package notify

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/pavelanni/examreport/internal/model"
)

// ContactWriter stores guardian contacts.
type ContactWriter interface {
	UpsertContact(c model.Contact) error
}

// Contact list columns.
const (
	colStudentID = "Student ID"
	colName      = "Guardian Name"
	colEmail     = "Guardian Email"
)

// ImportContacts reads a contact list with columns Student ID, Guardian
// Name (optional) and Guardian Email. Rows without an email, or whose email
// is not a single bare address, are skipped.
func ImportContacts(r io.Reader, w ContactWriter) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return 0, fmt.Errorf("contact list is empty")
	}
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, req := range []string{colStudentID, colEmail} {
		if _, ok := pos[req]; !ok {
			return 0, fmt.Errorf("contact list: missing required column %q", req)
		}
	}
	nameCol, hasName := pos[colName]

	n := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		c := model.Contact{
			StudentID: strings.TrimSpace(row[pos[colStudentID]]),
			Email:     strings.TrimSpace(row[pos[colEmail]]),
		}
		if hasName {
			c.Name = strings.TrimSpace(row[nameCol])
		}
		if c.StudentID == "" || c.Email == "" {
			continue
		}
		if !validEmail(c.Email) {
			slog.Warn("skipping contact with invalid email", "line", line, "student_id", c.StudentID)
			continue
		}
		if err := w.UpsertContact(c); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	return n, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Name == "" && addr.Address == s
}
