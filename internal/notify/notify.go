// Package notify sends score notices to student guardians.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pavelanni/examreport/internal/llm"
	"github.com/pavelanni/examreport/internal/llm/prompts"
	"github.com/pavelanni/examreport/internal/model"
)

// Message is one notice addressed to one guardian.
type Message struct {
	StudentID string
	To        string
	ToName    string
	Subject   string
	Body      string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// ContactSource resolves guardian contacts for a student.
type ContactSource interface {
	ContactsFor(studentID string) ([]model.Contact, error)
}

// Drafter writes notice text. *llm.Client satisfies it.
type Drafter interface {
	DraftNotice(ctx context.Context, data prompts.NoticeData) (*llm.Draft, error)
}

// SubjectNamer returns a display name for a subject code.
type SubjectNamer func(model.Subject) string

// Summary counts the outcome of a notify run.
type Summary struct {
	Sent    int
	Drafted int // messages written by the drafter rather than the template
	Skipped int // students without contacts
	Failed  int
}

// Service composes and delivers notices.
type Service struct {
	Contacts ContactSource
	Mailer   Mailer
	Drafter  Drafter // optional
	Names    SubjectNamer
	Tone     prompts.Tone
	School   string
	Language string
}

// Notify sends one notice per (record, contact). Students without contacts
// are skipped; delivery failures are counted and the run continues.
func (s *Service) Notify(ctx context.Context, records []model.Record) (Summary, error) {
	if err := prompts.Load(); err != nil {
		return Summary{}, fmt.Errorf("load templates: %w", err)
	}
	if s.Tone == "" {
		s.Tone = prompts.ToneStandard
	}

	var sum Summary
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		contacts, err := s.Contacts.ContactsFor(r.StudentID)
		if err != nil {
			return sum, fmt.Errorf("contacts for %s: %w", r.StudentID, err)
		}
		if len(contacts) == 0 {
			slog.Debug("no guardian contact", "student_id", r.StudentID)
			sum.Skipped++
			continue
		}
		for _, c := range contacts {
			msg, drafted, err := s.compose(ctx, r, c)
			if err != nil {
				slog.Error("compose notice failed", "student_id", r.StudentID, "error", err)
				sum.Failed++
				continue
			}
			if err := s.Mailer.Send(ctx, msg); err != nil {
				slog.Error("send notice failed", "student_id", r.StudentID, "to", c.Email, "error", err)
				sum.Failed++
				continue
			}
			if drafted {
				sum.Drafted++
			}
			sum.Sent++
		}
	}
	slog.Info("notices processed", "sent", sum.Sent, "drafted", sum.Drafted, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

func (s *Service) compose(ctx context.Context, r model.Record, c model.Contact) (Message, bool, error) {
	data := s.noticeData(r, c)
	msg := Message{
		StudentID: r.StudentID,
		To:        c.Email,
		ToName:    c.Name,
		Subject:   fmt.Sprintf("%s results: %s", data.SubjectName, data.StudentName),
	}

	if s.Drafter != nil {
		d, err := s.Drafter.DraftNotice(ctx, data)
		if err == nil {
			if d.Subject != "" {
				msg.Subject = d.Subject
			}
			msg.Body = d.Body
			return msg, true, nil
		}
		slog.Warn("LLM draft failed, using template", "student_id", r.StudentID, "error", err)
	}

	body, err := prompts.BuildNotice(s.Tone, data)
	if err != nil {
		return Message{}, false, err
	}
	msg.Body = body
	return msg, false, nil
}

func (s *Service) noticeData(r model.Record, c model.Contact) prompts.NoticeData {
	score := "not available"
	if r.ScaledScore != nil {
		score = strconv.Itoa(*r.ScaledScore)
	}
	subject := string(r.Subject)
	if s.Names != nil {
		subject = s.Names(r.Subject)
	}
	return prompts.NoticeData{
		GuardianName: c.Name,
		StudentName:  r.FirstName + " " + r.LastName,
		SubjectName:  subject,
		UploadDate:   r.UploadDate,
		Correct:      r.Correct,
		Score:        score,
		School:       s.School,
		Language:     s.Language,
	}
}
