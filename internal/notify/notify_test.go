package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/examreport/internal/llm"
	"github.com/pavelanni/examreport/internal/llm/prompts"
	"github.com/pavelanni/examreport/internal/model"
)

type mapContacts map[string][]model.Contact

func (m mapContacts) ContactsFor(id string) ([]model.Contact, error) { return m[id], nil }

func (m mapContacts) UpsertContact(c model.Contact) error {
	m[c.StudentID] = append(m[c.StudentID], c)
	return nil
}

type recordingMailer struct {
	sent []Message
	fail map[string]bool
}

func (r *recordingMailer) Send(_ context.Context, m Message) error {
	if r.fail[m.To] {
		return errors.New("smtp down")
	}
	r.sent = append(r.sent, m)
	return nil
}

type fakeDrafter struct{ err error }

func (f fakeDrafter) DraftNotice(_ context.Context, d prompts.NoticeData) (*llm.Draft, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Draft{Subject: "Drafted", Body: "Draft for " + d.StudentName}, nil
}

func intp(v int) *int { return &v }

func testRecords() []model.Record {
	return []model.Record{
		{StudentID: "1", FirstName: "Ana", LastName: "Diaz", Correct: 25, ScaledScore: intp(400), UploadDate: "2024-05-10", Subject: "CLE8"},
		{StudentID: "2", FirstName: "Luis", LastName: "Soto", Correct: 3, UploadDate: "2024-05-10", Subject: model.SubjectUnknown},
		{StudentID: "3", FirstName: "Eva", LastName: "Paz", Correct: 9, ScaledScore: intp(100), UploadDate: "2024-05-10", Subject: "CLE8"},
	}
}

func testContacts() mapContacts {
	return mapContacts{
		"1": {{StudentID: "1", Name: "Maria Diaz", Email: "maria@example.com"}, {StudentID: "1", Email: "pedro@example.com"}},
		"2": {{StudentID: "2", Name: "Rosa Soto", Email: "rosa@example.com"}},
	}
}

func TestNotifyTemplate(t *testing.T) {
	m := &recordingMailer{}
	svc := &Service{
		Contacts: testContacts(),
		Mailer:   m,
		School:   "Liceo Norte",
		Names: func(s model.Subject) string {
			if s == "CLE8" {
				return "Reading comprehension"
			}
			return string(s)
		},
	}

	sum, err := svc.Notify(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sum.Sent != 3 || sum.Skipped != 1 || sum.Failed != 0 || sum.Drafted != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if len(m.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(m.sent))
	}
	first := m.sent[0]
	if first.To != "maria@example.com" || !strings.Contains(first.Subject, "Reading comprehension") {
		t.Errorf("first message = %+v", first)
	}
	if !strings.Contains(first.Body, "400") || !strings.Contains(first.Body, "Ana Diaz") {
		t.Errorf("body missing result:\n%s", first.Body)
	}
	if !strings.Contains(m.sent[2].Body, "not available") {
		t.Errorf("unknown subject should say score is not available:\n%s", m.sent[2].Body)
	}
}

func TestNotifyDrafterAndFallback(t *testing.T) {
	m := &recordingMailer{}
	svc := &Service{Contacts: testContacts(), Mailer: m, Drafter: fakeDrafter{}}
	sum, err := svc.Notify(context.Background(), testRecords()[:1])
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sum.Drafted != 2 || m.sent[0].Subject != "Drafted" || m.sent[0].Body != "Draft for Ana Diaz" {
		t.Errorf("summary = %+v, first = %+v", sum, m.sent[0])
	}

	m = &recordingMailer{}
	svc = &Service{Contacts: testContacts(), Mailer: m, Drafter: fakeDrafter{err: errors.New("timeout")}}
	sum, err = svc.Notify(context.Background(), testRecords()[:1])
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sum.Sent != 2 || sum.Drafted != 0 {
		t.Errorf("summary = %+v, want template fallback", sum)
	}
	if !strings.Contains(m.sent[0].Body, "Ana Diaz") {
		t.Errorf("fallback body:\n%s", m.sent[0].Body)
	}
}

func TestNotifyContinuesAfterSendFailure(t *testing.T) {
	m := &recordingMailer{fail: map[string]bool{"maria@example.com": true}}
	svc := &Service{Contacts: testContacts(), Mailer: m}
	sum, err := svc.Notify(context.Background(), testRecords())
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sum.Failed != 1 || sum.Sent != 2 {
		t.Errorf("summary = %+v, want 1 failed / 2 sent", sum)
	}
}

func readOutbox(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	var msgs []string
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		msgs = append(msgs, string(data))
	}
	return msgs
}

func TestOutbox(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	o := &Outbox{
		Dir:  dir,
		From: "school@example.com",
		Now:  func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) },
	}
	err := o.Send(context.Background(), Message{
		StudentID: "12/34", To: "maria@example.com", ToName: "Maria",
		Subject: "Results\nBcc: evil@example.com", Body: "line1\nline2",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("outbox entries = %v, %v", entries, err)
	}
	if !strings.HasPrefix(entries[0].Name(), "12_34-") || !strings.HasSuffix(entries[0].Name(), ".eml") {
		t.Errorf("file name = %q", entries[0].Name())
	}
	msg := readOutbox(t, dir)[0]
	for _, want := range []string{
		"school@example.com",
		"<maria@example.com>",
		"Date: Fri, 10 May 2024 09:00:00 +0000",
		"line1",
		"line2",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	for _, line := range strings.Split(msg, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") {
			t.Errorf("subject text became a header line:\n%s", msg)
		}
	}

	if err := o.Send(context.Background(), Message{StudentID: "1"}); err == nil {
		t.Error("expected error for missing recipient")
	}
}

func TestOutboxRejectsHeaderInRecipient(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	o := &Outbox{Dir: dir, From: "school@example.com"}

	for _, name := range []string{"", "Maria"} {
		err := o.Send(context.Background(), Message{
			StudentID: "7", To: "maria@example.com\nBcc: attacker@evil.test", ToName: name,
			Subject: "Results", Body: "hi",
		})
		if err == nil {
			t.Errorf("name %q: expected invalid recipient error", name)
		}
	}
	if _, err := os.Stat(dir); err == nil {
		if msgs := readOutbox(t, dir); len(msgs) != 0 {
			t.Errorf("expected no messages written, got %d", len(msgs))
		}
	}
}

func TestOutboxEncodesSubject(t *testing.T) {
	dir := t.TempDir()
	o := &Outbox{Dir: dir}
	err := o.Send(context.Background(), Message{
		StudentID: "7", To: "jose@example.com", ToName: "José Núñez",
		Subject: "Matemáticas: José Núñez", Body: "Puntaje: 550",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	msgs := readOutbox(t, dir)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	header, _, _ := strings.Cut(msgs[0], "\r\n\r\n")
	if strings.Contains(header, "Matemáticas") {
		t.Errorf("subject written as raw 8-bit text:\n%s", header)
	}
	if !strings.Contains(strings.ToLower(header), "=?utf-8?") {
		t.Errorf("subject not RFC 2047 encoded:\n%s", header)
	}
}

func TestImportContacts(t *testing.T) {
	data := "Student ID,Guardian Name,Guardian Email\n" +
		"1,Maria Diaz,maria@example.com\n" +
		"2,,rosa@example.com\n" +
		"3,No Email,\n" +
		"4,Injected,\"maria@example.com\nBcc: attacker@evil.test\"\n" +
		"5,Two,\"a@example.com, b@example.com\"\n" +
		"6,Display,Rosa <rosa@example.com>\n"
	c := mapContacts{}
	n, err := ImportContacts(strings.NewReader(data), c)
	if err != nil {
		t.Fatalf("ImportContacts: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}
	if c["1"][0].Name != "Maria Diaz" || c["2"][0].Email != "rosa@example.com" {
		t.Errorf("contacts = %+v", c)
	}
	for _, id := range []string{"4", "5", "6"} {
		if len(c[id]) != 0 {
			t.Errorf("student %s: invalid email imported: %+v", id, c[id])
		}
	}

	if _, err := ImportContacts(strings.NewReader("Student ID,Name\n1,x\n"), mapContacts{}); err == nil {
		t.Error("expected missing column error")
	}
	if _, err := ImportContacts(strings.NewReader(""), mapContacts{}); err == nil {
		t.Error("expected empty list error")
	}
}
