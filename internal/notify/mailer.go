package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

// LogMailer writes messages to the structured log instead of sending them.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(_ context.Context, m Message) error {
	slog.Info("notice", "student_id", m.StudentID, "to", m.To, "subject", m.Subject, "body", m.Body)
	return nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Outbox writes each message as an .eml file in Dir for a mail client or
// relay to pick up.
type Outbox struct {
	Dir  string
	From string
	Now  func() time.Time
}

// Send implements Mailer. Addresses are validated and headers encoded by
// go-mail, so recipient or subject text cannot add header lines.
func (o *Outbox) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.To == "" {
		return fmt.Errorf("message for %s has no recipient", m.StudentID)
	}
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	msg := mail.NewMsg()
	if o.From != "" {
		if err := msg.From(o.From); err != nil {
			return fmt.Errorf("from address: %w", err)
		}
	}
	var err error
	if m.ToName != "" {
		err = msg.AddToFormat(m.ToName, m.To)
	} else {
		err = msg.To(m.To)
	}
	if err != nil {
		return fmt.Errorf("recipient for %s: %w", m.StudentID, err)
	}
	msg.Subject(headerSafe(m.Subject))
	msg.SetDateWithValue(now())
	msg.SetBodyString(mail.TypeTextPlain, m.Body)

	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("create outbox: %w", err)
	}
	name := fmt.Sprintf("%s-%s.eml", unsafeName.ReplaceAllString(m.StudentID, "_"), uuid.NewString()[:8])
	path := filepath.Join(o.Dir, name)
	if err := msg.WriteToFile(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	slog.Debug("notice written", "path", path)
	return nil
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
