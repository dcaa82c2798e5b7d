package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

var tagRegex = regexp.MustCompile(`(?i)</?\s*result-data\b[^>]*>`)

// Tone selects the wording of guardian notices.
type Tone string

const (
	// ToneFormal is a formal letter.
	ToneFormal Tone = "formal"
	// ToneStandard is the default tone.
	ToneStandard Tone = "standard"
	// ToneBrief is a one-line summary.
	ToneBrief Tone = "brief"
)

var validTones = map[Tone]bool{
	ToneFormal:   true,
	ToneStandard: true,
	ToneBrief:    true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	noticeTemplates map[Tone]*template.Template
	draftTemplates  map[Tone]*template.Template
)

// IsValidTone checks if a tone name is valid.
func IsValidTone(v string) bool {
	return validTones[Tone(v)]
}

// NoticeData holds template data for notices and drafting prompts.
type NoticeData struct {
	GuardianName string
	StudentName  string
	SubjectName  string
	UploadDate   string
	Correct      int
	Score        string
	School       string
	Language     string
}

// Load parses the embedded templates once.
func Load() error {
	loadOnce.Do(func() {
		noticeTemplates, loadErr = parseAll(templateFS, "notice")
		if loadErr != nil {
			return
		}
		draftTemplates, loadErr = parseAll(templateFS, "draft")
	})
	return loadErr
}

func parseAll(fsys fs.FS, kind string) (map[Tone]*template.Template, error) {
	out := make(map[Tone]*template.Template, len(validTones))
	for _, t := range []Tone{ToneFormal, ToneStandard, ToneBrief} {
		name := "templates/" + kind + "_" + string(t) + ".txt"
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
		}
		tmpl, err := template.New(kind).Parse(string(content))
		if err != nil {
			return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
		}
		out[t] = tmpl
	}
	return out, nil
}

// BuildNotice renders the plain notice body for tone.
func BuildNotice(tone Tone, data NoticeData) (string, error) {
	return render(noticeTemplates, tone, data)
}

// BuildDraftPrompt renders the instructions sent to the LLM for tone.
// Free-text fields are stripped of delimiter tags first.
func BuildDraftPrompt(tone Tone, data NoticeData) (string, error) {
	data.GuardianName = sanitize(data.GuardianName)
	data.StudentName = sanitize(data.StudentName)
	data.SubjectName = sanitize(data.SubjectName)
	data.School = sanitize(data.School)
	if data.Language == "" {
		data.Language = "English"
	}
	return render(draftTemplates, tone, data)
}

func render(set map[Tone]*template.Template, tone Tone, data NoticeData) (string, error) {
	if set == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := set[tone]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid tone: " + string(tone))
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitize(s string) string {
	return strings.TrimSpace(tagRegex.ReplaceAllString(s, ""))
}
