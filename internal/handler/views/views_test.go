package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/pavelanni/examreport/internal/i18n"
	"github.com/pavelanni/examreport/internal/model"
)

func render(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func TestIndexPageEscapes(t *testing.T) {
	ctx := model.ContextWithBasePath(context.Background(), "/scores")
	html := render(t, ctx, IndexPage(nil, "2024-05-10", `<script>alert(1)</script>`))

	if strings.Contains(html, "<script>") {
		t.Error("error message was not escaped")
	}
	for _, want := range []string{
		"&lt;script&gt;",
		`action="/scores/reports"`,
		`href="/scores/tables"`,
		`value="2024-05-10"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestReportPage(t *testing.T) {
	score := 400
	rep := model.Report{
		ID:          "0123456789abcdef",
		UploadDate:  "2024-05-10",
		RecordCount: previewRows + 5,
		Inputs: []model.InputSummary{
			{Name: "good.csv", Subject: "CLE8", Rows: previewRows + 5},
			{Name: "bad<1>.csv", Subject: model.SubjectUnknown, Error: `missing required column "Student ID"`},
		},
	}
	for i := 0; i < previewRows+5; i++ {
		rep.Records = append(rep.Records, model.Record{StudentID: "s", FirstName: "<b>Ana</b>", Subject: "CLE8", ScaledScore: &score})
	}
	rep.Records[0].ScaledScore = nil

	html := render(t, context.Background(), ReportPage(rep, "", false))

	for _, want := range []string{
		"Report 01234567",
		"bad&lt;1&gt;.csv",
		"&lt;b&gt;Ana&lt;/b&gt;",
		"n/a",
		`href="/reports/0123456789abcdef/csv"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report page missing %q", want)
		}
	}
	if strings.Contains(html, "/sync") {
		t.Error("sync form rendered without a sink")
	}
	if got := strings.Count(html, "&lt;b&gt;Ana"); got != previewRows {
		t.Errorf("preview rows = %d, want %d", got, previewRows)
	}

	html = render(t, context.Background(), ReportPage(rep, "done", true))
	if !strings.Contains(html, `action="/reports/0123456789abcdef/sync"`) {
		t.Error("sync form missing")
	}
}
