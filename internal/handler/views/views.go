// Package views renders the HTML pages of the report UI. Pages are templ
// components; run `templ generate` after editing a .templ file.
package views

import (
	"context"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/examreport/internal/i18n"
	"github.com/pavelanni/examreport/internal/model"
)

const (
	// previewRows caps the preview table on the report page.
	previewRows = 200
	timeLayout  = "2006-01-02 15:04"
)

// link prefixes path with the deployment base path.
func link(ctx context.Context, path string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + path)
}

func reportTitle(ctx context.Context, rep model.Report) string {
	return i18n.Td(ctx, "ReportN", map[string]any{"ID": shortID(rep.ID)})
}

func syncStatus(ctx context.Context, r model.Report) string {
	if r.SyncedAt == nil {
		return i18n.T(ctx, "NotSynced")
	}
	return i18n.Td(ctx, "SyncedAt", map[string]any{"Time": r.SyncedAt.Format(timeLayout)})
}

func scoreText(ctx context.Context, r model.Record) string {
	if r.ScaledScore == nil {
		return i18n.T(ctx, "ScoreMissing")
	}
	return strconv.Itoa(*r.ScaledScore)
}

func preview(records []model.Record) []model.Record {
	if len(records) > previewRows {
		return records[:previewRows]
	}
	return records
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
