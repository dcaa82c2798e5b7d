package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Exam Report" {
		t.Errorf("T(AppTitle) = %q, want 'Exam Report'", got)
	}
	if got := T(ctx, "DownloadCSV"); got != "Download CSV" {
		t.Errorf("T(DownloadCSV) = %q, want 'Download CSV'", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "AppTitle"); got != "Informe de evaluaciones" {
		t.Errorf("T(AppTitle) = %q, want 'Informe de evaluaciones'", got)
	}
	if got := T(ctx, "DownloadCSV"); got != "Descargar CSV" {
		t.Errorf("T(DownloadCSV) = %q, want 'Descargar CSV'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "RecordsProcessed", 1); got != "1 record processed." {
		t.Errorf("Tp(RecordsProcessed, 1) = %q", got)
	}
	if got := Tp(ctx, "RecordsProcessed", 5); got != "5 records processed." {
		t.Errorf("Tp(RecordsProcessed, 5) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "SyncDone", map[string]any{"Appended": 3, "Updated": 1})
	if got != "Synced: 3 appended, 1 updated." {
		t.Errorf("Td(SyncDone) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestNegotiate(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	tests := []struct {
		name  string
		prefs []string
		want  string
	}{
		{"none", nil, "en"},
		{"accept header", []string{"", "es-CL,es;q=0.9,en;q=0.5"}, "es"},
		{"query wins", []string{"en", "es-CL"}, "en"},
		{"unsupported", []string{"", "ja"}, "en"},
		{"garbage", []string{"!!", ""}, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Negotiate(tt.prefs...); got != tt.want {
				t.Errorf("Negotiate(%v) = %q, want %q", tt.prefs, got, tt.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "NavUpload")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Subir" {
		t.Errorf("NavUpload = %q, want 'Subir'", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "es")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Upload" {
		t.Errorf("NavUpload = %q, want 'Upload'", got)
	}
}
