package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examreport/internal/i18n"
	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/report"
	"github.com/pavelanni/examreport/internal/scale"
	"github.com/pavelanni/examreport/internal/sheet"
	"github.com/pavelanni/examreport/internal/store"
)

const goodCSV = "Student ID,First Name,Last Name,Quiz Name,Q1,Q2,Q3\n" +
	"11,Ana,Diaz,Ensayo CLE8,1,1,0\n" +
	"12,\"Soto, Luis\",Paz,Ensayo CLE8,0,0,0\n"

const badCSV = "First Name,Last Name,Quiz Name,Q1\nAna,Diaz,Ensayo CLE8,1\n"

type testServer struct {
	h      *Handler
	store  *store.Store
	router http.Handler
}

func newTestServer(t *testing.T, sink sheet.Sink, cfg model.AppConfig) *testServer {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	tables, err := scale.Default()
	if err != nil {
		t.Fatalf("scale.Default: %v", err)
	}
	cfg.Columns = model.DefaultColumns()
	h, err := New(s, tables, sink, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	return &testServer{h: h, store: s, router: r}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, date string, files map[string]string, order []string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write([]byte(files[name]))
	}
	if date != "" {
		_ = mw.WriteField("upload_date", date)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/reports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// upload posts the good and bad fixtures and returns the new report ID.
func (ts *testServer) upload(t *testing.T) string {
	t.Helper()
	rec := ts.do(uploadRequest(t, "2024-05-10",
		map[string]string{"good.csv": goodCSV, "bad.csv": badCSV}, []string{"good.csv", "bad.csv"}))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("upload status = %d, body:\n%s", rec.Code, rec.Body.String())
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/reports/") {
		t.Fatalf("Location = %q", loc)
	}
	return strings.TrimPrefix(loc, "/reports/")
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Upload quiz exports", `name="files"`, "No reports yet."} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}
}

func TestIndexSpanish(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es-CL")
	rec := ts.do(req)
	if !strings.Contains(rec.Body.String(), "Subir exportaciones de cuestionarios") {
		t.Error("expected Spanish upload title")
	}
}

func TestUploadKeepsGoodInputs(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	id := ts.upload(t)

	rep, err := ts.store.GetReport(id)
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if rep.RecordCount != 2 || len(rep.Inputs) != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if f := rep.Failures(); len(f) != 1 || f[0].Name != "bad.csv" || !strings.Contains(f[0].Error, "Student ID") {
		t.Errorf("failures = %+v", f)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("report page status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"2 records processed.", "1 input could not be processed.", "bad.csv", "Soto, Luis"} {
		if !strings.Contains(body, want) {
			t.Errorf("report page missing %q", want)
		}
	}

	hash, _ := ts.store.GetImportedFileHash("good.csv")
	if hash == "" {
		t.Error("expected upload hash to be recorded")
	}
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	tests := []struct {
		name  string
		date  string
		files []string
		want  string
	}{
		{"missing date", "", []string{"good.csv"}, "Upload date must be YYYY-MM-DD."},
		{"bad date", "10/05/2024", []string{"good.csv"}, "Upload date must be YYYY-MM-DD."},
		{"no files", "2024-05-10", nil, "Select at least one file."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(uploadRequest(t, tt.date, map[string]string{"good.csv": goodCSV}, tt.files))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
	reports, _ := ts.store.ListReports(10)
	if len(reports) != 0 {
		t.Errorf("rejected uploads created %d reports", len(reports))
	}
}

func TestDownloadCSV(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	id := ts.upload(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+id+"/csv", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report-2024-05-10.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	records, err := report.ReadCSV(rec.Body)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0].StudentID != "11" || records[0].Correct != 2 || records[0].ScaledScore == nil || *records[0].ScaledScore != 100 {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].FirstName != "Soto, Luis" || records[1].UploadDate != "2024-05-10" {
		t.Errorf("record 1 = %+v", records[1])
	}
}

func TestReportNotFound(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	for _, path := range []string{"/reports/nope", "/reports/nope/csv"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheet.csv")
	ts := newTestServer(t, &sheet.CSVFile{Path: path}, model.AppConfig{})
	id := ts.upload(t)

	rec := ts.do(httptest.NewRequest(http.MethodPost, "/reports/"+id+"/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body:\n%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Synced: 2 appended, 0 updated.") {
		t.Error("missing sync notice")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if !strings.HasPrefix(string(data), strings.Join(report.Headers, ",")) {
		t.Errorf("sheet does not start with the header:\n%s", data)
	}

	rep, _ := ts.store.GetReport(id)
	if rep.SyncedAt == nil {
		t.Error("expected report to be marked synced")
	}
}

func TestSyncWithoutSink(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})
	id := ts.upload(t)
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/reports/"+id+"/sync", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSyncButtonOnlyWithSink(t *testing.T) {
	tests := []struct {
		name string
		sink sheet.Sink
		want bool
	}{
		{"no sink", nil, false},
		{"csv sink", &sheet.CSVFile{Path: filepath.Join(t.TempDir(), "sheet.csv")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.sink, model.AppConfig{})
			id := ts.upload(t)
			rec := ts.do(httptest.NewRequest(http.MethodGet, "/reports/"+id, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := strings.Contains(rec.Body.String(), `action="/reports/`+id+`/sync"`)
			if got != tt.want {
				t.Errorf("sync form shown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTablesAndHealth(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{})

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/tables", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "M1E8") {
		t.Errorf("tables page status = %d", rec.Code)
	}

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestBasePathLinks(t *testing.T) {
	ts := newTestServer(t, nil, model.AppConfig{BasePath: "/scores"})
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `action="/scores/reports"`) {
		t.Error("form action should carry the base path")
	}
}
