package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"

	"github.com/pavelanni/examreport/internal/handler/views"
	"github.com/pavelanni/examreport/internal/i18n"
	"github.com/pavelanni/examreport/internal/model"
	"github.com/pavelanni/examreport/internal/report"
	"github.com/pavelanni/examreport/internal/scale"
	"github.com/pavelanni/examreport/internal/sheet"
	"github.com/pavelanni/examreport/internal/store"
)

const (
	// recentReports is how many reports the index page lists.
	recentReports = 20
	reportTTL     = 10 * time.Minute
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	asm    *report.Assembler
	tables *scale.Tables
	sink   sheet.Sink
	config model.AppConfig
	now    func() time.Time

	// reports caches loaded reports by ID for the page, download and sync
	// requests that follow an upload. Cached values are never mutated.
	reports *cache.Cache
}

// New creates a new Handler. sink may be nil, in which case sync requests
// are rejected.
func New(s *store.Store, tables *scale.Tables, sink sheet.Sink, cfg model.AppConfig) (*Handler, error) {
	asm, err := report.NewAssembler(tables, cfg.Columns)
	if err != nil {
		return nil, err
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}
	return &Handler{
		store:   s,
		asm:     asm,
		tables:  tables,
		sink:    sink,
		config:  cfg,
		now:     time.Now,
		reports: cache.New(reportTTL, 2*reportTTL),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Post("/reports", h.handleUpload)
	r.Get("/reports/{reportID}", h.handleReport)
	r.Get("/reports/{reportID}/csv", h.handleDownload)
	r.Post("/reports/{reportID}/sync", h.handleSync)
	r.Get("/tables", h.handleTables)
	r.Get("/healthz", h.handleHealth)
}

// BasePathMiddleware stores the configured base path in the request context
// so views can build links.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, "")
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	reports, err := h.store.ListReports(recentReports)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defaultDate := ""
	if h.config.DefaultToday {
		defaultDate = h.now().Format(model.DateLayout)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.IndexPage(reports, defaultDate, errMsg).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.config.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.renderIndex(w, r, http.StatusRequestEntityTooLarge, i18n.T(r.Context(), "UploadTooLarge"))
			return
		}
		h.renderIndex(w, r, http.StatusBadRequest, i18n.T(r.Context(), "NoFiles"))
		return
	}

	uploadDate, err := report.ParseDate(r.FormValue("upload_date"))
	if err != nil {
		h.renderIndex(w, r, http.StatusBadRequest, i18n.T(r.Context(), "InvalidDate"))
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		h.renderIndex(w, r, http.StatusBadRequest, i18n.T(r.Context(), "NoFiles"))
		return
	}

	inputs := make([]report.Input, 0, len(files))
	for _, fh := range files {
		data, err := readUpload(fh)
		inputs = append(inputs, report.Input{Name: fh.Filename, Data: data, Err: err})
	}

	results := h.asm.AssembleBatch(inputs, uploadDate)
	h.recordHashes(results)

	rep := report.NewReport(results, uploadDate)
	if err := h.store.SaveReport(rep); err != nil {
		slog.Error("failed to save report", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.reports.Set(rep.ID, &rep, cache.DefaultExpiration)
	slog.Info("report created", "id", rep.ID, "inputs", len(rep.Inputs),
		"failed", len(rep.Failures()), "records", rep.RecordCount)

	http.Redirect(w, r, h.config.BasePath+"/reports/"+rep.ID, http.StatusSeeOther)
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// recordHashes remembers each input's content hash and warns when the same
// content was uploaded before under that name. Records are never deduplicated.
func (h *Handler) recordHashes(results []model.InputResult) {
	for _, res := range results {
		if res.FileHash == "" {
			continue
		}
		prev, err := h.store.GetImportedFileHash(res.Name)
		if err != nil {
			slog.Error("failed to check upload history", "file", res.Name, "error", err)
			continue
		}
		if prev == res.FileHash {
			slog.Warn("file uploaded before with identical content", "file", res.Name)
		}
		if err := h.store.SetImportedFileHash(res.Name, res.FileHash); err != nil {
			slog.Error("failed to record upload", "file", res.Name, "error", err)
		}
	}
}

// loadReport fetches the report named in the URL, writing a 404 or 500
// response when it cannot.
func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*model.Report, bool) {
	id := chi.URLParam(r, "reportID")
	if v, ok := h.reports.Get(id); ok {
		return v.(*model.Report), true
	}
	rep, err := h.store.GetReport(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, i18n.T(r.Context(), "ReportNotFound"), http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	h.reports.Set(id, rep, cache.DefaultExpiration)
	return rep, true
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(*rep, "", h.sink != nil).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	name := fmt.Sprintf("report-%s.csv", rep.UploadDate)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := report.WriteCSV(w, rep.Records); err != nil {
		slog.Error("failed to write CSV", "id", rep.ID, "error", err)
	}
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		http.Error(w, "no sheet configured", http.StatusServiceUnavailable)
		return
	}
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}

	res, err := h.sink.Sync(r.Context(), report.Headers, rep.Records)
	if err != nil {
		slog.Error("sheet sync failed", "id", rep.ID, "error", err)
		http.Error(w, "sheet sync failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	at := h.now().UTC()
	if err := h.store.MarkSynced(rep.ID, at); err != nil {
		slog.Error("failed to mark report synced", "id", rep.ID, "error", err)
	} else {
		synced := *rep
		synced.SyncedAt = &at
		h.reports.Set(rep.ID, &synced, cache.DefaultExpiration)
		rep = &synced
	}
	slog.Info("report synced", "id", rep.ID, "appended", res.Appended, "updated", res.Updated)

	notice := i18n.Td(r.Context(), "SyncDone", map[string]any{"Appended": res.Appended, "Updated": res.Updated})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ReportPage(*rep, notice, true).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleTables(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.TablesPage(h.tables.All()).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}
