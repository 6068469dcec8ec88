/*
handlers.go - HTTP API handlers for the documentation tracker

PURPOSE:
  Exposes the review and edit operations of catalog.Service and the
  ingestion trigger over REST. Handlers parse the request, call the
  service, and serialize the result; no business rule lives here.

ENDPOINTS:
  Documents (every read takes ?view=, default "Tous les documents"):
    GET    /api/documents                  Rows of a view
    POST   /api/documents                  Create a line by hand
    PATCH  /api/documents/{id}             Update supplied columns
    GET    /api/documents/search?q=        Order number, project or supplier
    GET    /api/documents/status?value=    Rows with a status
    GET    /api/documents/dates?column=&status=&days=&reverse=&empty=
    GET    /api/documents/priority/{name}  prio_doc | prio_relance
    GET    /api/documents/export.csv       CSV download

  Reference:
    GET    /api/views                      Available views
    GET    /api/statuses                   Statuses in use and editable ones

  Ingestion:
    POST   /api/ingestion/run              Run an ingestion now
    GET    /api/ingestion/runs?limit=      Run history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown view or column
  - 404: Row or preset not found
  - 409: Duplicate identifier, ingestion already running
  - 500: Persistence errors
  - 503: Ingestion not configured

SECURITY NOTE:
  No authentication. The API is meant for the document cell's network.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - catalog/service.go: the operations
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/celluledoc/docflow/catalog"
	"github.com/celluledoc/docflow/ingest"
	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/store/sqlstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Ingester runs an ingestion unless one is already running.
type Ingester interface {
	TryRun(ctx context.Context) (ingest.Summary, error)
}

// RunLister reads the ingestion history.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]sqlstore.IngestionRun, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog  *catalog.Service
	Ingester Ingester  // optional
	Runs     RunLister // optional
	Log      logrus.FieldLogger
}

// NewHandler creates a handler. ing and runs may be nil.
func NewHandler(svc *catalog.Service, ing Ingester, runs RunLister, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{Catalog: svc, Ingester: ing, Runs: runs, Log: log}
}

const defaultRunsLimit = 50

// =============================================================================
// DOCUMENT READS
// =============================================================================

// ListDocuments returns the rows of a view.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	res, err := h.Catalog.GetAll(r.Context(), r.URL.Query().Get("view"))
	h.writeResult(w, res, err)
}

// SearchDocuments runs the free-text search.
func (h *Handler) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Catalog.Search(r.Context(), q.Get("q"), q.Get("view"))
	h.writeResult(w, res, err)
}

// FilterByStatus returns rows with one status.
func (h *Handler) FilterByStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.Catalog.FilterByStatus(r.Context(), q.Get("value"), q.Get("view"))
	h.writeResult(w, res, err)
}

// FilterByDate applies the date filter built from the query string.
func (h *Handler) FilterByDate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.DateFilter{
		Column:       reconcile.Column(q.Get("column")),
		Status:       q.Get("status"),
		RequireEmpty: reconcile.Column(q.Get("empty")),
	}

	ve := &reconcile.ValidationError{}
	if s := q.Get("days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil {
			ve.Add("days", "must be a whole number")
		} else {
			f.DaysLimit = &days
		}
	}
	if s := q.Get("reverse"); s != "" {
		rev, err := strconv.ParseBool(s)
		if err != nil {
			ve.Add("reverse", "must be true or false")
		}
		f.Reverse = rev
	}
	if err := ve.OrNil(); err != nil {
		h.writeServiceError(w, "Invalid date filter", err)
		return
	}

	res, err := h.Catalog.FilterByDate(r.Context(), f, q.Get("view"))
	h.writeResult(w, res, err)
}

// Priority runs a named preset.
func (h *Handler) Priority(w http.ResponseWriter, r *http.Request) {
	res, err := h.Catalog.Priority(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("view"))
	h.writeResult(w, res, err)
}

// ExportCSV streams the view as CSV.
func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.Catalog.ExportCSV(r.Context(), r.URL.Query().Get("view"), &buf); err != nil {
		h.writeServiceError(w, "Failed to export documents", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="documents.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// DOCUMENT WRITES
// =============================================================================

// CreateDocument inserts a line typed in by hand.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req catalog.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id, err := h.Catalog.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, "Failed to create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// UpdateDocument sets the columns present in the body. A JSON null clears
// a column.
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "Nothing to update", nil)
		return
	}

	ve := &reconcile.ValidationError{}
	fields := make(map[reconcile.Column]reconcile.Value, len(body))
	for name, raw := range body {
		v, err := fromJSON(raw)
		if err != nil {
			ve.Add(name, err.Error())
			continue
		}
		fields[reconcile.Column(name)] = v
	}
	if err := ve.OrNil(); err != nil {
		h.writeServiceError(w, "Failed to update document", err)
		return
	}

	found, err := h.Catalog.Update(r.Context(), id, fields)
	if err != nil {
		h.writeServiceError(w, "Failed to update document", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Document not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated": true})
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// ListViews returns the views in display order.
func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"views": h.Catalog.Views()})
}

// ListStatuses returns the statuses found in the table and the editable
// ones.
func (h *Handler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	values, err := h.Catalog.StatusValues(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list statuses", err)
		return
	}
	if values == nil {
		values = []string{}
	}
	writeJSON(w, http.StatusOK, StatusesResponse{Statuses: values, Editable: catalog.EditableStatuses})
}

// =============================================================================
// INGESTION
// =============================================================================

// TriggerIngestion runs an ingestion and returns its summary.
// POST /api/ingestion/run
func (h *Handler) TriggerIngestion(w http.ResponseWriter, r *http.Request) {
	if h.Ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "Ingestion is not configured", nil)
		return
	}
	sum, err := h.Ingester.TryRun(r.Context())
	if err != nil {
		h.writeServiceError(w, "Ingestion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(sum))
}

// ListIngestionRuns returns the latest run records.
// GET /api/ingestion/runs
func (h *Handler) ListIngestionRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []IngestionRunDTO{}})
		return
	}
	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "Failed to get ingestion runs", err)
		return
	}
	dtos := make([]IngestionRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toIngestionRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeResult(w http.ResponseWriter, res catalog.Result, err error) {
	if err != nil {
		h.writeServiceError(w, "Failed to load documents", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentsResponse(res))
}

// writeServiceError maps service errors to HTTP statuses.
func (h *Handler) writeServiceError(w http.ResponseWriter, message string, err error) {
	var ve *reconcile.ValidationError
	switch {
	case errors.As(err, &ve):
		details := make([]FieldErrorDTO, len(ve.Fields))
		for i, f := range ve.Fields {
			details[i] = FieldErrorDTO{Field: f.Field, Message: f.Message}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "validation", Details: details})
	case errors.Is(err, reconcile.ErrUnknownView), errors.Is(err, reconcile.ErrUnknownColumn):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, reconcile.ErrNotFound), errors.Is(err, catalog.ErrUnknownPreset):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, reconcile.ErrDuplicateID):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Code: "duplicate", Details: err.Error()})
	case errors.Is(err, ingest.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Code: "running", Details: err.Error()})
	default:
		h.Log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
