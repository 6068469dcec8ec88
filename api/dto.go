/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the API. Documents travel as column-keyed objects using
  the canonical column names, the same names the CSV export and the
  create request use.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Response: Complex response wrappers

VALUES:
  null -> null, text -> string, number -> JSON number, date -> "yyyy-mm-dd"

SEE ALSO:
  - handlers.go: Uses these types
  - catalog/service.go: CreateRequest is decoded directly
*/
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/celluledoc/docflow/catalog"
	"github.com/celluledoc/docflow/ingest"
	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/store/sqlstore"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// DocumentsResponse is a view's rows.
type DocumentsResponse struct {
	View    string           `json:"view"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

func toDocumentsResponse(res catalog.Result) DocumentsResponse {
	out := DocumentsResponse{
		View:    res.View.Name,
		Columns: make([]string, len(res.Columns)),
		Rows:    make([]map[string]any, 0, len(res.Rows)),
		Count:   len(res.Rows),
	}
	for i, c := range res.Columns {
		out.Columns[i] = string(c)
	}
	for _, r := range res.Rows {
		m := make(map[string]any, len(res.Columns))
		for _, c := range res.Columns {
			if c == reconcile.ColID {
				m[string(c)] = r.ID
				continue
			}
			m[string(c)] = jsonValue(r.Field(c))
		}
		out.Rows = append(out.Rows, m)
	}
	return out
}

func jsonValue(v reconcile.Value) any {
	switch v.Kind() {
	case reconcile.KindText:
		return v.Raw()
	case reconcile.KindNumber:
		return json.Number(v.Decimal().String())
	case reconcile.KindDate:
		return v.String()
	default:
		return nil
	}
}

// fromJSON converts a PATCH body value. Numbers must be decoded with
// UseNumber.
func fromJSON(raw any) (reconcile.Value, error) {
	switch v := raw.(type) {
	case nil:
		return reconcile.Null(), nil
	case string:
		return reconcile.Text(v), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return reconcile.Null(), fmt.Errorf("invalid number %s", v)
		}
		return reconcile.Number(d), nil
	default:
		return reconcile.Null(), fmt.Errorf("must be a string, a number or null")
	}
}

// CreatedResponse acknowledges a manual create.
type CreatedResponse struct {
	ID string `json:"id"`
}

// StatusesResponse lists statuses present in the table and those an
// operator may pick.
type StatusesResponse struct {
	Statuses []string `json:"statuses"`
	Editable []string `json:"editable"`
}

// =============================================================================
// INGESTION
// =============================================================================

// FileResultDTO is one format of a run.
type FileResultDTO struct {
	Format     string `json:"format"`
	Source     string `json:"source,omitempty"`
	Status     string `json:"status"`
	Read       int    `json:"read"`
	Kept       int    `json:"kept"`
	Discarded  int    `json:"discarded"`
	Rejected   int    `json:"rejected"`
	Ineligible int    `json:"ineligible"`
	Duplicates int    `json:"duplicates"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Issues     int    `json:"issues"`
	Error      string `json:"error,omitempty"`
}

// RunSummaryDTO is the outcome of a triggered run.
type RunSummaryDTO struct {
	RunID    string          `json:"run_id"`
	Started  string          `json:"started"`
	Duration string          `json:"duration"`
	Failed   int             `json:"failed"`
	Files    []FileResultDTO `json:"files"`
}

func toRunSummaryDTO(s ingest.Summary) RunSummaryDTO {
	out := RunSummaryDTO{
		RunID:    s.RunID,
		Started:  s.Started.Format(time.RFC3339),
		Duration: s.Duration.Round(time.Millisecond).String(),
		Failed:   s.Failed(),
		Files:    make([]FileResultDTO, 0, len(s.Files)),
	}
	for _, f := range s.Files {
		dto := FileResultDTO{
			Format:     f.Kind,
			Source:     f.Source,
			Status:     f.Status,
			Read:       f.Batch.Read,
			Kept:       len(f.Batch.Rows),
			Discarded:  f.Batch.Discarded,
			Rejected:   f.Batch.Rejected,
			Ineligible: f.Batch.Ineligible,
			Duplicates: f.Batch.Duplicates,
			Inserted:   f.Applied.Inserted,
			Updated:    f.Applied.Updated,
			Issues:     len(f.Issues),
		}
		if f.Err != nil {
			dto.Error = f.Err.Error()
		}
		out.Files = append(out.Files, dto)
	}
	return out
}

// IngestionRunDTO is a stored run record.
type IngestionRunDTO struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	Format     string `json:"format"`
	Source     string `json:"source,omitempty"`
	Status     string `json:"status"`
	Read       int    `json:"read"`
	Inserted   int    `json:"inserted"`
	Updated    int    `json:"updated"`
	Issues     int    `json:"issues"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
}

func toIngestionRunDTO(r sqlstore.IngestionRun) IngestionRunDTO {
	return IngestionRunDTO{
		ID:         r.ID,
		RunID:      r.RunID,
		Format:     r.Format,
		Source:     r.Source,
		Status:     r.Status,
		Read:       r.Read,
		Inserted:   r.Inserted,
		Updated:    r.Updated,
		Issues:     r.Issues,
		Error:      r.Error,
		StartedAt:  r.StartedAt.Format(time.RFC3339),
		FinishedAt: r.FinishedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldErrorDTO is one rejected field of a validation error.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
