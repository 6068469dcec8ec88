/*
service.go - Review and edit operations on the documents table

PURPOSE:
  The operations the document cell uses day to day: browse a view, search,
  filter by status or date, create a line by hand, edit a line, export.
  Every operation runs inside a View (see views.go) and goes through the
  Gateway, so the same service works against SQLite, PostgreSQL or memory.

MANUAL EDITS:
  Unlike ingestion, an operator may set any non-key column, NULL included.
  Choosing a status that has a milestone (see status.go) stamps that
  milestone with today's date.

CREATE:
  The identifier is NUMERO_COMMANDE + LIGNE + RELEASE + NUMERO_PROJET, built
  by reconcile.BuildID like ingestion builds it (numeric-looking parts lose
  leading zeros and fractions), so a line typed in by hand is matched when
  it later shows up in an extract.

SEE ALSO:
  - export.go: CSV export
  - legacy.go: one-shot import of the historical tracking workbook
  - api/handlers.go: HTTP surface
*/
package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/celluledoc/docflow/reconcile"
)

// ErrUnknownPreset is returned for an unknown priority preset.
var ErrUnknownPreset = errors.New("unknown priority preset")

// =============================================================================
// SERVICE
// =============================================================================

// Service implements the interactive operations over one table.
type Service struct {
	gw       reconcile.Gateway
	table    string
	views    *Views
	clock    reconcile.Clock
	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewService creates a service. A nil clock means the wall clock.
func NewService(gw reconcile.Gateway, table string, views *Views, clock reconcile.Clock, log logrus.FieldLogger) *Service {
	if views == nil {
		views = NewViews()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		gw:       gw,
		table:    table,
		views:    views,
		clock:    clock,
		validate: validate,
		log:      log.WithField("table", table),
	}
}

// Result is the outcome of a read: the view's columns in table order and
// the matching rows.
type Result struct {
	View    View
	Columns []reconcile.Column
	Rows    []reconcile.Row
}

// Views lists the available views.
func (s *Service) Views() []View {
	return s.views.All()
}

func (s *Service) query(ctx context.Context, viewName string, q reconcile.Query) (Result, error) {
	res, err := s.empty(ctx, viewName)
	if err != nil {
		return Result{}, err
	}
	res.Rows, err = s.gw.Select(ctx, s.table, q.And(res.View.Conditions()...))
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// empty returns the view and its columns without rows.
func (s *Service) empty(ctx context.Context, viewName string) (Result, error) {
	view, err := s.views.Get(viewName)
	if err != nil {
		return Result{}, err
	}
	cols, err := s.gw.Columns(ctx, s.table)
	if err != nil {
		return Result{}, err
	}
	res := Result{View: view}
	for _, c := range cols {
		if c == reconcile.ColID && !view.IncludesID() {
			continue
		}
		res.Columns = append(res.Columns, c)
	}
	return res, nil
}

// =============================================================================
// READS
// =============================================================================

// GetAll returns every row of the view.
func (s *Service) GetAll(ctx context.Context, view string) (Result, error) {
	return s.query(ctx, view, reconcile.Query{})
}

// Search interprets term the way the operators type it: only digits is an
// order number, digits mixed with letters is part of a project number,
// anything else is part of a supplier name. Blank returns the whole view.
func (s *Service) Search(ctx context.Context, term, view string) (Result, error) {
	term = strings.TrimSpace(term)
	var cond reconcile.Cond
	switch {
	case term == "":
		return s.GetAll(ctx, view)
	case isDigits(term):
		n, ok := reconcile.Text(term).AsInt()
		if !ok {
			// too large for any stored order number
			return s.empty(ctx, view)
		}
		cond = reconcile.Eq(reconcile.ColOrderNumber, reconcile.Int(n))
	case strings.IndexFunc(term, unicode.IsDigit) >= 0:
		cond = reconcile.Contains(reconcile.ColProjectNumber, term)
	default:
		cond = reconcile.Contains(reconcile.ColSupplier, term)
	}
	return s.query(ctx, view, reconcile.Where(cond))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// FilterByStatus returns the rows of the view with the given status.
// StatusInProgress also matches rows without a status.
func (s *Service) FilterByStatus(ctx context.Context, status, view string) (Result, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		ve := &reconcile.ValidationError{}
		ve.Add("status", "required")
		return Result{}, ve
	}
	return s.query(ctx, view, reconcile.Where(statusCond(status)))
}

// DateFilter combines the date criteria of FilterByDate. Every field is
// optional.
type DateFilter struct {
	// Column is the date column bounded by DaysLimit and sorted on.
	Column reconcile.Column
	Status string
	// DaysLimit keeps rows whose Column is on or before today-DaysLimit,
	// or on or after it when Reverse is set.
	DaysLimit *int
	// Reverse flips the bound and sorts newest first.
	Reverse bool
	// RequireEmpty keeps rows where this column is NULL.
	RequireEmpty reconcile.Column
}

// FilterByDate applies f to the view.
func (s *Service) FilterByDate(ctx context.Context, f DateFilter, view string) (Result, error) {
	ve := &reconcile.ValidationError{}
	if f.Column != "" && !isDateColumn(f.Column) {
		ve.Add("column", fmt.Sprintf("%s is not a date column", f.Column))
	}
	if f.DaysLimit != nil && f.Column == "" {
		ve.Add("days", "a date column is required")
	}
	if f.DaysLimit != nil && *f.DaysLimit < 0 {
		ve.Add("days", "must not be negative")
	}
	if f.RequireEmpty != "" && !reconcile.IsCanonical(f.RequireEmpty) {
		ve.Add("empty", fmt.Sprintf("unknown column %s", f.RequireEmpty))
	}
	if err := ve.OrNil(); err != nil {
		return Result{}, err
	}

	var q reconcile.Query
	if f.Status != "" {
		q = q.And(statusCond(f.Status))
	}
	if f.DaysLimit != nil {
		target := s.clock.Today().AddDate(0, 0, -*f.DaysLimit)
		if f.Reverse {
			q = q.And(reconcile.OnOrAfter(f.Column, target))
		} else {
			q = q.And(reconcile.OnOrBefore(f.Column, target))
		}
	}
	if f.RequireEmpty != "" {
		q = q.And(reconcile.IsNull(f.RequireEmpty))
	}
	if f.Column != "" {
		q = q.Sorted(f.Column, f.Reverse)
	}
	return s.query(ctx, view, q)
}

func isDateColumn(c reconcile.Column) bool {
	def, ok := reconcile.Lookup(c)
	return ok && def.Kind == reconcile.StoreDate
}

// Priority presets.
const (
	PriorityDocumentation = "prio_doc"
	PriorityReminder      = "prio_relance"
)

// Priority runs a preset date filter: lines in progress whose documentation
// came in at least a week ago, or lines still waiting for documentation by
// reception date.
func (s *Service) Priority(ctx context.Context, name, view string) (Result, error) {
	week := 7
	switch name {
	case PriorityDocumentation:
		return s.FilterByDate(ctx, DateFilter{
			Column:    reconcile.ColDocObtainedDate,
			Status:    StatusInProgress,
			DaysLimit: &week,
		}, view)
	case PriorityReminder:
		return s.FilterByDate(ctx, DateFilter{
			Column:       reconcile.ColReceptionDate,
			Status:       StatusAwaitingDoc,
			RequireEmpty: reconcile.ColDocObtainedDate,
		}, view)
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// StatusValues lists the distinct statuses in the table, NULL shown as
// StatusInProgress.
func (s *Service) StatusValues(ctx context.Context) ([]string, error) {
	values, err := s.gw.Distinct(ctx, s.table, reconcile.ColStatus)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		name := StatusInProgress
		if v.Valid() {
			name = v.String()
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// =============================================================================
// WRITES
// =============================================================================

// CreateRequest is a line entered by hand. Dates use yyyy-mm-dd.
type CreateRequest struct {
	ProjectNumber   string `json:"NUMERO_PROJET" validate:"required,max=20"`
	OrderNumber     string `json:"NUMERO_COMMANDE" validate:"required,number,max=18"`
	Line            string `json:"LIGNE" validate:"required,number,max=9"`
	Release         string `json:"RELEASE" validate:"required,max=5"`
	Supplier        string `json:"FOURNISSEUR" validate:"max=100"`
	ReceptionDate   string `json:"DATE_RECEPTION_MATERIEL" validate:"omitempty,datetime=2006-01-02"`
	DocObtainedDate string `json:"DATE_OBTENTION_DOC" validate:"omitempty,datetime=2006-01-02"`
	Description     string `json:"DESCRIPTION" validate:"max=150"`
	ItemCode        string `json:"ITEM_CODE" validate:"max=30"`
	Status          string `json:"STATUT" validate:"max=50"`
	Comments        string `json:"COMMENTAIRES" validate:"max=100"`
	Consultant      string `json:"CONSULTANT" validate:"max=30"`
	DocOrigin       string `json:"ORIGINE_DOC" validate:"max=10"`
}

func (r CreateRequest) fields() map[reconcile.Column]string {
	return map[reconcile.Column]string{
		reconcile.ColProjectNumber:   r.ProjectNumber,
		reconcile.ColOrderNumber:     r.OrderNumber,
		reconcile.ColLine:            r.Line,
		reconcile.ColRelease:         r.Release,
		reconcile.ColSupplier:        r.Supplier,
		reconcile.ColReceptionDate:   r.ReceptionDate,
		reconcile.ColDocObtainedDate: r.DocObtainedDate,
		reconcile.ColDescription:     r.Description,
		reconcile.ColItemCode:        r.ItemCode,
		reconcile.ColStatus:          r.Status,
		reconcile.ColComments:        r.Comments,
		reconcile.ColConsultant:      r.Consultant,
		reconcile.ColDocOrigin:       r.DocOrigin,
	}
}

// ID derives the identifier of the line with the rule ingestion applies
// to every format, over the canonical columns.
func (r CreateRequest) ID() (string, error) {
	id, issue := reconcile.BuildID(reconcile.CanonicalID, reconcile.RawRow{
		string(reconcile.ColOrderNumber):   reconcile.Text(r.OrderNumber),
		string(reconcile.ColLine):          reconcile.Text(r.Line),
		string(reconcile.ColRelease):       reconcile.Text(r.Release),
		string(reconcile.ColProjectNumber): reconcile.Text(r.ProjectNumber),
	})
	if issue != nil {
		return "", issue
	}
	return id, nil
}

// Create validates req, stores it as a new row and returns its identifier.
func (s *Service) Create(ctx context.Context, req CreateRequest) (string, error) {
	if err := s.check(req); err != nil {
		return "", err
	}
	id, err := req.ID()
	if err != nil {
		ve := &reconcile.ValidationError{}
		ve.Add(string(reconcile.ColID), err.Error())
		return "", ve
	}
	if len(id) > 25 {
		ve := &reconcile.ValidationError{}
		ve.Add(string(reconcile.ColID), fmt.Sprintf("%q is longer than 25 characters", id))
		return "", ve
	}

	row := reconcile.NewRow(id)
	for c, raw := range req.fields() {
		v := reconcile.Text(strings.TrimSpace(raw))
		if v.IsNull() {
			continue
		}
		cv, err := reconcile.Coerce(c, v)
		if err != nil {
			ve := &reconcile.ValidationError{}
			ve.Add(string(c), err.Error())
			return "", ve
		}
		row.Set(c, cv)
	}
	if consultant := row.Field(reconcile.ColConsultant); consultant.Valid() {
		row.Set(reconcile.ColConsultant, reconcile.Text(strings.ToUpper(consultant.String())))
	}
	if m, ok := MilestoneFor(strings.TrimSpace(req.Status)); ok {
		row.Set(m, reconcile.Date(s.clock.Today()))
	}

	if err := s.gw.Insert(ctx, s.table, row); err != nil {
		return "", err
	}
	s.log.WithField("id", id).Info("document created")
	return id, nil
}

func (s *Service) check(req CreateRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &reconcile.ValidationError{}
	for _, fe := range verrs {
		ve.Add(fe.Field(), validationMessage(fe))
	}
	return ve
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "number":
		return "must be a whole number"
	case "max":
		return "at most " + fe.Param() + " characters"
	case "datetime":
		return "must be a date (yyyy-mm-dd)"
	}
	return fe.Tag()
}

// Update sets the supplied columns of one row, NULL allowed. Returns false
// when the identifier is not stored.
func (s *Service) Update(ctx context.Context, id string, fields map[reconcile.Column]reconcile.Value) (bool, error) {
	ve := &reconcile.ValidationError{}
	patch := make(map[reconcile.Column]reconcile.Value, len(fields)+1)
	for c, v := range fields {
		switch {
		case c == reconcile.ColID:
			ve.Add(string(c), "cannot be changed")
			continue
		case !reconcile.IsCanonical(c):
			ve.Add(string(c), "unknown column")
			continue
		}
		cv, err := reconcile.Coerce(c, v)
		if err != nil {
			ve.Add(string(c), err.Error())
			continue
		}
		if c == reconcile.ColConsultant && cv.Valid() {
			cv = reconcile.Text(strings.ToUpper(cv.String()))
		}
		patch[c] = cv
	}
	sort.Slice(ve.Fields, func(i, j int) bool { return ve.Fields[i].Field < ve.Fields[j].Field })
	if err := ve.OrNil(); err != nil {
		return false, err
	}

	if status, ok := patch[reconcile.ColStatus]; ok && status.Valid() {
		if m, ok := MilestoneFor(status.String()); ok {
			if _, given := patch[m]; !given {
				patch[m] = reconcile.Date(s.clock.Today())
			}
		}
	}

	found, err := s.gw.Patch(ctx, s.table, id, patch)
	if err != nil {
		return false, err
	}
	if found {
		s.log.WithFields(logrus.Fields{"id": id, "columns": len(patch)}).Info("document updated")
	}
	return found, nil
}
