package digest

import (
	"strings"
	"time"
)

// NotAvailable replaces a summary field the model left empty or that could not be produced.
const NotAvailable = "Not Available"

// OutputColumns is the column order of the summary file and the warehouse table.
var OutputColumns = []string{
	"customer",
	"quarter_summary",
	"week_summary",
	"use_cases",
	"cloudera_components",
	"sales_opportunities",
}

// CaseRow is one support case as read from the input dataset. Created is kept raw and
// parsed per customer, so one malformed timestamp only fails that customer.
type CaseRow struct {
	Customer    string
	Description string
	Created     string
}

// CustomerRecord groups a customer's cases in input order.
type CustomerRecord struct {
	Customer string
	Cases    []CaseRow
}

// SummaryRecord is the per-customer output row.
type SummaryRecord struct {
	Customer           string `json:"customer"`
	QuarterSummary     string `json:"quarter_summary"`
	WeekSummary        string `json:"week_summary"`
	UseCases           string `json:"use_cases"`
	Components         string `json:"cloudera_components"`
	SalesOpportunities string `json:"sales_opportunities"`
}

// Fields returns the record in OutputColumns order.
func (r SummaryRecord) Fields() []string {
	return []string{r.Customer, r.QuarterSummary, r.WeekSummary, r.UseCases, r.Components, r.SalesOpportunities}
}

// SummaryRecordFromFields is the inverse of Fields. It reports false when the field count is wrong.
func SummaryRecordFromFields(fields []string) (SummaryRecord, bool) {
	if len(fields) != len(OutputColumns) {
		return SummaryRecord{}, false
	}
	return SummaryRecord{
		Customer:           fields[0],
		QuarterSummary:     fields[1],
		WeekSummary:        fields[2],
		UseCases:           fields[3],
		Components:         fields[4],
		SalesOpportunities: fields[5],
	}, true
}

func orNotAvailable(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NotAvailable
	}
	return s
}

// Status is the outcome of one customer in a batch.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// CustomerResult records what happened to one customer.
type CustomerResult struct {
	Customer string `json:"customer"`
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`

	// UnavailableFields lists output columns written as NotAvailable.
	UnavailableFields []string `json:"unavailable_fields,omitempty"`
	// InsertError is set when the row reached the primary sink but a secondary sink
	// (the warehouse insert) failed. The customer still counts as succeeded.
	InsertError string `json:"insert_error,omitempty"`
}

// Report is the tally of a batch run.
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Total      int              `json:"customers_total"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Results    []CustomerResult `json:"results"`
}

func (r *Report) add(res CustomerResult) {
	r.Total++
	switch res.Status {
	case StatusOK:
		r.Succeeded++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
	r.Results = append(r.Results, res)
}
