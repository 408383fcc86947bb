package digest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/case-digest/digest/fileutils"
)

// Input column names.
const (
	ColumnCustomer    = "customer"
	ColumnDescription = "case_description"
	ColumnCreated     = "case_creation_date"
)

// InputColumns are the columns every case dataset must carry.
var InputColumns = []string{ColumnCustomer, ColumnDescription, ColumnCreated}

// WeekWindow is how far back a case counts toward the weekly summary.
const WeekWindow = 7 * 24 * time.Hour

var caseTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// ParseCaseTime parses a case creation timestamp in any of the layouts the input exports use.
// Timestamps without a zone are read as local time.
func ParseCaseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("ParseCaseTime: empty timestamp")
	}
	for _, layout := range caseTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("ParseCaseTime: unrecognized timestamp %q", s)
}

// CaseRowsFromTable maps a header table onto case rows. Extra columns are ignored.
func CaseRowsFromTable(h fileutils.HeaderRows) ([]CaseRow, error) {
	if missing := h.Missing(InputColumns...); len(missing) > 0 {
		return nil, fmt.Errorf("CaseRowsFromTable: missing columns: %s", strings.Join(missing, ", "))
	}
	out := make([]CaseRow, 0, len(h.Rows))
	for i := range h.Rows {
		out = append(out, CaseRow{
			Customer:    strings.TrimSpace(h.Get(i, ColumnCustomer)),
			Description: h.Get(i, ColumnDescription),
			Created:     h.Get(i, ColumnCreated),
		})
	}
	return out, nil
}

// ReadCases reads a comma-separated case export with a header row.
func ReadCases(r io.Reader) ([]CaseRow, error) {
	h, err := fileutils.ReadHeaderRows(r, InputColumns...)
	if err != nil {
		return nil, err
	}
	return CaseRowsFromTable(h)
}

// ReadCasesFile is ReadCases on a file path.
func ReadCasesFile(path string) ([]CaseRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadCasesFile: %w", err)
	}
	defer f.Close()
	rows, err := ReadCases(f)
	if err != nil {
		return nil, fmt.Errorf("ReadCasesFile: %s: %w", path, err)
	}
	return rows, nil
}

// GroupByCustomer groups rows by customer. Customers come back sorted; cases keep input order.
func GroupByCustomer(rows []CaseRow) []CustomerRecord {
	idx := make(map[string]int)
	var out []CustomerRecord
	for _, r := range rows {
		i, ok := idx[r.Customer]
		if !ok {
			i = len(out)
			idx[r.Customer] = i
			out = append(out, CustomerRecord{Customer: r.Customer})
		}
		out[i].Cases = append(out[i].Cases, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Customer < out[j].Customer })
	return out
}

// QuarterIssues joins every case description with newlines.
func (c CustomerRecord) QuarterIssues() string {
	parts := make([]string, 0, len(c.Cases))
	for _, r := range c.Cases {
		parts = append(parts, r.Description)
	}
	return strings.Join(parts, "\n")
}

// WeekIssues joins the descriptions of cases created within WeekWindow of now.
// Any unparseable creation timestamp fails the whole call.
func (c CustomerRecord) WeekIssues(now time.Time) (string, error) {
	cutoff := now.Add(-WeekWindow)
	var parts []string
	for _, r := range c.Cases {
		created, err := ParseCaseTime(r.Created)
		if err != nil {
			return "", err
		}
		if !created.Before(cutoff) {
			parts = append(parts, r.Description)
		}
	}
	return strings.Join(parts, "\n"), nil
}
