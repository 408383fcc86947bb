package digest

import (
	"strings"
	"testing"
	"time"
)

func TestParseCaseTime_Layouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 6, 14, 9, 30, 0, 0, time.Local)
	for _, in := range []string{
		"2024-06-14 09:30:00",
		"2024-06-14 09:30:00.000",
		"2024-06-14T09:30:00",
		"2024-06-14 09:30",
		"06/14/2024 09:30:00",
	} {
		got, err := ParseCaseTime(in)
		if err != nil {
			t.Fatalf("ParseCaseTime(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseCaseTime(%q)=%s, want %s", in, got, want)
		}
	}

	got, err := ParseCaseTime("2024-06-14T09:30:00Z")
	if err != nil {
		t.Fatalf("ParseCaseTime RFC3339: %v", err)
	}
	if !got.Equal(time.Date(2024, 6, 14, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("got=%s", got)
	}

	for _, bad := range []string{"", "yesterday", "14.06.2024"} {
		if _, err := ParseCaseTime(bad); err == nil {
			t.Fatalf("ParseCaseTime(%q): expected error", bad)
		}
	}
}

func TestGroupByCustomer_SortedWithInputOrder(t *testing.T) {
	t.Parallel()

	rows := []CaseRow{
		{Customer: "Zed", Description: "z1"},
		{Customer: "Acme", Description: "a1"},
		{Customer: "Zed", Description: "z2"},
		{Customer: "Acme", Description: "a2"},
	}
	got := GroupByCustomer(rows)
	if len(got) != 2 || got[0].Customer != "Acme" || got[1].Customer != "Zed" {
		t.Fatalf("groups=%+v", got)
	}
	if got[0].QuarterIssues() != "a1\na2" || got[1].QuarterIssues() != "z1\nz2" {
		t.Fatalf("issues=%q %q", got[0].QuarterIssues(), got[1].QuarterIssues())
	}
	if len(GroupByCustomer(nil)) != 0 {
		t.Fatalf("expected no groups for no rows")
	}
}

func TestWeekIssues_WindowIsInclusive(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	c := CustomerRecord{Customer: "Acme", Cases: []CaseRow{
		{Customer: "Acme", Description: "old", Created: "2024-05-01"},
		{Customer: "Acme", Description: "edge", Created: "2024-06-08 12:00:00"},
		{Customer: "Acme", Description: "just outside", Created: "2024-06-08 11:59:59"},
		{Customer: "Acme", Description: "recent", Created: "2024-06-14 09:00"},
	}}
	got, err := c.WeekIssues(now)
	if err != nil {
		t.Fatalf("WeekIssues: %v", err)
	}
	if got != "edge\nrecent" {
		t.Fatalf("week=%q", got)
	}

	c.Cases = append(c.Cases, CaseRow{Customer: "Acme", Description: "broken", Created: "soon"})
	if _, err := c.WeekIssues(now); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestWeekIssues_NoRecentCases(t *testing.T) {
	t.Parallel()

	c := CustomerRecord{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "old", Created: "2020-01-01"}}}
	got, err := c.WeekIssues(time.Date(2024, 6, 15, 0, 0, 0, 0, time.Local))
	if err != nil || got != "" {
		t.Fatalf("got=%q err=%v", got, err)
	}
}

func TestReadCases_MapsColumnsAndIgnoresExtras(t *testing.T) {
	t.Parallel()

	in := "case_number,customer,case_creation_date,case_description\n" +
		"100,Acme ,2024-06-14 09:00,\"P1: NiFi flow backpressure, nodes 3-5\"\n" +
		"101,Beta,2024-06-01,HBase region server OOM\n"
	rows, err := ReadCases(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCases: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d, want 2", len(rows))
	}
	want := CaseRow{Customer: "Acme", Description: "P1: NiFi flow backpressure, nodes 3-5", Created: "2024-06-14 09:00"}
	if rows[0] != want {
		t.Fatalf("row=%+v, want %+v", rows[0], want)
	}
}

func TestReadCases_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadCases(strings.NewReader("customer,case_description\nAcme,x\n"))
	if err == nil || !strings.Contains(err.Error(), ColumnCreated) {
		t.Fatalf("err=%v, want missing %s", err, ColumnCreated)
	}
}
