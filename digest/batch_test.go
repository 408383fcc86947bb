package digest

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

type testPrompts struct{}

func (testPrompts) Quarter(c, issues string) string { return "QUARTER " + c + ": " + issues }
func (testPrompts) Week(c, issues string) string    { return "WEEK " + c + ": " + issues }
func (testPrompts) UseCases(c, s string) string     { return "USECASES " + c + ": " + s }
func (testPrompts) Components(c, s string) string   { return "COMPONENTS " + c + ": " + s }
func (testPrompts) SalesOpportunities(c, s string) string {
	return "SALES " + c + ": " + s
}

func scriptedModel(p string) (string, error) {
	switch {
	case strings.HasPrefix(p, "QUARTER"):
		return "quarter summary", nil
	case strings.HasPrefix(p, "WEEK"):
		return "week summary", nil
	case strings.HasPrefix(p, "USECASES"):
		return "streaming ingest", nil
	case strings.HasPrefix(p, "COMPONENTS"):
		return "   ", nil
	case strings.HasPrefix(p, "SALES"):
		return "upsell support tier", nil
	}
	return "sub", nil
}

var batchNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)

func newTestProcessor(fc *fakeCompleter, sink RecordSink, waits *[]time.Duration) *Processor {
	return &Processor{
		Summarizer: NewSummarizer(fc, nil),
		Prompts:    testPrompts{},
		Sink:       sink,
		Pace:       5 * time.Second,
		Now:        func() time.Time { return batchNow },
		Wait: func(ctx context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return ctx.Err()
		},
	}
}

func TestProcessorRun_EndToEnd(t *testing.T) {
	t.Parallel()

	rows := []CaseRow{
		{Customer: "Acme", Description: "Impala queries timing out", Created: "2024-04-02 10:00:00"},
		{Customer: "Foo", Description: "should never be sent", Created: "2024-06-14 09:00"},
		{Customer: "Acme", Description: "Kerberos ticket renewal failing", Created: "2024-05-01"},
		{Customer: "Zed", Description: "HBase region server OOM", Created: "2024-06-13"},
		{Customer: "Acme", Description: "NiFi flow backpressure", Created: "2024-06-14 09:00"},
	}

	fc := &fakeCompleter{fn: scriptedModel}
	path := filepath.Join(t.TempDir(), "customer_data", "incremental.csv")
	var waits []time.Duration
	p := newTestProcessor(fc, FileSink{Path: path}, &waits)
	p.Skip = NewSkipList("Foo", " ")

	rep, err := p.Run(context.Background(), GroupByCustomer(rows))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Total != 3 || rep.Succeeded != 2 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Fatalf("report=%+v", rep)
	}
	if rep.Results[1].Customer != "Foo" || rep.Results[1].Status != StatusSkipped {
		t.Fatalf("results=%+v", rep.Results)
	}
	if !slices.Equal(rep.Results[0].UnavailableFields, []string{"cloudera_components"}) {
		t.Fatalf("unavailable=%v", rep.Results[0].UnavailableFields)
	}

	var quarter, week string
	for _, c := range fc.calls() {
		if strings.Contains(c, "should never be sent") {
			t.Fatalf("skipped customer reached the model: %q", c)
		}
		if strings.HasPrefix(c, "QUARTER Acme") {
			quarter = c
		}
		if strings.HasPrefix(c, "WEEK Acme") {
			week = c
		}
	}
	for _, d := range []string{"Impala queries timing out", "Kerberos ticket renewal failing", "NiFi flow backpressure"} {
		if !strings.Contains(quarter, d) {
			t.Fatalf("quarter prompt %q missing %q", quarter, d)
		}
	}
	if week != "WEEK Acme: NiFi flow backpressure" {
		t.Fatalf("week prompt=%q", week)
	}

	got, err := ReadSummaryFile(path)
	if err != nil {
		t.Fatalf("ReadSummaryFile: %v", err)
	}
	if len(got) != 2 || got[0].Customer != "Acme" || got[1].Customer != "Zed" {
		t.Fatalf("rows=%+v", got)
	}
	want := SummaryRecord{
		Customer:           "Acme",
		QuarterSummary:     "quarter summary",
		WeekSummary:        "week summary",
		UseCases:           "streaming ingest",
		Components:         NotAvailable,
		SalesOpportunities: "upsell support tier",
	}
	if got[0] != want {
		t.Fatalf("row=%+v, want %+v", got[0], want)
	}

	if len(waits) != 1 || waits[0] != 5*time.Second {
		t.Fatalf("waits=%v, want one pace wait between processed customers", waits)
	}
}

func TestProcessorRun_DerivedFieldsUseQuarterSummary(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	var waits []time.Duration
	p := newTestProcessor(fc, &memorySink{}, &waits)

	_, err := p.Run(context.Background(), []CustomerRecord{{Customer: "Acme", Cases: []CaseRow{
		{Customer: "Acme", Description: "d", Created: "2024-06-14"},
	}}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := fc.calls()
	if len(calls) != 5 {
		t.Fatalf("calls=%q", calls)
	}
	for _, c := range calls[2:] {
		if !strings.HasSuffix(c, ": quarter summary") {
			t.Fatalf("derived prompt=%q, want quarter summary as input", c)
		}
	}
}

func TestProcessorRun_FailedCustomerWritesNothing(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	sink := &memorySink{}
	var waits []time.Duration
	p := newTestProcessor(fc, sink, &waits)

	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "not a date"}}},
		{Customer: "Beta", Cases: []CaseRow{{Customer: "Beta", Description: "y", Created: "2024-06-01"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 1 || rep.Succeeded != 1 {
		t.Fatalf("report=%+v", rep)
	}
	if rep.Results[0].Status != StatusFailed || rep.Results[0].Error == "" {
		t.Fatalf("result=%+v", rep.Results[0])
	}
	if len(sink.records) != 1 || sink.records[0].Customer != "Beta" {
		t.Fatalf("records=%+v", sink.records)
	}
	if len(waits) != 0 {
		t.Fatalf("waits=%v, want none after a failure or the last customer", waits)
	}
}

func TestProcessorRun_SinkErrorFailsCustomer(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	var waits []time.Duration
	p := newTestProcessor(fc, &memorySink{err: errors.New("disk full")}, &waits)

	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "2024-06-01"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 1 || !strings.Contains(rep.Results[0].Error, "disk full") {
		t.Fatalf("report=%+v", rep)
	}
}

func TestProcessorRun_TooManyChunksBecomesNotAvailable(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: func(p string) (string, error) {
		if strings.HasPrefix(p, "QUARTER") {
			return "", errBoom
		}
		return scriptedModel(p)
	}}
	sink := &memorySink{}
	var waits []time.Duration
	p := newTestProcessor(fc, sink, &waits)
	p.Budget = 10
	p.Summarizer.MaxChunks = 2

	desc := strings.TrimSpace(strings.Repeat("x ", 400))
	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: desc, Created: "2020-01-01"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Succeeded != 1 {
		t.Fatalf("report=%+v", rep)
	}
	if len(sink.records) != 1 || sink.records[0].QuarterSummary != NotAvailable {
		t.Fatalf("records=%+v", sink.records)
	}
	if !slices.Contains(rep.Results[0].UnavailableFields, "quarter_summary") {
		t.Fatalf("unavailable=%v", rep.Results[0].UnavailableFields)
	}
}

func TestProcessorRun_APIFailureRecoversThroughSubChunks(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: func(p string) (string, error) {
		if strings.HasPrefix(p, "QUARTER") {
			return "", errBoom
		}
		return scriptedModel(p)
	}}
	sink := &memorySink{}
	var waits []time.Duration
	p := newTestProcessor(fc, sink, &waits)

	_, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "broker down", Created: "2024-06-14"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.records) != 1 || sink.records[0].QuarterSummary != "sub" {
		t.Fatalf("records=%+v", sink.records)
	}
	if !slices.Contains(fc.calls(), "broker down") {
		t.Fatalf("expected raw case text as sub-chunk prompt, calls=%q", fc.calls())
	}
}

func TestProcessorRun_CancelReturnsPartialReport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fc := &fakeCompleter{fn: scriptedModel}
	var waits []time.Duration
	p := newTestProcessor(fc, &memorySink{}, &waits)
	p.Wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	rep, err := p.Run(ctx, []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "2024-06-01"}}},
		{Customer: "Beta", Cases: []CaseRow{{Customer: "Beta", Description: "y", Created: "2024-06-01"}}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if rep.Total != 1 || rep.Succeeded != 1 || rep.FinishedAt.IsZero() {
		t.Fatalf("report=%+v", rep)
	}
}

func TestProcessorRun_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := (&Processor{}).Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSleep(t *testing.T) {
	t.Parallel()

	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestProcessorRun_SecondarySinkFailureKeepsFileRow(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	path := filepath.Join(t.TempDir(), "incremental.csv")
	var waits []time.Duration
	p := newTestProcessor(fc, MultiSink{FileSink{Path: path}, &memorySink{err: errors.New("warehouse unavailable")}}, &waits)

	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "2024-06-14"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Succeeded != 1 || rep.Failed != 0 {
		t.Fatalf("report=%+v, want the customer counted as succeeded", rep)
	}
	res := rep.Results[0]
	if res.Status != StatusOK || !strings.Contains(res.InsertError, "warehouse unavailable") {
		t.Fatalf("result=%+v", res)
	}

	got, err := ReadSummaryFile(path)
	if err != nil {
		t.Fatalf("ReadSummaryFile: %v", err)
	}
	if len(got) != 1 || got[0].Customer != "Acme" {
		t.Fatalf("rows=%+v", got)
	}
}

func TestProcessorRun_PrimarySinkFailureWritesNoRow(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	mirror := &memorySink{}
	var waits []time.Duration
	p := newTestProcessor(fc, MultiSink{&memorySink{err: errors.New("disk full")}, mirror}, &waits)

	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "2024-06-14"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed != 1 || len(mirror.records) != 0 {
		t.Fatalf("report=%+v mirror=%d", rep, len(mirror.records))
	}
}

func TestProcessorRun_NoPaceWhenOnlySkippedCustomersRemain(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{fn: scriptedModel}
	var waits []time.Duration
	p := newTestProcessor(fc, &memorySink{}, &waits)
	p.Skip = NewSkipList("Foo", "Goo")

	rep, err := p.Run(context.Background(), []CustomerRecord{
		{Customer: "Acme", Cases: []CaseRow{{Customer: "Acme", Description: "x", Created: "2024-06-14"}}},
		{Customer: "Foo", Cases: []CaseRow{{Customer: "Foo", Description: "y", Created: "2024-06-14"}}},
		{Customer: "Goo", Cases: []CaseRow{{Customer: "Goo", Description: "z", Created: "2024-06-14"}}},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Succeeded != 1 || rep.Skipped != 2 {
		t.Fatalf("report=%+v", rep)
	}
	if len(waits) != 0 {
		t.Fatalf("waits=%v, want none", waits)
	}
}
