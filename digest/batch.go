package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// DefaultBudget is the primary chunk budget for case text.
	DefaultBudget = 3000
	// DefaultPace is the pause between customers that keeps the endpoint under its rate limit.
	DefaultPace = 5 * time.Second
)

// Prompts renders the per-customer prompt templates.
type Prompts interface {
	Quarter(customer, issues string) string
	Week(customer, issues string) string
	UseCases(customer, quarterSummary string) string
	Components(customer, quarterSummary string) string
	SalesOpportunities(customer, quarterSummary string) string
}

// SkipList is a set of customer identifiers that are never processed.
type SkipList map[string]struct{}

func NewSkipList(customers ...string) SkipList {
	s := make(SkipList, len(customers))
	for _, c := range customers {
		c = strings.TrimSpace(c)
		if c != "" {
			s[c] = struct{}{}
		}
	}
	return s
}

func (s SkipList) Contains(customer string) bool {
	_, ok := s[customer]
	return ok
}

// Processor summarizes customers one at a time and hands each finished row to Sink.
type Processor struct {
	Summarizer *Summarizer
	Prompts    Prompts
	Sink       RecordSink
	Skip       SkipList
	Budget     int
	Pace       time.Duration
	Logger     *slog.Logger

	// Now and Wait default to time.Now and Sleep.
	Now  func() time.Time
	Wait func(ctx context.Context, d time.Duration) error
}

// Run processes customers in order. A customer that fails is recorded in the report and
// the batch moves on; nothing is written for it. Run only returns an error when ctx is
// done, together with the report so far.
func (p *Processor) Run(ctx context.Context, customers []CustomerRecord) (Report, error) {
	if p.Summarizer == nil || p.Prompts == nil || p.Sink == nil {
		return Report{}, errors.New("Processor.Run: summarizer, prompts and sink are required")
	}
	log := p.logger()
	rep := Report{StartedAt: p.now(), Results: []CustomerResult{}}

	finish := func(err error) (Report, error) {
		rep.FinishedAt = p.now()
		return rep, err
	}

	for i, c := range customers {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if p.Skip.Contains(c.Customer) {
			log.Info("skipping customer", "customer", c.Customer)
			rep.add(CustomerResult{Customer: c.Customer, Status: StatusSkipped})
			continue
		}

		log.Info("processing customer", "customer", c.Customer, "cases", len(c.Cases), "n", i+1, "of", len(customers))
		res, err := p.processCustomer(ctx, c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return finish(ctxErr)
			}
			log.Error("error processing customer", "customer", c.Customer, "error", err.Error())
			rep.add(CustomerResult{Customer: c.Customer, Status: StatusFailed, Error: err.Error()})
			continue
		}
		rep.add(res)

		if p.Pace > 0 && p.pending(customers[i+1:]) {
			if err := p.wait(ctx, p.Pace); err != nil {
				return finish(err)
			}
		}
	}
	return finish(nil)
}

func (p *Processor) processCustomer(ctx context.Context, c CustomerRecord) (CustomerResult, error) {
	log := p.logger().With("customer", c.Customer)

	weekIssues, err := c.WeekIssues(p.now())
	if err != nil {
		return CustomerResult{}, fmt.Errorf("case dates: %w", err)
	}
	quarterIssues := c.QuarterIssues()
	budget := p.budget()

	var unavailable []string
	settle := func(column, out string, err error) (string, error) {
		if err != nil {
			if !errors.Is(err, ErrTooManyChunks) {
				return "", fmt.Errorf("%s: %w", column, err)
			}
			log.Warn("summary unavailable", "column", column, "error", err.Error())
			out = ""
		}
		out = orNotAvailable(out)
		if out == NotAvailable {
			unavailable = append(unavailable, column)
		}
		return out, nil
	}

	rec := SummaryRecord{Customer: c.Customer}

	out, err := p.Summarizer.SummarizeText(ctx, quarterIssues, budget, func(body string) string {
		return p.Prompts.Quarter(c.Customer, body)
	})
	if rec.QuarterSummary, err = settle("quarter_summary", out, err); err != nil {
		return CustomerResult{}, err
	}
	log.Info("populated quarter summary")

	out, err = p.Summarizer.SummarizeText(ctx, weekIssues, budget, func(body string) string {
		return p.Prompts.Week(c.Customer, body)
	})
	if rec.WeekSummary, err = settle("week_summary", out, err); err != nil {
		return CustomerResult{}, err
	}
	log.Info("populated week summary")

	derived := []struct {
		column string
		prompt func(customer, quarterSummary string) string
		dst    *string
	}{
		{"use_cases", p.Prompts.UseCases, &rec.UseCases},
		{"cloudera_components", p.Prompts.Components, &rec.Components},
		{"sales_opportunities", p.Prompts.SalesOpportunities, &rec.SalesOpportunities},
	}
	for _, d := range derived {
		prompt := d.prompt(c.Customer, rec.QuarterSummary)
		out, err := p.Summarizer.Summarize(ctx, prompt, prompt, budget)
		if *d.dst, err = settle(d.column, out, err); err != nil {
			return CustomerResult{}, err
		}
		log.Info("populated "+d.column)
	}

	res := CustomerResult{Customer: c.Customer, Status: StatusOK, UnavailableFields: unavailable}
	if err := p.Sink.WriteRecord(ctx, rec); err != nil {
		var secondary *SecondaryError
		if !errors.As(err, &secondary) {
			return CustomerResult{}, fmt.Errorf("write record: %w", err)
		}
		log.Warn("summary row saved but secondary write failed", "error", err.Error())
		res.InsertError = err.Error()
	}
	log.Info("saved summary row")
	return res, nil
}

// pending reports whether any of rest will be processed rather than skipped.
func (p *Processor) pending(rest []CustomerRecord) bool {
	for _, c := range rest {
		if !p.Skip.Contains(c.Customer) {
			return true
		}
	}
	return false
}

func (p *Processor) budget() int {
	if p.Budget <= 0 {
		return DefaultBudget
	}
	return p.Budget
}

func (p *Processor) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

func (p *Processor) wait(ctx context.Context, d time.Duration) error {
	if p.Wait == nil {
		return Sleep(ctx, d)
	}
	return p.Wait(ctx, d)
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
