package digest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/theimaginaryfoundation/case-digest/digest/fileutils"
)

// RecordSink persists finished summary rows.
type RecordSink interface {
	WriteRecord(ctx context.Context, rec SummaryRecord) error
}

// FileSink appends pipe-delimited rows to Path, one per customer, without a header.
type FileSink struct {
	Path string
}

func (s FileSink) WriteRecord(ctx context.Context, rec SummaryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fileutils.AppendDelimitedRow(s.Path, rec.Fields(), fileutils.PipeDelimiter); err != nil {
		return fmt.Errorf("FileSink: %w", err)
	}
	return nil
}

// ReadSummaryFile reads back every row of a file written by FileSink.
func ReadSummaryFile(path string) ([]SummaryRecord, error) {
	rows, err := fileutils.ReadDelimitedRows(path, fileutils.PipeDelimiter, len(OutputColumns))
	if err != nil {
		return nil, err
	}
	out := make([]SummaryRecord, 0, len(rows))
	for _, row := range rows {
		rec, ok := SummaryRecordFromFields(row)
		if !ok {
			return nil, errors.New("ReadSummaryFile: unexpected column count")
		}
		out = append(out, rec)
	}
	return out, nil
}

// SecondaryError reports sinks after the first that failed. The first sink's
// write succeeded, so the row is recorded.
type SecondaryError struct {
	Errs []error
}

func (e *SecondaryError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "secondary sink: " + strings.Join(msgs, "; ")
}

func (e *SecondaryError) Unwrap() []error { return e.Errs }

// MultiSink writes to each sink in order. The first sink is the primary record: if it
// fails nothing else is written and its error is returned. Failures of later sinks do
// not stop the remaining ones and come back as a *SecondaryError.
type MultiSink []RecordSink

func (m MultiSink) WriteRecord(ctx context.Context, rec SummaryRecord) error {
	if len(m) == 0 {
		return nil
	}
	if err := m[0].WriteRecord(ctx, rec); err != nil {
		return err
	}
	var errs []error
	for _, s := range m[1:] {
		if err := s.WriteRecord(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &SecondaryError{Errs: errs}
	}
	return nil
}
