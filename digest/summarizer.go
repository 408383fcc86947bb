package digest

import (
	"context"
	"log/slog"
	"strings"
)

// DefaultMaxChunks caps how many sub-chunk calls a single recovery may issue.
const DefaultMaxChunks = 300

// Completer performs one completion request for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Summarizer sends a prompt as one request and, when that fails, recovers by
// sub-chunking the source text at half the budget and completing each piece on its own.
type Summarizer struct {
	Client    Completer
	MaxChunks int
	Logger    *slog.Logger
}

// NewSummarizer returns a Summarizer with the default chunk ceiling.
func NewSummarizer(client Completer, logger *slog.Logger) *Summarizer {
	return &Summarizer{Client: client, MaxChunks: DefaultMaxChunks, Logger: logger}
}

// SummarizeText chunks text at budget, joins the chunks back with single spaces and sends
// render(joined) as one request. The model still receives the whole text in the happy
// path; chunking here only normalizes whitespace for the templated prompt. On failure it
// falls back to SubChunk on text.
func (s *Summarizer) SummarizeText(ctx context.Context, text string, budget int, render func(body string) string) (string, error) {
	joined := strings.Join(ChunkText(text, budget), " ")
	return s.Summarize(ctx, render(joined), text, budget)
}

// Summarize sends prompt once. Any failure other than context cancellation triggers
// SubChunk over fallbackText.
func (s *Summarizer) Summarize(ctx context.Context, prompt, fallbackText string, budget int) (string, error) {
	out, err := s.Client.Complete(ctx, prompt)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	s.logger().Warn("summary generation failed, retrying with sub-chunking", "error", err.Error())
	return s.SubChunk(ctx, fallbackText, budget)
}

// SubChunk chunks text at budget/2 and completes each chunk independently, skipping
// failed chunks and joining successful outputs with a single space. If the chunk count
// exceeds MaxChunks no request is made and a too_many_chunks error is returned.
func (s *Summarizer) SubChunk(ctx context.Context, text string, budget int) (string, error) {
	chunks := ChunkText(text, budget/2)
	if limit := s.maxChunks(); len(chunks) > limit {
		s.logger().Warn("skipping sub-chunk recovery: chunk count exceeds limit", "chunks", len(chunks), "max_chunks", limit)
		return "", &CompletionError{Reason: ReasonTooManyChunks, Chunks: len(chunks)}
	}

	responses := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		s.logger().Info("processing sub-chunk", "chunk", i+1, "of", len(chunks))
		out, err := s.Client.Complete(ctx, chunk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			s.logger().Warn("sub-chunk failed, skipping", "chunk", i+1, "error", err.Error())
			continue
		}
		responses = append(responses, out)
	}
	return strings.Join(responses, " "), nil
}

func (s *Summarizer) maxChunks() int {
	if s.MaxChunks <= 0 {
		return DefaultMaxChunks
	}
	return s.MaxChunks
}

func (s *Summarizer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
