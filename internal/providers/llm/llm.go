package llm

import (
	"context"
	"errors"
	"strings"
)

type Provider interface {
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	Close() error
}

var ErrEmptyAnswer = errors.New("llm returned an empty answer")

// Generate drains StreamAnswer into a single trimmed string.
func Generate(ctx context.Context, p Provider, prompt string) (string, error) {
	chunks, errs := p.StreamAnswer(ctx, prompt)

	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
	}
	// errs is closed after chunks; a nil receive means the stream finished cleanly
	if err := <-errs; err != nil {
		return "", err
	}

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", ErrEmptyAnswer
	}
	return out, nil
}
