package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNoProvider = errors.New("no speech provider configured")

// Fallback tries each provider in order and returns the first audio produced.
// Every attempt gets its own timeout so a hung primary still leaves room for the secondary.
type Fallback struct {
	providers []Provider
	timeout   time.Duration
}

func NewFallback(timeout time.Duration, providers ...Provider) *Fallback {
	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Fallback{providers: out, timeout: timeout}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) Synthesize(ctx context.Context, text, language string) (*Speech, error) {
	if len(f.providers) == 0 {
		return nil, ErrNoProvider
	}

	var errs []error
	for _, p := range f.providers {
		sp, err := f.attempt(ctx, p, text, language)
		if err == nil {
			return sp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func (f *Fallback) attempt(ctx context.Context, p Provider, text, language string) (*Speech, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	sp, err := p.Synthesize(ctx, text, language)
	if err != nil {
		return nil, err
	}
	if sp == nil || len(sp.Audio) == 0 {
		return nil, errors.New("empty audio")
	}
	if sp.Engine == "" {
		sp.Engine = p.Name()
	}
	return sp, nil
}
