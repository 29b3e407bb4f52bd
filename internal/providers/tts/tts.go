package tts

import "context"

// Speech is synthesized audio plus the engine that produced it.
type Speech struct {
	Audio  []byte
	Format string
	Engine string
}

type Provider interface {
	Synthesize(ctx context.Context, text, language string) (*Speech, error)
	Name() string
}
