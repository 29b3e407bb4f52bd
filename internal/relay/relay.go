package relay

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type Options struct {
	Registry RegistryConfig
	Pipeline PipelineConfig

	// InboundRate limits frames per second per connection; zero disables the limit.
	InboundRate  float64
	InboundBurst int

	Logger *logrus.Logger
}

// Relay wires the registry to the pipeline and hands out per-connection handlers.
type Relay struct {
	opts     Options
	log      *logrus.Logger
	registry *Registry
	pipeline *Pipeline
}

func New(opts Options) *Relay {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Registry.Logger == nil {
		opts.Registry.Logger = opts.Logger
	}
	if opts.Pipeline.Logger == nil {
		opts.Pipeline.Logger = opts.Logger
	}
	if opts.InboundRate > 0 && opts.InboundBurst <= 0 {
		opts.InboundBurst = int(opts.InboundRate) + 1
	}

	var reg *Registry
	pcfg := opts.Pipeline
	pcfg.onTurnDone = func(s *Session) { reg.turnDone(s) }
	p := NewPipeline(pcfg)
	reg = NewRegistry(opts.Registry, func(s *Session) { p.Flush(s) })

	return &Relay{
		opts:     opts,
		log:      opts.Logger,
		pipeline: p,
		registry: reg,
	}
}

func (r *Relay) Registry() *Registry { return r.registry }

func (r *Relay) Pipeline() *Pipeline { return r.pipeline }

// NewConn returns the handler for one client connection.
func (r *Relay) NewConn(out Emitter) *Conn {
	c := newConn(r, out)
	if r.opts.InboundRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(r.opts.InboundRate), r.opts.InboundBurst)
	}
	return c
}

// Wait blocks until in-flight turns are done.
func (r *Relay) Wait() { r.pipeline.Wait() }

// Shutdown cancels in-flight turns and waits for them.
func (r *Relay) Shutdown() { r.pipeline.Shutdown() }
