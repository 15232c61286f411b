// Package outputpad implements the output stage of a hardware video
// pipeline: it negotiates an output format with a downstream consumer and
// hands rendered surfaces to it, either as device surfaces or downloaded
// into host memory.
//
// The data-path operations (Negotiate, AcquireOutputBuffer,
// PushOutputBuffer) are driven by a single streaming goroutine and take no
// locks. Control-plane calls that change topology (Bind, Unbind, Link) are
// only accepted while the pad is inactive. Status and Caps may be read from
// any goroutine.
package outputpad

import (
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/vdpout/internal/buffer"
	"github.com/bryanchriswhite/vdpout/internal/caps"
	"github.com/bryanchriswhite/vdpout/internal/vdp"
	"github.com/rs/zerolog"
)

// Peer is the downstream consumer an OutputPort is linked to
type Peer interface {
	// Caps returns the formats the consumer accepts, or nil when it
	// cannot answer.
	Caps() *caps.Caps
	// SetCaps proposes the output contract; false rejects it.
	SetCaps(c *caps.Caps) bool
	// AllocBuffer asks the consumer for a buffer described by c. On a
	// non-OK status no buffer is returned.
	AllocBuffer(size int, c *caps.Caps) (buffer.Buffer, FlowReturn)
	// Push transfers ownership of b to the consumer.
	Push(b buffer.Buffer) FlowReturn
}

// Algebra is the caps machinery negotiation runs on
type Algebra interface {
	Intersect(a, b *caps.Caps) *caps.Caps
	IsEmpty(c *caps.Caps) bool
	Fixate(c *caps.Caps) *caps.Caps
	ToOutputCandidates(upstream *caps.Caps) *caps.Caps
}

// Option configures an OutputPort
type Option func(*OutputPort)

// WithLogger sets the logger used for negotiation and buffer diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(p *OutputPort) { p.log = l }
}

// WithAlgebra replaces the native caps algebra
func WithAlgebra(a Algebra) Option {
	return func(p *OutputPort) { p.algebra = a }
}

// WithObserver registers a callback for lifecycle and negotiation events.
// It runs synchronously on the goroutine that caused the event.
func WithObserver(fn func(Event)) Option {
	return func(p *OutputPort) { p.observers = append(p.observers, fn) }
}

// OutputPort is the output side of a hardware video stage
type OutputPort struct {
	name     string
	template *caps.Caps
	algebra  Algebra
	log      zerolog.Logger

	peer   Peer
	device vdp.Device
	active atomic.Bool

	// caps is the device-filtered description; nil until a device is bound
	caps atomic.Pointer[caps.Caps]
	// neg is nil until a negotiation commits
	neg *Negotiated

	status    atomic.Pointer[Status]
	observers []func(Event)
}

// New creates an output port. A nil template means vdp.TemplateCaps().
func New(name string, template *caps.Caps, opts ...Option) *OutputPort {
	if template == nil {
		template = vdp.TemplateCaps()
	}
	p := &OutputPort{
		name:     name,
		template: template,
		algebra:  vdp.NewAlgebra(nil),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With().Str("pad", name).Logger()
	p.publish("")
	return p
}

// Name returns the pad name
func (p *OutputPort) Name() string { return p.name }

// Template returns the static caps the pad was created with
func (p *OutputPort) Template() *caps.Caps { return p.template.Copy() }

// Link connects the pad to its consumer
func (p *OutputPort) Link(peer Peer) error {
	if p.active.Load() {
		return ErrActive
	}
	p.peer = peer
	p.publish(EventLinked)
	return nil
}

// Unlink disconnects the consumer
func (p *OutputPort) Unlink() error {
	if p.active.Load() {
		return ErrActive
	}
	p.peer = nil
	p.publish(EventUnlinked)
	return nil
}

// Bind attaches a device and recomputes the advertised caps from what it
// reports. On error the previous binding is kept.
func (p *OutputPort) Bind(dev vdp.Device) error {
	if p.active.Load() {
		return ErrActive
	}
	if dev == nil {
		return p.Unbind()
	}

	allowed, err := vdp.AllowedOutputCaps(dev)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to query device output capabilities")
		return err
	}

	p.device = dev
	bound := p.algebra.Intersect(allowed, p.template)
	p.caps.Store(bound)
	p.log.Debug().Str("caps", bound.String()).Msg("Device bound")
	p.publish(EventBound)
	return nil
}

// Unbind detaches the device and drops the device-derived caps
func (p *OutputPort) Unbind() error {
	if p.active.Load() {
		return ErrActive
	}
	p.device = nil
	p.caps.Store(nil)
	p.publish(EventUnbound)
	return nil
}

// Device returns the bound device, or nil
func (p *OutputPort) Device() vdp.Device { return p.device }

// Activate starts data flow. A device and a consumer are required.
func (p *OutputPort) Activate() error {
	if p.device == nil {
		return ErrNoDevice
	}
	if p.peer == nil {
		return ErrNotLinked
	}
	if p.active.Swap(true) {
		return nil
	}
	p.log.Info().Msg("Output pad activated")
	p.publish(EventActivated)
	return nil
}

// Deactivate stops data flow, dropping the cached caps and the device.
// Both are dropped even when the pad was not active. The last negotiated
// contract is kept.
func (p *OutputPort) Deactivate() {
	wasActive := p.active.Swap(false)
	p.caps.Store(nil)
	p.device = nil
	if !wasActive {
		p.publish("")
		return
	}
	p.log.Info().Msg("Output pad deactivated")
	p.publish(EventDeactivated)
}

// Close deactivates the pad and forgets both the consumer and any
// negotiated contract
func (p *OutputPort) Close() {
	p.Deactivate()
	p.peer = nil
	p.neg = nil
	p.publish(EventClosed)
}

// Active reports whether data flow is running
func (p *OutputPort) Active() bool { return p.active.Load() }

// Caps returns a copy of what the pad can currently produce: the
// device-filtered caps once a device is bound, otherwise the template.
func (p *OutputPort) Caps() *caps.Caps {
	if c := p.caps.Load(); c != nil {
		return c.Copy()
	}
	return p.template.Copy()
}

// Negotiated returns the committed output contract
func (p *OutputPort) Negotiated() (Negotiated, bool) {
	if p.neg == nil {
		return Negotiated{}, false
	}
	return *p.neg, true
}

// Status is a point-in-time view of the pad, safe to read concurrently
type Status struct {
	Name        string    `json:"name"`
	Active      bool      `json:"active"`
	Linked      bool      `json:"linked"`
	DeviceBound bool      `json:"device_bound"`
	Mode        string    `json:"mode"`
	RGBAFormat  string    `json:"rgba_format,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Caps        string    `json:"caps"`
	Contract    string    `json:"contract,omitempty"`
	Upstream    string    `json:"upstream,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status returns the latest snapshot
func (p *OutputPort) Status() Status {
	return *p.status.Load()
}

func (p *OutputPort) publish(ev EventType) {
	s := &Status{
		Name:        p.name,
		Active:      p.active.Load(),
		Linked:      p.peer != nil,
		DeviceBound: p.device != nil,
		Mode:        "unset",
		Caps:        p.Caps().String(),
		UpdatedAt:   time.Now(),
	}
	if n := p.neg; n != nil {
		s.Mode = n.Output.String()
		s.RGBAFormat = n.Output.RGBAFormat().String()
		s.Width = n.Width
		s.Height = n.Height
		s.Contract = n.Contract.String()
		s.Upstream = n.Upstream.String()
	}
	p.status.Store(s)

	if ev != "" {
		p.emit(Event{Type: ev, Pad: p.name, Status: *s, Time: s.UpdatedAt})
	}
}

func (p *OutputPort) emit(e Event) {
	for _, fn := range p.observers {
		fn(e)
	}
}
