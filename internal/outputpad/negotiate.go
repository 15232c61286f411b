package outputpad

import (
	"time"

	"github.com/bryanchriswhite/vdpout/internal/caps"
)

// Negotiate picks an output format for the given upstream video format and
// commits it to the consumer. Nothing is stored unless the consumer
// accepts the fixated result, so a failed attempt leaves the previous
// contract in place.
func (p *OutputPort) Negotiate(upstream *caps.Caps) bool {
	if p.peer == nil {
		return p.negotiationFailed("pad is not linked")
	}

	peerCaps := p.peer.Caps()
	if peerCaps == nil {
		return p.negotiationFailed("consumer did not report its caps")
	}

	allowed := p.algebra.Intersect(p.Caps(), peerCaps)
	if p.algebra.IsEmpty(allowed) {
		return p.negotiationFailed("got invalid allowed caps")
	}
	p.log.Debug().Str("allowed", allowed.String()).Msg("Allowed caps")

	candidates := p.algebra.ToOutputCandidates(upstream)
	src := p.algebra.Intersect(candidates, allowed)
	if p.algebra.IsEmpty(src) {
		return p.negotiationFailed("couldn't find suitable output format")
	}

	fixed := p.algebra.Fixate(src)
	next, err := decodeFixated(fixed)
	if err != nil {
		return p.negotiationFailed(err.Error())
	}
	next.Upstream = upstream.Copy()

	if !p.peer.SetCaps(fixed) {
		return p.negotiationFailed("consumer rejected " + fixed.String())
	}

	p.neg = next
	p.log.Info().
		Str("mode", next.Output.String()).
		Str("rgba_format", next.Output.RGBAFormat().String()).
		Int("width", next.Width).
		Int("height", next.Height).
		Msg("Output format negotiated")
	p.publish(EventNegotiated)
	return true
}

func (p *OutputPort) negotiationFailed(reason string) bool {
	p.log.Error().Str("reason", reason).Msg("Negotiation failed")
	p.emit(Event{Type: EventNegotiationFailed, Pad: p.name, Reason: reason, Status: p.Status(), Time: time.Now()})
	return false
}
