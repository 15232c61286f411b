package outputpad

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// FlowReturn is the status a consumer reports for an allocation or push.
// It is passed through to the caller uninterpreted.
type FlowReturn int

const (
	FlowOK FlowReturn = iota
	FlowNotLinked
	FlowFlushing
	FlowEOS
	FlowNotNegotiated
	FlowNotReady
	FlowError
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowNotReady:
		return "not-ready"
	case FlowError:
		return "error"
	default:
		return fmt.Sprintf("flow(%d)", int(f))
	}
}

var (
	// ErrNotNegotiated is returned when no output contract has been committed
	ErrNotNegotiated = errors.New("output pad not negotiated")
	// ErrWrongBufferType is returned when the consumer allocates a non-surface buffer in surface mode
	ErrWrongBufferType = errors.New("sink element returned buffer of wrong type")
	// ErrInvalidCaps is returned when the consumer's allocation carries no geometry
	ErrInvalidCaps = errors.New("sink element allocated buffer with invalid caps")
	// ErrResource marks allocation failures on the device
	ErrResource = errors.New("couldn't create output buffer")
	// ErrTransfer marks failed device-to-host downloads
	ErrTransfer = errors.New("couldn't download output buffer")
	// ErrNoDevice is returned when an operation needs a bound device
	ErrNoDevice = errors.New("no device bound")
	// ErrNotLinked is returned when an operation needs a consumer
	ErrNotLinked = errors.New("output pad not linked")
	// ErrActive is returned for topology changes attempted while data flows
	ErrActive = errors.New("output pad is active")
)

// StatusError carries a non-OK status reported by the consumer
type StatusError struct {
	Flow FlowReturn
}

func (e *StatusError) Error() string {
	return "consumer returned " + e.Flow.String()
}

// FlowOf maps an error returned by this package to the flow status a
// pipeline loop would act on.
func FlowOf(err error) FlowReturn {
	if err == nil {
		return FlowOK
	}
	var fe *StatusError
	if errors.As(err, &fe) {
		return fe.Flow
	}
	switch {
	case errors.Is(err, ErrNotNegotiated):
		return FlowNotNegotiated
	case errors.Is(err, ErrNotLinked):
		return FlowNotLinked
	default:
		return FlowError
	}
}
