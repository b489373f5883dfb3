// Package instance defines the contract a runtime module implements to
// participate in the routing fabric: identity, lifecycle operations,
// and start ordering.
package instance

import (
	"context"

	"github.com/rrrd/rrr/internal/broker"
	"github.com/rrrd/rrr/internal/diag"
	"github.com/rrrd/rrr/internal/eventqueue"
	"github.com/rrrd/rrr/internal/holder"
	"github.com/rrrd/rrr/internal/rrrerr"
)

// Type classifies an instance's position in the data flow.
type Type int

const (
	TypeSource Type = iota
	TypeProcessor
	TypeNetwork
	TypeDeadend
	TypeFlexible
)

func (t Type) String() string {
	switch t {
	case TypeSource:
		return "source"
	case TypeProcessor:
		return "processor"
	case TypeNetwork:
		return "network"
	case TypeDeadend:
		return "deadend"
	case TypeFlexible:
		return "flexible"
	default:
		return "unknown"
	}
}

// ParseType maps a configuration string onto a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "source":
		return TypeSource, nil
	case "processor":
		return TypeProcessor, nil
	case "network":
		return TypeNetwork, nil
	case "deadend":
		return TypeDeadend, nil
	case "flexible":
		return TypeFlexible, nil
	default:
		return 0, rrrerr.Newf(rrrerr.Hard, "instance: unknown type %q", s)
	}
}

// Runtime is what the host hands each instance thread: its own event
// loop, the shared broker, a diagnostic context, and the instance's
// configured name and senders.
type Runtime struct {
	Name    string
	Senders []string
	Queue   *eventqueue.Queue
	Broker  *broker.Broker
	Diag    diag.Context
	// Options carries module-specific configuration verbatim.
	Options map[string]interface{}
}

// Module is one pluggable processing module. Preload runs on the host
// goroutine before any instance thread starts; ThreadEntry runs on the
// instance's own goroutine until ctx is cancelled.
type Module interface {
	ModuleName() string
	Type() Type
	// StartPriority orders thread start; lower starts earlier.
	StartPriority() int

	Preload(rt *Runtime) error
	ThreadEntry(ctx context.Context, rt *Runtime) error
}

// Injector is implemented by modules that accept externally injected
// messages (test harnesses, bridging layers).
type Injector interface {
	Inject(rt *Runtime, h *holder.Holder) error
}

// Poller is implemented by modules whose output side can be polled
// without a broker read.
type Poller interface {
	Poll(rt *Runtime, fn func(h *holder.Holder)) (int, error)
}

// PollDeleter is Poller's draining variant: polled entries are removed.
type PollDeleter interface {
	PollDelete(rt *Runtime, fn func(h *holder.Holder)) (int, error)
}
