// Package inputsrc defines the capability interface the event
// pipeline depends on for physical input: device enumeration,
// exclusive grabbing, and decoded events. The wire-level evdev ioctls
// and raw record parsing live entirely in the adapter package that
// implements Source.
package inputsrc

import "github.com/ArrayBolt3/kloak-v2/internal/events"

// Source is the capability set a physical-input adapter provides.
type Source interface {
	// Fd returns a pollable file descriptor that becomes readable
	// whenever at least one device has events pending. Adapters that
	// multiplex several device fds internally (one per grabbed device)
	// expose a single aggregating fd, e.g. an epoll instance or a
	// pipe fed by a background reader.
	Fd() int

	// Dispatch drains whatever is currently available on Fd and
	// returns the decoded events in arrival order.
	Dispatch() ([]events.Physical, error)

	// Close ungrabs and closes every device.
	Close() error
}
