// Package compositor defines the capability interface the event
// pipeline depends on for talking to the display server: binding
// protocol globals, tracking output geometry, driving per-output
// overlay surfaces, and emitting virtual pointer/keyboard events. Wire
// protocol concerns live entirely in the adapter packages that
// implement Conn; this package only names the shape those adapters
// must have.
package compositor

import (
	"time"

	"github.com/ArrayBolt3/kloak-v2/internal/events"
	"github.com/ArrayBolt3/kloak-v2/internal/geometry"
	"github.com/ArrayBolt3/kloak-v2/internal/overlay"
)

// OutputEventKind tags an OutputEvent.
type OutputEventKind int

const (
	OutputPosition OutputEventKind = iota
	OutputSize
	OutputRemoved
)

// OutputEvent is delivered whenever the compositor reports a change
// to an output's logical geometry.
type OutputEvent struct {
	Kind          OutputEventKind
	ID            geometry.OutputID
	Name          string
	X, Y          float32
	W, H          float32
}

// KeymapEvent carries a newly advertised keymap's raw bytes (mmap'd
// region already read into memory by the adapter).
type KeymapEvent struct {
	Format int
	Data   []byte
}

// Conn is the capability set a compositor adapter provides. The core
// event pipeline only ever talks to this interface.
type Conn interface {
	// Fd returns the compositor connection's pollable file descriptor.
	Fd() int

	// PrepareRead / ReadEvents / CancelRead / DispatchPending implement
	// the non-blocking dispatch protocol: PrepareRead must be called
	// before poll; if poll reports the fd readable, ReadEvents reads
	// and queues the waiting events, otherwise CancelRead must be
	// called instead to release the prepared read without touching the
	// socket. DispatchPending processes whatever was queued.
	PrepareRead() error
	ReadEvents() error
	CancelRead() error
	DispatchPending() (int, error)
	Flush() error

	// OutputEvents delivers geometry changes as they arrive.
	OutputEvents() <-chan OutputEvent

	// KeymapEvents delivers new keymaps as the seat's keyboard
	// capability reports them.
	KeymapEvents() <-chan KeymapEvent

	// NewLayer creates (or re-creates) the overlay surface for the
	// given output, returning the overlay.PixelBuffer capability the
	// core's overlay.Layer draws into once the compositor configures
	// it.
	NewLayer(id geometry.OutputID) (overlay.PixelBuffer, error)

	// EmitPointerMotion sends an absolute virtual-pointer position.
	EmitPointerMotion(t time.Time, x, y float32, boundsW, boundsH float32) error
	// EmitPointerButton sends a virtual-pointer button event.
	EmitPointerButton(t time.Time, code uint32, state events.ButtonState) error
	// EmitPointerAxis sends a virtual-pointer scroll event.
	EmitPointerAxis(t time.Time, orientation events.AxisOrientation, source events.AxisSource, value float64, stop bool) error
	// EmitPointerFrame concludes a logical pointer event.
	EmitPointerFrame() error

	// EmitKeymap uploads a (possibly already-seen) keymap to the
	// virtual keyboard; the core only calls this after the content-
	// equality check has determined the keymap actually changed.
	EmitKeymap(format int, data []byte) error
	// EmitModifiers sends the current modifier/group state.
	EmitModifiers(depressed, latched, locked, group uint32) error
	// EmitKey sends a virtual-keyboard key event.
	EmitKey(t time.Time, code uint32, state events.KeyState) error

	// Close releases the connection and all virtual devices.
	Close() error
}
