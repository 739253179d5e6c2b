// Package events defines the physical and virtual input event shapes
// that flow between the input-source adapter, the scheduler, the
// cursor engine, and the compositor adapter. Events carry raw evdev
// codes through unchanged; this package never translates them.
package events

import "time"

// Kind tags the variant held by a Physical event.
type Kind int

const (
	// MotionAbs is an absolute pointer motion, normalized to the
	// global coordinate space. Bypasses the scheduler queue.
	MotionAbs Kind = iota
	// MotionRel is a relative pointer motion delta. Bypasses the
	// scheduler queue.
	MotionRel
	// Button is a pointer button press or release. Enqueued.
	Button
	// Axis is a scroll/wheel event. Enqueued.
	Axis
	// Key is a keyboard key press or release. Enqueued.
	Key
	// DeviceAdded notifies that a new input device appeared; applied
	// immediately (device configuration), never enqueued.
	DeviceAdded
)

// AxisSource distinguishes the origin of a scroll event, mirrored
// straight through to the virtual-pointer axis-source request.
type AxisSource int

const (
	AxisSourceWheel AxisSource = iota
	AxisSourceFinger
	AxisSourceContinuous
)

// AxisOrientation selects the scroll direction.
type AxisOrientation int

const (
	AxisVertical AxisOrientation = iota
	AxisHorizontal
)

// KeyState and ButtonState share the press/release vocabulary; kept as
// distinct types so a caller can't accidentally pass one where the
// other belongs.
type KeyState int

const (
	KeyReleased KeyState = iota
	KeyPressed
	KeyRepeated
)

type ButtonState int

const (
	ButtonReleased ButtonState = iota
	ButtonPressed
)

// Physical is the tagged union of everything the input-source adapter
// can produce. Only the fields relevant to Kind are populated.
type Physical struct {
	Kind Kind
	Time time.Time

	// MotionAbs: X, Y normalized to [0, globalWidth] x [0, globalHeight].
	// MotionRel: DX, DY as a raw delta.
	X, Y   float64
	DX, DY float64

	// Button: evdev button code (e.g. BTN_LEFT) and its new state.
	ButtonCode  uint32
	ButtonState ButtonState

	// Axis: orientation, source, and the scroll value as a plain number
	// (the compositor adapter converts it to the wire's fixed-point
	// form), or 0 on a stop.
	AxisOrientation AxisOrientation
	AxisSource      AxisSource
	AxisValue       float64
	AxisStop        bool

	// Key: evdev keycode and its new state.
	KeyCode  uint32
	KeyState KeyState

	// DeviceAdded: capability bits observed on the new device, used to
	// decide whether to enable tap-to-click.
	DeviceName        string
	DeviceTapToClick  bool
	DeviceIsTouchpad  bool
}

// ScheduledPacket is an event held in the scheduler's FIFO queue,
// carrying the release time it was assigned at enqueue time.
type ScheduledPacket struct {
	Event       Physical
	ReleaseTime time.Time
}
