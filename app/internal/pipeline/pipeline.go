// Package pipeline implements the unified event-pipeline main loop:
// it multiplexes the compositor's file descriptor and the physical
// input source's file descriptor, drives the obfuscation scheduler,
// the cursor engine, and the overlay renderer, and is the only place
// in the daemon with a blocking suspension point.
package pipeline

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/ArrayBolt3/kloak-v2/compositor"
	"github.com/ArrayBolt3/kloak-v2/inputsrc"
	"github.com/ArrayBolt3/kloak-v2/internal/cursor"
	"github.com/ArrayBolt3/kloak-v2/internal/errs"
	"github.com/ArrayBolt3/kloak-v2/internal/events"
	"github.com/ArrayBolt3/kloak-v2/internal/geometry"
	"github.com/ArrayBolt3/kloak-v2/internal/overlay"
	"github.com/ArrayBolt3/kloak-v2/internal/randsrc"
	"github.com/ArrayBolt3/kloak-v2/internal/scheduler"
	"github.com/ArrayBolt3/kloak-v2/internal/xkb"
)

// Stats is updated every iteration and exposed for diagnostics; it is
// not a network-visible surface (no metrics endpoint), only an
// in-process counter set a caller can read.
type Stats struct {
	PhysicalEventsSeen  uint64
	EventsForwarded     uint64
	EventsDroppedNoTarget uint64
	FramesDrawn         uint64
	KeymapUploads       uint64
}

// Engine wires together every core component and the two capability
// adapters (compositor.Conn, inputsrc.Source) into the main loop
// described in the specification's event pipeline / main loop
// section.
type Engine struct {
	Conn   compositor.Conn
	Input  inputsrc.Source
	Radius int
	Color  uint32
	Logger *log.Logger

	geo       *geometry.Registry
	cursorEng *cursor.Engine
	queue     *scheduler.Queue
	cadence   *scheduler.Cadence
	clock     scheduler.Clock
	rand      randsrc.Source

	layers map[geometry.OutputID]*overlay.Layer
	bufs   map[geometry.OutputID]overlay.PixelBuffer

	xkbState *xkb.State

	Stats Stats
}

// New constructs an Engine. maxDelay corresponds to the
// specification's DEFAULT_MAX_DELAY_MS knob; POLL_TIMEOUT_MS is passed
// to Run instead. logger receives a Warn line for every non-fatal
// iteration error; passing nil discards them.
func New(conn compositor.Conn, input inputsrc.Source, radius int, color uint32, maxDelay time.Duration, logger *log.Logger) *Engine {
	clock := scheduler.SystemClock{}
	rand := randsrc.CryptoSource{}
	geo := geometry.New()
	if logger == nil {
		logger = log.New(io.Discard)
	}
	e := &Engine{
		Conn:      conn,
		Input:     input,
		Radius:    radius,
		Color:     color,
		Logger:    logger,
		geo:       geo,
		cursorEng: cursor.New(geo),
		queue:     scheduler.New(clock, rand, maxDelay),
		cadence:   scheduler.NewCadence(clock, rand, maxDelay),
		clock:     clock,
		rand:      rand,
		layers:    make(map[geometry.OutputID]*overlay.Layer),
		bufs:      make(map[geometry.OutputID]overlay.PixelBuffer),
	}
	return e
}

// Run executes the main loop until stop is closed or a fatal error
// occurs.
func (e *Engine) Run(stop <-chan struct{}, pollTimeout time.Duration) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if err := e.iterate(pollTimeout); err != nil {
			kind := errs.Classify(err)
			if kind.Fatal() {
				return err
			}
			e.Logger.Warn("recoverable pipeline error", "kind", kind.String(), "err", err)
		}
	}
}

func (e *Engine) iterate(pollTimeout time.Duration) error {
	// Step 1: drain pending compositor reads without blocking; flush
	// outgoing requests.
	if _, err := e.Conn.DispatchPending(); err != nil {
		return errs.Wrap(errs.EnvironmentFatal, "dispatch pending compositor events", err)
	}
	if err := e.Conn.Flush(); err != nil {
		return errs.Wrap(errs.EnvironmentFatal, "flush compositor requests", err)
	}
	e.drainOutputEvents()
	e.drainKeymapEvents()

	// Step 2: drain all available physical events; classify-and-
	// enqueue.
	physEvents, err := e.Input.Dispatch()
	if err != nil {
		return errs.Wrap(errs.ResourceRecoverable, "dispatch physical input", err)
	}
	for _, ev := range physEvents {
		e.Stats.PhysicalEventsSeen++
		e.handlePhysical(ev)
	}

	// Step 3: release sweep.
	now := e.clock.Now()
	for _, ev := range e.queue.Sweep(now) {
		if err := e.forward(ev); err != nil {
			e.Stats.EventsDroppedNoTarget++
			continue
		}
		e.Stats.EventsForwarded++
	}

	// Step 4: draw pending layers.
	e.drawPendingLayers()
	if err := e.Conn.Flush(); err != nil {
		return errs.Wrap(errs.EnvironmentFatal, "flush compositor requests", err)
	}

	// Step 5: virtual cursor cadence.
	if e.cadence.Due(now) {
		pos := e.cursorEng.Position()
		gw, gh := e.geo.GlobalSize()
		if err := e.Conn.EmitPointerMotion(now, pos.X, pos.Y, gw, gh); err == nil {
			e.Conn.EmitPointerFrame()
		}
		e.cadence.Resample()
	}

	// Step 6: poll both descriptors.
	return e.poll(pollTimeout, now)
}

func (e *Engine) handlePhysical(ev events.Physical) {
	switch ev.Kind {
	case events.MotionAbs:
		e.cursorEng.ApplyAbsolute(float32(ev.X), float32(ev.Y))
		e.updateLayerCursor()
	case events.MotionRel:
		e.cursorEng.ApplyRelativeClamped(float32(ev.DX), float32(ev.DY))
		e.updateLayerCursor()
	case events.DeviceAdded:
		// Device configuration is applied immediately; nothing for
		// the scheduler to do besides what the input adapter already
		// performed (tap-to-click enablement at grab time).
	default:
		if scheduler.Classify(ev) {
			e.queue.Enqueue(ev)
		}
	}
}

func (e *Engine) forward(ev events.Physical) error {
	now := e.clock.Now()
	switch ev.Kind {
	case events.Button:
		if _, _, _, ok := e.geo.AbsToLocal(e.cursorEng.Position().X, e.cursorEng.Position().Y); !ok {
			// No valid virtual-pointer target: the cursor is currently
			// in a gap. Drop, per the specification's resource-
			// recoverable policy (a documented open question rather
			// than a bug).
			return errs.New(errs.ResourceRecoverable, "button event dropped: cursor outside any output")
		}
		if err := e.Conn.EmitPointerButton(now, ev.ButtonCode, ev.ButtonState); err != nil {
			return err
		}
		return e.Conn.EmitPointerFrame()
	case events.Axis:
		if _, _, _, ok := e.geo.AbsToLocal(e.cursorEng.Position().X, e.cursorEng.Position().Y); !ok {
			return errs.New(errs.ResourceRecoverable, "axis event dropped: cursor outside any output")
		}
		if err := e.Conn.EmitPointerAxis(now, ev.AxisOrientation, ev.AxisSource, ev.AxisValue, ev.AxisStop); err != nil {
			return err
		}
		return e.Conn.EmitPointerFrame()
	case events.Key:
		if e.xkbState == nil {
			return errs.New(errs.ResourceRecoverable, "key event dropped: no keymap set yet")
		}
		depressed, latched, locked, group := e.xkbState.UpdateKey(ev.KeyCode, ev.KeyState == events.KeyPressed)
		if err := e.Conn.EmitModifiers(depressed, latched, locked, group); err != nil {
			return err
		}
		return e.Conn.EmitKey(now, ev.KeyCode, ev.KeyState)
	}
	return nil
}

func (e *Engine) drainOutputEvents() {
	for {
		select {
		case oev := <-e.Conn.OutputEvents():
			e.handleOutputEvent(oev)
		default:
			return
		}
	}
}

func (e *Engine) handleOutputEvent(oev compositor.OutputEvent) {
	switch oev.Kind {
	case compositor.OutputPosition:
		e.geo.RegisterPosition(oev.ID, oev.Name, oev.X, oev.Y)
	case compositor.OutputSize:
		e.geo.RegisterSize(oev.ID, oev.Name, oev.W, oev.H)
		if l, ok := e.geo.Get(oev.ID); ok && l.InitDone() {
			e.ensureLayer(oev.ID)
		}
	case compositor.OutputRemoved:
		e.geo.Unregister(oev.ID)
		if l, ok := e.layers[oev.ID]; ok {
			l.Destroy()
			delete(e.layers, oev.ID)
			delete(e.bufs, oev.ID)
		}
		_ = e.geo.ValidateGeometry(false)
		e.cursorEng.HandleOutputRemoved()
	}
}

func (e *Engine) ensureLayer(id geometry.OutputID) {
	if _, ok := e.layers[id]; ok {
		return
	}
	out, ok := e.geo.Get(id)
	if !ok {
		return
	}
	buf, err := e.Conn.NewLayer(id)
	if err != nil {
		return
	}
	e.bufs[id] = buf
	e.layers[id] = overlay.NewLayer(int(out.W), int(out.H), e.Radius, e.Color)
	e.layers[id].Configure(int(out.W), int(out.H))
}

func (e *Engine) updateLayerCursor() {
	pos := e.cursorEng.Position()
	onID, lx, ly, ok := e.geo.AbsToLocal(pos.X, pos.Y)
	for id, l := range e.layers {
		if ok && id == onID {
			l.SetCursor(true, int(lx), int(ly))
		} else {
			l.SetCursor(false, 0, 0)
		}
	}
}

func (e *Engine) drawPendingLayers() {
	pos := e.cursorEng.Position()
	onID, lx, ly, ok := e.geo.AbsToLocal(pos.X, pos.Y)
	for id, l := range e.layers {
		if !l.ReadyToDraw() {
			continue
		}
		buf := e.bufs[id]
		onThis := ok && id == onID
		if err := l.Draw(buf, onThis, int(lx), int(ly)); err == nil {
			e.Stats.FramesDrawn++
		}
	}
}

func (e *Engine) drainKeymapEvents() {
	for {
		select {
		case kev := <-e.Conn.KeymapEvents():
			e.handleKeymap(kev)
		default:
			return
		}
	}
}

func (e *Engine) handleKeymap(kev compositor.KeymapEvent) {
	if e.xkbState != nil && e.xkbState.SameKeymap(kev.Data) {
		// Protocol-degenerate: identical keymap, silently discarded.
		return
	}
	// The real adapter hands this routine a memfd, not raw bytes; the
	// capability boundary here accepts bytes for testability and the
	// waylandio adapter is responsible for the mmap step before
	// publishing a KeymapEvent.
	fd, err := memfdFromBytes(kev.Data)
	if err != nil {
		return
	}
	defer unix.Close(fd)
	state, err := xkb.New(fd, len(kev.Data)+1)
	if err != nil {
		return
	}
	if e.xkbState != nil {
		e.xkbState.Destroy()
	}
	e.xkbState = state
	if err := e.Conn.EmitKeymap(kev.Format, kev.Data); err == nil {
		e.Stats.KeymapUploads++
	}
}

func memfdFromBytes(data []byte) (int, error) {
	fd, err := unix.MemfdCreate("kloak-v2-keymap-local", unix.MFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	if err := unix.Ftruncate(fd, int64(len(data)+1)); err != nil {
		unix.Close(fd)
		return -1, err
	}
	mem, err := unix.Mmap(fd, 0, len(data)+1, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	copy(mem, data)
	unix.Munmap(mem)
	return fd, nil
}

func (e *Engine) poll(pollTimeout time.Duration, now time.Time) error {
	timeout := pollTimeout
	if next, ok := e.queue.NextRelease(); ok {
		if d := next.Sub(now); d < timeout {
			timeout = d
		}
	}
	if d := e.cadence.Next().Sub(now); d < timeout {
		timeout = d
	}
	if timeout < 0 {
		timeout = 0
	}

	if err := e.Conn.PrepareRead(); err != nil {
		return errs.Wrap(errs.EnvironmentFatal, "prepare compositor read", err)
	}

	fds := []unix.PollFd{
		{Fd: int32(e.Conn.Fd()), Events: unix.POLLIN},
		{Fd: int32(e.Input.Fd()), Events: unix.POLLIN},
	}
	_, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil && err != unix.EINTR {
		return errs.Wrap(errs.EnvironmentFatal, "poll", err)
	}

	if fds[0].Revents&unix.POLLIN != 0 {
		if err := e.Conn.ReadEvents(); err != nil {
			return errs.Wrap(errs.EnvironmentFatal, "read compositor events", err)
		}
	} else if err := e.Conn.CancelRead(); err != nil {
		return errs.Wrap(errs.EnvironmentFatal, "cancel prepared compositor read", err)
	}
	return nil
}
