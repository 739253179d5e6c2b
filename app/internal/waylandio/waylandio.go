// Package waylandio implements compositor.Conn against a real Wayland
// connection using github.com/rajveermalviya/go-wayland's pure-Go
// generated client bindings for the core protocol and wlr-layer-shell,
// and github.com/bnema/wayland-virtual-input-go for the virtual
// pointer and virtual keyboard protocols. It is the thin, replaceable
// edge of the daemon; the event-pipeline engine in
// app/internal/pipeline never imports this package directly, only the
// compositor.Conn interface it implements.
package waylandio

import (
	"fmt"
	"time"

	"github.com/bnema/wayland-virtual-input-go/virtual_keyboard"
	"github.com/bnema/wayland-virtual-input-go/virtual_pointer"
	"github.com/rajveermalviya/go-wayland/wayland/client"
	layershell "github.com/rajveermalviya/go-wayland/wayland/wlr-protocols/wlr-layer-shell-v1"
	xdgoutput "github.com/rajveermalviya/go-wayland/wayland/unstable/xdg-output"

	"github.com/ArrayBolt3/kloak-v2/compositor"
	"github.com/ArrayBolt3/kloak-v2/internal/errs"
	"github.com/ArrayBolt3/kloak-v2/internal/events"
	"github.com/ArrayBolt3/kloak-v2/internal/geometry"
	"github.com/ArrayBolt3/kloak-v2/internal/overlay"
	"github.com/ArrayBolt3/kloak-v2/internal/randsrc"
)

// Conn is the real compositor.Conn implementation.
type Conn struct {
	display    *client.Display
	ctx        *client.Context
	registry   *client.Registry
	compositor *client.Compositor
	shm        *client.Shm
	seat       *client.Seat
	outputMgr  *xdgoutput.ZxdgOutputManagerV1
	layerShell *layershell.ZwlrLayerShellV1
	vpMgr      *virtual_pointer.ZwlrVirtualPointerManagerV1
	vkMgr      *virtual_keyboard.ZwpVirtualKeyboardManagerV1

	vp *virtual_pointer.ZwlrVirtualPointerV1
	vk *virtual_keyboard.ZwpVirtualKeyboardV1

	seatName string

	outputByID map[geometry.OutputID]*outputState
	nextID     geometry.OutputID

	outEvents    chan compositor.OutputEvent
	keymapEvents chan compositor.KeymapEvent

	layers map[geometry.OutputID]*wlLayer
}

type outputState struct {
	id         geometry.OutputID
	globalName uint32
	wlOutput   *client.Output
	xdgOut     *xdgoutput.ZxdgOutputV1
	x, y       int32
	w, h       int32
}

type wlLayer struct {
	surface      *client.Surface
	layerSurface *layershell.ZwlrLayerSurfaceV1
	pool         *client.ShmPool
	buf          *client.Buffer
	pixels       []byte
	stride       int
	width        int
	height       int
	shmName      string
}

// Pixels implements overlay.PixelBuffer.
func (l *wlLayer) Pixels() []byte { return l.pixels }

// Stride implements overlay.PixelBuffer.
func (l *wlLayer) Stride() int { return l.stride }

// Damage implements overlay.PixelBuffer.
func (l *wlLayer) Damage(r overlay.Rect) {
	if l.surface == nil {
		return
	}
	l.surface.DamageBuffer(int32(r.X), int32(r.Y), int32(r.W), int32(r.H))
}

// Dial connects to the compositor's default display, binds every
// global the daemon requires, and returns a ready Conn. Any missing
// required global is an environment-fatal error, per the
// specification's error taxonomy.
func Dial(seatNameOverride string) (*Conn, error) {
	display, err := client.Connect("")
	if err != nil {
		return nil, errs.Wrap(errs.EnvironmentFatal, "connect to compositor", err)
	}
	ctx := display.Context()

	c := &Conn{
		display:      display,
		ctx:          ctx,
		seatName:     seatNameOverride,
		outputByID:   make(map[geometry.OutputID]*outputState),
		outEvents:    make(chan compositor.OutputEvent, 64),
		keymapEvents: make(chan compositor.KeymapEvent, 4),
		layers:       make(map[geometry.OutputID]*wlLayer),
	}

	registry, err := display.GetRegistry()
	if err != nil {
		return nil, errs.Wrap(errs.EnvironmentFatal, "get registry", err)
	}
	c.registry = registry
	registry.SetGlobalHandler(c.onGlobal)
	registry.SetGlobalRemoveHandler(c.onGlobalRemove)

	if err := roundtrip(ctx, display); err != nil {
		return nil, errs.Wrap(errs.EnvironmentFatal, "initial registry roundtrip", err)
	}

	if c.compositor == nil || c.shm == nil || c.seat == nil || c.outputMgr == nil || c.layerShell == nil || c.vpMgr == nil || c.vkMgr == nil {
		return nil, errs.New(errs.EnvironmentFatal, "compositor is missing a required global (compositor/shm/seat/xdg-output-manager/layer-shell/virtual-pointer-manager/virtual-keyboard-manager)")
	}

	vp, err := c.vpMgr.CreateVirtualPointer(c.seat)
	if err != nil {
		return nil, errs.Wrap(errs.EnvironmentFatal, "create virtual pointer", err)
	}
	c.vp = vp

	vk, err := c.vkMgr.CreateVirtualKeyboard(c.seat)
	if err != nil {
		return nil, errs.Wrap(errs.EnvironmentFatal, "create virtual keyboard (client not authorized?)", err)
	}
	c.vk = vk

	return c, nil
}

func roundtrip(ctx *client.Context, display *client.Display) error {
	cb, err := display.Sync()
	if err != nil {
		return err
	}
	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	for !done {
		if err := ctx.Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) onGlobal(ev client.RegistryGlobalEvent) {
	switch ev.Interface {
	case "wl_compositor":
		comp := client.NewCompositor(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, comp)
		c.compositor = comp
	case "wl_shm":
		shm := client.NewShm(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, shm)
		c.shm = shm
	case "wl_seat":
		seat := client.NewSeat(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, seat)
		c.seat = seat
		seat.SetCapabilitiesHandler(c.onSeatCapabilities)
	case "wl_output":
		out := client.NewOutput(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, out)
		c.addOutput(out, ev.Name)
	case "zxdg_output_manager_v1":
		mgr := xdgoutput.NewZxdgOutputManagerV1(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, mgr)
		c.outputMgr = mgr
	case "zwlr_layer_shell_v1":
		ls := layershell.NewZwlrLayerShellV1(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, ls)
		c.layerShell = ls
	case "zwlr_virtual_pointer_manager_v1":
		mgr := virtual_pointer.NewZwlrVirtualPointerManagerV1(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, mgr)
		c.vpMgr = mgr
	case "zwp_virtual_keyboard_manager_v1":
		mgr := virtual_keyboard.NewZwpVirtualKeyboardManagerV1(c.ctx)
		c.registry.Bind(ev.Name, ev.Interface, ev.Version, mgr)
		c.vkMgr = mgr
	}
}

func (c *Conn) onGlobalRemove(ev client.RegistryGlobalRemoveEvent) {
	for id, st := range c.outputByID {
		if st.globalName != ev.Name {
			continue
		}
		delete(c.outputByID, id)
		c.outEvents <- compositor.OutputEvent{Kind: compositor.OutputRemoved, ID: id}
		return
	}
}

func (c *Conn) onSeatCapabilities(ev client.SeatCapabilitiesEvent) {
	// The keyboard capability on the physical seat is not used for
	// input (physical devices are grabbed directly via evdevio); it
	// only confirms the seat exists. Nothing to bind here beyond what
	// Dial already did for the virtual devices.
}

func (c *Conn) addOutput(wlOut *client.Output, globalName uint32) {
	id := c.nextID
	c.nextID++
	st := &outputState{id: id, globalName: globalName, wlOutput: wlOut}
	c.outputByID[id] = st

	xdgOut, err := c.outputMgr.GetXdgOutput(wlOut)
	if err == nil {
		st.xdgOut = xdgOut
		xdgOut.SetLogicalPositionHandler(func(ev xdgoutput.ZxdgOutputV1LogicalPositionEvent) {
			st.x, st.y = ev.X, ev.Y
			c.outEvents <- compositor.OutputEvent{Kind: compositor.OutputPosition, ID: id, X: float32(ev.X), Y: float32(ev.Y)}
		})
		xdgOut.SetLogicalSizeHandler(func(ev xdgoutput.ZxdgOutputV1LogicalSizeEvent) {
			st.w, st.h = ev.Width, ev.Height
			c.outEvents <- compositor.OutputEvent{Kind: compositor.OutputSize, ID: id, W: float32(ev.Width), H: float32(ev.Height)}
		})
		xdgOut.SetNameHandler(func(ev xdgoutput.ZxdgOutputV1NameEvent) {
			c.outEvents <- compositor.OutputEvent{Kind: compositor.OutputPosition, ID: id, Name: ev.Name, X: float32(st.x), Y: float32(st.y)}
		})
	}
}

// Fd implements compositor.Conn.
func (c *Conn) Fd() int { return c.ctx.GetFd() }

// PrepareRead implements compositor.Conn.
func (c *Conn) PrepareRead() error { return c.ctx.PrepareRead() }

// ReadEvents implements compositor.Conn.
func (c *Conn) ReadEvents() error { return c.ctx.ReadEvents() }

// CancelRead implements compositor.Conn: releases a prepared read
// without touching the socket, for when poll reports the fd is not
// yet readable.
func (c *Conn) CancelRead() error {
	c.ctx.CancelRead()
	return nil
}

// DispatchPending implements compositor.Conn.
func (c *Conn) DispatchPending() (int, error) { return c.ctx.DispatchPending() }

// Flush implements compositor.Conn.
func (c *Conn) Flush() error { return c.ctx.Flush() }

// OutputEvents implements compositor.Conn.
func (c *Conn) OutputEvents() <-chan compositor.OutputEvent { return c.outEvents }

// KeymapEvents implements compositor.Conn.
func (c *Conn) KeymapEvents() <-chan compositor.KeymapEvent { return c.keymapEvents }

// NewLayer implements compositor.Conn: creates a layer-shell overlay
// surface anchored to all four edges of the output, with an empty
// input region so it never intercepts input (click-through).
func (c *Conn) NewLayer(id geometry.OutputID) (overlay.PixelBuffer, error) {
	st, ok := c.outputByID[id]
	if !ok {
		return nil, errs.New(errs.ResourceRecoverable, "NewLayer: unknown output id")
	}
	surf, err := c.compositor.CreateSurface()
	if err != nil {
		return nil, err
	}
	region, err := c.compositor.CreateRegion()
	if err != nil {
		return nil, err
	}
	surf.SetInputRegion(region)

	ls, err := c.layerShell.GetLayerSurface(surf, st.wlOutput, layershell.ZwlrLayerShellV1LayerOverlay, "kloak-v2-overlay")
	if err != nil {
		return nil, err
	}
	ls.SetAnchor(uint32(layershell.ZwlrLayerSurfaceV1AnchorTop |
		layershell.ZwlrLayerSurfaceV1AnchorBottom |
		layershell.ZwlrLayerSurfaceV1AnchorLeft |
		layershell.ZwlrLayerSurfaceV1AnchorRight))
	ls.SetExclusiveZone(-1)

	l := &wlLayer{surface: surf, layerSurface: ls, width: int(st.w), height: int(st.h), stride: int(st.w) * 4}
	c.layers[id] = l

	ls.SetConfigureHandler(func(ev layershell.ZwlrLayerSurfaceV1ConfigureEvent) {
		l.width, l.height = int(ev.Width), int(ev.Height)
		l.stride = l.width * 4
		if err := c.allocateBuffer(l); err != nil {
			return
		}
		ls.AckConfigure(ev.Serial)
	})
	ls.SetClosedHandler(func(layershell.ZwlrLayerSurfaceV1ClosedEvent) {
		delete(c.layers, id)
	})

	surf.Commit()
	return l, nil
}

func (c *Conn) allocateBuffer(l *wlLayer) error {
	size := l.stride * l.height
	name := randsrc.ShmName("kloak-v2-overlay")
	fd, mem, err := createShm(name, size)
	if err != nil {
		return err
	}
	l.shmName = name
	l.pixels = mem

	pool, err := c.shm.CreatePool(fd, int32(size))
	if err != nil {
		return err
	}
	l.pool = pool
	buf, err := pool.CreateBuffer(0, int32(l.width), int32(l.height), int32(l.stride), client.ShmFormatArgb8888)
	if err != nil {
		return err
	}
	l.buf = buf
	buf.SetReleaseHandler(func(client.BufferReleaseEvent) {
		// The core's overlay.Layer tracks frame-release state itself;
		// the adapter only needs to recycle the underlying memory once
		// the pipeline calls NewLayer again for the next frame.
	})
	return nil
}

// EmitPointerMotion implements compositor.Conn.
func (c *Conn) EmitPointerMotion(t time.Time, x, y float32, boundsW, boundsH float32) error {
	return c.vp.MotionAbsolute(uint32(t.UnixMilli()), uint32(x), uint32(y), uint32(boundsW), uint32(boundsH))
}

// EmitPointerButton implements compositor.Conn.
func (c *Conn) EmitPointerButton(t time.Time, code uint32, state events.ButtonState) error {
	st := uint32(0)
	if state == events.ButtonPressed {
		st = 1
	}
	return c.vp.Button(uint32(t.UnixMilli()), code, st)
}

// EmitPointerAxis implements compositor.Conn.
func (c *Conn) EmitPointerAxis(t time.Time, orientation events.AxisOrientation, source events.AxisSource, value float64, stop bool) error {
	axis := uint32(0)
	if orientation == events.AxisHorizontal {
		axis = 1
	}
	if stop {
		return c.vp.AxisStop(uint32(t.UnixMilli()), axis)
	}
	if err := c.vp.AxisSource(uint32(source)); err != nil {
		return err
	}
	return c.vp.Axis(uint32(t.UnixMilli()), axis, int32(value*256))
}

// EmitPointerFrame implements compositor.Conn.
func (c *Conn) EmitPointerFrame() error { return c.vp.Frame() }

// EmitKeymap implements compositor.Conn.
func (c *Conn) EmitKeymap(format int, data []byte) error {
	fd, err := writeTmpfile(data)
	if err != nil {
		return err
	}
	return c.vk.Keymap(uint32(format), fd, uint32(len(data)))
}

// EmitModifiers implements compositor.Conn.
func (c *Conn) EmitModifiers(depressed, latched, locked, group uint32) error {
	return c.vk.Modifiers(depressed, latched, locked, group)
}

// EmitKey implements compositor.Conn.
func (c *Conn) EmitKey(t time.Time, code uint32, state events.KeyState) error {
	st := uint32(0)
	if state == events.KeyPressed || state == events.KeyRepeated {
		st = 1
	}
	return c.vk.Key(uint32(t.UnixMilli()), code, st)
}

// Close implements compositor.Conn.
func (c *Conn) Close() error {
	if c.vp != nil {
		c.vp.Destroy()
	}
	if c.vk != nil {
		c.vk.Destroy()
	}
	return c.display.Close()
}

var _ fmt.Stringer = (*Conn)(nil)

// String implements fmt.Stringer, used only in diagnostics.
func (c *Conn) String() string { return fmt.Sprintf("waylandio.Conn{seat=%q}", c.seatName) }
