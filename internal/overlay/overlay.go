// Package overlay implements the per-output drawable-layer state
// machine: a shared-memory-backed ARGB8888 buffer anchored to fill
// its output, on which a small red crosshair tracks the logical
// cursor using minimal damage rectangles.
package overlay

import "fmt"

// State is a layer's position in its lifecycle.
type State int

const (
	Unconfigured State = iota
	Configured
	BufferOutstanding
	BufferFree
	Destroyed
)

// Rect is an inclusive pixel rectangle used for damage tracking.
type Rect struct {
	X, Y, W, H int
}

// PixelBuffer is the capability a layer needs from its compositor
// adapter: a mapped ARGB8888 byte slice sized stride*height, where
// stride = 4*width, plus a way to submit damage and attach/commit the
// buffer. The adapter package implements this against wl_shm.
type PixelBuffer interface {
	Pixels() []byte
	Stride() int
	Damage(r Rect)
}

// Layer owns one output's overlay surface.
type Layer struct {
	OutputW, OutputH int
	Radius           int
	Color            uint32 // ARGB8888, default 0xFFFF0000 (opaque red)

	state          State
	framePending   bool
	frameReleased  bool
	lastDrawnX     int
	lastDrawnY     int
	hasLastDrawn   bool
	buf            PixelBuffer
}

// NewLayer constructs a Layer in the Unconfigured state.
func NewLayer(w, h, radius int, color uint32) *Layer {
	return &Layer{
		OutputW:       w,
		OutputH:       h,
		Radius:        radius,
		Color:         color,
		state:         Unconfigured,
		frameReleased: true,
	}
}

// State returns the layer's current lifecycle state.
func (l *Layer) State() State { return l.state }

// Configure transitions the layer to Configured once the compositor
// has handed back the output's size.
func (l *Layer) Configure(w, h int) {
	l.OutputW, l.OutputH = w, h
	l.state = Configured
}

// Destroy transitions the layer to its terminal state, called on
// output removal.
func (l *Layer) Destroy() {
	l.state = Destroyed
	l.buf = nil
}

// OnFrameReleased marks the outstanding buffer returned by the
// compositor, allowing the next draw to proceed (invariant: at most
// one outstanding buffer per layer).
func (l *Layer) OnFrameReleased() {
	l.frameReleased = true
	if l.state == BufferOutstanding {
		l.state = BufferFree
	}
}

// SetCursor updates whether, and where, the cursor sits on this
// layer, setting framePending if anything changed: the cursor
// entering, leaving, or moving within the layer.
func (l *Layer) SetCursor(onLayer bool, localX, localY int) {
	if !onLayer {
		if l.hasLastDrawn {
			l.framePending = true
		}
		return
	}
	if !l.hasLastDrawn || l.lastDrawnX != localX || l.lastDrawnY != localY {
		l.framePending = true
	}
}

// ReadyToDraw reports whether the draw path should run this
// iteration: configured, the prior buffer has been released, and the
// cursor moved in, out, or within this layer since the last draw.
func (l *Layer) ReadyToDraw() bool {
	return l.state != Unconfigured && l.state != Destroyed && l.frameReleased && l.framePending
}

// Draw performs the erase-then-redraw pass into buf, damaging exactly
// the erased square and the newly drawn square (each side 2R+1), and
// transitions the layer to BufferOutstanding.
func (l *Layer) Draw(buf PixelBuffer, cursorOnLayer bool, localX, localY int) error {
	if !l.ReadyToDraw() {
		return fmt.Errorf("overlay: Draw called while not ready (state=%v pending=%v released=%v)", l.state, l.framePending, l.frameReleased)
	}
	l.buf = buf
	if l.hasLastDrawn {
		l.eraseSquare(buf, l.lastDrawnX, l.lastDrawnY)
	}
	if cursorOnLayer {
		l.drawCrosshair(buf, localX, localY)
		l.lastDrawnX, l.lastDrawnY = localX, localY
		l.hasLastDrawn = true
	} else {
		l.hasLastDrawn = false
	}
	l.framePending = false
	l.frameReleased = false
	l.state = BufferOutstanding
	return nil
}

func (l *Layer) squareRect(cx, cy int) Rect {
	side := 2*l.Radius + 1
	return Rect{X: cx - l.Radius, Y: cy - l.Radius, W: side, H: side}
}

func (l *Layer) eraseSquare(buf PixelBuffer, cx, cy int) {
	r := l.clipSquare(cx, cy)
	l.fillRect(buf, r, 0)
	buf.Damage(r)
}

func (l *Layer) drawCrosshair(buf PixelBuffer, cx, cy int) {
	r := l.clipSquare(cx, cy)
	stride := buf.Stride()
	pix := buf.Pixels()
	// Vertical center line.
	for y := r.Y; y < r.Y+r.H; y++ {
		writePixel(pix, stride, cx, y, l.Color)
	}
	// Horizontal center line.
	for x := r.X; x < r.X+r.W; x++ {
		writePixel(pix, stride, x, cy, l.Color)
	}
	buf.Damage(r)
}

func (l *Layer) clipSquare(cx, cy int) Rect {
	r := l.squareRect(cx, cy)
	if r.X < 0 {
		r.W += r.X
		r.X = 0
	}
	if r.Y < 0 {
		r.H += r.Y
		r.Y = 0
	}
	if r.X+r.W > l.OutputW {
		r.W = l.OutputW - r.X
	}
	if r.Y+r.H > l.OutputH {
		r.H = l.OutputH - r.Y
	}
	if r.W < 0 {
		r.W = 0
	}
	if r.H < 0 {
		r.H = 0
	}
	return r
}

func (l *Layer) fillRect(buf PixelBuffer, r Rect, argb uint32) {
	stride := buf.Stride()
	pix := buf.Pixels()
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			writePixel(pix, stride, x, y, argb)
		}
	}
}

func writePixel(pix []byte, stride, x, y int, argb uint32) {
	off := y*stride + x*4
	if off < 0 || off+4 > len(pix) {
		return
	}
	// ARGB8888, byte order matches wl_shm's WL_SHM_FORMAT_ARGB8888
	// (little-endian BGRA in memory).
	pix[off+0] = byte(argb)
	pix[off+1] = byte(argb >> 8)
	pix[off+2] = byte(argb >> 16)
	pix[off+3] = byte(argb >> 24)
}

// DefaultColor is the crosshair's default ARGB8888 color: opaque red.
const DefaultColor uint32 = 0xFFFF0000

// DefaultRadius is the crosshair's default half-size in pixels.
const DefaultRadius = 15
