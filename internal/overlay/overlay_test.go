package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	pix     []byte
	stride  int
	damaged []Rect
}

func newFakeBuffer(w, h int) *fakeBuffer {
	return &fakeBuffer{pix: make([]byte, w*h*4), stride: w * 4}
}

func (f *fakeBuffer) Pixels() []byte { return f.pix }
func (f *fakeBuffer) Stride() int    { return f.stride }
func (f *fakeBuffer) Damage(r Rect)  { f.damaged = append(f.damaged, r) }

func TestLayerLifecycle(t *testing.T) {
	l := NewLayer(100, 100, 5, DefaultColor)
	assert.Equal(t, Unconfigured, l.State())
	assert.False(t, l.ReadyToDraw(), "unconfigured layers never draw")

	l.Configure(100, 100)
	assert.Equal(t, Configured, l.State())
	assert.False(t, l.ReadyToDraw(), "no cursor movement queued yet")

	l.SetCursor(true, 50, 50)
	assert.True(t, l.ReadyToDraw())

	buf := newFakeBuffer(100, 100)
	require.NoError(t, l.Draw(buf, true, 50, 50))
	assert.Equal(t, BufferOutstanding, l.State())
	assert.False(t, l.ReadyToDraw(), "buffer outstanding until released")

	l.OnFrameReleased()
	assert.Equal(t, BufferFree, l.State())

	l.Destroy()
	assert.Equal(t, Destroyed, l.State())
	assert.False(t, l.ReadyToDraw())
}

func TestLayerDrawWhileNotReadyErrors(t *testing.T) {
	l := NewLayer(100, 100, 5, DefaultColor)
	buf := newFakeBuffer(100, 100)
	err := l.Draw(buf, true, 10, 10)
	assert.Error(t, err, "unconfigured layers must refuse to draw")
}

// Invariants 7-8: a draw damages exactly the erased square (if any
// cursor was previously drawn) and the newly drawn square, each of
// side 2R+1, clipped to the output.
func TestLayerDamageRectanglesMatchCrosshairSquares(t *testing.T) {
	l := NewLayer(100, 100, 5, DefaultColor)
	l.Configure(100, 100)
	buf := newFakeBuffer(100, 100)

	l.SetCursor(true, 50, 50)
	require.NoError(t, l.Draw(buf, true, 50, 50))
	require.Len(t, buf.damaged, 1, "first draw only redraws, nothing to erase")
	assert.Equal(t, Rect{X: 45, Y: 45, W: 11, H: 11}, buf.damaged[0])

	l.OnFrameReleased()
	l.SetCursor(true, 60, 60)
	require.NoError(t, l.Draw(buf, true, 60, 60))
	require.Len(t, buf.damaged, 3)
	assert.Equal(t, Rect{X: 45, Y: 45, W: 11, H: 11}, buf.damaged[1], "erase of the old square")
	assert.Equal(t, Rect{X: 55, Y: 55, W: 11, H: 11}, buf.damaged[2], "redraw at the new position")
}

func TestLayerClipSquareAtEdge(t *testing.T) {
	l := NewLayer(20, 20, 5, DefaultColor)
	l.Configure(20, 20)
	buf := newFakeBuffer(20, 20)

	l.SetCursor(true, 0, 0)
	require.NoError(t, l.Draw(buf, true, 0, 0))
	require.Len(t, buf.damaged, 1)
	r := buf.damaged[0]
	assert.Equal(t, 0, r.X)
	assert.Equal(t, 0, r.Y)
	assert.LessOrEqual(t, r.X+r.W, 20)
	assert.LessOrEqual(t, r.Y+r.H, 20)
}

func TestLayerCursorLeavingTriggersErase(t *testing.T) {
	l := NewLayer(100, 100, 5, DefaultColor)
	l.Configure(100, 100)
	buf := newFakeBuffer(100, 100)

	l.SetCursor(true, 50, 50)
	require.NoError(t, l.Draw(buf, true, 50, 50))
	l.OnFrameReleased()

	l.SetCursor(false, 0, 0)
	assert.True(t, l.ReadyToDraw())
	require.NoError(t, l.Draw(buf, false, 0, 0))
	require.Len(t, buf.damaged, 2)
	assert.Equal(t, Rect{X: 45, Y: 45, W: 11, H: 11}, buf.damaged[1])
}
