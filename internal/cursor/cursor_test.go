package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArrayBolt3/kloak-v2/f32"
	"github.com/ArrayBolt3/kloak-v2/internal/geometry"
)

func singleOutputRegistry(x, y, w, h float32) *geometry.Registry {
	reg := geometry.New()
	reg.RegisterPosition(1, "out0", x, y)
	reg.RegisterSize(1, "out0", w, h)
	return reg
}

// S3. Relative motion clamp: single output (0,0,100,100), cursor at
// (50,50), relative delta (+200,+200). Expected final cursor (99,99).
func TestScenarioS3RelativeMotionClamp(t *testing.T) {
	reg := singleOutputRegistry(0, 0, 100, 100)
	eng := New(reg)
	eng.cur = f32.Point{X: 50, Y: 50}
	eng.prev = eng.cur

	eng.ApplyRelativeClamped(200, 200)

	pos := eng.Position()
	assert.Equal(t, float32(99), pos.X)
	assert.Equal(t, float32(99), pos.Y)
}

// S4. Edge glide: left (0,0,100,100), right (100,50,100,50) (upper-right
// gap). Cursor at (50,25), relative (+100,0). The straight path at
// y=25 runs entirely through the gap once x reaches 100 (right output
// only covers y>=50), so the walk backs off in x and the cursor stops
// at the last valid pixel, (99,25).
func TestScenarioS4EdgeGlide(t *testing.T) {
	reg := geometry.New()
	reg.RegisterPosition(1, "left", 0, 0)
	reg.RegisterSize(1, "left", 100, 100)
	reg.RegisterPosition(2, "right", 100, 50)
	reg.RegisterSize(2, "right", 100, 50)

	eng := New(reg)
	eng.cur = f32.Point{X: 50, Y: 25}
	eng.prev = eng.cur

	eng.ApplyRelativeClamped(100, 0)

	pos := eng.Position()
	assert.Equal(t, float32(99), pos.X)
	assert.Equal(t, float32(25), pos.Y)

	// Invariant 5: the cursor lies within the union of outputs.
	_, _, _, ok := reg.AbsToLocal(pos.X, pos.Y)
	assert.True(t, ok)
}

// S5. Output removal: two adjacent outputs, cursor on the right one;
// remove the right output. Expected: cursor snaps to (0,0) of the
// remaining output.
func TestScenarioS5OutputRemoval(t *testing.T) {
	reg := geometry.New()
	reg.RegisterPosition(1, "left", 0, 0)
	reg.RegisterSize(1, "left", 100, 100)
	reg.RegisterPosition(2, "right", 100, 0)
	reg.RegisterSize(2, "right", 100, 100)

	eng := New(reg)
	eng.cur = f32.Point{X: 150, Y: 50}
	eng.prev = eng.cur

	reg.Unregister(2)
	eng.HandleOutputRemoved()

	pos := eng.Position()
	assert.Equal(t, float32(0), pos.X)
	assert.Equal(t, float32(0), pos.Y)
}

func TestAbsToLocalLocalToAbsRoundTrip(t *testing.T) {
	reg := geometry.New()
	reg.RegisterPosition(1, "left", 10, 20)
	reg.RegisterSize(1, "left", 50, 60)

	id, lx, ly, ok := reg.AbsToLocal(30, 40)
	require.True(t, ok)
	x, y, ok := reg.LocalToAbs(id, lx, ly)
	require.True(t, ok)
	assert.Equal(t, float32(30), x)
	assert.Equal(t, float32(40), y)
}
