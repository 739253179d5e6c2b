package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbsToLocalLocalToAbsRoundTrip(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "eDP-1", 0, 0)
	r.RegisterSize(1, "eDP-1", 1920, 1080)
	r.RegisterPosition(2, "DP-1", 1920, 200)
	r.RegisterSize(2, "DP-1", 1280, 1024)

	cases := []struct{ x, y float32 }{
		{0, 0}, {1919, 1079}, {1920, 200}, {3199, 1223}, {960, 540},
	}
	for _, c := range cases {
		id, lx, ly, ok := r.AbsToLocal(c.x, c.y)
		require.True(t, ok, "(%v,%v) should resolve to an output", c.x, c.y)
		x, y, ok := r.LocalToAbs(id, lx, ly)
		require.True(t, ok)
		assert.Equal(t, c.x, x)
		assert.Equal(t, c.y, y)
	}
}

func TestAbsToLocalOutsideAnyOutput(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "eDP-1", 0, 0)
	r.RegisterSize(1, "eDP-1", 100, 100)

	_, _, _, ok := r.AbsToLocal(100, 50)
	assert.False(t, ok)
	_, _, _, ok = r.AbsToLocal(-1, 50)
	assert.False(t, ok)
}

func TestGlobalSize(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "left", 0, 0)
	r.RegisterSize(1, "left", 100, 200)
	r.RegisterPosition(2, "right", 100, 50)
	r.RegisterSize(2, "right", 300, 100)

	w, h := r.GlobalSize()
	assert.Equal(t, float32(400), w)
	assert.Equal(t, float32(200), h)
}

func TestValidateGeometryAdjacentIsValid(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "left", 0, 0)
	r.RegisterSize(1, "left", 100, 100)
	r.RegisterPosition(2, "right", 100, 0)
	r.RegisterSize(2, "right", 100, 100)

	assert.NoError(t, r.ValidateGeometry(true))
}

func TestValidateGeometryStrictDetectsGap(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "left", 0, 0)
	r.RegisterSize(1, "left", 100, 100)
	// Disjoint: separated by a 10px gap on the x axis.
	r.RegisterPosition(2, "right", 110, 0)
	r.RegisterSize(2, "right", 100, 100)

	assert.Error(t, r.ValidateGeometry(true))
	assert.NoError(t, r.ValidateGeometry(false), "non-strict tolerates the transient gap")
}

func TestValidateGeometrySingleOutputNeverGaps(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "only", 0, 0)
	r.RegisterSize(1, "only", 100, 100)
	assert.NoError(t, r.ValidateGeometry(true))
}

func TestUnregisterRemovesOutput(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "a", 0, 0)
	r.RegisterSize(1, "a", 100, 100)

	require.True(t, r.Unregister(1))
	assert.False(t, r.Unregister(1), "already removed")
	_, ok := r.Get(1)
	assert.False(t, ok)
}

func TestOutputsExcludesPartiallyInitialized(t *testing.T) {
	r := New()
	r.RegisterPosition(1, "pending", 0, 0)
	// Size never arrives.
	assert.Empty(t, r.Outputs())
}
