// Package cursor maintains the logical absolute cursor position in
// global coordinate space and enforces the "no voids" rule: the
// cursor never rests on, or passes through, a pixel not covered by
// any output.
package cursor

import (
	"github.com/ArrayBolt3/kloak-v2/f32"
	"github.com/ArrayBolt3/kloak-v2/internal/geometry"
)

// maxBackoffRestarts bounds the edge-glide restart loop. Each restart
// strictly constrains one axis of motion, so after at most two
// restarts the walk degenerates to a straight axis-aligned slide;
// four is kept as the same defensive ceiling the original
// implementation used.
const maxBackoffRestarts = 4

// Engine tracks the cursor position and performs path-clamped motion
// against a geometry.Registry.
type Engine struct {
	reg        *geometry.Registry
	cur, prev  f32.Point
}

// New creates an Engine anchored to reg, starting at the origin of
// whatever output is available (or (0,0) if none is registered yet).
func New(reg *geometry.Registry) *Engine {
	e := &Engine{reg: reg}
	if o, ok := reg.Any(); ok {
		e.cur = f32.Point{X: o.X, Y: o.Y}
		e.prev = e.cur
	}
	return e
}

// Position returns the current logical cursor position.
func (e *Engine) Position() f32.Point { return e.cur }

// ApplyAbsolute sets the cursor to an absolute position already
// normalized to the global bounding box, then resolves it through the
// edge-glide walk from the previous position.
func (e *Engine) ApplyAbsolute(x, y float32) {
	e.apply(f32.Point{X: x, Y: y})
}

// ApplyRelativeClamped applies a relative delta, clamping the result
// to the global bounding box minus one pixel before resolving it
// through the edge-glide walk.
func (e *Engine) ApplyRelativeClamped(dx, dy float32) {
	gw, gh := e.reg.GlobalSize()
	target := f32.Point{X: e.cur.X + dx, Y: e.cur.Y + dy}
	if target.X < 0 {
		target.X = 0
	}
	if target.Y < 0 {
		target.Y = 0
	}
	if gw > 0 && target.X > gw-1 {
		target.X = gw - 1
	}
	if gh > 0 && target.Y > gh-1 {
		target.Y = gh - 1
	}
	e.apply(target)
}

func (e *Engine) apply(target f32.Point) {
	e.prev = e.cur
	e.cur = glide(e.reg, e.prev, target)
}

// HandleOutputRemoved implements the data-inconsistency policy: if the
// cursor's current output just vanished, snap to the origin of any
// remaining output.
func (e *Engine) HandleOutputRemoved() {
	if _, _, _, ok := e.reg.AbsToLocal(e.cur.X, e.cur.Y); ok {
		return
	}
	if o, ok := e.reg.Any(); ok {
		e.cur = f32.Point{X: o.X, Y: o.Y}
		e.prev = e.cur
	}
}

type latticePoint struct {
	x, y       int
	movedX     bool
	movedY     bool
}

// bresenham generates the integer lattice points from (x0,y0) to
// (x1,y1) inclusive, each tagged with which axis (or both, on a
// diagonal step) advanced to reach it from the previous point. The
// first point carries no movement flags.
func bresenham(x0, y0, x1, y1 int) []latticePoint {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	x, y := x0, y0
	points := []latticePoint{{x: x, y: y}}
	for x != x1 || y != y1 {
		movedX, movedY := false, false
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
			movedX = true
		}
		if e2 <= dx {
			err += dx
			y += sy
			movedY = true
		}
		points = append(points, latticePoint{x: x, y: y, movedX: movedX, movedY: movedY})
	}
	return points
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// glide walks the discrete straight-line path from start to end,
// substituting orthogonal motion whenever the straight path would
// cross a gap between outputs, per the edge-gliding rule.
func glide(reg *geometry.Registry, start, end f32.Point) f32.Point {
	cur := start
	target := end
	for restarts := 0; restarts <= maxBackoffRestarts; restarts++ {
		points := bresenham(int(cur.X), int(cur.Y), int(target.X), int(target.Y))
		last := f32.Point{X: float32(points[0].x), Y: float32(points[0].y)}
		restarted := false
		for i := 1; i < len(points); i++ {
			p := points[i]
			pt := f32.Point{X: float32(p.x), Y: float32(p.y)}
			if _, _, _, ok := reg.AbsToLocal(pt.X, pt.Y); ok {
				last = pt
				continue
			}
			// Try backing off by one pixel on each axis that moved to
			// produce this invalid point.
			if p.movedX {
				candidate := f32.Point{X: pt.X - float32(sign(p.x-int(last.X))), Y: pt.Y}
				if _, _, _, ok := reg.AbsToLocal(candidate.X, candidate.Y); ok {
					cur = candidate
					target = f32.Point{X: candidate.X, Y: target.Y}
					restarted = true
					break
				}
			}
			if p.movedY {
				candidate := f32.Point{X: pt.X, Y: pt.Y - float32(sign(p.y-int(last.Y)))}
				if _, _, _, ok := reg.AbsToLocal(candidate.X, candidate.Y); ok {
					cur = candidate
					target = f32.Point{X: target.X, Y: candidate.Y}
					restarted = true
					break
				}
			}
			// Neither axis backoff worked: terminate at the last valid
			// point reached.
			return last
		}
		if !restarted {
			return last
		}
	}
	return cur
}
