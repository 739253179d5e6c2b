// Package geometry tracks the set of outputs (monitors) the compositor
// reports, their logical positions and sizes in its global coordinate
// space, and answers the two spatial queries the rest of the engine
// needs: which output contains a given global point, and the inverse.
package geometry

import (
	"fmt"

	"github.com/ArrayBolt3/kloak-v2/f32"
)

// OutputID identifies an output across Register/Unregister calls. The
// compositor adapter hands out stable IDs; this package never compares
// by position or index since compositors reassign indices freely.
type OutputID uint64

// Output is one monitor's logical rectangle in global space.
type Output struct {
	ID       OutputID
	Name     string
	X, Y     float32
	W, H     float32
	initPos  bool
	initSize bool
}

// InitDone reports whether both position and size have been received
// for this output.
func (o Output) InitDone() bool { return o.initPos && o.initSize }

// Rect returns the output's rectangle in global space.
func (o Output) Rect() f32.Rectangle {
	return f32.Rectangle{
		Min: f32.Point{X: o.X, Y: o.Y},
		Max: f32.Point{X: o.X + o.W, Y: o.Y + o.H},
	}
}

// Registry is the set of currently known outputs.
type Registry struct {
	outputs []Output
	strict  bool
}

// New creates an empty registry. Registering an output does not check
// the layout for gaps; ValidateGeometry does that only when called,
// and the event pipeline calls it only in its tolerant form
// (strict=false), right after an output is removed, so an interior
// gap never produces an error there.
func New() *Registry {
	return &Registry{}
}

// RegisterPosition records an output's position, inserting a new entry
// if id is unseen.
func (r *Registry) RegisterPosition(id OutputID, name string, x, y float32) {
	o := r.find(id, name)
	o.X, o.Y = x, y
	o.initPos = true
}

// RegisterSize records an output's size, inserting a new entry if id
// is unseen.
func (r *Registry) RegisterSize(id OutputID, name string, w, h float32) {
	o := r.find(id, name)
	o.W, o.H = w, h
	o.initSize = true
}

func (r *Registry) find(id OutputID, name string) *Output {
	for i := range r.outputs {
		if r.outputs[i].ID == id {
			return &r.outputs[i]
		}
	}
	r.outputs = append(r.outputs, Output{ID: id, Name: name})
	return &r.outputs[len(r.outputs)-1]
}

// Unregister removes an output. Returns true if it was present.
func (r *Registry) Unregister(id OutputID) bool {
	for i := range r.outputs {
		if r.outputs[i].ID == id {
			r.outputs = append(r.outputs[:i], r.outputs[i+1:]...)
			return true
		}
	}
	return false
}

// Outputs returns the initialized outputs (InitDone true).
func (r *Registry) Outputs() []Output {
	out := make([]Output, 0, len(r.outputs))
	for _, o := range r.outputs {
		if o.InitDone() {
			out = append(out, o)
		}
	}
	return out
}

// GlobalSize returns the union bounding box of all initialized
// outputs: max(x+w) by max(y+h).
func (r *Registry) GlobalSize() (w, h float32) {
	for _, o := range r.Outputs() {
		if right := o.X + o.W; right > w {
			w = right
		}
		if bottom := o.Y + o.H; bottom > h {
			h = bottom
		}
	}
	return w, h
}

// adjacent reports whether two output rectangles touch: one's edge
// coincides with the other's opposite edge, with overlapping extent
// along the shared edge.
func adjacent(a, b Output) bool {
	ra, rb := a.Rect(), b.Rect()
	touchesVertically := ra.Max.X == rb.Min.X || rb.Max.X == ra.Min.X
	touchesHorizontally := ra.Max.Y == rb.Min.Y || rb.Max.Y == ra.Min.Y
	overlapY := ra.Min.Y < rb.Max.Y && rb.Min.Y < ra.Max.Y
	overlapX := ra.Min.X < rb.Max.X && rb.Min.X < ra.Max.X
	if touchesVertically && overlapY {
		return true
	}
	if touchesHorizontally && overlapX {
		return true
	}
	return false
}

// ValidateGeometry flood-fills from the first initialized output and
// checks that every initialized output is reachable. A non-strict
// registry returns nil even when a gap is found (the transient window
// right after Unregister); a strict registry returns an error.
func (r *Registry) ValidateGeometry(strict bool) error {
	outs := r.Outputs()
	if len(outs) == 0 {
		return nil
	}
	seen := make(map[OutputID]bool, len(outs))
	frontier := []Output{outs[0]}
	seen[outs[0].ID] = true
	for len(frontier) > 0 {
		cur := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		for _, o := range outs {
			if seen[o.ID] {
				continue
			}
			if adjacent(cur, o) {
				seen[o.ID] = true
				frontier = append(frontier, o)
			}
		}
	}
	if len(seen) == len(outs) {
		return nil
	}
	if !strict {
		return nil
	}
	return fmt.Errorf("output layout has an interior gap: %d of %d outputs unreachable", len(outs)-len(seen), len(outs))
}

// AbsToLocal finds the output containing the global point (x, y) and
// returns its local coordinates. The returned ok is false if no output
// contains the point.
func (r *Registry) AbsToLocal(x, y float32) (id OutputID, lx, ly float32, ok bool) {
	for _, o := range r.Outputs() {
		if x >= o.X && x < o.X+o.W && y >= o.Y && y < o.Y+o.H {
			return o.ID, x - o.X, y - o.Y, true
		}
	}
	return 0, 0, 0, false
}

// LocalToAbs converts a local coordinate on output id back to global
// space. ok is false if the local coordinate is out of range for that
// output or the output is unknown.
func (r *Registry) LocalToAbs(id OutputID, lx, ly float32) (x, y float32, ok bool) {
	for _, o := range r.outputs {
		if o.ID != id {
			continue
		}
		if lx < 0 || ly < 0 || lx >= o.W || ly >= o.H {
			return 0, 0, false
		}
		return o.X + lx, o.Y + ly, true
	}
	return 0, 0, false
}

// Get returns the output with the given id, if known.
func (r *Registry) Get(id OutputID) (Output, bool) {
	for _, o := range r.outputs {
		if o.ID == id {
			return o, true
		}
	}
	return Output{}, false
}

// Any returns an arbitrary initialized output, used to snap the cursor
// somewhere sane after the output it was on disappears (spec's
// data-inconsistency policy: snap to the origin of any remaining
// output).
func (r *Registry) Any() (Output, bool) {
	outs := r.Outputs()
	if len(outs) == 0 {
		return Output{}, false
	}
	return outs[0], true
}
