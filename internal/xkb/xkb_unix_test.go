//go:build linux || freebsd

package xkb

import "testing"

// SameKeymap is pure byte comparison and needs no compiled keymap, so
// it is tested without invoking libxkbcommon. Full New/UpdateKey
// coverage (Scenario S6, keymap idempotence) requires a real
// xkb_context and a compositor-supplied keymap blob and is exercised
// by the daemon's manual compositor test, not here.
func TestSameKeymap(t *testing.T) {
	s := &State{rawKeymap: []byte("xkb_keymap { };")}

	if !s.SameKeymap([]byte("xkb_keymap { };")) {
		t.Fatal("expected identical keymap bytes to compare equal")
	}
	if s.SameKeymap([]byte("xkb_keymap { different };")) {
		t.Fatal("expected differing keymap bytes to compare unequal")
	}

	var nilState *State
	if nilState.SameKeymap([]byte("anything")) {
		t.Fatal("nil state must never claim a keymap match")
	}
}
