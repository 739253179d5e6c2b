// SPDX-License-Identifier: Unlicense OR MIT

//go:build linux || freebsd

// Package xkb compiles compositor-supplied keymaps and tracks
// modifier/group state via libxkbcommon, translating evdev keycodes
// to the xkb numbering space the local state tracker expects. The
// virtual keyboard itself is sent the evdev keycodes unchanged.
package xkb

import (
	"bytes"
	"errors"
	"fmt"
	"syscall"
	"unsafe"
)

/*
#cgo LDFLAGS: -lxkbcommon
#cgo freebsd CFLAGS: -I/usr/local/include
#cgo freebsd LDFLAGS: -L/usr/local/lib

#include <stdlib.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

// keycodeOffset is the conventional Linux mapping from evdev keycode
// to xkb keycode: per the XKB v1 wire protocol, clients must add 8 to
// the event keycode. Hard-coded, as upstream does, and documented
// rather than derived.
const keycodeOffset = 8

// State wraps a compiled keymap and its associated modifier/group
// state tracker.
type State struct {
	ctx    *C.struct_xkb_context
	keyMap *C.struct_xkb_keymap
	state  *C.struct_xkb_state

	// rawKeymap is retained so a later keymap can be compared by
	// content before committing to a recompile (the protocol-
	// degenerate case: an identical keymap is silently discarded).
	rawKeymap []byte
}

// Destroy releases every libxkbcommon resource held by s.
func (s *State) Destroy() {
	if s.state != nil {
		C.xkb_state_unref(s.state)
		s.state = nil
	}
	if s.keyMap != nil {
		C.xkb_keymap_unref(s.keyMap)
		s.keyMap = nil
	}
	if s.ctx != nil {
		C.xkb_context_unref(s.ctx)
		s.ctx = nil
	}
}

// SameKeymap reports whether data is byte-identical to the keymap
// currently compiled into s, letting the caller skip a needless
// recompile.
func (s *State) SameKeymap(data []byte) bool {
	return s != nil && bytes.Equal(s.rawKeymap, data)
}

// New compiles a keymap from a memory-mapped file descriptor holding
// size bytes of XKB text-format keymap data, as delivered by the
// compositor's keymap event.
func New(fd int, size int) (*State, error) {
	s := &State{
		ctx: C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS),
	}
	if s.ctx == nil {
		return nil, errors.New("xkb: xkb_context_new failed")
	}
	mapData, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("xkb: mmap of keymap failed: %w", err)
	}
	defer syscall.Munmap(mapData)
	s.keyMap = C.xkb_keymap_new_from_buffer(s.ctx, (*C.char)(unsafe.Pointer(&mapData[0])), C.size_t(size-1), C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if s.keyMap == nil {
		s.Destroy()
		return nil, errors.New("xkb: xkb_keymap_new_from_buffer failed")
	}
	s.state = C.xkb_state_new(s.keyMap)
	if s.state == nil {
		s.Destroy()
		return nil, errors.New("xkb: xkb_state_new failed")
	}
	s.rawKeymap = append([]byte(nil), mapData[:size-1]...)
	return s, nil
}

// UpdateMask pushes a new depressed/latched/locked modifier mask and
// group index into the state tracker, as reported by the
// virtual-keyboard's own modifiers feedback or derived from forwarded
// key events.
func (s *State) UpdateMask(depressed, latched, locked, group uint32) {
	xkbGrp := C.xkb_layout_index_t(group)
	C.xkb_state_update_mask(s.state, C.xkb_mod_mask_t(depressed), C.xkb_mod_mask_t(latched), C.xkb_mod_mask_t(locked), xkbGrp, xkbGrp, xkbGrp)
}

// UpdateKey feeds a single key press/release into the state tracker
// and returns the resulting serialized modifier mask, ready to be
// forwarded as the virtual keyboard's modifiers event whenever it
// changes the effective mask.
func (s *State) UpdateKey(evdevCode uint32, pressed bool) (depressed, latched, locked, group uint32) {
	keyCode := C.xkb_keycode_t(evdevCode + keycodeOffset)
	dir := C.XKB_KEY_UP
	if pressed {
		dir = C.XKB_KEY_DOWN
	}
	C.xkb_state_update_key(s.state, keyCode, C.enum_xkb_key_direction(dir))
	depressed = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_DEPRESSED))
	latched = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LATCHED))
	locked = uint32(C.xkb_state_serialize_mods(s.state, C.XKB_STATE_MODS_LOCKED))
	group = uint32(C.xkb_state_serialize_layout(s.state, C.XKB_STATE_LAYOUT_EFFECTIVE))
	return
}

// IsRepeatKey reports whether the key identified by the given evdev
// code auto-repeats under the compiled keymap.
func (s *State) IsRepeatKey(evdevCode uint32) bool {
	return C.xkb_keymap_key_repeats(s.keyMap, C.xkb_keycode_t(evdevCode+keycodeOffset)) == 1
}
