// Package memview implements the client memory bridge consumed by the
// dispatcher: resolving a span of a traced process's address space into a
// readable/writable byte view, tracking dirtiness, and flushing writes
// back before an URB is returned to its owner.
//
// A traced USB client's buffers live in a different process entirely, so
// this borrows a window of someone else's memory, tracks what changed in
// it, and writes it back, via golang.org/x/sys/unix.ProcessVMReadv /
// ProcessVMWritev — the process_vm_readv(2) / process_vm_writev(2)
// syscalls.
package memview

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// Space resolves views against one process's address space, identified by
// PID. It holds no state of its own beyond that PID: every resolved View
// is independent and reads eagerly at resolve time.
type Space struct {
	PID int
}

// NewSpace returns a Space targeting the given process.
func NewSpace(pid int) Space {
	return Space{PID: pid}
}

// View is a bidirectional window over length bytes of a process's memory
// starting at ClientAddr, following a resolve/set_ptr/dirty contract.
type View struct {
	space      Space
	clientAddr uint64
	data       []byte
	readable   bool
	writable   bool
	dirty      bool
	local      bool
}

// Resolve yields a view over length bytes at addr within the space's
// process. addr is always the final absolute client-side address — the
// dispatcher resolves the top-level argument first, then any nested
// pointer fields (e.g. a URB's data buffer) as their own separate
// resolve calls against the addresses read out of the first view.
func (s Space) Resolve(addr uint64, length uint32, readable, writable bool) (*View, error) {
	v := &View{space: s, clientAddr: addr, data: get(length), readable: readable, writable: writable}
	if readable && length > 0 {
		if err := v.read(); err != nil {
			put(v.data)
			return nil, err
		}
	}
	return v, nil
}

func (v *View) read() error {
	local := []unix.Iovec{{Base: &v.data[0], Len: uint64(len(v.data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(v.clientAddr), Len: len(v.data)}}
	n, err := unix.ProcessVMReadv(v.space.PID, local, remote, 0)
	if err != nil {
		return fmt.Errorf("memview: resolve pid=%d addr=%#x len=%d: %w", v.space.PID, v.clientAddr, len(v.data), err)
	}
	if n != len(v.data) {
		return fmt.Errorf("memview: short read pid=%d addr=%#x: got %d want %d", v.space.PID, v.clientAddr, n, len(v.data))
	}
	return nil
}

// ClientAddr returns the original client-side pointer value this view
// resolves, used as a queued URB's identity and as the value SetPtr
// writes into a parent view.
func (v *View) ClientAddr() uint64 {
	return v.clientAddr
}

// Bytes returns the view's backing bytes. Mutating the returned slice and
// then calling Dirty marks it for writeback.
func (v *View) Bytes() []byte {
	return v.data
}

// Dirty marks the view for writeback. recursive has no effect here: a
// View never owns child views directly (the dispatcher holds each
// resolved view independently), so there is nothing below this view to
// propagate dirtiness to; the parameter exists only to match the shape
// callers expect from a dirty(recursive) call.
func (v *View) Dirty(recursive bool) {
	v.dirty = true
}

// IsDirty reports whether Flush has writeback work to do.
func (v *View) IsDirty() bool {
	return v.dirty
}

// SetPtr writes target's client-side address into this view's backing
// bytes at the given byte offset, the fix-up §4.6 describes for embedded
// pointer fields (e.g. usbdevfs_urb.buffer once resolved as its own
// view). Marks this view dirty.
func (v *View) SetPtr(offset int, target *View) {
	binary.LittleEndian.PutUint64(v.data[offset:offset+8], target.ClientAddr())
	v.dirty = true
}

// Flush writes the view's bytes back to client memory if dirty and
// writable, then clears the dirty flag. The dispatcher flushes a queued
// URB's own views before completing the reap that returns it, so their
// writeback always happens before the entry is returned; the ioctl
// argument view itself is flushed once the opcode handler returns.
func (v *View) Flush() error {
	if !v.dirty || !v.writable || len(v.data) == 0 || v.local {
		v.dirty = false
		return nil
	}
	local := []unix.Iovec{{Base: &v.data[0], Len: uint64(len(v.data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(v.clientAddr), Len: len(v.data)}}
	n, err := unix.ProcessVMWritev(v.space.PID, local, remote, 0)
	if err != nil {
		return fmt.Errorf("memview: flush pid=%d addr=%#x len=%d: %w", v.space.PID, v.clientAddr, len(v.data), err)
	}
	if n != len(v.data) {
		return fmt.Errorf("memview: short write pid=%d addr=%#x: wrote %d want %d", v.space.PID, v.clientAddr, n, len(v.data))
	}
	v.dirty = false
	return nil
}

// Release returns the view's backing buffer to the pool. Callers must not
// use the view after calling Release. A local view (see NewLocalView)
// never owned a pooled buffer and is left untouched.
func (v *View) Release() {
	if v.local {
		return
	}
	put(v.data)
	v.data = nil
}
