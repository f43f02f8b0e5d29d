package usbreplay

import (
	"syscall"

	"github.com/replayusb/usbreplay/internal/constants"
	"github.com/replayusb/usbreplay/internal/memview"
	"github.com/replayusb/usbreplay/internal/uapi"
	"github.com/replayusb/usbreplay/internal/urbqueue"
)

// Handle answers one ioctl invocation. Opcodes that never need
// to inspect their argument — the fixed no-ops, DISCARDURB (whose argument
// is a raw identity value, not a pointer), and anything outside the known
// opcode table — are completed without resolving any client memory at
// all. Only GET_CAPABILITIES, SUBMITURB, and REAPURB/REAPURBNDELAY resolve
// their argument before dispatch. Returns false only when that resolve
// fails; every opcode-level outcome — including an unknown opcode, which
// completes with ENOTTY — still returns true, since the call was handled,
// just not successfully.
func (h *Handler) Handle(client IoctlClient) bool {
	request := client.Request()

	switch request {
	case uint64(uapi.ClaimInterface), uint64(uapi.ReleaseInterface),
		uint64(uapi.ClearHalt), uint64(uapi.Reset), uint64(uapi.ResetEp):
		client.Complete(0, 0)
		return true

	case uint64(uapi.DiscardURB):
		h.handleDiscard(client)
		return true

	case uint64(uapi.GetCapabilities), uint64(uapi.SubmitURB),
		uint64(uapi.ReapURB), uint64(uapi.ReapURBNDelay):
		// falls through to the resolve+dispatch below

	default:
		err := NewOpcodeError("Handle", request, ErrCodeUnknownOpcode, syscall.ENOTTY)
		if h.logger != nil {
			h.logger.Warnf("%v", err)
		}
		client.Complete(-1, err.Errno)
		return true
	}

	size := uapi.DecodeSize(request)
	arg, err := h.resolve(client.PID(), uint64(client.Arg()), size, true, true)
	if err != nil {
		if h.logger != nil {
			h.logger.Warnf("usbreplay: resolve arg request=%#x size=%d: %v", request, size, err)
		}
		return false
	}

	retained := false
	switch request {
	case uint64(uapi.GetCapabilities):
		h.handleGetCapabilities(client, arg)

	case uint64(uapi.SubmitURB):
		retained = h.handleSubmit(client, arg)

	case uint64(uapi.ReapURB), uint64(uapi.ReapURBNDelay):
		h.handleReap(client, arg)
	}

	if !retained {
		if ferr := arg.Flush(); ferr != nil && h.logger != nil {
			h.logger.Warnf("usbreplay: flush arg request=%#x: %v", request, ferr)
		}
		arg.Release()
	}
	return true
}

// handleGetCapabilities answers GET_CAPABILITIES with the fixed
// capability mask: every bit usbdevfs can advertise is trivially true of
// a recorded capture, since the client never drives real hardware
// through this core.
func (h *Handler) handleGetCapabilities(client IoctlClient, arg *memview.View) {
	putU32(arg.Bytes(), uint32(constants.CapabilityMask))
	arg.Dirty(false)
	client.Complete(0, 0)
}

// handleSubmit reads the submitted URB's fixed fields, resolves its data
// buffer (if any) in the same client's address space, and enqueues it
// unmatched. Returns whether arg was retained —
// true on success, since the queued entry now owns it and it must not be
// flushed/released until the matcher binds and reaps it.
func (h *Handler) handleSubmit(client IoctlClient, arg *memview.View) bool {
	b := arg.Bytes()
	typ := b[uapi.URBOffType]
	endpoint := b[uapi.URBOffEndpoint]
	bufferPtr := getU64(b[uapi.URBOffBuffer:])
	bufferLength := getU32(b[uapi.URBOffBufferLength:])

	entry := &urbqueue.Entry{
		ClientAddr:   uint64(client.Arg()),
		Type:         typ,
		Endpoint:     endpoint,
		BufferLength: bufferLength,
		URBView:      arg,
	}

	if bufferLength > 0 {
		bufView, resolveErr := h.resolve(client.PID(), bufferPtr, bufferLength, true, true)
		if resolveErr != nil {
			err := NewOpcodeError("SUBMITURB", client.Request(), ErrCodeResolutionFailed, syscall.EINVAL)
			err.Inner = resolveErr
			if h.logger != nil {
				h.logger.Warnf("%v: %v", err, resolveErr)
			}
			client.Complete(-1, err.Errno)
			return false
		}
		entry.BufferView = bufView
	}

	h.queue.Submit(entry)
	h.stats.Submitted.Add(1)
	client.Complete(0, 0)
	return true
}

// handleDiscard answers DISCARDURB: the usbdevfs ABI passes the target
// URB's identity as the ioctl argument's raw value, not as a pointer to
// dereference, so this reads client.Arg() directly rather than anything
// resolved from memory.
func (h *Handler) handleDiscard(client IoctlClient) {
	addr := uint64(client.Arg())
	if !h.queue.Discard(addr) {
		err := NewOpcodeError("DISCARDURB", client.Request(), ErrCodeUnknownAddress, syscall.EINVAL)
		if h.logger != nil {
			h.logger.Warnf("%v", err)
		}
		client.Complete(-1, err.Errno)
		return
	}
	h.stats.Discarded.Add(1)
	client.Complete(0, 0)
}

// handleReap drains the discard list first (each completes with -ENOENT
// and no matcher involvement), then advances the matcher for one ready
// completion. EAGAIN means nothing is ready yet.
func (h *Handler) handleReap(client IoctlClient, arg *memview.View) {
	if entry, ok := h.queue.PopDiscard(); ok {
		putI32(entry.URBView.Bytes()[uapi.URBOffStatus:], -int32(syscall.ENOENT))
		entry.URBView.Dirty(false)
		h.completeReap(client, arg, entry)
		return
	}

	entry, err := h.matcher.Advance(h.queue)
	if err != nil {
		// An 'E' record or a nonzero start_frame on completion means this
		// recording exercises something the core cannot faithfully replay.
		// Fail loudly rather than return a silently-wrong reap.
		panic(err)
	}
	if entry == nil {
		h.stats.MatchMisses.Add(1)
		noneReady := NewOpcodeError("REAPURB", client.Request(), ErrCodeNoURBReady, syscall.EAGAIN)
		if h.logger != nil {
			h.logger.Warnf("%v", noneReady)
		}
		client.Complete(-1, noneReady.Errno)
		return
	}
	h.stats.MatchHits.Add(1)
	h.completeReap(client, arg, entry)
}

// completeReap writes the matched entry's client address into the reap
// ioctl's out-argument, flushes and releases both of the entry's views
// (their writeback belongs to this URB, not the reap call's own arg),
// and completes the call.
func (h *Handler) completeReap(client IoctlClient, arg *memview.View, entry *urbqueue.Entry) {
	putU64(arg.Bytes(), entry.ClientAddr)
	arg.Dirty(false)

	if ferr := entry.URBView.Flush(); ferr != nil && h.logger != nil {
		h.logger.Warnf("usbreplay: flush urb view addr=%#x: %v", entry.ClientAddr, ferr)
	}
	entry.URBView.Release()

	if entry.BufferView != nil {
		if ferr := entry.BufferView.Flush(); ferr != nil && h.logger != nil {
			h.logger.Warnf("usbreplay: flush buffer view addr=%#x: %v", entry.ClientAddr, ferr)
		}
		entry.BufferView.Release()
	}

	h.stats.Reaped.Add(1)
	client.Complete(0, 0)
}

func getU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putI32(b []byte, v int32) {
	putU32(b, uint32(v))
}

func getU64(b []byte) uint64 {
	return uint64(getU32(b)) | uint64(getU32(b[4:]))<<32
}

func putU64(b []byte, v uint64) {
	putU32(b, uint32(v))
	putU32(b[4:], uint32(v>>32))
}
