// Package replay implements the pcap cursor, matcher, and stuck detector:
// the core logic that correlates a client's submitted URBs against a
// recorded capture and decides what, if anything, is ready to reap.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/replayusb/usbreplay/internal/constants"
	"github.com/replayusb/usbreplay/internal/interfaces"
	"github.com/replayusb/usbreplay/internal/memview"
	"github.com/replayusb/usbreplay/internal/pcapsrc"
	"github.com/replayusb/usbreplay/internal/uapi"
	"github.com/replayusb/usbreplay/internal/urbqueue"
)

// ErrUnsupportedEventType is returned when the capture contains an 'E'
// (error) record. This is treated as an assertion failure rather than a
// per-record skip: unsupported recordings are meant to fail loudly
// rather than silently replay incorrectly.
var ErrUnsupportedEventType = errors.New("replay: unsupported 'E' event record in recording")

// ErrNonZeroStartFrame is returned when a completion record carries a
// nonzero start_frame. The field is still written, but until isochronous
// support exists a nonzero value means the recording exercises something
// this core cannot faithfully replay.
var ErrNonZeroStartFrame = errors.New("replay: completion record has nonzero start_frame")

// Source delivers pcap records in capture order. *pcapsrc.Reader
// satisfies this; tests substitute an in-memory slice-backed fake.
type Source interface {
	Next() (*pcapsrc.Record, error)
}

// Matcher holds the one-record look-ahead and drives both the submit/
// completion binding algorithm and the stuck detector. It is re-entrant
// across calls, which is what lets a later client submit unblock a
// previously-stuck replay.
type Matcher struct {
	source Source
	bus    uint16
	device uint8
	clock  func() time.Time

	logger   interfaces.Logger
	observer interfaces.Observer

	curRecord          *pcapsrc.Record
	waitingSince       time.Time
	lastMatchedPktTime time.Time
}

// New constructs a Matcher filtering records to the given bus/device
// pair. clock defaults to time.Now when nil (tests inject a fake).
func New(source Source, bus uint16, device uint8, logger interfaces.Logger, observer interfaces.Observer, clock func() time.Time) *Matcher {
	if clock == nil {
		clock = time.Now
	}
	return &Matcher{
		source:   source,
		bus:      bus,
		device:   device,
		logger:   logger,
		observer: observer,
		clock:    clock,
	}
}

// Advance runs the matcher to completion for one reap call: it returns
// an entry newly ready to reap, or (nil, nil) if none is currently
// available (the client should retry). A non-nil error signals one of
// the two preserved assertion failures (an 'E' record, or a nonzero
// start_frame on completion), a failed read from the source, or a record
// with an unrecognised event type.
func (m *Matcher) Advance(q *urbqueue.Queue) (*urbqueue.Entry, error) {
	now := m.clock()
	for {
		if m.curRecord == nil {
			rec, err := m.source.Next()
			if err != nil {
				return nil, fmt.Errorf("replay: read pcap: %w", err)
			}
			if rec == nil {
				return nil, nil
			}
			m.curRecord = rec
			m.waitingSince = now
		}

		rec := m.curRecord
		hdr := rec.Header

		if !m.matchesFilter(hdr) {
			m.consume()
			continue
		}

		m.checkStuck(now, q)

		switch hdr.EventType {
		case constants.EventSubmit:
			if entry, ok := m.matchSubmit(q, rec); ok {
				m.lastMatchedPktTime = recordTime(hdr)
				m.consume()
				entry.PcapID = hdr.ID
				continue
			}
			if hdr.TransferType == constants.TransferTypeControl {
				m.consume()
				continue
			}
			return nil, nil

		case constants.EventCompletion:
			entry, err := m.matchCompletion(q, rec)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				m.consume()
				continue
			}
			m.lastMatchedPktTime = recordTime(hdr)
			m.consume()
			return entry, nil

		case constants.EventError:
			return nil, ErrUnsupportedEventType

		default:
			return nil, fmt.Errorf("replay: unknown pcap event type %q", rune(hdr.EventType))
		}
	}
}

func (m *Matcher) consume() {
	m.curRecord = nil
}

// matchesFilter applies the handler's (bus, device) pair. A configured
// value of zero means "accept any" — bus 0 and device
// address 0 are never assigned to a real enumerated device, so they are
// free to use as a wildcard sentinel without colliding with a real
// filter value.
func (m *Matcher) matchesFilter(hdr uapi.Header) bool {
	if m.bus != 0 && uint16(hdr.BusID) != m.bus {
		return false
	}
	if m.device != 0 && hdr.DeviceAddress != m.device {
		return false
	}
	return true
}

func recordTime(hdr uapi.Header) time.Time {
	return time.Unix(hdr.TsSec, int64(hdr.TsUsec)*1000)
}

func (m *Matcher) checkStuck(now time.Time, q *urbqueue.Queue) {
	hdr := m.curRecord.Header
	gap := recordTime(hdr).Sub(m.lastMatchedPktTime)
	if !IsStuck(now, m.waitingSince, gap) {
		return
	}
	report := StuckReport{
		Wait:         now.Sub(m.waitingSince),
		Expected:     gap + constants.StuckSlack,
		EventType:    hdr.EventType,
		TransferType: hdr.TransferType,
		Endpoint:     hdr.EndpointNumber,
		Length:       hdr.URBLen,
		Queued:       dumpQueue(q),
	}
	if m.observer != nil {
		m.observer.ObserveStuck()
	}
	if m.logger != nil {
		m.logger.Warnf("replay stuck: waited %s (expected %s) pending event=%c type=%d ep=%#x len=%d queue=%+v",
			report.Wait, report.Expected, report.EventType, report.TransferType, report.Endpoint, report.Length, report.Queued)
	}
	// Reset so the message does not repeat every matcher invocation.
	m.waitingSince = now
}

func dumpQueue(q *urbqueue.Queue) []QueuedURBInfo {
	entries := q.Entries()
	info := make([]QueuedURBInfo, len(entries))
	for i, e := range entries {
		info[i] = QueuedURBInfo{
			Type:         e.Type,
			Endpoint:     e.Endpoint,
			BufferLength: e.BufferLength,
			Matched:      e.Matched(),
		}
	}
	return info
}

// matchSubmit implements the submit-record fingerprint match: walk the
// queue oldest-first, skip already-matched entries, and bind the first
// structural (plus, for outbound transfers, byte-exact) match.
func (m *Matcher) matchSubmit(q *urbqueue.Queue, rec *pcapsrc.Record) (*urbqueue.Entry, bool) {
	hdr := rec.Header
	outbound := hdr.DataLen > 0

	for _, e := range q.Entries() {
		if e.Matched() {
			continue
		}
		if e.Type != hdr.TransferType || e.Endpoint != hdr.EndpointNumber || e.BufferLength != hdr.URBLen {
			continue
		}
		if outbound {
			if !hdr.IsOutbound() || hdr.DataLen != e.BufferLength {
				continue
			}
			if uint32(len(rec.Payload)) < hdr.DataLen {
				continue
			}
			if e.BufferView == nil || !bytes.Equal(e.BufferView.Bytes(), rec.Payload[:hdr.DataLen]) {
				continue
			}
		}
		return e, true
	}
	return nil, false
}

// matchCompletion implements the completion-record bind: find the
// queued entry with a matching pcap_id, write its result fields back, and
// remove it from the queue. A nil, nil return means the completion
// belongs to a kernel-internal transfer the client never submitted, which
// is silently discarded rather than treated as an error.
func (m *Matcher) matchCompletion(q *urbqueue.Queue, rec *pcapsrc.Record) (*urbqueue.Entry, error) {
	hdr := rec.Header
	var match *urbqueue.Entry
	for _, e := range q.Entries() {
		if e.PcapID == hdr.ID {
			match = e
			break
		}
	}
	if match == nil {
		return nil, nil
	}
	if hdr.StartFrame != 0 {
		return nil, ErrNonZeroStartFrame
	}

	q.Remove(match)

	if hdr.DataLen > 0 && match.BufferView != nil {
		n := int(hdr.DataLen)
		if n > len(rec.Payload) {
			n = len(rec.Payload)
		}
		copy(match.BufferView.Bytes(), rec.Payload[:n])
		match.BufferView.Dirty(false)
	}

	writeCompletion(match.URBView, hdr)
	return match, nil
}

// writeCompletion writes status, actual_length, and start_frame into the
// client-resident usbdevfs_urb at its fixed byte offsets and marks the
// view dirty for writeback.
func writeCompletion(v *memview.View, hdr uapi.Header) {
	if v == nil {
		return
	}
	b := v.Bytes()
	putI32(b[uapi.URBOffStatus:], hdr.Status)
	putU32(b[uapi.URBOffActualLength:], hdr.URBLen)
	putI32(b[uapi.URBOffStartFrame:], hdr.StartFrame)
	v.Dirty(false)
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
