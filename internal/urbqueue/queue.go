// Package urbqueue holds the in-flight URB queue and discard list that
// the dispatcher and matcher mutate. It is a plain ordered container:
// identity is the client address, not a synthetic ID, since the URB's
// identity already lives in the client pointer.
package urbqueue

import "github.com/replayusb/usbreplay/internal/memview"

// Entry is one in-flight URB: the client-resident structures the core
// reads and writes, its identity, and its match state.
type Entry struct {
	ClientAddr   uint64
	Type         uint8
	Endpoint     uint8
	BufferLength uint32

	URBView    *memview.View
	BufferView *memview.View

	// PcapID is zero while unmatched; nonzero (the matched record's id)
	// once the matcher has bound this entry to a submit record.
	PcapID uint64
}

// Matched reports whether the matcher has bound this entry to a recorded
// submit (pcap_id != 0).
func (e *Entry) Matched() bool {
	return e.PcapID != 0
}

// Queue is the ordered mapping of in-flight URBs plus the discard list:
// submission order preserved, discard order preserved (oldest first),
// and a client address present in at most one of the two lists at a
// time.
type Queue struct {
	entries  []*Entry
	discards []*Entry
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Submit appends a newly-submitted URB to the end of the queue:
// oldest-first order, unmatched (PcapID left at zero).
func (q *Queue) Submit(e *Entry) {
	q.entries = append(q.entries, e)
}

// Entries returns the queue in submission order (oldest first), the
// order the matcher walks it in. Callers must not retain the slice
// across a mutating call.
func (q *Queue) Entries() []*Entry {
	return q.entries
}

// Remove deletes e from the queue, used when the matcher binds a
// completion record to it. Reports whether e was found.
func (q *Queue) Remove(e *Entry) bool {
	for i, cur := range q.entries {
		if cur == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Discard moves the queued entry with the given client address onto the
// tail of the discard list, preserving queue order among the remaining
// entries. Reports whether an entry was found.
func (q *Queue) Discard(clientAddr uint64) bool {
	for i, cur := range q.entries {
		if cur.ClientAddr == clientAddr {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.discards = append(q.discards, cur)
			return true
		}
	}
	return false
}

// PopDiscard removes and returns the oldest discarded entry, if any.
// Callers drain the discard list before consulting the matcher.
func (q *Queue) PopDiscard() (*Entry, bool) {
	if len(q.discards) == 0 {
		return nil, false
	}
	e := q.discards[0]
	q.discards = q.discards[1:]
	return e, true
}

// Len returns the number of entries currently queued (unmatched or
// matched, excluding the discard list).
func (q *Queue) Len() int {
	return len(q.entries)
}
