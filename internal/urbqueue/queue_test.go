package urbqueue

import "testing"

func TestQueue_SubmitPreservesOrder(t *testing.T) {
	q := New()
	a := &Entry{ClientAddr: 0x1000}
	b := &Entry{ClientAddr: 0x2000}
	q.Submit(a)
	q.Submit(b)

	entries := q.Entries()
	if len(entries) != 2 || entries[0] != a || entries[1] != b {
		t.Fatalf("Entries() = %v, want [a b] in submission order", entries)
	}
}

func TestQueue_DiscardMovesEntry(t *testing.T) {
	q := New()
	a := &Entry{ClientAddr: 0x1000}
	q.Submit(a)

	if !q.Discard(0x1000) {
		t.Fatalf("Discard(0x1000) = false, want true")
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after discard, Len()=%d", q.Len())
	}

	e, ok := q.PopDiscard()
	if !ok || e != a {
		t.Fatalf("PopDiscard() = %v, %v, want %v, true", e, ok, a)
	}
	if _, ok := q.PopDiscard(); ok {
		t.Fatalf("PopDiscard on empty discard list should return false")
	}
}

func TestQueue_DiscardUnknownAddress(t *testing.T) {
	q := New()
	q.Submit(&Entry{ClientAddr: 0x1000})
	if q.Discard(0x9999) {
		t.Fatalf("Discard of unknown address should return false")
	}
}

func TestQueue_DiscardPreservesOrder(t *testing.T) {
	q := New()
	a := &Entry{ClientAddr: 0x1000}
	b := &Entry{ClientAddr: 0x2000}
	c := &Entry{ClientAddr: 0x3000}
	q.Submit(a)
	q.Submit(b)
	q.Submit(c)

	q.Discard(0x2000)

	entries := q.Entries()
	if len(entries) != 2 || entries[0] != a || entries[1] != c {
		t.Fatalf("Entries() after discard = %v, want [a c]", entries)
	}

	q.Submit(&Entry{ClientAddr: 0x4000})
	q.Discard(0x4000)
	first, _ := q.PopDiscard()
	second, ok := q.PopDiscard()
	if first.ClientAddr != 0x2000 || !ok || second.ClientAddr != 0x4000 {
		t.Fatalf("discard list not oldest-first: %#x then %#x", first.ClientAddr, second.ClientAddr)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := New()
	a := &Entry{ClientAddr: 0x1000}
	b := &Entry{ClientAddr: 0x2000}
	q.Submit(a)
	q.Submit(b)

	if !q.Remove(a) {
		t.Fatalf("Remove(a) = false, want true")
	}
	if q.Len() != 1 || q.Entries()[0] != b {
		t.Fatalf("Entries() after Remove(a) = %v, want [b]", q.Entries())
	}
	if q.Remove(a) {
		t.Fatalf("Remove of an already-removed entry should return false")
	}
}

func TestEntry_Matched(t *testing.T) {
	e := &Entry{}
	if e.Matched() {
		t.Fatalf("new entry should be unmatched")
	}
	e.PcapID = 7
	if !e.Matched() {
		t.Fatalf("entry with nonzero PcapID should be matched")
	}
}
