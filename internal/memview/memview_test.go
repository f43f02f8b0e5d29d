package memview

import "testing"

func TestLocalView_DirtyAndFlush(t *testing.T) {
	data := make([]byte, 8)
	v := NewLocalView(0x3000, data, true, true)
	if v.IsDirty() {
		t.Fatalf("new view should not be dirty")
	}
	copy(v.Bytes(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	v.Dirty(false)
	if !v.IsDirty() {
		t.Fatalf("Dirty should mark the view")
	}
	if err := v.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if v.IsDirty() {
		t.Fatalf("Flush should clear dirty")
	}
	if data[0] != 1 || data[7] != 8 {
		t.Fatalf("local view backing bytes not updated in place: %v", data)
	}
}

func TestLocalView_ClientAddr(t *testing.T) {
	v := NewLocalView(0x1000, make([]byte, 4), true, true)
	if v.ClientAddr() != 0x1000 {
		t.Fatalf("ClientAddr = %#x, want 0x1000", v.ClientAddr())
	}
}

func TestView_SetPtr(t *testing.T) {
	parent := NewLocalView(0x2000, make([]byte, 16), true, true)
	child := NewLocalView(0x4000, make([]byte, 4), true, true)

	parent.SetPtr(0, child)

	if !parent.IsDirty() {
		t.Fatalf("SetPtr should mark the parent view dirty")
	}
	got := uint64(0)
	for i := 7; i >= 0; i-- {
		got = got<<8 | uint64(parent.Bytes()[i])
	}
	if got != child.ClientAddr() {
		t.Fatalf("SetPtr wrote %#x, want %#x", got, child.ClientAddr())
	}
}

func TestGet_SizeBuckets(t *testing.T) {
	tests := []struct {
		size      uint32
		expectCap int
	}{
		{0, 0},
		{4 * 1024, 4 * 1024},
		{1000, 4 * 1024},
		{16 * 1024, 16 * 1024},
		{5000, 16 * 1024},
		{64 * 1024, 64 * 1024},
		{17000, 64 * 1024},
		{200 * 1024, 200 * 1024},
	}
	for _, tt := range tests {
		buf := get(tt.size)
		if len(buf) != int(tt.size) {
			t.Errorf("get(%d) len=%d, want %d", tt.size, len(buf), tt.size)
		}
		if tt.size > 0 && cap(buf) != tt.expectCap {
			t.Errorf("get(%d) cap=%d, want %d", tt.size, cap(buf), tt.expectCap)
		}
		put(buf)
	}
}
