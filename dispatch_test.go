package usbreplay

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/replayusb/usbreplay/internal/constants"
	"github.com/replayusb/usbreplay/internal/memview"
	"github.com/replayusb/usbreplay/internal/pcapsrc"
	"github.com/replayusb/usbreplay/internal/replay"
	"github.com/replayusb/usbreplay/internal/uapi"
	"github.com/replayusb/usbreplay/internal/urbqueue"
)

// fakeMemory stands in for a traced process's address space: a set of
// fixed-size buffers keyed by fake client address, handed out as local
// views instead of going through process_vm_readv/writev.
type fakeMemory struct {
	mu   sync.Mutex
	data map[uint64][]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{data: make(map[uint64][]byte)}
}

func (f *fakeMemory) put(addr uint64, b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[addr] = b
}

func (f *fakeMemory) resolve(pid int, addr uint64, length uint32, readable, writable bool) (*memview.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if length == 0 {
		return memview.NewLocalView(addr, []byte{}, readable, writable), nil
	}
	b, ok := f.data[addr]
	if !ok || uint32(len(b)) < length {
		return nil, syscall.EFAULT
	}
	return memview.NewLocalView(addr, b[:length], readable, writable), nil
}

// dispatchSliceSource is a replay.Source backed by a fixed slice of
// records, the same shape as the matcher package's own test fake.
type dispatchSliceSource struct {
	records []*pcapsrc.Record
	i       int
}

func (s *dispatchSliceSource) Next() (*pcapsrc.Record, error) {
	if s.i >= len(s.records) {
		return nil, nil
	}
	r := s.records[s.i]
	s.i++
	return r, nil
}

func newTestHandler(mem *fakeMemory, src *dispatchSliceSource, bus uint16, device uint8) *Handler {
	stats := NewStats()
	m := replay.New(src, bus, device, nil, statsObserver{stats: stats}, func() time.Time { return time.Unix(100, 0) })
	return &Handler{
		queue:   urbqueue.New(),
		matcher: m,
		stats:   stats,
		resolve: mem.resolve,
	}
}

func TestHandle_GetCapabilities(t *testing.T) {
	mem := newFakeMemory()
	buf := make([]byte, 4)
	mem.put(0x1000, buf)

	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)
	client := NewMockIoctlClient(uint64(uapi.GetCapabilities), 0x1000, 42)

	if !h.Handle(client) {
		t.Fatal("Handle returned false")
	}
	ret, errno, completed := client.Result()
	if !completed || ret != 0 || errno != 0 {
		t.Fatalf("unexpected result ret=%d errno=%d completed=%v", ret, errno, completed)
	}
	const wantMask = 0x1F
	if constants.CapabilityMask != wantMask {
		t.Fatalf("constants.CapabilityMask = %#x, want %#x", constants.CapabilityMask, wantMask)
	}
	if got := getU32(buf); got != wantMask {
		t.Fatalf("capability mask = %#x, want %#x", got, uint32(wantMask))
	}
}

func TestHandle_NoOpOpcodesCompleteZero(t *testing.T) {
	mem := newFakeMemory()
	mem.put(0x2000, make([]byte, 4))
	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)

	for _, req := range []uint64{
		uint64(uapi.ClaimInterface), uint64(uapi.ReleaseInterface),
		uint64(uapi.ClearHalt), uint64(uapi.Reset), uint64(uapi.ResetEp),
	} {
		client := NewMockIoctlClient(req, 0x2000, 42)
		if !h.Handle(client) {
			t.Fatalf("Handle(%#x) returned false", req)
		}
		ret, errno, _ := client.Result()
		if ret != 0 || errno != 0 {
			t.Fatalf("request %#x: ret=%d errno=%d, want 0,0", req, ret, errno)
		}
	}
}

func TestHandle_UnknownOpcodeReturnsENOTTY(t *testing.T) {
	mem := newFakeMemory()
	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)

	const bogus = uint64(0x12340000) // type and number bits zero, no entry in the opcode table
	client := NewMockIoctlClient(bogus, 0, 42)

	if !h.Handle(client) {
		t.Fatal("Handle returned false")
	}
	ret, errno, _ := client.Result()
	if ret != -1 || errno != syscall.ENOTTY {
		t.Fatalf("ret=%d errno=%d, want -1,ENOTTY", ret, errno)
	}
}

func TestHandle_SubmitThenReapInTransfer(t *testing.T) {
	mem := newFakeMemory()

	const urbAddr = 0x5000
	const bufAddr = 0x6000
	urbBuf := make([]byte, uapi.URBSize)
	urbBuf[uapi.URBOffType] = constants.TransferTypeInterrupt
	urbBuf[uapi.URBOffEndpoint] = 0x82
	putU64(urbBuf[uapi.URBOffBuffer:], bufAddr)
	putU32(urbBuf[uapi.URBOffBufferLength:], 8)
	mem.put(urbAddr, urbBuf)
	mem.put(bufAddr, make([]byte, 8))

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	src := &dispatchSliceSource{records: []*pcapsrc.Record{
		{Header: uapi.Header{ID: 7, EventType: 'S', TransferType: constants.TransferTypeInterrupt, EndpointNumber: 0x82, DeviceAddress: 5, BusID: 1, URBLen: 8}},
		{Header: uapi.Header{ID: 7, EventType: 'C', TransferType: constants.TransferTypeInterrupt, EndpointNumber: 0x82, DeviceAddress: 5, BusID: 1, URBLen: 8, DataLen: 8}, Payload: payload},
	}}
	h := newTestHandler(mem, src, 1, 5)

	submitClient := NewMockIoctlClient(uint64(uapi.SubmitURB), urbAddr, 42)
	if !h.Handle(submitClient) {
		t.Fatal("submit Handle returned false")
	}
	if ret, errno, _ := submitClient.Result(); ret != 0 || errno != 0 {
		t.Fatalf("submit ret=%d errno=%d, want 0,0", ret, errno)
	}

	reapOut := make([]byte, 8)
	mem.put(0x7000, reapOut)
	reapClient := NewMockIoctlClient(uint64(uapi.ReapURB), 0x7000, 42)
	if !h.Handle(reapClient) {
		t.Fatal("reap Handle returned false")
	}
	if ret, errno, _ := reapClient.Result(); ret != 0 || errno != 0 {
		t.Fatalf("reap ret=%d errno=%d, want 0,0", ret, errno)
	}

	if got := getU64(reapOut); got != urbAddr {
		t.Fatalf("reaped address = %#x, want %#x", got, uint64(urbAddr))
	}
	if status := int32(getU32(urbBuf[uapi.URBOffStatus:])); status != 0 {
		t.Fatalf("completion status = %d, want 0", status)
	}
	if n := getU32(urbBuf[uapi.URBOffActualLength:]); n != 8 {
		t.Fatalf("actual_length = %d, want 8", n)
	}
	got := mem.data[bufAddr]
	for i, b := range payload {
		if got[i] != b {
			t.Fatalf("buffer byte %d = %#x, want %#x", i, got[i], b)
		}
	}
}

func TestHandle_ReapWithNothingReadyReturnsEAGAIN(t *testing.T) {
	mem := newFakeMemory()
	reapOut := make([]byte, 8)
	mem.put(0x7000, reapOut)

	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)
	client := NewMockIoctlClient(uint64(uapi.ReapURB), 0x7000, 42)

	if !h.Handle(client) {
		t.Fatal("Handle returned false")
	}
	ret, errno, _ := client.Result()
	if ret != -1 || errno != syscall.EAGAIN {
		t.Fatalf("ret=%d errno=%d, want -1,EAGAIN", ret, errno)
	}
}

func TestHandle_DiscardThenReapReturnsENOENT(t *testing.T) {
	mem := newFakeMemory()

	const urbAddr = 0x5000
	urbBuf := make([]byte, uapi.URBSize)
	urbBuf[uapi.URBOffType] = constants.TransferTypeBulk
	urbBuf[uapi.URBOffEndpoint] = 0x01
	mem.put(urbAddr, urbBuf)

	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)

	submitClient := NewMockIoctlClient(uint64(uapi.SubmitURB), urbAddr, 42)
	if !h.Handle(submitClient) {
		t.Fatal("submit Handle returned false")
	}

	discardClient := NewMockIoctlClient(uint64(uapi.DiscardURB), urbAddr, 42)
	if !h.Handle(discardClient) {
		t.Fatal("discard Handle returned false")
	}
	if ret, errno, _ := discardClient.Result(); ret != 0 || errno != 0 {
		t.Fatalf("discard ret=%d errno=%d, want 0,0", ret, errno)
	}

	reapOut := make([]byte, 8)
	mem.put(0x7000, reapOut)
	reapClient := NewMockIoctlClient(uint64(uapi.ReapURB), 0x7000, 42)
	if !h.Handle(reapClient) {
		t.Fatal("reap Handle returned false")
	}
	if ret, errno, _ := reapClient.Result(); ret != 0 || errno != 0 {
		t.Fatalf("reap ret=%d errno=%d, want 0,0", ret, errno)
	}
	if got := getU64(reapOut); got != urbAddr {
		t.Fatalf("reaped address = %#x, want %#x", got, uint64(urbAddr))
	}
	if status := int32(getU32(urbBuf[uapi.URBOffStatus:])); status != -int32(syscall.ENOENT) {
		t.Fatalf("completion status = %d, want %d", status, -int32(syscall.ENOENT))
	}
}

func TestHandle_DiscardUnknownAddressReturnsEINVAL(t *testing.T) {
	mem := newFakeMemory()
	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)

	client := NewMockIoctlClient(uint64(uapi.DiscardURB), 0x9999, 42)
	if !h.Handle(client) {
		t.Fatal("Handle returned false")
	}
	ret, errno, _ := client.Result()
	if ret != -1 || errno != syscall.EINVAL {
		t.Fatalf("ret=%d errno=%d, want -1,EINVAL", ret, errno)
	}
}

func TestHandle_ResolveFailureReturnsFalse(t *testing.T) {
	mem := newFakeMemory() // nothing registered
	h := newTestHandler(mem, &dispatchSliceSource{}, 1, 5)

	client := NewMockIoctlClient(uint64(uapi.SubmitURB), 0xBAD, 42)
	if h.Handle(client) {
		t.Fatal("Handle returned true, want false on resolve failure")
	}
	if _, _, completed := client.Result(); completed {
		t.Fatal("client should not have been completed")
	}
}
