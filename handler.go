// Package usbreplay implements the USB-over-pcap ioctl replay core: a
// long-lived Handler that answers usbdevfs ioctl invocations by
// correlating them against a recorded DLT_USB_LINUX_MMAPPED capture.
package usbreplay

import (
	"time"

	"github.com/replayusb/usbreplay/internal/interfaces"
	"github.com/replayusb/usbreplay/internal/memview"
	"github.com/replayusb/usbreplay/internal/pcapsrc"
	"github.com/replayusb/usbreplay/internal/replay"
	"github.com/replayusb/usbreplay/internal/urbqueue"
)

// resolveFunc resolves a span of a client process's address space into a
// memory view. Handler's default wraps memview.Space.Resolve; tests
// substitute a fake so Handle can be exercised without a real second
// process to process_vm_readv/writev against.
type resolveFunc func(pid int, addr uint64, length uint32, readable, writable bool) (*memview.View, error)

func defaultResolve(pid int, addr uint64, length uint32, readable, writable bool) (*memview.View, error) {
	return memview.NewSpace(pid).Resolve(addr, length, readable, writable)
}

// HandlerParams configures a Handler: which recording to replay and
// which (bus, device) pair on it to answer for.
type HandlerParams struct {
	// RecordingPath is the DLT_USB_LINUX_MMAPPED capture file to replay.
	RecordingPath string

	// Bus and Device filter the pcap stream to one USB device. Zero means
	// "accept any" for that field — see DefaultHandlerParams.
	Bus    uint16
	Device uint8

	Logger interfaces.Logger

	// Clock lets tests inject a fake wall clock for the stuck detector.
	// Defaults to time.Now.
	Clock func() time.Time
}

// DefaultHandlerParams fills in zero-value-safe defaults for a recording
// path: Bus and Device left at zero, meaning "accept any device in this
// recording" — useful for single-device recordings where the caller
// doesn't want to look up the exact bus/device pair first. See DESIGN.md
// for the reasoning behind treating zero as a wildcard.
func DefaultHandlerParams(recordingPath string) HandlerParams {
	return HandlerParams{RecordingPath: recordingPath}
}

// Handler is the single long-lived object of this core: parameterised by
// a recording and a device filter, driven entirely by inbound Handle
// calls, never initiating work on its own.
type Handler struct {
	params  HandlerParams
	reader  *pcapsrc.Reader
	queue   *urbqueue.Queue
	matcher *replay.Matcher
	logger  interfaces.Logger
	stats   *Stats
	resolve resolveFunc
}

// NewHandler opens params.RecordingPath and constructs a Handler for it.
// Construction fails if the recording is not DLT_USB_LINUX_MMAPPED.
func NewHandler(params HandlerParams) (*Handler, error) {
	reader, err := pcapsrc.Open(params.RecordingPath)
	if err != nil {
		return nil, WrapError("NewHandler", err)
	}

	stats := NewStats()
	m := replay.New(reader, params.Bus, params.Device, params.Logger, statsObserver{stats: stats}, params.Clock)

	return &Handler{
		params:  params,
		reader:  reader,
		queue:   urbqueue.New(),
		matcher: m,
		logger:  params.Logger,
		stats:   stats,
		resolve: defaultResolve,
	}, nil
}

// Close releases the underlying pcap reader. The core never initiates
// its own shutdown; callers invoke this once the handler is no longer
// driven by ioctl invocations.
func (h *Handler) Close() {
	h.reader.Close()
}

// Stats returns the handler's live counters.
func (h *Handler) Stats() *Stats {
	return h.stats
}

// StatsSnapshot returns a point-in-time copy of the handler's counters.
func (h *Handler) StatsSnapshot() StatsSnapshot {
	return h.stats.Snapshot()
}
