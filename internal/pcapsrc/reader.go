// Package pcapsrc adapts a libpcap offline capture into the pcap source
// contract consumed by the replay matcher: records delivered in capture
// order, each carrying a decoded usb_header_mmapped prefix and its
// trailing payload bytes.
package pcapsrc

import (
	"fmt"

	"github.com/miekg/pcap"

	"github.com/replayusb/usbreplay/internal/constants"
	"github.com/replayusb/usbreplay/internal/uapi"
)

// DLTUSBLinuxMmapped is the libpcap link-layer type this core requires of
// every recording: DLT_USB_LINUX_MMAPPED.
const DLTUSBLinuxMmapped = 220

// Record is one pcap record split into its decoded header and payload
// bytes past the fixed 64-byte usb_header_mmapped prefix.
type Record struct {
	Header  uapi.Header
	Payload []byte
}

// Reader pulls Records from an offline capture file in order, via
// github.com/miekg/pcap's cgo libpcap binding (pcap.OpenOffline,
// (*Pcap).Datalink, (*Pcap).NextEx) — the same library vendored and used
// in the wider example pack for this exact link-type family.
type Reader struct {
	h *pcap.Pcap
}

// Open opens path as an offline capture and verifies its link type is
// DLT_USB_LINUX_MMAPPED, failing construction outright if not.
// Endianness of the captured usb_header_mmapped records follows the
// recording host's and is never swapped by this core; this reader assumes
// little-endian, the overwhelming majority of recording hosts, and
// records that decision as an open-question resolution rather than
// silently guessing per-record.
func Open(path string) (*Reader, error) {
	h, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("pcapsrc: open %s: %w", path, err)
	}
	if dlt := h.Datalink(); dlt != DLTUSBLinuxMmapped {
		h.Close()
		return nil, fmt.Errorf("pcapsrc: %s: unsupported link type %d, want DLT_USB_LINUX_MMAPPED (%d)", path, dlt, DLTUSBLinuxMmapped)
	}
	return &Reader{h: h}, nil
}

// Close releases the underlying capture handle.
func (r *Reader) Close() {
	r.h.Close()
}

// Next returns the next record in capture order, or (nil, io.EOF)-shaped
// via a nil Record and nil error at end of file — callers distinguish
// "no more records" from a hard error by checking both return values:
// (nil, nil) means EOF, (nil, err) means a real read failure.
func (r *Reader) Next() (*Record, error) {
	pkt, result := r.h.NextEx()
	switch result {
	case -2:
		return nil, nil // offline capture exhausted
	case -1:
		return nil, fmt.Errorf("pcapsrc: read: %w", r.h.Geterror())
	}
	if pkt == nil || len(pkt.Data) < constants.USBHeaderSize {
		return nil, fmt.Errorf("pcapsrc: record shorter than usb_header_mmapped (%d bytes)", len(pkt.Data))
	}
	hdr := uapi.DecodeHeader(pkt.Data, nativeEndian)
	return &Record{Header: hdr, Payload: pkt.Data[constants.USBHeaderSize:]}, nil
}
