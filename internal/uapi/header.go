// Package uapi holds the fixed binary layouts this core reads and writes:
// the pcap-resident usb_header_mmapped record header, and the
// client-resident usbdevfs_urb structure, laid out exactly as the kernel
// defines them (kernel struct usbmon_packet / mon_bin_hdr for the former,
// linux/usbdevice_fs.h's usbdevfs_urb for the latter), each read and
// written field by field at fixed byte offsets.
package uapi

import "encoding/binary"

// Header is the decoded form of usb_header_mmapped, the 64-byte record
// header prefixing every DLT_USB_LINUX_MMAPPED pcap record's payload.
// Byte offsets follow the kernel's usbmon_packet layout (mon_bin_hdr in
// drivers/usb/mon/mon_bin.c), which is what libpcap's USB linktype
// actually captures on the wire.
type Header struct {
	ID             uint64
	EventType      byte // 'S', 'C', or 'E'
	TransferType   uint8
	EndpointNumber uint8
	DeviceAddress  uint8
	BusID          uint16
	TsSec          int64
	TsUsec         int32
	Status         int32
	URBLen         uint32
	DataLen        uint32
	StartFrame     int32
}

// Byte offsets of each field within the 64-byte usb_header_mmapped record.
// The gaps (setup bytes, interval, xfer_flags, ndesc) are kernel padding
// this core never reads.
const (
	offID             = 0
	offEventType      = 8
	offTransferType   = 9
	offEndpointNumber = 10
	offDeviceAddress  = 11
	offBusID          = 12
	offTsSec          = 16
	offTsUsec         = 24
	offStatus         = 28
	offURBLen         = 32
	offDataLen        = 36
	offStartFrame     = 52
)

// DecodeHeader parses the fixed 64-byte usb_header_mmapped prefix of a
// record's payload. Endianness follows the recording host's native order
// and is never swapped — callers pass the byte order the capture was
// produced with (binary.NativeEndian for a capture taken on this
// machine's architecture).
func DecodeHeader(buf []byte, order binary.ByteOrder) Header {
	return Header{
		ID:             order.Uint64(buf[offID:]),
		EventType:      buf[offEventType],
		TransferType:   buf[offTransferType],
		EndpointNumber: buf[offEndpointNumber],
		DeviceAddress:  buf[offDeviceAddress],
		BusID:          order.Uint16(buf[offBusID:]),
		TsSec:          int64(order.Uint64(buf[offTsSec:])),
		TsUsec:         int32(order.Uint32(buf[offTsUsec:])),
		Status:         int32(order.Uint32(buf[offStatus:])),
		URBLen:         order.Uint32(buf[offURBLen:]),
		DataLen:        order.Uint32(buf[offDataLen:]),
		StartFrame:     int32(order.Uint32(buf[offStartFrame:])),
	}
}

// IsOutbound reports whether the endpoint this record targets is a
// host-to-device (OUT) endpoint: bit 0 of EndpointNumber set means
// outbound. This is the bit the matcher's direction test actually uses,
// distinct from the descriptor-style "bit 7 = IN" convention used
// elsewhere for a USB endpoint address's general meaning — see
// DESIGN.md for why bit 0 is the one this core checks.
func (h Header) IsOutbound() bool {
	return h.EndpointNumber&0x01 != 0
}
