// Package constants holds the fixed numeric layout of the replay core:
// advertised capability bits, errno values the dispatcher may return, and
// the stuck-detector slack window.
package constants

import "time"

// Capability bits advertised by GET_CAPABILITIES (usbdevfs_fs.h USBDEVFS_CAP_*).
// All five are either no-ops or trivially satisfied by replay, per the
// recorded-capture contract: the client never drives real hardware, so
// there is nothing these capabilities could fail to provide.
const (
	CapZeroPacket        = 1 << 0 // USBDEVFS_CAP_ZERO_PACKET
	CapBulkContinuation  = 1 << 1 // USBDEVFS_CAP_BULK_CONTINUATION
	CapNoPacketSizeLim   = 1 << 2 // USBDEVFS_CAP_NO_PACKET_SIZE_LIM
	CapBulkScatterGather = 1 << 3 // USBDEVFS_CAP_BULK_SCATTER_GATHER
	CapReapAfterDisconn  = 1 << 4 // USBDEVFS_CAP_REAP_AFTER_DISCONNECT

	// CapabilityMask is the OR of every bit above: 0x1F.
	CapabilityMask = CapZeroPacket | CapBulkContinuation |
		CapNoPacketSizeLim | CapBulkScatterGather | CapReapAfterDisconn
)

// Errno values the dispatcher completes ioctls with. Named here rather than
// imported from syscall so that non-Linux builds of the pure replay logic
// (everything except the memview syscall backend) still compile.
const (
	ENOENT = 2
	EAGAIN = 11
	EINVAL = 22
	ENOTTY = 25
)

// StuckSlack is the grace period added to the recording's own inter-record
// gap before a wait is reported as stuck.
const StuckSlack = 2 * time.Second

// USB transfer types, matching usbdevfs_urb.type / usb_header_mmapped.transfer_type.
const (
	TransferTypeIsochronous = 0
	TransferTypeInterrupt   = 1
	TransferTypeControl     = 2
	TransferTypeBulk        = 3
)

// EndpointDirectionIn is the high bit of a USB descriptor's endpoint
// address (bEndpointAddress). The matcher's own outbound test checks a
// different bit of usb_header_mmapped's endpoint_number field — see
// uapi.Header.IsOutbound.
const EndpointDirectionIn = 0x80

// Pcap event types carried in usb_header_mmapped.event_type.
const (
	EventSubmit     = 'S'
	EventCompletion = 'C'
	EventError      = 'E'
)

// USBHeaderSize is the fixed size in bytes of usb_header_mmapped, the first
// 64 bytes of every DLT_USB_LINUX_MMAPPED record's payload.
const USBHeaderSize = 64
