package usbreplay

import (
	"time"

	"github.com/replayusb/usbreplay/internal/constants"
)

// Re-exported constants for callers that want them without reaching into
// an internal package: the capability mask GET_CAPABILITIES answers with,
// and the transfer-type values usbdevfs_urb.type and usb_header_mmapped's
// transfer_type share.
const (
	CapabilityMask = constants.CapabilityMask

	TransferTypeIsochronous = constants.TransferTypeIsochronous
	TransferTypeInterrupt   = constants.TransferTypeInterrupt
	TransferTypeControl     = constants.TransferTypeControl
	TransferTypeBulk        = constants.TransferTypeBulk
)

// StuckSlack is the grace period added to the recording's own inter-record
// gap before a pending reap is reported as stuck.
const StuckSlack time.Duration = constants.StuckSlack
