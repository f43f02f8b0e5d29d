package uapi

import (
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// Opcodes this core's dispatcher understands, built with the same IOR/IOW/
// IOWR/IO encoders linux/usbdevice_fs.h's own request numbers come from.
// Group 'U', command numbers straight out of the kernel header — every
// value here must match what a real usbdevfs node would report so a
// client never has to special-case this core's fd.
var (
	GetCapabilities  = ioctl.IOR('U', 26, unsafe.Sizeof(uint32(0)))
	ClaimInterface   = ioctl.IOR('U', 15, unsafe.Sizeof(uint32(0)))
	ReleaseInterface = ioctl.IOR('U', 16, unsafe.Sizeof(uint32(0)))
	ClearHalt        = ioctl.IOR('U', 21, unsafe.Sizeof(uint32(0)))
	Reset            = ioctl.IO('U', 20)
	ResetEp          = ioctl.IOR('U', 3, unsafe.Sizeof(uint32(0)))
	SubmitURB        = ioctl.IOR('U', 10, unsafe.Sizeof([URBSize]byte{}))
	DiscardURB       = ioctl.IO('U', 11)
	ReapURB          = ioctl.IOW('U', 12, unsafe.Sizeof(uintptr(0)))
	ReapURBNDelay    = ioctl.IOW('U', 13, unsafe.Sizeof(uintptr(0)))
)

// sizeShift and sizeMask locate the _IOC_SIZE field within a Linux ioctl
// request number (asm-generic/ioctl.h: bits 16..29, 14 bits wide). This is
// plain bit arithmetic rather than a goioctl call because goioctl only
// offers encoders (building a request number from its parts), not a
// decoder for one already received from the kernel.
const (
	sizeShift = 16
	sizeMask  = 0x3fff
)

// DecodeSize extracts the _IOC_SIZE payload-size field encoded into an
// inbound ioctl request number, used by the dispatcher as the length of
// the argument span it resolves in client memory.
func DecodeSize(request uint64) uint32 {
	return uint32(request>>sizeShift) & sizeMask
}
