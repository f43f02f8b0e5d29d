package pcapsrc

import "encoding/binary"

// nativeEndian is the byte order assumed for usb_header_mmapped records.
// This core never swaps a recording's byte order; since virtually every
// machine capable of producing a DLT_USB_LINUX_MMAPPED recording is
// little-endian (x86, x86_64, arm, arm64), that is the order applied here
// rather than threading an endianness flag through every call site for an
// architecture family this core is unlikely to ever see.
var nativeEndian binary.ByteOrder = binary.LittleEndian
