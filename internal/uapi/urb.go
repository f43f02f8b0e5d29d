package uapi

// These offsets describe the byte layout of struct usbdevfs_urb
// (linux/usbdevice_fs.h) as it sits in the submitting client's address
// space. A URB lives in a foreign process, so this core never overlays a
// Go struct on top of it — it reads and writes individual fields through
// memview.View at these fixed offsets instead. Layout (64-bit client, the
// only one this core supports):
//
//	offset  size  field
//	0       1     type
//	1       1     endpoint
//	2       2     (padding, to align status on a 4-byte boundary)
//	4       4     status
//	8       4     flags
//	16      8     buffer        (pointer)
//	24      4     buffer_length
//	28      4     actual_length
//	32      4     start_frame
//	36      4     stream_id / number_of_packets (union, isochronous only)
//	40      4     error_count
//	44      4     signr
//	48      8     usercontext   (pointer)
//
// Fields beyond usercontext (the variable-length iso_frame_desc array) are
// never read or written by this core: isochronous packet descriptors are
// out of scope.
const (
	URBOffType         = 0
	URBOffEndpoint     = 1
	URBOffStatus       = 4
	URBOffFlags        = 8
	URBOffBuffer       = 16
	URBOffBufferLength = 24
	URBOffActualLength = 28
	URBOffStartFrame   = 32
	URBOffStreamID     = 36
	URBOffErrorCount   = 40
	URBOffSignr        = 44
	URBOffUserContext  = 48

	// URBSize is the fixed portion of usbdevfs_urb this core ever touches;
	// the struct itself is larger when it carries isochronous descriptors,
	// but submit/reap of those is out of scope.
	URBSize = 56
)

// URBRequest is the subset of a submitted URB's fields this core needs to
// decide how to match and service it: what kind of transfer, which
// endpoint, how large the buffer is, and where the buffer lives in
// client memory.
type URBRequest struct {
	Type         uint8
	Endpoint     uint8
	BufferPtr    uint64
	BufferLength uint32
}

// URBCompletion is what the dispatcher writes back into a client's
// usbdevfs_urb on reap: the three fields usbdevfs's own reap path fills
// in — status, actual_length (how much of the buffer the client rereads),
// and start_frame.
type URBCompletion struct {
	Status       int32
	ActualLength uint32
	StartFrame   int32
}
