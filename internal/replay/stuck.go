package replay

import (
	"time"

	"github.com/replayusb/usbreplay/internal/constants"
)

// IsStuck is the pure function at the heart of the stuck detector: true
// once the wall-clock wait since waitingSince exceeds the recording's
// own inter-record gap plus a fixed slack. Isolated as a pure function of
// its three inputs, with no access to a real clock, so tests can drive
// it with arbitrary values instead of sleeping.
func IsStuck(now, waitingSince time.Time, recordGap time.Duration) bool {
	if recordGap < 0 {
		recordGap = 0
	}
	return now.Sub(waitingSince) > recordGap+constants.StuckSlack
}

// QueuedURBInfo is one line of the queue dump a stuck report carries: a
// queued URB's type, endpoint, length, and matched/unmatched status.
type QueuedURBInfo struct {
	Type         uint8
	Endpoint     uint8
	BufferLength uint32
	Matched      bool
}

// StuckReport carries everything an emitted stuck report needs to
// describe what the matcher is waiting on.
type StuckReport struct {
	Wait         time.Duration
	Expected     time.Duration
	EventType    byte
	TransferType uint8
	Endpoint     uint8
	Length       uint32
	Queued       []QueuedURBInfo
}
