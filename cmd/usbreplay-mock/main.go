// Command usbreplay-mock drives a usbreplay.Handler end to end without
// the kernel-side interception component the core itself declares out of
// scope: it opens a recording twice, once as the Handler's own replay
// source and once to preview each submit record so it can synthesize a
// matching SUBMITURB/REAPURB pair against the Handler, the same way a
// real client would.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	"github.com/replayusb/usbreplay"
	"github.com/replayusb/usbreplay/internal/logging"
	"github.com/replayusb/usbreplay/internal/pcapsrc"
	"github.com/replayusb/usbreplay/internal/uapi"
)

func main() {
	var (
		recording = flag.String("recording", "", "DLT_USB_LINUX_MMAPPED capture to replay (required)")
		bus       = flag.Uint("bus", 0, "USB bus number to filter to (0 = accept any)")
		device    = flag.Uint("device", 0, "USB device address to filter to (0 = accept any)")
		verbose   = flag.Bool("v", false, "verbose (debug) logging")
	)
	flag.Parse()

	if *recording == "" {
		fmt.Fprintln(os.Stderr, "usage: usbreplay-mock -recording capture.pcap [-bus N] [-device N]")
		os.Exit(2)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params := usbreplay.DefaultHandlerParams(*recording)
	params.Bus = uint16(*bus)
	params.Device = uint8(*device)
	params.Logger = logger

	handler, err := usbreplay.NewHandler(params)
	if err != nil {
		logger.Error("failed to open recording", "error", err)
		os.Exit(1)
	}
	defer handler.Close()

	preview, err := pcapsrc.Open(*recording)
	if err != nil {
		logger.Error("failed to open recording for preview", "error", err)
		os.Exit(1)
	}
	defer preview.Close()

	logger.Info("replaying recording", "path", *recording, "bus", *bus, "device", *device)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		driveSyntheticFeed(handler, preview, logger)
	}()

	select {
	case <-done:
		logger.Info("synthetic feed drained")
	case <-sigCh:
		logger.Info("received shutdown signal")
	}

	snap := handler.StatsSnapshot()
	fmt.Printf("submitted=%d reaped=%d discarded=%d hits=%d misses=%d stuck=%d\n",
		snap.Submitted, snap.Reaped, snap.Discarded, snap.MatchHits, snap.MatchMisses, snap.StuckReports)
}

// driveSyntheticFeed walks the recording's own submit records in order
// and, for each one, synthesizes a SUBMITURB/REAPURB pair against h using
// in-process memory as the "client" address space (process_vm_readv and
// process_vm_writev both accept the calling process's own PID). This
// lets the CLI exercise the whole dispatch/match/memory-bridge pipeline
// without a real USB client process on the other end.
func driveSyntheticFeed(h *usbreplay.Handler, preview *pcapsrc.Reader, logger *logging.Logger) {
	pid := os.Getpid()

	for {
		rec, err := preview.Next()
		if err != nil {
			logger.Error("preview read failed", "error", err)
			return
		}
		if rec == nil {
			return
		}
		if rec.Header.EventType != 'S' {
			continue
		}

		urbBuf := make([]byte, uapi.URBSize)
		urbBuf[uapi.URBOffType] = rec.Header.TransferType
		urbBuf[uapi.URBOffEndpoint] = rec.Header.EndpointNumber

		var dataBuf []byte
		if rec.Header.URBLen > 0 {
			dataBuf = make([]byte, rec.Header.URBLen)
			if rec.Header.IsOutbound() && uint32(len(rec.Payload)) >= rec.Header.URBLen {
				copy(dataBuf, rec.Payload[:rec.Header.URBLen])
			}
			binary.LittleEndian.PutUint64(urbBuf[uapi.URBOffBuffer:], uint64(uintptr(unsafe.Pointer(&dataBuf[0]))))
			binary.LittleEndian.PutUint32(urbBuf[uapi.URBOffBufferLength:], rec.Header.URBLen)
		}

		submit := usbreplay.NewMockIoctlClient(uint64(uapi.SubmitURB), uintptr(unsafe.Pointer(&urbBuf[0])), pid)
		h.Handle(submit)
		if ret, errno, _ := submit.Result(); ret != 0 {
			logger.Warn("submit failed", "endpoint", rec.Header.EndpointNumber, "errno", errno)
			continue
		}

		reapOut := make([]byte, 8)
		reapArg := uintptr(unsafe.Pointer(&reapOut[0]))
		for attempt := 0; attempt < 50; attempt++ {
			reap := usbreplay.NewMockIoctlClient(uint64(uapi.ReapURB), reapArg, pid)
			h.Handle(reap)
			ret, errno, _ := reap.Result()
			if ret == 0 {
				logger.Debug("reaped urb", "endpoint", rec.Header.EndpointNumber, "length", rec.Header.URBLen)
				break
			}
			if errno != syscall.EAGAIN {
				logger.Warn("reap failed", "endpoint", rec.Header.EndpointNumber, "errno", errno)
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}
