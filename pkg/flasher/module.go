// Package flasher implements the RTL8762C module-state machine and
// the flash-sector-aware read/erase/write/verify orchestrator built
// on top of pkg/protocol.
package flasher

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/bee2mp/rtl8762c-flash/pkg/protocol"
)

// ModuleState is one of the three logical states of the target as
// seen from the host.
type ModuleState int

const (
	// StateRESET holds the chip inactive.
	StateRESET ModuleState = iota
	// StateFLASH is programming mode: stage-0 is loaded and the
	// command set in pkg/protocol is available.
	StateFLASH
	// StateRUN lets the chip boot its own application firmware.
	StateRUN
)

func (s ModuleState) String() string {
	switch s {
	case StateRESET:
		return "RESET"
	case StateFLASH:
		return "FLASH"
	case StateRUN:
		return "RUN"
	default:
		return fmt.Sprintf("ModuleState(%d)", int(s))
	}
}

const (
	// SectorSize is the erase unit of the on-chip SPI flash.
	SectorSize = 0x1000
	// FlashBase is the logical base address of the flash window.
	FlashBase = 0x0080_0000
	// macAddr is where the 6-byte MAC is stored, LSB-first on the wire.
	macAddr = 0x0080_1409
	macLen  = 6

	// DefaultBaud is the chip's power-on baud rate.
	DefaultBaud = 115200
	// MaxBaud is the fastest rate set_baud may request.
	MaxBaud = 921600

	// eraseWholeChipMax is the largest flash size the device accepts
	// a single-shot erase_flash for; above it, EraseFlash must walk
	// sector by sector (spec.md §4.4 — a device capability, not a
	// tuning knob).
	eraseWholeChipMax = 512 * 1024

	fw0ChunkSize = 252

	resetPulseWidth  = 10 * time.Millisecond
	bootModeSustain  = 500 * time.Millisecond
	baudChangeDelay  = 400 * time.Millisecond
)

// Transport is the byte pipe plus the three modem-control levers the
// boot sequence needs. pkg/transport.SerialTransport and
// pkg/transport.FakeTransport both satisfy it.
type Transport interface {
	protocol.Transport
	SetBaud(baud uint32) error
	SetReset(asserted bool) error
	SetMode(asserted bool) error
	Close() error
}

// Stage0Image is the bundled helper firmware, streamed in chunks and
// never sought. Callers own closing it if it needs closing; Session
// only reads.
type Stage0Image interface {
	Read(p []byte) (int, error)
}

// Session owns a Transport exclusively and tracks the chip's logical
// state. It is not safe for concurrent use from multiple goroutines.
type Session struct {
	transport Transport
	state     ModuleState
	flashSize uint32
}

// New brings the target into RESET and returns a Session ready for
// AssertState(StateFLASH). It does not itself enter FLASH: that
// requires a Stage0Image, supplied to AssertState.
func New(t Transport) (*Session, error) {
	s := &Session{transport: t}
	if err := s.assertReset(); err != nil {
		return nil, err
	}
	return s, nil
}

// State reports the session's current ModuleState.
func (s *Session) State() ModuleState { return s.state }

// FlashSize is the flash_size reported by the chip on entering FLASH.
// Zero until AssertState(StateFLASH) has succeeded at least once.
func (s *Session) FlashSize() uint32 { return s.flashSize }

// Transport exposes the underlying transport for baud renegotiation
// (SPEC_FULL.md §4.5).
func (s *Session) Transport() Transport { return s.transport }

func (s *Session) assertReset() error {
	if err := s.transport.SetReset(true); err != nil {
		return err
	}
	time.Sleep(resetPulseWidth)
	s.state = StateRESET
	return nil
}

// AssertState transitions the module to target. Entering StateFLASH
// requires fw0, the stage-0 image to upload; it is ignored for other
// targets. If current == target this is a no-op. If the FLASH
// transition's stage-0 upload or system report fails, state is left
// unchanged and the error propagates (spec.md §4.3).
func (s *Session) AssertState(target ModuleState, fw0 Stage0Image) error {
	if s.state == target {
		return nil
	}

	log.Printf("flasher: asserting reset before transition to %s", target)
	if err := s.transport.SetReset(true); err != nil {
		return err
	}
	time.Sleep(resetPulseWidth)

	if target == StateRESET {
		s.state = StateRESET
		return nil
	}

	switch target {
	case StateFLASH:
		if err := s.transport.SetMode(true); err != nil {
			return err
		}
		if err := s.transport.SetBaud(DefaultBaud); err != nil {
			return err
		}
	case StateRUN:
		if err := s.transport.SetMode(false); err != nil {
			return err
		}
	}

	if err := s.transport.SetReset(false); err != nil {
		return err
	}
	time.Sleep(bootModeSustain)

	if err := s.transport.SetMode(false); err != nil {
		return err
	}
	time.Sleep(baudChangeDelay)

	if target == StateFLASH {
		log.Printf("flasher: uploading stage-0 firmware")
		if err := s.writeStage0(fw0); err != nil {
			return fmt.Errorf("upload stage-0: %w", err)
		}
		log.Printf("flasher: stage-0 upload complete, requesting system report")
		result, err := protocol.Execute(s.transport, protocol.SystemReport{})
		if err != nil {
			return fmt.Errorf("system report: %w", err)
		}
		report := result.(protocol.SystemReportResult)
		s.flashSize = report.FlashSize
		log.Printf("flasher: flash size = %d KiB", s.flashSize/1024)
	}

	s.state = target
	return nil
}

// writeStage0 streams fw0 to the device in fw0ChunkSize chunks, each
// framed as an HCI vendor command with a wrapping frame number.
func (s *Session) writeStage0(fw0 Stage0Image) error {
	chunk := make([]byte, fw0ChunkSize)
	var frameNumber byte
	for {
		n, err := fw0.Read(chunk)
		if n > 0 {
			_, execErr := protocol.Execute(s.transport, protocol.WriteFW0{
				Chunk:       append([]byte(nil), chunk[:n]...),
				FrameNumber: frameNumber,
			})
			if execErr != nil {
				return execErr
			}
			frameNumber++
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// Close transitions to StateRUN (best effort) and closes the
// transport. Per SPEC_FULL.md §4.5 / spec.md §9, a failure to reach
// RUN is logged but never masks a primary error the caller already
// has; call Close via a deferred statement that discards its own
// error when a more important error is already in flight.
func (s *Session) Close() error {
	if err := s.AssertState(StateRUN, nil); err != nil {
		log.Printf("flasher: failed to reach RUN on close: %v", err)
	}
	return s.transport.Close()
}
