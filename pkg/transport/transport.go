// Package transport wraps a real serial port into the narrow byte
// pipe pkg/protocol and pkg/flasher consume: write+flush, a
// short-read-is-failure ReadExact, and the three levers the boot
// sequence needs beyond plain I/O (baud, RTS, DTR).
package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/bee2mp/rtl8762c-flash/pkg/protocol"
)

const (
	// DefaultBaud is the rate the chip speaks at out of reset and in
	// FLASH state before any SetBaud negotiation.
	DefaultBaud = 115200
	// MaxBaud is the fastest rate set_baud may request.
	MaxBaud = 921600

	readTimeout = 2 * time.Second
)

// Port is the narrow interface SerialTransport drives. go.bug.st/serial's
// serial.Port satisfies it; it exists so tests can substitute a fake
// without pulling in the OS driver.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
	SetDTR(dtr bool) error
}

// SerialTransport is the production Transport, backed by an OS serial
// device opened 8N1 at DefaultBaud with a 2-second read timeout.
type SerialTransport struct {
	port    Port
	timeout time.Duration
}

// Open configures the named serial device per spec.md §4.1 and
// returns a ready transport. The caller owns the returned transport
// exclusively; it is not safe for concurrent use.
func Open(name string) (*SerialTransport, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: DefaultBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, protocol.NewTransportError(fmt.Sprintf("open %s", name), err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, protocol.NewTransportError("set read timeout", err)
	}
	return &SerialTransport{port: port, timeout: readTimeout}, nil
}

// wrap adapts an already-open Port (real or fake) without touching its
// configuration; used by tests that build their own serial.Port mode.
func wrap(port Port) *SerialTransport {
	return &SerialTransport{port: port, timeout: readTimeout}
}

// Write writes p to the port. The underlying driver flushes on every
// write; there is no separate buffering to drain.
func (t *SerialTransport) Write(p []byte) (int, error) {
	n, err := t.port.Write(p)
	if err != nil {
		return n, protocol.NewTransportError("write", err)
	}
	return n, nil
}

// ReadExact blocks until exactly n bytes have arrived or the read
// deadline elapses, whichever comes first. A short read is reported
// as TimeoutError, never as a partial success.
func (t *SerialTransport) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	deadline := time.Now().Add(t.timeout)
	tmp := make([]byte, n)
	for len(buf) < n {
		remaining := n - len(buf)
		read, err := t.port.Read(tmp[:remaining])
		if err != nil {
			return nil, protocol.NewTransportError("read", err)
		}
		buf = append(buf, tmp[:read]...)
		if len(buf) >= n {
			break
		}
		if read == 0 {
			if time.Now().After(deadline) {
				return nil, protocol.NewTimeoutError(
					fmt.Sprintf("read timed out after %d of %d bytes", len(buf), n))
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return buf, nil
}

// SetBaud reconfigures the port's baud rate without touching parity,
// data bits or stop bits.
func (t *SerialTransport) SetBaud(baud uint32) error {
	if err := t.port.SetMode(&serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}); err != nil {
		return protocol.NewTransportError("set baud", err)
	}
	return nil
}

// SetReset drives the chip's reset pin via RTS. Logical true asserts
// reset (holds the chip low).
func (t *SerialTransport) SetReset(asserted bool) error {
	if err := t.port.SetRTS(asserted); err != nil {
		return protocol.NewTransportError("set RTS", err)
	}
	return nil
}

// SetMode drives the chip's mode-select pin via DTR. Logical true at
// boot-release means "enter programming mode".
func (t *SerialTransport) SetMode(asserted bool) error {
	if err := t.port.SetDTR(asserted); err != nil {
		return protocol.NewTransportError("set DTR", err)
	}
	return nil
}

// Close releases the underlying port.
func (t *SerialTransport) Close() error {
	if err := t.port.Close(); err != nil {
		return protocol.NewTransportError("close", err)
	}
	return nil
}
