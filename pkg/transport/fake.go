package transport

import (
	"bytes"
	"fmt"

	"github.com/bee2mp/rtl8762c-flash/pkg/protocol"
)

// FakeTransport is an in-memory Transport double: each call to Write
// is checked against an expected request (scripted in order) and the
// matching canned response is handed back by the following ReadExact.
// It exists so pkg/flasher tests can exercise the session and command
// logic without real hardware, the same role
// malvira-go-cc2538's Bootloader.Port io.ReadWriteCloser field plays
// by accepting an interface instead of a concrete serial type.
type FakeTransport struct {
	Exchanges []Exchange
	pos       int

	Baud        uint32
	ResetLine   bool
	ModeLine    bool
	ClosedCount int
}

// Exchange is one scripted request/response pair. If Response is nil,
// ReadExact returns a TimeoutError to simulate a chip that never
// answers.
type Exchange struct {
	Request  []byte
	Response []byte
}

func (f *FakeTransport) Write(p []byte) (int, error) {
	if f.pos >= len(f.Exchanges) {
		return 0, fmt.Errorf("unexpected write, no exchange scripted: % x", p)
	}
	if want := f.Exchanges[f.pos].Request; want != nil && !bytes.Equal(want, p) {
		return 0, fmt.Errorf("write %d: got % x, want % x", f.pos, p, want)
	}
	return len(p), nil
}

func (f *FakeTransport) ReadExact(n int) ([]byte, error) {
	if f.pos >= len(f.Exchanges) {
		return nil, protocol.NewTimeoutError("no more scripted exchanges")
	}
	ex := f.Exchanges[f.pos]
	f.pos++
	if ex.Response == nil {
		return nil, protocol.NewTimeoutError("scripted timeout")
	}
	if len(ex.Response) != n {
		return nil, fmt.Errorf("scripted response length %d does not match requested %d", len(ex.Response), n)
	}
	return ex.Response, nil
}

func (f *FakeTransport) SetBaud(baud uint32) error { f.Baud = baud; return nil }
func (f *FakeTransport) SetReset(asserted bool) error {
	f.ResetLine = asserted
	return nil
}
func (f *FakeTransport) SetMode(asserted bool) error {
	f.ModeLine = asserted
	return nil
}
func (f *FakeTransport) Close() error { f.ClosedCount++; return nil }
