package flasher

import (
	"bytes"
	"io"
	"testing"

	"github.com/bee2mp/rtl8762c-flash/pkg/crc"
	"github.com/bee2mp/rtl8762c-flash/pkg/transport"
)

// fakeStage0 is a Stage0Image backed by an in-memory byte slice.
type fakeStage0 struct {
	data []byte
	pos  int
}

func (f *fakeStage0) Read(p []byte) (int, error) {
	if f.pos >= len(f.data) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += n
	return n, nil
}

func stage0WriteExchange(chunk []byte, frameNumber byte) transport.Exchange {
	req := make([]byte, 0, 5+len(chunk))
	req = append(req, 0x01, 0x20, 0xFC, byte(len(chunk)+1), frameNumber)
	req = append(req, chunk...)
	resp := []byte{0x04, 0x0E, 0x05, 0x02, 0x20, 0xFC, 0x00, frameNumber}
	return transport.Exchange{Request: req, Response: resp}
}

func systemReportExchange(flashSize uint32) transport.Exchange {
	req := []byte{0x01, 0x62, 0xFC, 0x09, 0x20, 0x34, 0x12, 0x20, 0x00, 0x31, 0x38, 0x20, 0x00}
	report := make([]byte, 70)
	report[17], report[18], report[19], report[20] = 0x00, 0x80, 0x00, 0x00
	report[21] = byte(flashSize >> 24)
	report[22] = byte(flashSize >> 16)
	report[23] = byte(flashSize >> 8)
	report[24] = byte(flashSize)
	sum := crc.Checksum(report[:68])
	report[68], report[69] = byte(sum), byte(sum>>8)
	resp := make([]byte, 7)
	resp = append(resp, report...)
	return transport.Exchange{Request: req, Response: resp}
}

func enterFlash(t *testing.T, ft *transport.FakeTransport, fw0 []byte, flashSize uint32) *Session {
	t.Helper()
	var exchanges []transport.Exchange
	chunkSize := 252
	var frameNumber byte
	for offset := 0; offset < len(fw0); offset += chunkSize {
		end := offset + chunkSize
		if end > len(fw0) {
			end = len(fw0)
		}
		exchanges = append(exchanges, stage0WriteExchange(fw0[offset:end], frameNumber))
		frameNumber++
	}
	exchanges = append(exchanges, systemReportExchange(flashSize))
	ft.Exchanges = exchanges

	s, err := Enter(ft, &fakeStage0{data: fw0})
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	return s
}

func TestEnterFlashDrivesLinesAndParsesFlashSize(t *testing.T) {
	ft := &transport.FakeTransport{}
	fw0 := bytes.Repeat([]byte{0x42}, 300) // spans two 252-byte chunks
	s := enterFlash(t, ft, fw0, 0x00100000)

	if s.State() != StateFLASH {
		t.Fatalf("State() = %v, want FLASH", s.State())
	}
	if s.FlashSize() != 0x00100000 {
		t.Fatalf("FlashSize() = %#x, want 0x100000", s.FlashSize())
	}
	if ft.ModeLine {
		t.Fatalf("ModeLine = true after entering FLASH, want false (mode released at end of transition)")
	}
	if ft.ResetLine {
		t.Fatalf("ResetLine = true after entering FLASH, want false (reset released)")
	}
	if ft.Baud != DefaultBaud {
		t.Fatalf("Baud = %d, want %d", ft.Baud, DefaultBaud)
	}
}

func TestAssertStateNoopWhenAlreadyTarget(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)
	before := len(ft.Exchanges)
	if err := s.AssertState(StateFLASH, nil); err != nil {
		t.Fatalf("AssertState(FLASH) no-op: %v", err)
	}
	if len(ft.Exchanges) != before {
		t.Fatalf("exchanges consumed by a supposed no-op transition")
	}
}

func TestCloseReachesRun(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.State() != StateRUN {
		t.Fatalf("State() after Close = %v, want RUN", s.State())
	}
	if ft.ClosedCount != 1 {
		t.Fatalf("ClosedCount = %d, want 1", ft.ClosedCount)
	}
}

func TestReadMACReversesBytes(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)

	req := []byte{0x87, 0x33, 0x10, 0x09, 0x14, 0x80, 0x00, 0x06, 0x00, 0x00, 0x00}
	reqSum := crc.Checksum(req)
	reqFull := append(append([]byte(nil), req...), byte(reqSum), byte(reqSum>>8))

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	resp := append(make([]byte, 8), data...)
	respSum := crc.Checksum(resp)
	respFull := append(resp, byte(respSum), byte(respSum>>8))

	ft.Exchanges = append(ft.Exchanges, transport.Exchange{Request: reqFull, Response: respFull})

	mac, err := s.ReadMAC()
	if err != nil {
		t.Fatalf("ReadMAC: %v", err)
	}
	want := [6]byte{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}
	if mac != want {
		t.Fatalf("ReadMAC = % x, want % x", mac, want)
	}
}

func TestReadFlashZeroSizeIssuesNoCommand(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)
	before := len(ft.Exchanges)

	data, err := s.ReadFlash(0x00800000, 0)
	if err != nil {
		t.Fatalf("ReadFlash: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("ReadFlash(0) = % x, want empty", data)
	}
	if len(ft.Exchanges) != before {
		t.Fatalf("ReadFlash(0) consumed an exchange slot")
	}
}

func TestEraseRegionRejectsUnalignedInput(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)
	if err := s.EraseRegion(1, SectorSize); err == nil {
		t.Fatalf("EraseRegion(unaligned addr) = nil, want ArgumentError")
	}
	if err := s.EraseRegion(0, 1); err == nil {
		t.Fatalf("EraseRegion(unaligned size) = nil, want ArgumentError")
	}
}

func TestEraseFlashThresholdChoosesPath(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 512*1024)
	ft.Exchanges = append(ft.Exchanges, transport.Exchange{
		Request:  crcFrameForTest([]byte{0x87, 0x31, 0x10}),
		Response: []byte{0x87, 0x31, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x6B, 0xD5},
	})
	if err := s.EraseFlash(); err != nil {
		t.Fatalf("EraseFlash at threshold: %v", err)
	}

	ft2 := &transport.FakeTransport{}
	const aboveThreshold = 516 * 1024 // sector-aligned, still above eraseWholeChipMax
	s2 := enterFlash(t, ft2, nil, aboveThreshold)
	sectors := aboveThreshold / SectorSize
	for i := 0; i < sectors; i++ {
		addr := uint32(FlashBase + i*SectorSize)
		body := []byte{0x87, 0x30, 0x10}
		body = append(body, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
		body = append(body, byte(SectorSize), byte(SectorSize>>8), byte(SectorSize>>16), byte(SectorSize>>24))
		ft2.Exchanges = append(ft2.Exchanges, transport.Exchange{
			Request:  crcFrameForTest(body),
			Response: []byte{0x87, 0x30, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x7B, 0x15},
		})
	}
	if err := s2.EraseFlash(); err != nil {
		t.Fatalf("EraseFlash above threshold: %v", err)
	}
}

func TestWriteFlashErasesWritesAndVerifiesEachSector(t *testing.T) {
	ft := &transport.FakeTransport{}
	s := enterFlash(t, ft, nil, 4096)

	addr := uint32(0x00800000)
	chunk := bytes.Repeat([]byte{0x11}, 16)

	eraseBody := []byte{0x87, 0x30, 0x10}
	eraseBody = append(eraseBody, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
	eraseBody = append(eraseBody, byte(SectorSize), byte(SectorSize>>8), byte(SectorSize>>16), byte(SectorSize>>24))

	writeBody := []byte{0x87, 0x32, 0x10}
	writeBody = append(writeBody, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
	writeBody = append(writeBody, byte(len(chunk)), byte(len(chunk)>>8), byte(len(chunk)>>16), byte(len(chunk)>>24))
	writeBody = append(writeBody, chunk...)

	innerCRC := crc.Checksum(chunk)
	verifyBody := []byte{0x87, 0x50, 0x10}
	verifyBody = append(verifyBody, byte(addr), byte(addr>>8), byte(addr>>16), byte(addr>>24))
	verifyBody = append(verifyBody, byte(len(chunk)), byte(len(chunk)>>8), byte(len(chunk)>>16), byte(len(chunk)>>24))
	verifyBody = append(verifyBody, byte(innerCRC), byte(innerCRC>>8))

	ft.Exchanges = append(ft.Exchanges,
		transport.Exchange{Request: crcFrameForTest(eraseBody), Response: []byte{0x87, 0x30, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x7B, 0x15}},
		transport.Exchange{Request: crcFrameForTest(writeBody), Response: []byte{0x87, 0x32, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x58, 0xD5}},
		transport.Exchange{Request: crcFrameForTest(verifyBody), Response: []byte{0x87, 0x50, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x1B, 0x13}},
	)

	if err := s.WriteFlash(addr, chunk); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}
}

func TestFlashMutatingOpsRequireFlashState(t *testing.T) {
	ft := &transport.FakeTransport{}
	s, err := New(ft)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.ReadMAC(); err == nil {
		t.Fatalf("ReadMAC outside FLASH = nil, want StateError")
	}
	if err := s.WriteFlash(0, []byte{1}); err == nil {
		t.Fatalf("WriteFlash outside FLASH = nil, want StateError")
	}
}

func crcFrameForTest(body []byte) []byte {
	sum := crc.Checksum(body)
	return append(append([]byte(nil), body...), byte(sum), byte(sum>>8))
}
