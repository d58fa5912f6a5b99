package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/bee2mp/rtl8762c-flash/pkg/crc"
)

// Command describes one request/response exchange with the chip.
// Implementations are ephemeral: built, passed to Execute, discarded.
type Command interface {
	// RequestBytes returns the exact bytes to write to the transport.
	RequestBytes() []byte
	// ResponseLen is the exact number of bytes Execute must read back.
	ResponseLen() int
	// Decode interprets a response of ResponseLen bytes, or fails
	// with one of the taxonomy errors in errors.go.
	Decode(response []byte) (any, error)
}

// WriteFW0 uploads one 252-byte-or-smaller chunk of the stage-0
// image, framed as an HCI vendor command. No CRC.
type WriteFW0 struct {
	Chunk       []byte
	FrameNumber byte
}

func (c WriteFW0) RequestBytes() []byte { return stage0Frame(c.Chunk, c.FrameNumber) }
func (c WriteFW0) ResponseLen() int     { return 8 }

func (c WriteFW0) Decode(response []byte) (any, error) {
	want := stage0ExpectedResponse(c.FrameNumber)
	if !bytes.Equal(response, want) {
		return nil, NewExpectError(want, response)
	}
	return nil, nil
}

// SystemReport queries the post-upload self-describe report.
type SystemReport struct{}

// systemReportRequest is the literal bytecode the Python source and
// this rewrite both send; it never varies.
var systemReportRequest = []byte{0x01, 0x62, 0xFC, 0x09, 0x20, 0x34, 0x12, 0x20, 0x00, 0x31, 0x38, 0x20, 0x00}

func (c SystemReport) RequestBytes() []byte { return systemReportRequest }
func (c SystemReport) ResponseLen() int     { return 77 }

// SystemReportResult is the subset of the self-describe report this
// core retains. FlashAddr is parsed but not otherwise consumed.
type SystemReportResult struct {
	FlashAddr uint32
	FlashSize uint32
}

func (c SystemReport) Decode(response []byte) (any, error) {
	report := response[7:]
	if err := checkCRCFrame(report); err != nil {
		return nil, err
	}
	return SystemReportResult{
		FlashAddr: binary.BigEndian.Uint32(report[17:21]),
		FlashSize: binary.BigEndian.Uint32(report[21:25]),
	}, nil
}

// SetBaud requests the chip switch its UART to a new baud rate. The
// device switches autonomously after acknowledging; the caller must
// reconfigure the host transport to match (SPEC_FULL.md §4.5).
type SetBaud struct {
	Baud uint32
}

var setBaudAck = []byte{0x87, 0x10, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x5A, 0xD7}

func (c SetBaud) RequestBytes() []byte {
	body := make([]byte, 0, 8)
	body = append(body, 0x87, 0x10, 0x10)
	body = appendU32LE(body, c.Baud)
	body = append(body, 0xFF)
	return crcFrame(body)
}

func (c SetBaud) ResponseLen() int { return 10 }

func (c SetBaud) Decode(response []byte) (any, error) {
	return nil, expectCRCTemplate(response, setBaudAck)
}

// ReadFlash reads size bytes starting at addr. The core never issues
// this for more than SectorSize bytes at a time (pkg/flasher chunks
// larger reads); there is no alignment requirement on addr.
type ReadFlash struct {
	Addr uint32
	Size uint32
}

func (c ReadFlash) RequestBytes() []byte {
	body := make([]byte, 0, 11)
	body = append(body, 0x87, 0x33, 0x10)
	body = appendU32LE(body, c.Addr)
	body = appendU32LE(body, c.Size)
	return crcFrame(body)
}

func (c ReadFlash) ResponseLen() int { return int(c.Size) + 10 }

func (c ReadFlash) Decode(response []byte) (any, error) {
	if err := checkCRCFrame(response); err != nil {
		return nil, err
	}
	data := make([]byte, c.Size)
	copy(data, response[8:8+c.Size])
	return data, nil
}

// EraseRegion erases one SectorSize-aligned window. The caller is
// required to provide a sector-aligned addr/size; this type does not
// re-validate alignment (SPEC_FULL.md §4.4).
type EraseRegion struct {
	Addr uint32
	Size uint32
}

var eraseRegionAck = []byte{0x87, 0x30, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x7B, 0x15}

func (c EraseRegion) RequestBytes() []byte {
	body := make([]byte, 0, 11)
	body = append(body, 0x87, 0x30, 0x10)
	body = appendU32LE(body, c.Addr)
	body = appendU32LE(body, c.Size)
	return crcFrame(body)
}

func (c EraseRegion) ResponseLen() int { return 10 }

func (c EraseRegion) Decode(response []byte) (any, error) {
	return nil, expectCRCTemplate(response, eraseRegionAck)
}

// EraseFlash erases the entire chip in one device-side operation.
// Devices with more than 512 KiB of flash reject this; callers above
// that threshold must use EraseRegion in a sector loop instead.
type EraseFlash struct{}

var eraseFlashRequest = []byte{0x87, 0x31, 0x10}
var eraseFlashAck = []byte{0x87, 0x31, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x6B, 0xD5}

func (c EraseFlash) RequestBytes() []byte { return crcFrame(eraseFlashRequest) }
func (c EraseFlash) ResponseLen() int     { return 10 }

func (c EraseFlash) Decode(response []byte) (any, error) {
	return nil, expectCRCTemplate(response, eraseFlashAck)
}

// WriteFlash programs one chunk of at most SectorSize bytes at addr.
// The caller must have already erased the covering sector.
type WriteFlash struct {
	Addr  uint32
	Chunk []byte
}

var writeFlashAck = []byte{0x87, 0x32, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x58, 0xD5}

func (c WriteFlash) RequestBytes() []byte {
	body := make([]byte, 0, 11+len(c.Chunk))
	body = append(body, 0x87, 0x32, 0x10)
	body = appendU32LE(body, c.Addr)
	body = appendU32LE(body, uint32(len(c.Chunk)))
	body = append(body, c.Chunk...)
	return crcFrame(body)
}

func (c WriteFlash) ResponseLen() int { return 10 }

func (c WriteFlash) Decode(response []byte) (any, error) {
	return nil, expectCRCTemplate(response, writeFlashAck)
}

// VerifyFlash asks the device to compare its CRC-16/ARC of the
// SectorSize-or-smaller chunk currently at addr against chunk's own
// CRC, computed here and carried inside the request payload.
type VerifyFlash struct {
	Addr  uint32
	Chunk []byte
}

var verifyFlashAck = []byte{0x87, 0x50, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x1B, 0x13}

func (c VerifyFlash) RequestBytes() []byte {
	body := make([]byte, 0, 13)
	body = append(body, 0x87, 0x50, 0x10)
	body = appendU32LE(body, c.Addr)
	body = appendU32LE(body, uint32(len(c.Chunk)))
	innerCRC := crc.Checksum(c.Chunk)
	body = append(body, byte(innerCRC), byte(innerCRC>>8))
	return crcFrame(body)
}

func (c VerifyFlash) ResponseLen() int { return 10 }

func (c VerifyFlash) Decode(response []byte) (any, error) {
	return nil, expectCRCTemplate(response, verifyFlashAck)
}

func expectCRCTemplate(response, want []byte) error {
	if err := checkCRCFrame(response); err != nil {
		return err
	}
	if !bytes.Equal(response, want) {
		return NewExpectError(want, response)
	}
	return nil
}

func appendU32LE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
