package protocol

import "github.com/bee2mp/rtl8762c-flash/pkg/crc"

// stage0Frame builds the HCI vendor-format request used only by
// write_fw0: 01 20 FC | len(chunk)+1 | frame_number | chunk. No CRC.
func stage0Frame(chunk []byte, frameNumber byte) []byte {
	req := make([]byte, 0, 5+len(chunk))
	req = append(req, 0x01, 0x20, 0xFC, byte(len(chunk)+1), frameNumber)
	req = append(req, chunk...)
	return req
}

// stage0ExpectedResponse is the fixed echo write_fw0 expects.
func stage0ExpectedResponse(frameNumber byte) []byte {
	return []byte{0x04, 0x0E, 0x05, 0x02, 0x20, 0xFC, 0x00, frameNumber}
}

// crcFrame appends a little-endian CRC-16/ARC over body to body,
// producing the request bytes for every command but write_fw0. The
// CRC is appended in this single encode pass, never mutated onto a
// stored byte slice (see SPEC_FULL.md §9).
func crcFrame(body []byte) []byte {
	return crc.AppendLE(append([]byte(nil), body...))
}

// checkCRCFrame verifies that a CRC-framed response's last two bytes
// are the CRC-16/ARC of everything before them, by checking that the
// checksum over the whole response is zero.
func checkCRCFrame(response []byte) error {
	if crc.Checksum(response) != 0 {
		return NewCRCError("response CRC-16/ARC residue is non-zero")
	}
	return nil
}
