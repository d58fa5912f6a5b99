// Package crc exposes the one checksum the flash protocol uses:
// CRC-16/ARC (polynomial 0x8005, reflected in and out, init and
// xorout both zero). It is a thin wrapper around
// github.com/pasztorpisti/go-crc's CRC16ARC preset; do not substitute
// CCITT or MODBUS variants, which share the polynomial but differ in
// reflection and init.
package crc

import gocrc "github.com/pasztorpisti/go-crc"

// Checksum returns the CRC-16/ARC of data, delegating to the
// pasztorpisti/go-crc CRC16ARC preset (poly 0x8005, refin/refout,
// init/xorout 0 — exactly spec.md §4.2's variant).
func Checksum(data []byte) uint16 {
	return gocrc.CRC16ARC.Calc(data)
}

// AppendLE appends the little-endian CRC-16/ARC of data to data and
// returns the extended slice.
func AppendLE(data []byte) []byte {
	sum := Checksum(data)
	return append(data, byte(sum), byte(sum>>8))
}
