// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/dtn7/cboring"
	"github.com/howeyc/crc16"
)

// CRCType indicates which CRC type is used. Only the three defined consts
// CRCNo, CRC16 and CRC32 are valid, as specified in section 4.1.1.
type CRCType uint64

const (
	// CRCNo means no CRC to be present at all.
	CRCNo CRCType = 0

	// CRC16 represents "a standard X-25 CRC-16".
	CRC16 CRCType = 1

	// CRC32 represents "a standard CRC32C (Castagnoli) CRC-32".
	CRC32 CRCType = 2
)

func (c CRCType) String() string {
	switch c {
	case CRCNo:
		return "no"
	case CRC16:
		return "16"
	case CRC32:
		return "32"
	default:
		return "unknown"
	}
}

var (
	crc16table = crc16.MakeTable(crc16.CCITT)
	crc32table = crc32.MakeTable(crc32.Castagnoli)
)

// crcBlock is the capability every CRC-protected block (PrimaryBlock and
// CanonicalBlock) implements: the operations the CRC engine needs to
// calculate or verify a checksum generically, without knowing the concrete
// block type. Free functions in this file operate against this interface
// rather than switching on a concrete type.
type crcBlock interface {
	cboring.CborMarshaler

	HasCRC() bool
	GetCRCType() CRCType
	SetCRCType(CRCType)
	GetCRC() []byte
}

// calculateCRCBuff computes the CRC-protected byte string for data already
// written into buff, following the "prepare-hash-restore" discipline: buff
// holds the block's bytes up to the CRC field, the CRC field is appended
// to it as its type's empty placeholder (see emptyCRC), and the checksum
// is computed over that stable, zero-filled placeholder.
func calculateCRCBuff(buff *bytes.Buffer, crcType CRCType) ([]byte, error) {
	data, typeErr := emptyCRC(crcType)
	if typeErr != nil {
		return nil, typeErr
	}

	if crcType != CRCNo {
		if err := cboring.WriteByteString(data, buff); err != nil {
			return nil, err
		}
	}

	switch crcType {
	case CRCNo:

	case CRC16:
		binary.BigEndian.PutUint16(data, crc16.Checksum(buff.Bytes(), crc16table))

	case CRC32:
		binary.BigEndian.PutUint32(data, crc32.Checksum(buff.Bytes(), crc32table))

	default:
		return nil, fmt.Errorf("CRC: unknown CRCType %d, cannot calculate", crcType)
	}

	return data, nil
}

// emptyCRC returns the placeholder CRC value for the given CRC type: nil for
// CRCNo, else the correctly sized all-zero byte string the "prepare" step of
// the generic CRC algorithm writes before hashing.
func emptyCRC(crcType CRCType) (arr []byte, err error) {
	switch crcType {
	case CRCNo:
		arr = nil

	case CRC16:
		arr = make([]byte, 2)

	case CRC32:
		arr = make([]byte, 4)

	default:
		err = fmt.Errorf("CRC: unknown CRCType %d", crcType)
	}

	return
}

// CalculateCRC performs the generic CRC engine pipeline against any
// crcBlock: serialize it with the CRC field held at its placeholder width,
// checksum those bytes, and restore/install the computed value. Each
// concrete crcBlock's MarshalCbor carries out the prepare-hash-restore
// steps itself via an embedded CRC buffer; this just drives one such pass.
func CalculateCRC(b crcBlock) error {
	if !b.HasCRC() {
		return nil
	}
	return b.MarshalCbor(io.Discard)
}

// CheckCRC re-runs the CRC pipeline and reports whether the freshly
// computed CRC matches the block's previously stored CRC bytes. A block
// with CRCNo always passes.
func CheckCRC(b crcBlock) (bool, error) {
	if !b.HasCRC() {
		return true, nil
	}

	before := append([]byte(nil), b.GetCRC()...)

	if err := b.MarshalCbor(io.Discard); err != nil {
		return false, err
	}

	return bytes.Equal(before, b.GetCRC()), nil
}
