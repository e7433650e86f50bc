// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// CanonicalBlock is the uniform container for every non-primary bundle
// block: Payload, Previous-Node, Bundle-Age, Hop-Count, Integrity, and any
// unrecognized extension, distinguished by the Value field's variant.
type CanonicalBlock struct {
	BlockNumber       uint64
	BlockControlFlags BlockControlFlags
	CRCType           CRCType
	CRC               []byte
	Value             CanonicalData
}

// NewCanonicalBlock creates a CanonicalBlock from its number, control flags
// and data.
func NewCanonicalBlock(no uint64, bcf BlockControlFlags, value CanonicalData) CanonicalBlock {
	return CanonicalBlock{
		BlockNumber:       no,
		BlockControlFlags: bcf,
		CRCType:           CRCNo,
		CRC:               nil,
		Value:             value,
	}
}

// TypeCode returns the block type code.
func (cb CanonicalBlock) TypeCode() uint64 {
	return cb.Value.TypeCode()
}

// HasCRC returns if the CRCType indicates a CRC is present for this block.
func (cb CanonicalBlock) HasCRC() bool {
	return cb.GetCRCType() != CRCNo
}

// GetCRCType returns the CRCType of this block.
func (cb CanonicalBlock) GetCRCType() CRCType {
	return cb.CRCType
}

// SetCRCType sets the CRC type and recalculates the CRC value.
func (cb *CanonicalBlock) SetCRCType(crcType CRCType) {
	cb.CRCType = crcType
	_ = CalculateCRC(cb)
}

// GetCRC returns the raw, previously calculated CRC bytes, or nil.
func (cb CanonicalBlock) GetCRC() []byte {
	return cb.CRC
}

// IncreaseHopCount bumps a Hop Count Block's count by one. A no-op for any
// other variant. The caller is responsible for comparing the count with the
// limit (HopCountLimitAndCount) afterwards; this never saturates or refuses.
func (cb *CanonicalBlock) IncreaseHopCount() {
	cb.Value = cb.Value.withIncrementedHopCount()
}

// UpdateBundleAge replaces a Bundle Age Block's age in milliseconds. A
// no-op for any other variant.
func (cb *CanonicalBlock) UpdateBundleAge(ms uint64) {
	cb.Value = cb.Value.withBundleAge(ms)
}

// UpdatePreviousNode replaces a Previous Node Block's Endpoint ID. A no-op
// for any other variant.
func (cb *CanonicalBlock) UpdatePreviousNode(eid EndpointID) {
	cb.Value = cb.Value.withPreviousNode(eid)
}

// MarshalCbor writes this Canonical Block's CBOR representation.
func (cb *CanonicalBlock) MarshalCbor(w io.Writer) error {
	var blockLen uint64 = 5
	if cb.HasCRC() {
		blockLen = 6
	}

	crcBuff := new(bytes.Buffer)
	if cb.HasCRC() {
		w = io.MultiWriter(w, crcBuff)
	}

	if err := cboring.WriteArrayLength(blockLen, w); err != nil {
		return err
	}

	fields := []uint64{cb.TypeCode(), cb.BlockNumber,
		uint64(cb.BlockControlFlags), uint64(cb.CRCType)}
	for _, f := range fields {
		if err := cboring.WriteUInt(f, w); err != nil {
			return err
		}
	}

	data, err := cb.Value.encode()
	if err != nil {
		return fmt.Errorf("marshalling data failed: %v", err)
	}
	if err := cboring.WriteByteString(data, w); err != nil {
		return err
	}

	if cb.HasCRC() {
		if crcVal, crcErr := calculateCRCBuff(crcBuff, cb.CRCType); crcErr != nil {
			return crcErr
		} else if err := cboring.WriteByteString(crcVal, w); err != nil {
			return err
		} else {
			cb.CRC = crcVal
		}
	}

	return nil
}

// UnmarshalCbor creates this Canonical Block based on a CBOR representation.
func (cb *CanonicalBlock) UnmarshalCbor(r io.Reader) error {
	var blockLen uint64
	if bl, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if bl != 5 && bl != 6 {
		return fmt.Errorf("CanonicalBlock: expected array with length 5 or 6, got %d", bl)
	} else {
		blockLen = bl
	}

	// Pipe incoming bytes into a separate CRC buffer
	crcBuff := new(bytes.Buffer)
	if blockLen == 6 {
		// Replay array's start
		if err := cboring.WriteArrayLength(blockLen, crcBuff); err != nil {
			return err
		}
		r = io.TeeReader(r, crcBuff)
	}

	var blockType uint64
	if bt, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		blockType = bt
	}

	if bn, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		cb.BlockNumber = bn
	}

	if bcf, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		cb.BlockControlFlags = BlockControlFlags(bcf)
	}

	if crcT, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		cb.CRCType = CRCType(crcT)
	}

	raw, err := readCanonicalDataBytes(r)
	if err != nil {
		return fmt.Errorf("CanonicalBlock: reading data failed: %v", err)
	}
	data, err := decodeCanonicalData(blockType, raw)
	if err != nil {
		return fmt.Errorf("CanonicalBlock: unmarshalling block type %d failed: %v", blockType, err)
	}
	cb.Value = data

	if blockLen == 6 {
		if crcCalc, crcErr := calculateCRCBuff(crcBuff, cb.CRCType); crcErr != nil {
			return crcErr
		} else if crcVal, err := cboring.ReadByteString(r); err != nil {
			return err
		} else if !bytes.Equal(crcCalc, crcVal) {
			return fmt.Errorf("CanonicalBlock: invalid CRC value: %x instead of expected %x", crcVal, crcCalc)
		} else {
			cb.CRC = crcVal
		}
	}

	return nil
}

// MarshalJSON writes a JSON object for this Canonical Block.
func (cb CanonicalBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		BlockNumber   uint64            `json:"blockNumber"`
		BlockTypeCode uint64            `json:"blockTypeCode"`
		BlockType     string            `json:"blockType"`
		ControlFlags  BlockControlFlags `json:"blockControlFlags"`
		Data          CanonicalData     `json:"data"`
	}{
		BlockNumber:   cb.BlockNumber,
		BlockType:     cb.Value.TypeName(),
		BlockTypeCode: cb.Value.TypeCode(),
		ControlFlags:  cb.BlockControlFlags,
		Data:          cb.Value,
	})
}

// CheckValid returns an aggregate of all violated invariants, or nil.
func (cb CanonicalBlock) CheckValid() (errs error) {
	if bcfErr := cb.BlockControlFlags.CheckValid(); bcfErr != nil {
		errs = multierror.Append(errs, bcfErr)
	}

	if dataErr := cb.Value.checkValid(); dataErr != nil {
		errs = multierror.Append(errs, dataErr)
	}

	isPayloadType := cb.TypeCode() == ExtBlockTypePayloadBlock
	if isPayloadType != cb.Value.IsPayload() {
		errs = multierror.Append(errs, fmt.Errorf(
			"CanonicalBlock: data variant does not match block type %d", cb.TypeCode()))
	}

	if cb.Value.IsPayload() {
		if cb.BlockNumber != 1 {
			errs = multierror.Append(errs, fmt.Errorf(
				"CanonicalBlock: Payload Block has block number %d != 1", cb.BlockNumber))
		}
		if len(cb.Value.Payload()) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("CanonicalBlock: Payload Block has no data"))
		}
	}

	return
}

func (cb CanonicalBlock) String() string {
	var b strings.Builder

	_, _ = fmt.Fprintf(&b, "block type code: %d, ", cb.TypeCode())
	_, _ = fmt.Fprintf(&b, "block number: %d, ", cb.BlockNumber)
	_, _ = fmt.Fprintf(&b, "block processing control flags: %b, ", cb.BlockControlFlags)
	_, _ = fmt.Fprintf(&b, "crc type: %v, ", cb.CRCType)
	_, _ = fmt.Fprintf(&b, "data: %v", cb.Value)

	if cb.HasCRC() {
		_, _ = fmt.Fprintf(&b, ", crc: %x", cb.CRC)
	}

	return b.String()
}
