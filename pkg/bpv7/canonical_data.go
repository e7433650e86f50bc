// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// Canonical block type codes, section 4.6. The extension range starts at
// 192; BPSec's Confidentiality Block (192.. is unrelated, 12 is its own
// fixed code) is never constructed by this package; its code is listed
// here for reference only, and the decoder treats a block with this code
// as Unknown like any other unrecognized code.
const (
	ExtBlockTypePayloadBlock         uint64 = 1
	ExtBlockTypePreviousNodeBlock    uint64 = 6
	ExtBlockTypeBundleAgeBlock       uint64 = 7
	ExtBlockTypeHopCountBlock        uint64 = 10
	ExtBlockTypeIntegrityBlock       uint64 = 11
	ExtBlockTypeConfidentialityBlock uint64 = 12
)

// canonicalDataKind is the discriminant of CanonicalData's tagged sum.
type canonicalDataKind uint8

const (
	canonicalPayload canonicalDataKind = iota
	canonicalBundleAge
	canonicalHopCount
	canonicalPreviousNode
	canonicalIntegrity
	canonicalUnknown
)

// CanonicalData is a tagged sum over the contents a CanonicalBlock's
// data byte string can carry: Payload, BundleAge, HopCount, PreviousNode,
// Integrity (an opaque, already-framed Bundle Integrity Block, see
// bib.go) or Unknown (any other, unrecognized type
// code, preserved byte-exact rather than rejected). It is a single
// value-type struct; there is no interface or registry involved.
type CanonicalData struct {
	kind canonicalDataKind

	raw []byte // Payload, Integrity, Unknown

	bundleAge uint64

	hopLimit uint8
	hopCount uint8

	previousNode EndpointID

	unknownType uint64
}

// NewPayloadBlockData wraps application data as a Payload Block's contents.
func NewPayloadBlockData(data []byte) CanonicalData {
	return CanonicalData{kind: canonicalPayload, raw: data}
}

// NewBundleAgeData creates a Bundle Age Block's contents for the given age
// in milliseconds.
func NewBundleAgeData(ms uint64) CanonicalData {
	return CanonicalData{kind: canonicalBundleAge, bundleAge: ms}
}

// NewHopCountData creates a Hop Count Block's contents with the given
// limit and a count of zero.
func NewHopCountData(limit uint8) CanonicalData {
	return CanonicalData{kind: canonicalHopCount, hopLimit: limit}
}

// NewPreviousNodeData creates a Previous Node Block's contents for the
// given Endpoint ID.
func NewPreviousNodeData(eid EndpointID) CanonicalData {
	return CanonicalData{kind: canonicalPreviousNode, previousNode: eid}
}

// newIntegrityData wraps already-framed Bundle Integrity Block bytes
// (see bib.go) as a canonical block's contents.
func newIntegrityData(raw []byte) CanonicalData {
	return CanonicalData{kind: canonicalIntegrity, raw: raw}
}

// TypeCode returns the block type code this CanonicalData was built for, or
// carries along verbatim in the Unknown case.
func (cd CanonicalData) TypeCode() uint64 {
	switch cd.kind {
	case canonicalPayload:
		return ExtBlockTypePayloadBlock
	case canonicalBundleAge:
		return ExtBlockTypeBundleAgeBlock
	case canonicalHopCount:
		return ExtBlockTypeHopCountBlock
	case canonicalPreviousNode:
		return ExtBlockTypePreviousNodeBlock
	case canonicalIntegrity:
		return ExtBlockTypeIntegrityBlock
	default:
		return cd.unknownType
	}
}

// TypeName returns a human-readable name for this data's variant.
func (cd CanonicalData) TypeName() string {
	switch cd.kind {
	case canonicalPayload:
		return "Payload Block"
	case canonicalBundleAge:
		return "Bundle Age Block"
	case canonicalHopCount:
		return "Hop Count Block"
	case canonicalPreviousNode:
		return "Previous Node Block"
	case canonicalIntegrity:
		return "Integrity Block"
	default:
		return "Unknown Block"
	}
}

// IsPayload reports whether this is the Payload variant.
func (cd CanonicalData) IsPayload() bool {
	return cd.kind == canonicalPayload
}

// Payload returns this Payload Block's raw application bytes. Only
// meaningful if IsPayload is true.
func (cd CanonicalData) Payload() []byte {
	return cd.raw
}

// BundleAge returns this Bundle Age Block's age in milliseconds. Only
// meaningful if the variant is BundleAge.
func (cd CanonicalData) BundleAge() uint64 {
	return cd.bundleAge
}

// HopCountLimitAndCount returns this Hop Count Block's limit and current
// count. Only meaningful if the variant is HopCount.
func (cd CanonicalData) HopCountLimitAndCount() (limit, count uint8) {
	return cd.hopLimit, cd.hopCount
}

// PreviousNode returns this Previous Node Block's Endpoint ID. Only
// meaningful if the variant is PreviousNode.
func (cd CanonicalData) PreviousNode() EndpointID {
	return cd.previousNode
}

// IntegrityBytes returns the opaque, already-framed BIB bytes. Only
// meaningful if the variant is Integrity.
func (cd CanonicalData) IntegrityBytes() []byte {
	return cd.raw
}

// withIncrementedHopCount returns a copy of this data with its hop count
// incremented by one. No-op unless the variant is HopCount.
func (cd CanonicalData) withIncrementedHopCount() CanonicalData {
	if cd.kind != canonicalHopCount {
		return cd
	}
	cd.hopCount++
	return cd
}

// withBundleAge returns a copy of this data with its age replaced. No-op
// unless the variant is BundleAge.
func (cd CanonicalData) withBundleAge(ms uint64) CanonicalData {
	if cd.kind != canonicalBundleAge {
		return cd
	}
	cd.bundleAge = ms
	return cd
}

// withPreviousNode returns a copy of this data with its Endpoint ID
// replaced. No-op unless the variant is PreviousNode.
func (cd CanonicalData) withPreviousNode(eid EndpointID) CanonicalData {
	if cd.kind != canonicalPreviousNode {
		return cd
	}
	cd.previousNode = eid
	return cd
}

// encode serializes this CanonicalData's contents into the bytes a
// CanonicalBlock wraps as its data byte string.
func (cd CanonicalData) encode() ([]byte, error) {
	switch cd.kind {
	case canonicalPayload, canonicalIntegrity, canonicalUnknown:
		return cd.raw, nil

	case canonicalBundleAge:
		buff := new(bytes.Buffer)
		if err := cboring.WriteUInt(cd.bundleAge, buff); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil

	case canonicalHopCount:
		buff := new(bytes.Buffer)
		if err := cboring.WriteArrayLength(2, buff); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(cd.hopLimit), buff); err != nil {
			return nil, err
		}
		if err := cboring.WriteUInt(uint64(cd.hopCount), buff); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil

	case canonicalPreviousNode:
		buff := new(bytes.Buffer)
		eid := cd.previousNode
		if err := cboring.Marshal(&eid, buff); err != nil {
			return nil, err
		}
		return buff.Bytes(), nil

	default:
		return nil, fmt.Errorf("CanonicalData: unknown variant")
	}
}

// decodeCanonicalData parses the contents of a data byte string according
// to its enclosing block's type code. Unrecognized type codes are
// preserved opaquely as the Unknown variant rather than rejected.
func decodeCanonicalData(typeCode uint64, raw []byte) (CanonicalData, error) {
	switch typeCode {
	case ExtBlockTypePayloadBlock:
		return CanonicalData{kind: canonicalPayload, raw: raw}, nil

	case ExtBlockTypeBundleAgeBlock:
		age, err := cboring.ReadUInt(bytes.NewReader(raw))
		if err != nil {
			return CanonicalData{}, fmt.Errorf("BundleAgeBlock: %v", err)
		}
		return CanonicalData{kind: canonicalBundleAge, bundleAge: age}, nil

	case ExtBlockTypeHopCountBlock:
		r := bytes.NewReader(raw)
		if l, err := cboring.ReadArrayLength(r); err != nil {
			return CanonicalData{}, fmt.Errorf("HopCountBlock: %v", err)
		} else if l != 2 {
			return CanonicalData{}, fmt.Errorf("HopCountBlock: expected array of 2, got %d", l)
		}
		limit, err := cboring.ReadUInt(r)
		if err != nil || limit > 255 {
			return CanonicalData{}, fmt.Errorf("HopCountBlock: invalid limit")
		}
		count, err := cboring.ReadUInt(r)
		if err != nil || count > 255 {
			return CanonicalData{}, fmt.Errorf("HopCountBlock: invalid count")
		}
		return CanonicalData{kind: canonicalHopCount, hopLimit: uint8(limit), hopCount: uint8(count)}, nil

	case ExtBlockTypePreviousNodeBlock:
		var eid EndpointID
		if err := cboring.Unmarshal(&eid, bytes.NewReader(raw)); err != nil {
			return CanonicalData{}, fmt.Errorf("PreviousNodeBlock: %v", err)
		}
		return CanonicalData{kind: canonicalPreviousNode, previousNode: eid}, nil

	case ExtBlockTypeIntegrityBlock:
		return CanonicalData{kind: canonicalIntegrity, raw: raw}, nil

	default:
		return CanonicalData{kind: canonicalUnknown, raw: raw, unknownType: typeCode}, nil
	}
}

// checkValid validates invariants that depend only on this data's own
// contents, not on its enclosing block's number or flags.
func (cd CanonicalData) checkValid() error {
	switch cd.kind {
	case canonicalHopCount:
		if cd.hopCount > cd.hopLimit {
			return fmt.Errorf("HopCountBlock: count %d exceeds limit %d", cd.hopCount, cd.hopLimit)
		}
	case canonicalPreviousNode:
		if cd.previousNode.scheme == 0 {
			return fmt.Errorf("PreviousNodeBlock: Endpoint ID has unset scheme")
		}
	}
	return nil
}

// MarshalJSON renders this CanonicalData for diagnostics. Large Payloads
// are truncated so megabytes of application data don't end up in logs.
func (cd CanonicalData) MarshalJSON() ([]byte, error) {
	switch cd.kind {
	case canonicalPayload:
		data := cd.raw
		if len(data) > 100 {
			data = data[:100]
		}
		return json.Marshal(data)

	case canonicalBundleAge:
		return json.Marshal(fmt.Sprintf("%d ms", cd.bundleAge))

	case canonicalHopCount:
		return json.Marshal(&struct {
			Limit uint8 `json:"limit"`
			Count uint8 `json:"count"`
		}{cd.hopLimit, cd.hopCount})

	case canonicalPreviousNode:
		return json.Marshal(cd.previousNode.String())

	default:
		data := cd.raw
		if len(data) > 100 {
			data = data[:100]
		}
		return json.Marshal(data)
	}
}

func (cd CanonicalData) String() string {
	switch cd.kind {
	case canonicalPayload:
		return fmt.Sprintf("%d bytes", len(cd.raw))
	case canonicalBundleAge:
		return fmt.Sprintf("%d ms", cd.bundleAge)
	case canonicalHopCount:
		return fmt.Sprintf("limit: %d, count: %d", cd.hopLimit, cd.hopCount)
	case canonicalPreviousNode:
		return cd.previousNode.String()
	case canonicalIntegrity:
		return fmt.Sprintf("%d bytes", len(cd.raw))
	default:
		return fmt.Sprintf("%d bytes (unknown type %d)", len(cd.raw), cd.unknownType)
	}
}

// readCanonicalDataBytes reads the outer data byte string without
// interpreting it, used by CanonicalBlock's CRC-aware UnmarshalCbor.
func readCanonicalDataBytes(r io.Reader) ([]byte, error) {
	return cboring.ReadByteString(r)
}
