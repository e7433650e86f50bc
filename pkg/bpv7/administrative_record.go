// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// AdminRecordTypeStatusReport is the administrative record type code for a
// status report.
const AdminRecordTypeStatusReport uint64 = 1

// AdministrativeRecord is a bundle-status-reporting payload: a status
// report, or an unrecognized record type preserved opaquely.
type AdministrativeRecord interface {
	cboring.CborMarshaler

	// RecordTypeCode returns this AdministrativeRecord's type code.
	RecordTypeCode() uint64
}

// UnknownAdministrativeRecord preserves a record whose type code this
// package does not know how to interpret, byte-exact through encode and
// decode round trips — the administrative-record analogue of
// CanonicalData's Unknown variant.
type UnknownAdministrativeRecord struct {
	TypeCode uint64
	Data     []byte
}

func (u *UnknownAdministrativeRecord) RecordTypeCode() uint64 {
	return u.TypeCode
}

func (u *UnknownAdministrativeRecord) MarshalCbor(w io.Writer) error {
	return cboring.WriteByteString(u.Data, w)
}

func (u *UnknownAdministrativeRecord) UnmarshalCbor(r io.Reader) error {
	data, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	u.Data = data
	return nil
}

// decodeAdministrativeRecord parses the `[record_type_u, body]` wrapper and
// dispatches on the record type code: a recognized code is decoded into
// its concrete type, anything else becomes an UnknownAdministrativeRecord.
func decodeAdministrativeRecord(data []byte) (AdministrativeRecord, error) {
	r := bytes.NewReader(data)

	if n, err := cboring.ReadArrayLength(r); err != nil {
		return nil, err
	} else if n != 2 {
		return nil, fmt.Errorf("administrative record: expected array of length 2, got %d", n)
	}

	typeCode, err := cboring.ReadUInt(r)
	if err != nil {
		return nil, err
	}

	var ar AdministrativeRecord
	switch typeCode {
	case AdminRecordTypeStatusReport:
		ar = &StatusReport{}
	default:
		ar = &UnknownAdministrativeRecord{TypeCode: typeCode}
	}

	if err := cboring.Unmarshal(ar, r); err != nil {
		return nil, fmt.Errorf("administrative record: unmarshalling type %d failed: %v", typeCode, err)
	}
	return ar, nil
}

// encodeAdministrativeRecord writes the `[record_type_u, body]` wrapper
// around ar's own CBOR representation.
func encodeAdministrativeRecord(ar AdministrativeRecord) ([]byte, error) {
	buf := new(bytes.Buffer)

	if err := cboring.WriteArrayLength(2, buf); err != nil {
		return nil, err
	}
	if err := cboring.WriteUInt(ar.RecordTypeCode(), buf); err != nil {
		return nil, err
	}
	if err := cboring.Marshal(ar, buf); err != nil {
		return nil, fmt.Errorf("administrative record: marshalling failed: %v", err)
	}

	return buf.Bytes(), nil
}

// NewAdministrativeRecordFromCbor decodes an administrative record from its
// `[record_type_u, body]` wire representation.
func NewAdministrativeRecordFromCbor(data []byte) (AdministrativeRecord, error) {
	return decodeAdministrativeRecord(data)
}

// AdministrativeRecordToCanonicalBlock wraps ar as a Payload canonical
// block (block number 1), ready to be the sole canonical block of a
// bundle whose primary carries the AdministrativeRecordPayload flag.
func AdministrativeRecordToCanonicalBlock(ar AdministrativeRecord) (CanonicalBlock, error) {
	data, err := encodeAdministrativeRecord(ar)
	if err != nil {
		return CanonicalBlock{}, err
	}
	return NewCanonicalBlock(1, 0, NewPayloadBlockData(data)), nil
}
