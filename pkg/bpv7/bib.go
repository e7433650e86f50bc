// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/dtn7/cboring"
)

// Builder-time errors, RFC 9172's Abstract Security Block constraints as
// narrowed to the single BIB-HMAC-SHA2 context this package implements.
var (
	// ErrMissingSecurityTargets is returned when a BIB is built or decoded
	// with an empty target list.
	ErrMissingSecurityTargets = errors.New("bib: security targets must not be empty")

	// ErrFlagSetButNoParameter is returned when contextFlags and the
	// presence of parameters disagree.
	ErrFlagSetButNoParameter = errors.New("bib: contextFlags=present requires parameters, and vice versa")
)

// bibResult is one target's HMAC result: a (target block number, MAC) pair.
type bibResult struct {
	target uint64
	mac    []byte
}

// BibParams carries the BIB-HMAC-SHA2 security context parameters, each
// optional; nil/unset fields fall back to their RFC 9173 defaults at sign
// and verify time.
type BibParams struct {
	ShaVariant          *uint64
	WrappedKey          []byte
	IntegrityScopeFlags *uint16
}

func (p *BibParams) isEmpty() bool {
	return p == nil || (p.ShaVariant == nil && p.WrappedKey == nil && p.IntegrityScopeFlags == nil)
}

// Bib is a Bundle Integrity Block: the BIB-HMAC-SHA2 security context
// applied to one or more target blocks of a bundle. Unlike the other
// canonical block payloads, a Bib's CBOR representation is not a single
// array but six concatenated top-level CBOR items; it is carried inside a
// CanonicalBlock as opaque Integrity(bytes) data, see
// NewIntegrityCanonicalData and ParseBib.
type Bib struct {
	Targets      []uint64
	ContextID    uint64
	ContextFlags uint64
	Source       EndpointID
	Params       *BibParams
	Results      []bibResult
}

// NewBib creates an unsigned Bib over the given target block numbers.
// Results are empty until Sign is called.
func NewBib(targets []uint64, source EndpointID, params *BibParams) (Bib, error) {
	if len(targets) == 0 {
		return Bib{}, ErrMissingSecurityTargets
	}

	flags := uint64(0)
	if !params.isEmpty() {
		flags = 1
	}

	return Bib{
		Targets:      append([]uint64(nil), targets...),
		ContextID:    BibContextID,
		ContextFlags: flags,
		Source:       source,
		Params:       params,
	}, nil
}

// CheckValid returns the first violated BIB invariant, or nil.
func (bib Bib) CheckValid() error {
	if len(bib.Targets) == 0 {
		return ErrMissingSecurityTargets
	}
	if (bib.ContextFlags == 1) != !bib.Params.isEmpty() {
		return ErrFlagSetButNoParameter
	}
	return bib.Source.CheckValid()
}

func (bib Bib) shaVariant() uint64 {
	if bib.Params != nil && bib.Params.ShaVariant != nil {
		return *bib.Params.ShaVariant
	}
	return HMACSHA256
}

func (bib Bib) integrityScopeFlags() uint16 {
	if bib.Params != nil && bib.Params.IntegrityScopeFlags != nil {
		return *bib.Params.IntegrityScopeFlags
	}
	return DefaultIntegrityScopeFlags
}

func hashForShaVariant(shaVariant uint64) (func() hash.Hash, error) {
	switch shaVariant {
	case HMACSHA256:
		return sha256.New, nil
	case HMACSHA384:
		return sha512.New384, nil
	case HMACSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("bib: unsupported SHA variant %d", shaVariant)
	}
}

// buildIPPT constructs the Integrity-Protected Plaintext for one security
// target, RFC 9173 section 3.7. securityHeader is included only when the
// scope flags' security-header bit is set and it is non-nil.
func buildIPPT(scopeFlags uint16, primary PrimaryBlock, securityHeader *CanonicalBlock, target CanonicalBlock) ([]byte, error) {
	ippt := new(bytes.Buffer)

	if err := cboring.WriteUInt(uint64(scopeFlags), ippt); err != nil {
		return nil, err
	}

	if scopeFlags&IntegrityScopePrimaryBlock != 0 {
		if err := primary.MarshalCbor(ippt); err != nil {
			return nil, err
		}
	}

	if scopeFlags&IntegrityScopeTargetHeader != 0 {
		if err := writeBlockHeader(target, ippt); err != nil {
			return nil, err
		}
	}

	if scopeFlags&IntegrityScopeSecurityHeader != 0 && securityHeader != nil {
		if err := writeBlockHeader(*securityHeader, ippt); err != nil {
			return nil, err
		}
	}

	data, err := target.Value.encode()
	if err != nil {
		return nil, err
	}
	ippt.Write(data)

	return ippt.Bytes(), nil
}

func writeBlockHeader(cb CanonicalBlock, w io.Writer) error {
	if err := cboring.WriteUInt(cb.TypeCode(), w); err != nil {
		return err
	}
	if err := cboring.WriteUInt(cb.BlockNumber, w); err != nil {
		return err
	}
	return cboring.WriteUInt(uint64(cb.BlockControlFlags), w)
}

// Sign computes this Bib's HMAC results over all of its targets, returning
// a copy with Results populated. bibBlockNumber and bibBlockFlags describe
// this Bib's own enveloping CanonicalBlock within b — its block number and
// control flags — used to build the security-header scope contribution
// without requiring that block to already exist in b. This lets a caller
// sign before the BIB block has been inserted, as long as the number and
// flags it passes here match the ones the block is given afterwards.
func (bib Bib) Sign(b Bundle, bibBlockNumber uint64, bibBlockFlags BlockControlFlags, key []byte) (Bib, error) {
	hashFn, err := hashForShaVariant(bib.shaVariant())
	if err != nil {
		return Bib{}, err
	}
	scopeFlags := bib.integrityScopeFlags()

	securityHeader := CanonicalBlock{
		BlockNumber:       bibBlockNumber,
		BlockControlFlags: bibBlockFlags,
		Value:             CanonicalData{kind: canonicalIntegrity},
	}

	results := make([]bibResult, 0, len(bib.Targets))
	mac := hmac.New(hashFn, key)

	for _, t := range bib.Targets {
		target, err := b.GetCanonicalBlockByBlockNumber(t)
		if err != nil {
			return Bib{}, fmt.Errorf("bib: signing target %d: %v", t, err)
		}

		ippt, err := buildIPPT(scopeFlags, b.PrimaryBlock, &securityHeader, target)
		if err != nil {
			return Bib{}, fmt.Errorf("bib: building IPPT for target %d: %v", t, err)
		}

		mac.Reset()
		mac.Write(ippt)
		results = append(results, bibResult{target: t, mac: mac.Sum(nil)})
	}

	bib.Results = results
	return bib, nil
}

// Verify recomputes this Bib's HMAC results and compares them, in constant
// time, against the stored Results. bibBlockNumber and bibBlockFlags must
// match the actual enveloping CanonicalBlock's number and flags.
func (bib Bib) Verify(b Bundle, bibBlockNumber uint64, bibBlockFlags BlockControlFlags, key []byte) error {
	recomputed, err := bib.Sign(b, bibBlockNumber, bibBlockFlags, key)
	if err != nil {
		return err
	}

	if len(recomputed.Results) != len(bib.Results) {
		return fmt.Errorf("bib: expected %d results, got %d", len(recomputed.Results), len(bib.Results))
	}

	for i, want := range recomputed.Results {
		got := bib.Results[i]
		if got.target != want.target {
			return fmt.Errorf("bib: result %d targets block %d, expected %d", i, got.target, want.target)
		}
		if subtle.ConstantTimeCompare(got.mac, want.mac) != 1 {
			return fmt.Errorf("bib: HMAC mismatch for target block %d", got.target)
		}
	}

	return nil
}

// MarshalCbor writes this Bib's six-item concatenated CBOR representation.
func (bib Bib) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(bib.Targets)), w); err != nil {
		return err
	}
	for _, t := range bib.Targets {
		if err := cboring.WriteUInt(t, w); err != nil {
			return err
		}
	}

	if err := writeCborHeader(w, 1, bib.ContextID); err != nil {
		return err
	}

	if err := cboring.WriteUInt(bib.ContextFlags, w); err != nil {
		return err
	}

	src := bib.Source
	if err := cboring.Marshal(&src, w); err != nil {
		return err
	}

	if bib.Params.isEmpty() {
		if err := writeCborHeader(w, 7, 22); err != nil {
			return err
		}
	} else if err := bib.Params.marshalCbor(w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(bib.Results)), w); err != nil {
		return err
	}
	for _, r := range bib.Results {
		if err := cboring.WriteArrayLength(1, w); err != nil {
			return err
		}
		if err := cboring.WriteArrayLength(2, w); err != nil {
			return err
		}
		if err := cboring.WriteUInt(r.target, w); err != nil {
			return err
		}
		if err := cboring.WriteByteString(r.mac, w); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalCbor reads a Bib's six-item concatenated CBOR representation.
func (bib *Bib) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	bib.Targets = make([]uint64, n)
	for i := range bib.Targets {
		if v, err := cboring.ReadUInt(r); err != nil {
			return err
		} else {
			bib.Targets[i] = v
		}
	}

	major, arg, err := readCborHeader(r)
	if err != nil {
		return err
	} else if major != 1 {
		return fmt.Errorf("bib: expected negative integer for contextId, got major type %d", major)
	}
	bib.ContextID = arg

	if flags, err := cboring.ReadUInt(r); err != nil {
		return err
	} else {
		bib.ContextFlags = flags
	}

	if err := cboring.Unmarshal(&bib.Source, r); err != nil {
		return err
	}

	params, err := unmarshalBibParams(r)
	if err != nil {
		return err
	}
	bib.Params = params

	resCount, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	bib.Results = make([]bibResult, resCount)
	for i := range bib.Results {
		if l, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if l != 1 {
			return fmt.Errorf("bib: expected a 1-element result wrapper, got %d", l)
		}
		if l, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if l != 2 {
			return fmt.Errorf("bib: expected a 2-element (target, mac) pair, got %d", l)
		}
		t, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		mac, err := cboring.ReadByteString(r)
		if err != nil {
			return err
		}
		bib.Results[i] = bibResult{target: t, mac: mac}
	}

	return bib.CheckValid()
}

func (p *BibParams) marshalCbor(w io.Writer) error {
	var n uint64
	if p.ShaVariant != nil {
		n++
	}
	if p.WrappedKey != nil {
		n++
	}
	if p.IntegrityScopeFlags != nil {
		n++
	}

	if err := writeCborHeader(w, 5, n); err != nil {
		return err
	}

	if p.ShaVariant != nil {
		if err := cboring.WriteUInt(SecParIdBIBShaVariant, w); err != nil {
			return err
		}
		if err := cboring.WriteUInt(*p.ShaVariant, w); err != nil {
			return err
		}
	}
	if p.WrappedKey != nil {
		if err := cboring.WriteUInt(SecParIdBIBWrappedKey, w); err != nil {
			return err
		}
		if err := cboring.WriteByteString(p.WrappedKey, w); err != nil {
			return err
		}
	}
	if p.IntegrityScopeFlags != nil {
		if err := cboring.WriteUInt(SecParIdBIBIntegrityScopeFlags, w); err != nil {
			return err
		}
		if err := cboring.WriteUInt(uint64(*p.IntegrityScopeFlags), w); err != nil {
			return err
		}
	}

	return nil
}

func unmarshalBibParams(r io.Reader) (*BibParams, error) {
	major, arg, err := readCborHeader(r)
	if err != nil {
		return nil, err
	}
	if major == 7 && arg == 22 {
		return nil, nil
	}
	if major != 5 {
		return nil, fmt.Errorf("bib: expected a map or null for params, got major type %d", major)
	}

	params := &BibParams{}
	for i := uint64(0); i < arg; i++ {
		id, err := cboring.ReadUInt(r)
		if err != nil {
			return nil, err
		}

		switch id {
		case SecParIdBIBShaVariant:
			v, err := cboring.ReadUInt(r)
			if err != nil {
				return nil, err
			}
			params.ShaVariant = &v

		case SecParIdBIBWrappedKey:
			v, err := cboring.ReadByteString(r)
			if err != nil {
				return nil, err
			}
			params.WrappedKey = v

		case SecParIdBIBIntegrityScopeFlags:
			v, err := cboring.ReadUInt(r)
			if err != nil {
				return nil, err
			}
			flags := uint16(v)
			params.IntegrityScopeFlags = &flags

		default:
			return nil, fmt.Errorf("bib: unknown security parameter id %d", id)
		}
	}

	return params, nil
}

// NewIntegrityCanonicalData encodes bib and wraps it as a canonical block's
// Integrity(bytes) data, ready for NewCanonicalBlock with blockType 11.
func NewIntegrityCanonicalData(bib Bib) (CanonicalData, error) {
	buf := new(bytes.Buffer)
	if err := bib.MarshalCbor(buf); err != nil {
		return CanonicalData{}, err
	}
	return newIntegrityData(buf.Bytes()), nil
}

// ParseBib decodes the opaque bytes of an Integrity(bytes) canonical data
// variant back into a Bib.
func ParseBib(raw []byte) (Bib, error) {
	var bib Bib
	if err := bib.UnmarshalCbor(bytes.NewReader(raw)); err != nil {
		return Bib{}, err
	}
	return bib, nil
}

// writeCborHeader writes a CBOR initial byte plus any following
// length/argument bytes for the given major type and argument value. Used
// for the negative-integer contextId (major 1), the parameter map header
// (major 5) and the null placeholder (major 7, argument 22) — the three
// items cboring's higher-level helpers don't expose, since cboring's
// public API targets unsigned integers, byte/text strings and definite
// arrays (major types 0, 2, 3, 4).
func writeCborHeader(w io.Writer, major byte, v uint64) error {
	b0 := major << 5

	switch {
	case v < 24:
		_, err := w.Write([]byte{b0 | byte(v)})
		return err
	case v < 1<<8:
		_, err := w.Write([]byte{b0 | 24, byte(v)})
		return err
	case v < 1<<16:
		buf := make([]byte, 3)
		buf[0] = b0 | 25
		binary.BigEndian.PutUint16(buf[1:], uint16(v))
		_, err := w.Write(buf)
		return err
	case v < 1<<32:
		buf := make([]byte, 5)
		buf[0] = b0 | 26
		binary.BigEndian.PutUint32(buf[1:], uint32(v))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = b0 | 27
		binary.BigEndian.PutUint64(buf[1:], v)
		_, err := w.Write(buf)
		return err
	}
}

// readCborHeader is writeCborHeader's counterpart: it reads one CBOR
// item's initial byte and returns its major type and argument, without
// interpreting the argument's meaning (length, value, or simple-value
// code) — that's left to the caller.
func readCborHeader(r io.Reader) (major byte, argument uint64, err error) {
	var b [1]byte
	if _, err = io.ReadFull(r, b[:]); err != nil {
		return 0, 0, err
	}
	major = b[0] >> 5
	ai := b[0] & 0x1f

	switch {
	case ai < 24:
		return major, uint64(ai), nil
	case ai == 24:
		var x [1]byte
		if _, err = io.ReadFull(r, x[:]); err != nil {
			return 0, 0, err
		}
		return major, uint64(x[0]), nil
	case ai == 25:
		var x [2]byte
		if _, err = io.ReadFull(r, x[:]); err != nil {
			return 0, 0, err
		}
		return major, uint64(binary.BigEndian.Uint16(x[:])), nil
	case ai == 26:
		var x [4]byte
		if _, err = io.ReadFull(r, x[:]); err != nil {
			return 0, 0, err
		}
		return major, uint64(binary.BigEndian.Uint32(x[:])), nil
	case ai == 27:
		var x [8]byte
		if _, err = io.ReadFull(r, x[:]); err != nil {
			return 0, 0, err
		}
		return major, binary.BigEndian.Uint64(x[:]), nil
	default:
		return 0, 0, fmt.Errorf("bib: unsupported additional info %d", ai)
	}
}
