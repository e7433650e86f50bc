// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/hashicorp/go-multierror"
)

// Bundle-level validation errors named by validate(). Wrapped with
// fmt.Errorf("...: %w", ...) so errors.Is still matches the sentinel
// underneath a descriptive message.
var (
	// ErrDuplicateBlockNumber is returned when two canonical blocks share a
	// block number.
	ErrDuplicateBlockNumber = errors.New("bundle: duplicate canonical block number")

	// ErrMissingPayloadBlock is returned when a bundle has no Payload
	// canonical block.
	ErrMissingPayloadBlock = errors.New("bundle: no Payload block present")

	// ErrInvalidBundle wraps any other accumulated validation failure.
	ErrInvalidBundle = errors.New("bundle: invalid")
)

// block is the capability every one of a Bundle's blocks (the PrimaryBlock
// and each CanonicalBlock) implements, letting forEachBlock and SetCRCType
// operate generically.
type block interface {
	Valid
	crcBlock
}

// Bundle is a self-delimiting store-carry-forward datagram: one primary
// block followed by an ordered sequence of canonical blocks. The
// canonical block order is whatever order they were inserted in — callers
// that need the Payload block last, or the Integrity block immediately
// after its target, are responsible for inserting in that order; Bundle
// itself never reorders.
type Bundle struct {
	PrimaryBlock    PrimaryBlock
	CanonicalBlocks []CanonicalBlock
}

// NewBundle creates a new Bundle from a primary block and its canonical
// blocks, in insertion order, validating the result.
func NewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) (Bundle, error) {
	b := MustNewBundle(primary, canonicals)
	return b, b.CheckValid()
}

// MustNewBundle creates a new Bundle like NewBundle, but skips validation.
// No panic is raised regardless of the name; it mirrors NewBundle's
// construction without the CheckValid call.
func MustNewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) Bundle {
	return Bundle{
		PrimaryBlock:    primary,
		CanonicalBlocks: canonicals,
	}
}

// ParseBundle reads a CBOR encoded Bundle from a Reader in strict mode: a
// canonical block that fails to decode aborts the whole read.
func ParseBundle(r io.Reader) (Bundle, error) {
	var b Bundle
	err := cboring.Unmarshal(&b, r)
	return b, err
}

// ParseBundleLenient reads a CBOR encoded Bundle, skipping over any
// canonical block that fails to decode rather than aborting. The skipped
// count is returned alongside the bundle so a caller can log or reject it.
func ParseBundleLenient(r io.Reader) (b Bundle, skipped int, err error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return
	} else if n == 0 {
		err = fmt.Errorf("Bundle: expected at least a primary block, got an empty array")
		return
	}

	if err = unmarshalBlockFromByteString(&b.PrimaryBlock, r); err != nil {
		err = fmt.Errorf("PrimaryBlock failed: %v", err)
		return
	}

	for i := uint64(1); i < n; i++ {
		raw, rErr := cboring.ReadByteString(r)
		if rErr != nil {
			err = rErr
			return
		}

		var cb CanonicalBlock
		if uErr := cb.UnmarshalCbor(bytes.NewReader(raw)); uErr != nil {
			skipped++
			continue
		}
		b.CanonicalBlocks = append(b.CanonicalBlocks, cb)
	}

	return
}

// WriteBundle writes this Bundle's CBOR representation into a Writer.
func (b *Bundle) WriteBundle(w io.Writer) error {
	return cboring.Marshal(b, w)
}

// forEachBlock applies f to the primary block and every canonical block.
func (b *Bundle) forEachBlock(f func(block)) {
	f(&b.PrimaryBlock)
	for i := range b.CanonicalBlocks {
		f(&b.CanonicalBlocks[i])
	}
}

// ExtensionBlocks returns all canonical blocks matching blockType, in
// insertion order. An error is returned if none are found.
func (b *Bundle) ExtensionBlocks(blockType uint64) ([]*CanonicalBlock, error) {
	var cbs []*CanonicalBlock
	for i := range b.CanonicalBlocks {
		if cb := &b.CanonicalBlocks[i]; cb.TypeCode() == blockType {
			cbs = append(cbs, cb)
		}
	}

	if len(cbs) == 0 {
		return nil, fmt.Errorf("no CanonicalBlock with block type %d was found in Bundle", blockType)
	}
	return cbs, nil
}

// ExtensionBlock returns the single canonical block matching blockType. An
// error is returned if there is none, or more than one.
func (b *Bundle) ExtensionBlock(blockType uint64) (*CanonicalBlock, error) {
	cbs, err := b.ExtensionBlocks(blockType)
	if err != nil {
		return nil, err
	} else if l := len(cbs); l != 1 {
		return nil, fmt.Errorf("there are %d Extension Blocks for type code %d", l, blockType)
	}
	return cbs[0], nil
}

// HasExtensionBlock reports whether a canonical block of blockType exists.
func (b *Bundle) HasExtensionBlock(blockType uint64) bool {
	_, err := b.ExtensionBlocks(blockType)
	return err == nil
}

// PayloadBlock returns this Bundle's Payload canonical block, or an error
// if it does not exist.
func (b *Bundle) PayloadBlock() (*CanonicalBlock, error) {
	return b.ExtensionBlock(ExtBlockTypePayloadBlock)
}

// AddExtensionBlock appends block to this Bundle, assigning it the next
// free block number (1 for a Payload block, else the lowest unused number
// starting at 2), preserving insertion order.
func (b *Bundle) AddExtensionBlock(newBlock CanonicalBlock) {
	used := make(map[uint64]bool, len(b.CanonicalBlocks))
	for _, cb := range b.CanonicalBlocks {
		used[cb.BlockNumber] = true
	}

	blockNumber := uint64(1)
	if newBlock.TypeCode() != ExtBlockTypePayloadBlock {
		blockNumber = 2
	}
	for used[blockNumber] {
		blockNumber++
	}

	newBlock.BlockNumber = blockNumber
	b.CanonicalBlocks = append(b.CanonicalBlocks, newBlock)
}

// GetCanonicalBlockByBlockNumber returns the canonical block with the
// given block number, or an error if none exists.
func (b *Bundle) GetCanonicalBlockByBlockNumber(blockNumber uint64) (CanonicalBlock, error) {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].BlockNumber == blockNumber {
			return b.CanonicalBlocks[i], nil
		}
	}
	return CanonicalBlock{}, fmt.Errorf("block with number %d not found", blockNumber)
}

// GetExtensionBlockByBlockNumber is GetCanonicalBlockByBlockNumber's
// pointer-returning counterpart, kept for callers that mutate the block
// in place (e.g. IncreaseHopCount).
func (b *Bundle) GetExtensionBlockByBlockNumber(blockNumber uint64) (*CanonicalBlock, error) {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].BlockNumber == blockNumber {
			return &b.CanonicalBlocks[i], nil
		}
	}
	return nil, fmt.Errorf("block with number %d not found", blockNumber)
}

// RemoveExtensionBlockByBlockNumber removes the canonical block with the
// given block number, if present; a no-op otherwise.
func (b *Bundle) RemoveExtensionBlockByBlockNumber(blockNumber uint64) {
	for i := range b.CanonicalBlocks {
		if b.CanonicalBlocks[i].BlockNumber == blockNumber {
			b.CanonicalBlocks = append(b.CanonicalBlocks[:i], b.CanonicalBlocks[i+1:]...)
			return
		}
	}
}

// SetCRCType sets crcType for the primary block and every canonical
// block, recalculating each CRC.
func (b *Bundle) SetCRCType(crcType CRCType) {
	b.forEachBlock(func(blck block) {
		blck.SetCRCType(crcType)
	})
}

// ID returns a BundleID identifying this Bundle.
func (b Bundle) ID() BundleID {
	return BundleID{
		SourceNode: b.PrimaryBlock.SourceNode,
		Timestamp:  b.PrimaryBlock.CreationTimestamp,

		IsFragment:      b.PrimaryBlock.BundleControlFlags.Has(IsFragment),
		FragmentOffset:  b.PrimaryBlock.FragmentOffset,
		TotalDataLength: b.PrimaryBlock.TotalDataLength,
	}
}

func (b Bundle) String() string {
	return b.ID().String()
}

// IsLifetimeExceeded reports whether this Bundle has expired, evaluated
// at now. If the Bundle carries a Bundle Age Block, its age is used in
// place of wall-clock time (needed when the creation timestamp is zero).
func (b Bundle) IsLifetimeExceeded(now DtnTime) bool {
	if bab, err := b.ExtensionBlock(ExtBlockTypeBundleAgeBlock); err == nil {
		if b.PrimaryBlock.Lifetime == 0 {
			return false
		}
		return bab.Value.BundleAge() >= b.PrimaryBlock.Lifetime
	}

	return b.PrimaryBlock.HasExpired(now)
}

// payload returns this Bundle's Payload block's bytes, if present.
func (b Bundle) payload() ([]byte, bool) {
	pb, err := b.PayloadBlock()
	if err != nil {
		return nil, false
	}
	return pb.Value.Payload(), true
}

// CheckValid runs primary block validation, then every canonical block's
// validation, then checks block-number uniqueness and the presence of a
// Payload block, per validate()'s contract.
func (b Bundle) CheckValid() error {
	var errs error

	if pErr := b.PrimaryBlock.CheckValid(); pErr != nil {
		errs = multierror.Append(errs, pErr)
	}

	if len(b.CanonicalBlocks) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("%w: no canonical blocks", ErrMissingPayloadBlock))
		return errs
	}

	seen := make(map[uint64]bool, len(b.CanonicalBlocks))
	for _, cb := range b.CanonicalBlocks {
		if cbErr := cb.CheckValid(); cbErr != nil {
			errs = multierror.Append(errs, cbErr)
		}

		if seen[cb.BlockNumber] {
			errs = multierror.Append(errs, fmt.Errorf("%w: block number %d occurred multiple times",
				ErrDuplicateBlockNumber, cb.BlockNumber))
		}
		seen[cb.BlockNumber] = true
	}

	if !b.HasExtensionBlock(ExtBlockTypePayloadBlock) {
		errs = multierror.Append(errs, ErrMissingPayloadBlock)
	}

	if errs != nil {
		errs = multierror.Append(errs, ErrInvalidBundle)
	}
	return errs
}

// IsAdministrativeRecord reports whether this Bundle's control flags mark
// its payload as an administrative record.
func (b Bundle) IsAdministrativeRecord() bool {
	return b.PrimaryBlock.BundleControlFlags.Has(AdministrativeRecordPayload)
}

// AdministrativeRecord decodes this Bundle's payload as an administrative
// record. An error is returned if this Bundle is not one, compare
// IsAdministrativeRecord.
func (b Bundle) AdministrativeRecord() (AdministrativeRecord, error) {
	if !b.IsAdministrativeRecord() {
		return nil, fmt.Errorf("bundle is not an administrative record")
	}

	payload, ok := b.payload()
	if !ok {
		return nil, fmt.Errorf("bundle has no Payload block")
	}

	return decodeAdministrativeRecord(payload)
}

// MarshalCbor writes this Bundle's CBOR representation: a definite-length
// outer array whose elements are byte strings, each wrapping one block's
// own CBOR encoding (primary first, then canonicals in insertion order).
func (b *Bundle) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(1+len(b.CanonicalBlocks)), w); err != nil {
		return err
	}

	if err := marshalBlockAsByteString(&b.PrimaryBlock, w); err != nil {
		return fmt.Errorf("PrimaryBlock failed: %v", err)
	}

	for i := range b.CanonicalBlocks {
		if err := marshalBlockAsByteString(&b.CanonicalBlocks[i], w); err != nil {
			return fmt.Errorf("CanonicalBlock failed: %v", err)
		}
	}

	return nil
}

// UnmarshalCbor reads this Bundle's CBOR representation in strict mode: a
// canonical block that fails to decode aborts the whole read. Use
// ParseBundleLenient for the mode that skips undecodable canonicals.
func (b *Bundle) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("Bundle: expected at least a primary block, got an empty array")
	}

	if err := unmarshalBlockFromByteString(&b.PrimaryBlock, r); err != nil {
		return fmt.Errorf("PrimaryBlock failed: %v", err)
	}

	b.CanonicalBlocks = make([]CanonicalBlock, 0, n-1)
	for i := uint64(1); i < n; i++ {
		var cb CanonicalBlock
		if err := unmarshalBlockFromByteString(&cb, r); err != nil {
			return fmt.Errorf("CanonicalBlock failed: %v", err)
		}
		b.CanonicalBlocks = append(b.CanonicalBlocks, cb)
	}

	return b.CheckValid()
}

// marshalBlockAsByteString serializes blck and writes the result wrapped
// in a CBOR byte string, the "block as a self-delimiting byte string"
// framing every element of a Bundle's outer array uses.
func marshalBlockAsByteString(blck cboring.CborMarshaler, w io.Writer) error {
	buf := new(bytes.Buffer)
	if err := blck.MarshalCbor(buf); err != nil {
		return err
	}
	return cboring.WriteByteString(buf.Bytes(), w)
}

// unmarshalBlockFromByteString reads a byte string and unmarshals blck
// from its contents.
func unmarshalBlockFromByteString(blck cboring.CborMarshaler, r io.Reader) error {
	raw, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	return blck.UnmarshalCbor(bytes.NewReader(raw))
}

// MarshalJSON creates a JSON object for this Bundle.
func (b Bundle) MarshalJSON() ([]byte, error) {
	canonicals := make([]json.Marshaler, len(b.CanonicalBlocks))
	for i := range b.CanonicalBlocks {
		canonicals[i] = b.CanonicalBlocks[i]
	}

	return json.Marshal(&struct {
		PrimaryBlock    json.Marshaler   `json:"primaryBlock"`
		CanonicalBlocks []json.Marshaler `json:"canonicalBlocks"`
	}{
		PrimaryBlock:    b.PrimaryBlock,
		CanonicalBlocks: canonicals,
	})
}
