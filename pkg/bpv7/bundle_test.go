// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestBundleApplyCRC(t *testing.T) {
	var epPrim, _ = NewEndpointID("dtn://foo/bar/")
	var creationTs = NewCreationTimestamp(42000000000000, 23)

	var primary = NewPrimaryBlock(
		StatusRequestDelivery,
		epPrim, epPrim, creationTs, 42000000)

	var epPrev, _ = NewEndpointID("ipn:23.42")
	var prevNode = NewCanonicalBlock(2, 0, NewPreviousNodeData(epPrev))

	var payload = NewCanonicalBlock(1, DeleteBundle, NewPayloadBlockData([]byte("GuMo")))

	var bndle, err = NewBundle(
		primary, []CanonicalBlock{prevNode, payload})

	if err != nil {
		t.Fatal(err)
	}

	for _, crcTest := range []CRCType{CRCNo, CRC16, CRC32, CRCNo} {
		bndle.SetCRCType(crcTest)

		if ty := bndle.PrimaryBlock.GetCRCType(); ty != crcTest {
			t.Fatalf("Bundle's primary block has wrong CRCType, %v instead of %v", ty, crcTest)
		}

		buff := new(bytes.Buffer)
		if err := bndle.MarshalCbor(buff); err != nil {
			t.Fatal(err)
		}

		bndl2 := Bundle{}
		if err := bndl2.UnmarshalCbor(buff); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBundleCbor(t *testing.T) {
	var epDest, _ = NewEndpointID("dtn://desty/")
	var epSource, _ = NewEndpointID("dtn://gumo/")
	var creationTs = NewCreationTimestamp(42000000000000, 23)

	var primary = NewPrimaryBlock(
		StatusRequestDelivery,
		epDest, epSource, creationTs, 42000000)

	var epPrev, _ = NewEndpointID("ipn:23.42")
	var prevNode = NewCanonicalBlock(23, 0, NewPreviousNodeData(epPrev))

	var payload = NewCanonicalBlock(
		1, DeleteBundle, NewPayloadBlockData([]byte("GuMo meine Kernel")))

	bundle1, err := NewBundle(
		primary, []CanonicalBlock{prevNode, payload})
	if err != nil {
		t.Fatal(err)
	}

	bundle1.SetCRCType(CRC32)

	buff := new(bytes.Buffer)
	if err := bundle1.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}
	bundle1Cbor := buff.Bytes()

	bundle2 := Bundle{}
	if err := bundle2.UnmarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	buff.Reset()
	if err := bundle2.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}
	bundle2Cbor := buff.Bytes()

	if !bytes.Equal(bundle1Cbor, bundle2Cbor) {
		t.Fatalf("Cbor-Representations do not match:\n- %x\n- %x",
			bundle1Cbor, bundle2Cbor)
	}

	if !reflect.DeepEqual(bundle1, bundle2) {
		t.Fatalf("Bundles do not match:\n%v\n%v", bundle1, bundle2)
	}
}

func TestBundleExtensionBlock(t *testing.T) {
	var bndl, err = NewBundle(
		NewPrimaryBlock(
			MustNotFragmented,
			MustNewEndpointID("dtn://some/"), DtnNone(),
			NewCreationTimestamp(DtnTimeEpoch, 0), 3600),
		[]CanonicalBlock{
			NewCanonicalBlock(2, 0, NewBundleAgeData(420)),
			NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("hello world"))),
		})

	if err != nil {
		t.Fatal(err)
	}

	if cb, err := bndl.ExtensionBlock(ExtBlockTypePreviousNodeBlock); err == nil {
		t.Fatalf("Bundle returned a non-existing Extension Block: %v", cb)
	}

	if _, err := bndl.ExtensionBlock(ExtBlockTypeBundleAgeBlock); err != nil {
		t.Fatalf("Bundle did not returned the existing Bundle Age block: %v", err)
	}

	if _, err := bndl.ExtensionBlock(ExtBlockTypePayloadBlock); err != nil {
		t.Fatalf("Bundle did not returned the existing Payload block: %v", err)
	}

	if _, err := bndl.PayloadBlock(); err != nil {
		t.Fatalf("Bundle did not returned the existing Payload block: %v", err)
	}
}

// createNewBundle is used in TestBundleCheckValid and returns the Bundle
// with an ignored error; the error is checked by the test itself.
func createNewBundle(primary PrimaryBlock, canonicals []CanonicalBlock) Bundle {
	b, _ := NewBundle(primary, canonicals)

	return b
}

func TestBundleCheckValid(t *testing.T) {
	tests := []struct {
		b       Bundle
		valid   bool
		wantErr error
	}{
		// A single Payload block is sufficient.
		{createNewBundle(
			NewPrimaryBlock(MustNotFragmented|AdministrativeRecordPayload,
				DtnNone(), DtnNone(), NewCreationTimestamp(42000000000000, 0), 3600),
			[]CanonicalBlock{NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("x")))}),
			true, nil},

		// Block number (1) occurs twice.
		{createNewBundle(
			NewPrimaryBlock(MustNotFragmented|AdministrativeRecordPayload,
				DtnNone(), DtnNone(), NewCreationTimestamp(42000000000000, 0), 3600),
			[]CanonicalBlock{
				NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("x"))),
				NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("y")))}),
			false, ErrDuplicateBlockNumber},

		// No Payload block at all.
		{createNewBundle(
			NewPrimaryBlock(MustNotFragmented|AdministrativeRecordPayload,
				DtnNone(), DtnNone(), NewCreationTimestamp(0, 0), 3600),
			[]CanonicalBlock{
				NewCanonicalBlock(2, 0, NewBundleAgeData(420))}),
			false, ErrMissingPayloadBlock},

		// Bundle Age block present alongside Payload is fine.
		{createNewBundle(
			NewPrimaryBlock(MustNotFragmented|AdministrativeRecordPayload,
				DtnNone(), DtnNone(), NewCreationTimestamp(0, 0), 3600),
			[]CanonicalBlock{
				NewCanonicalBlock(2, 0, NewBundleAgeData(420)),
				NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("x")))}),
			true, nil},
	}

	for _, test := range tests {
		err := test.b.CheckValid()
		if (err == nil) != test.valid {
			t.Fatalf("Bundle validation failed: %v resulted in %v", test.b, err)
		}
		if test.wantErr != nil && !errors.Is(err, test.wantErr) {
			t.Fatalf("expected error wrapping %v, got %v", test.wantErr, err)
		}
	}
}

func TestBundleAddRemoveExtensionBlocks(t *testing.T) {
	primary := NewPrimaryBlock(0,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeEpoch, 0),
		60*60*1000000)
	canonicals := []CanonicalBlock{
		NewCanonicalBlock(2, 0, NewBundleAgeData(9001)),
		NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("hello world"))),
	}

	b, err := NewBundle(primary, canonicals)
	if err != nil {
		t.Fatal(err)
	}

	if b.HasExtensionBlock(ExtBlockTypePreviousNodeBlock) {
		t.Fatalf("previous node block is present")
	}
	b.AddExtensionBlock(NewCanonicalBlock(0, 0, NewPreviousNodeData(MustNewEndpointID("dtn://prev/"))))
	if !b.HasExtensionBlock(ExtBlockTypePreviousNodeBlock) {
		t.Fatalf("previous node block is not present")
	}

	if previousNodeBlock, err := b.ExtensionBlock(ExtBlockTypePreviousNodeBlock); err != nil {
		t.Fatal(err)
	} else if previousNodeBlock.BlockNumber != 3 {
		t.Fatalf("previous node block got number %d, expected 3", previousNodeBlock.BlockNumber)
	} else {
		b.RemoveExtensionBlockByBlockNumber(previousNodeBlock.BlockNumber)
	}
	if b.HasExtensionBlock(ExtBlockTypePreviousNodeBlock) {
		t.Fatalf("previous node block is present")
	}
}

func TestBundleInsertionOrderPreserved(t *testing.T) {
	primary := NewPrimaryBlock(0,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeEpoch, 0),
		3600)
	canonicals := []CanonicalBlock{
		NewCanonicalBlock(3, 0, NewPreviousNodeData(MustNewEndpointID("dtn://prev/"))),
		NewCanonicalBlock(2, 0, NewBundleAgeData(0)),
		NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("x"))),
	}

	b := MustNewBundle(primary, canonicals)

	for i, cb := range b.CanonicalBlocks {
		if cb.BlockNumber != canonicals[i].BlockNumber {
			t.Fatalf("block order changed: position %d has block number %d, expected %d",
				i, cb.BlockNumber, canonicals[i].BlockNumber)
		}
	}

	buff := new(bytes.Buffer)
	if err := b.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}

	b2 := Bundle{}
	if err := b2.UnmarshalCbor(buff); err != nil {
		t.Fatal(err)
	}
	for i, cb := range b2.CanonicalBlocks {
		if cb.BlockNumber != canonicals[i].BlockNumber {
			t.Fatalf("block order changed after round trip: position %d has block number %d, expected %d",
				i, cb.BlockNumber, canonicals[i].BlockNumber)
		}
	}
}

func TestBundleParseLenientSkipsBadCanonical(t *testing.T) {
	primary := NewPrimaryBlock(0,
		MustNewEndpointID("dtn://dst/"),
		MustNewEndpointID("dtn://src/"),
		NewCreationTimestamp(DtnTimeEpoch, 0),
		3600)
	canonicals := []CanonicalBlock{
		NewCanonicalBlock(2, 0, NewBundleAgeData(0)),
		NewCanonicalBlock(1, 0, NewPayloadBlockData([]byte("x"))),
	}
	b := MustNewBundle(primary, canonicals)
	b.SetCRCType(CRC32)

	buff := new(bytes.Buffer)
	if err := b.MarshalCbor(buff); err != nil {
		t.Fatal(err)
	}
	raw := buff.Bytes()

	// Corrupt the CRC byte trailing the last encoded canonical block so its
	// decode fails while the primary block stays intact.
	raw[len(raw)-1] ^= 0xff

	out, skipped, err := ParseBundleLenient(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if skipped != 1 {
		t.Fatalf("expected 1 skipped block, got %d", skipped)
	}
	if len(out.CanonicalBlocks) != 1 {
		t.Fatalf("expected 1 surviving canonical block, got %d", len(out.CanonicalBlocks))
	}

	if _, err := ParseBundle(bytes.NewReader(raw)); err == nil {
		t.Fatalf("strict ParseBundle should have failed on the corrupted block")
	}
}

func BenchmarkBundleSerializationCboring(b *testing.B) {
	var sizes = []int{0, 1024, 1048576, 10485760, 104857600}
	var crcs = []CRCType{CRCNo, CRC16, CRC32}

	for _, size := range sizes {
		for _, crc := range crcs {
			payload := make([]byte, size)

			rand.Seed(0)
			rand.Read(payload)

			primary := NewPrimaryBlock(
				0,
				MustNewEndpointID("dtn://dest/"),
				MustNewEndpointID("dtn://src/"),
				NewCreationTimestamp(DtnTimeEpoch, 0),
				60*60*1000000)

			canonicals := []CanonicalBlock{
				NewCanonicalBlock(2, 0, NewBundleAgeData(0)),
				NewCanonicalBlock(3, 0, NewPreviousNodeData(MustNewEndpointID("dtn://prev/"))),
				NewCanonicalBlock(1, 0, NewPayloadBlockData(payload)),
			}

			bndl := MustNewBundle(primary, canonicals)
			bndl.SetCRCType(crc)

			b.Run(fmt.Sprintf("%d-%v", size, crc), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					if err := cboring.Marshal(&bndl, new(bytes.Buffer)); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

func BenchmarkBundleDeserializationCboring(b *testing.B) {
	var sizes = []int{0, 1024, 1048576, 10485760, 104857600}
	var crcs = []CRCType{CRCNo, CRC16, CRC32}

	for _, size := range sizes {
		for _, crc := range crcs {
			payload := make([]byte, size)

			rand.Seed(0)
			rand.Read(payload)

			primary := NewPrimaryBlock(
				0,
				MustNewEndpointID("dtn://dest/"),
				MustNewEndpointID("dtn://src/"),
				NewCreationTimestamp(DtnTimeEpoch, 0),
				60*60*1000000)

			canonicals := []CanonicalBlock{
				NewCanonicalBlock(2, 0, NewBundleAgeData(0)),
				NewCanonicalBlock(3, 0, NewPreviousNodeData(MustNewEndpointID("dtn://prev/"))),
				NewCanonicalBlock(1, 0, NewPayloadBlockData(payload)),
			}

			bndl := MustNewBundle(primary, canonicals)
			bndl.SetCRCType(crc)

			buff := new(bytes.Buffer)
			if err := cboring.Marshal(&bndl, buff); err != nil {
				b.Fatal(err)
			}
			data := buff.Bytes()

			b.Run(fmt.Sprintf("%d-%v", size, crc), func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					tmpBuff := bytes.NewBuffer(data)
					tmpBndl := Bundle{}

					if err := cboring.Unmarshal(&tmpBndl, tmpBuff); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
