// SPDX-FileCopyrightText: 2019, 2020, 2021 Alvar Penning
// SPDX-FileCopyrightText: 2020 Claes Mogren
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestBundleIDCbor(t *testing.T) {
	tests := []struct {
		from BundleID
		to   BundleID
		l    uint64
	}{
		{
			from: BundleID{
				SourceNode: MustNewEndpointID("dtn://foo/bar"),
				Timestamp:  NewCreationTimestamp(23, 0),
				IsFragment: false,
			},
			to: BundleID{IsFragment: false},
			l:  2,
		},
		{
			from: BundleID{
				SourceNode:      MustNewEndpointID("dtn://foo/bar"),
				Timestamp:       NewCreationTimestamp(23, 0),
				IsFragment:      true,
				FragmentOffset:  23,
				TotalDataLength: 42,
			},
			to: BundleID{IsFragment: true},
			l:  4,
		},
	}

	for _, test := range tests {
		if l := test.from.Len(); l != test.l {
			t.Fatalf("Len mismatches: %d != %d", l, test.l)
		}

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&test.from, buff); err != nil {
			t.Fatal(err)
		}
		if err := cboring.Unmarshal(&test.to, buff); err != nil {
			t.Fatal(err)
		}

		if !reflect.DeepEqual(test.to, test.from) {
			t.Fatalf("%v != %v", test.to, test.from)
		}
	}
}

// TestBundleIDCborLayout asserts that BundleID's wire format is a flat
// concatenation of its source node, its creation timestamp and, only when
// fragmented, the offset and total length as two bare unsigned integers —
// with no enclosing array wrapping the whole BundleID.
func TestBundleIDCborLayout(t *testing.T) {
	source := MustNewEndpointID("dtn://foo/bar")
	timestamp := NewCreationTimestamp(23, 42)

	t.Run("non-fragment", func(t *testing.T) {
		bid := BundleID{SourceNode: source, Timestamp: timestamp}

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&bid, buff); err != nil {
			t.Fatal(err)
		}

		want := new(bytes.Buffer)
		if err := cboring.Marshal(&source, want); err != nil {
			t.Fatal(err)
		}
		if err := cboring.Marshal(&timestamp, want); err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(buff.Bytes(), want.Bytes()) {
			t.Fatalf("layout mismatch:\ngot:  %x\nwant: %x", buff.Bytes(), want.Bytes())
		}
	})

	t.Run("fragment", func(t *testing.T) {
		bid := BundleID{
			SourceNode:      source,
			Timestamp:       timestamp,
			IsFragment:      true,
			FragmentOffset:  23,
			TotalDataLength: 1024,
		}

		buff := new(bytes.Buffer)
		if err := cboring.Marshal(&bid, buff); err != nil {
			t.Fatal(err)
		}

		want := new(bytes.Buffer)
		if err := cboring.Marshal(&source, want); err != nil {
			t.Fatal(err)
		}
		if err := cboring.Marshal(&timestamp, want); err != nil {
			t.Fatal(err)
		}
		if err := cboring.WriteUInt(bid.FragmentOffset, want); err != nil {
			t.Fatal(err)
		}
		if err := cboring.WriteUInt(bid.TotalDataLength, want); err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(buff.Bytes(), want.Bytes()) {
			t.Fatalf("layout mismatch:\ngot:  %x\nwant: %x", buff.Bytes(), want.Bytes())
		}
	})
}

func TestBundleIDScrub(t *testing.T) {
	tests := []struct {
		from BundleID
		to   BundleID
	}{
		{
			from: BundleID{
				SourceNode: MustNewEndpointID("dtn://foo/"),
				Timestamp:  NewCreationTimestamp(23, 42),
				IsFragment: false,
			},
			to: BundleID{
				SourceNode: MustNewEndpointID("dtn://foo/"),
				Timestamp:  NewCreationTimestamp(23, 42),
				IsFragment: false,
			},
		},
		{
			from: BundleID{
				SourceNode:      MustNewEndpointID("dtn://foo/"),
				Timestamp:       NewCreationTimestamp(23, 42),
				IsFragment:      true,
				FragmentOffset:  23,
				TotalDataLength: 42,
			},
			to: BundleID{
				SourceNode: MustNewEndpointID("dtn://foo/"),
				Timestamp:  NewCreationTimestamp(23, 42),
				IsFragment: false,
			},
		},
	}

	for _, test := range tests {
		if scrubbed := test.from.Scrub(); !reflect.DeepEqual(test.to, scrubbed) {
			t.Fatalf("Scrubbed BundleID mismatches: %v is not expected %v", test.to, scrubbed)
		}
	}
}
