// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"bytes"
	"fmt"
	"reflect"
	"testing"

	"github.com/dtn7/cboring"
)

func TestEndpointInvalid(t *testing.T) {
	if _, err := NewEndpointID("foo:bar"); err == nil {
		t.Fatal("foo:bar did not result in an error")
	}
	if _, err := NewEndpointID("noscheme"); err == nil {
		t.Fatal("URI without a scheme did not result in an error")
	}
	if _, err := NewEndpointID("ipn:notanumber.1"); err == nil {
		t.Fatal("non-numeric ipn node did not result in an error")
	}
}

func TestEndpointCheckValid(t *testing.T) {
	tests := []struct {
		ep    EndpointID
		valid bool
	}{
		{EndpointID{}, false},
		{DtnNone(), true},
		{NewDtnEndpoint("foo/"), true},
		{NewIpnEndpoint(0, 0), false},
		{NewIpnEndpoint(0, 1), false},
		{NewIpnEndpoint(1, 0), false},
		{NewIpnEndpoint(1, 1), true},
	}

	for _, test := range tests {
		if err := test.ep.CheckValid(); (err == nil) != test.valid {
			t.Fatalf("Endpoint ID %v resulted in error: %v", test.ep, err)
		}
	}
}

func TestEndpointCbor(t *testing.T) {
	tests := []struct {
		eid  string
		cbor []byte
	}{
		{"dtn:none", []byte{0x82, 0x01, 0x00}},
		{"dtn://foo/", []byte{0x82, 0x01, 0x66, 0x2F, 0x2F, 0x66, 0x6F, 0x6F, 0x2F}},
		{"dtn://foo/bar", []byte{0x82, 0x01, 0x69, 0x2F, 0x2F, 0x66, 0x6F, 0x6F, 0x2F, 0x62, 0x61, 0x72}},
		{"ipn:1.1", []byte{0x82, 0x02, 0x82, 0x01, 0x01}},
		{"ipn:23.42", []byte{0x82, 0x02, 0x82, 0x17, 0x18, 0x2A}},
	}

	for _, test := range tests {
		t.Run(fmt.Sprintf("marshal-%s", test.eid), func(t *testing.T) {
			e, err := NewEndpointID(test.eid)
			if err != nil {
				t.Fatal(err)
			}

			buff := new(bytes.Buffer)
			if err := cboring.Marshal(&e, buff); err != nil {
				t.Fatalf("Marshaling %s failed: %v", test.eid, err)
			}

			if data := buff.Bytes(); !reflect.DeepEqual(data, test.cbor) {
				t.Fatalf("CBOR differs: %x != %x", data, test.cbor)
			}
		})

		t.Run(fmt.Sprintf("unmarshal-%s", test.eid), func(t *testing.T) {
			e := EndpointID{}

			buff := bytes.NewBuffer(test.cbor)
			if err := cboring.Unmarshal(&e, buff); err != nil {
				t.Fatalf("Unmarshaling %s failed: %v", test.eid, err)
			}

			if e.String() != test.eid {
				t.Fatalf("EID differs: %s != %s", e.String(), test.eid)
			}
		})
	}
}

func TestEndpointDtnNoneCanonicalization(t *testing.T) {
	// Both [1, 0] and [1, ""] must decode to dtn:none.
	for _, cbor := range [][]byte{{0x82, 0x01, 0x00}, {0x82, 0x01, 0x60}} {
		var e EndpointID
		if err := cboring.Unmarshal(&e, bytes.NewBuffer(cbor)); err != nil {
			t.Fatalf("unmarshal %x failed: %v", cbor, err)
		}
		if e != DtnNone() {
			t.Fatalf("%x did not decode to dtn:none, got %v", cbor, e)
		}
	}

	// A text string body of exactly "none" must be rejected, not accepted
	// as either dtn:none or an ordinary SSP.
	var e EndpointID
	cbor := []byte{0x82, 0x01, 0x64, 'n', 'o', 'n', 'e'}
	if err := cboring.Unmarshal(&e, bytes.NewBuffer(cbor)); err == nil {
		t.Fatalf("unmarshal of text body \"none\" should have failed, got %v", e)
	}
}

func TestEndpointUri(t *testing.T) {
	tests := []struct {
		eid       string
		authority string
		path      string
	}{
		{"dtn:none", "none", "/"},
		{"dtn://foobar/", "foobar", "/"},
		{"dtn://foo/bar", "foo", "/bar"},
		{"dtn://foo/bar/", "foo", "/bar/"},
		{"ipn:1.1", "1", "1"},
		{"ipn:23.42", "23", "42"},
	}

	for _, test := range tests {
		ep, err := NewEndpointID(test.eid)
		if err != nil {
			t.Fatal(err)
		}

		if authority := ep.Authority(); test.authority != authority {
			t.Fatalf("Authority: expected %s, got %s", test.authority, authority)
		}
		if path := ep.Path(); test.path != path {
			t.Fatalf("Path: expected %s, got %s", test.path, path)
		}
	}
}

func TestEndpointSingleton(t *testing.T) {
	tests := []struct {
		eid       string
		singleton bool
	}{
		{"dtn:none", false},
		{"dtn://foobar/", true},
		{"dtn://foo/bar", true},
		{"dtn://foo/bar/", true},
		{"dtn://foobar/~", false},
		{"dtn://foo/~bar", false},
		{"dtn://foo/~bar/", false},
		{"ipn:1.1", true},
		{"ipn:23.42", true},
	}

	for _, test := range tests {
		ep, err := NewEndpointID(test.eid)
		if err != nil {
			t.Fatal(err)
		}

		if singleton := ep.IsSingleton(); test.singleton != singleton {
			t.Fatalf("%s: expected singleton %t, got %t", test.eid, test.singleton, singleton)
		}
	}
}

func TestEndpointIDSameNode(t *testing.T) {
	tests := []struct {
		eid1, eid2         EndpointID
		sameNode, equals bool
	}{
		{MustNewEndpointID("dtn://foo/"), MustNewEndpointID("dtn://foo/"), true, true},
		{MustNewEndpointID("dtn://foo/"), MustNewEndpointID("dtn://foo/bar"), true, false},
		{MustNewEndpointID("dtn://foo/bar"), MustNewEndpointID("dtn://bar/foo"), false, false},
		{MustNewEndpointID("ipn:23.42"), MustNewEndpointID("ipn:23.1"), true, false},
		{MustNewEndpointID("ipn:23.42"), MustNewEndpointID("dtn://23/42"), false, false},
		{DtnNone(), DtnNone(), true, true},
	}

	for _, test := range tests {
		if res := test.eid1.SameNode(test.eid2); res != test.sameNode {
			t.Fatalf("%v.SameNode(%v) := %t", test.eid1, test.eid2, res)
		}
		if res := test.eid1 == test.eid2; res != test.equals {
			t.Fatalf("(%v == %v) := %t", test.eid1, test.eid2, res)
		}
	}
}
