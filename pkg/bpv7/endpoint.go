// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/dtn7/cboring"
)

// endpointScheme is the URI scheme code carried as the first element of an
// EndpointID's CBOR array, section 4.2.5.1.
type endpointScheme uint64

const (
	endpointSchemeDtn endpointScheme = 1
	endpointSchemeIpn endpointScheme = 2
)

// EndpointID is a tagged sum over the two known URI schemes of a DTN
// Endpoint Identifier, "dtn" and "ipn", plus the distinguished "dtn:none"
// form. It is a plain comparable value; there is no dynamic dispatch or
// registry involved in constructing, encoding or decoding one.
type EndpointID struct {
	scheme endpointScheme

	// dtnSsp is the scheme-specific part of a "dtn" endpoint, already
	// canonicalized (see canonicalDtnSsp). Meaningless unless scheme ==
	// endpointSchemeDtn and dtnNone is false.
	dtnSsp string

	// dtnNone marks the canonical "dtn:none" null endpoint.
	dtnNone bool

	// ipnNode and ipnService hold an "ipn" endpoint's two components.
	ipnNode    uint64
	ipnService uint64
}

// DtnNone returns the canonical "dtn:none" null endpoint.
func DtnNone() EndpointID {
	return EndpointID{scheme: endpointSchemeDtn, dtnNone: true}
}

// NewDtnEndpoint creates a "dtn" EndpointID from the scheme-specific part,
// i.e., everything following "dtn:" in "dtn:whatever". The literal SSP
// "none" is NOT special-cased here; use DtnNone for the canonical null
// endpoint.
func NewDtnEndpoint(ssp string) EndpointID {
	return EndpointID{scheme: endpointSchemeDtn, dtnSsp: canonicalDtnSsp(ssp)}
}

// NewIpnEndpoint creates an "ipn" EndpointID for a node and service number.
func NewIpnEndpoint(node, service uint64) EndpointID {
	return EndpointID{scheme: endpointSchemeIpn, ipnNode: node, ipnService: service}
}

// canonicalDtnSsp appends a trailing slash to a bare authority of the form
// "//node" so it reads "//node/", matching the canonical form produced by
// dtn://node/ style construction.
func canonicalDtnSsp(ssp string) string {
	if rest := strings.TrimPrefix(ssp, "//"); rest != ssp && !strings.Contains(rest, "/") {
		return ssp + "/"
	}
	return ssp
}

// NewEndpointID parses a textual endpoint URI, e.g. "dtn://seven/" or
// "ipn:23.42". It handles "dtn:none", "dtn://node/path", "dtn:path" and
// "ipn:N.S".
func NewEndpointID(uri string) (EndpointID, error) {
	scheme, ssp, ok := strings.Cut(uri, ":")
	if !ok {
		return EndpointID{}, fmt.Errorf("EndpointID: scheme missing in %q", uri)
	}

	switch scheme {
	case "dtn":
		if ssp == "none" {
			return DtnNone(), nil
		}
		if ssp == "" {
			return EndpointID{}, fmt.Errorf("EndpointID: empty dtn SSP in %q", uri)
		}
		return NewDtnEndpoint(ssp), nil

	case "ipn":
		node, service, ok := strings.Cut(ssp, ".")
		if !ok {
			return EndpointID{}, fmt.Errorf("EndpointID: invalid ipn SSP %q", ssp)
		}

		n, err := strconv.ParseUint(node, 10, 64)
		if err != nil {
			return EndpointID{}, fmt.Errorf("EndpointID: could not parse ipn node %q: %w", node, err)
		}
		s, err := strconv.ParseUint(service, 10, 64)
		if err != nil {
			return EndpointID{}, fmt.Errorf("EndpointID: could not parse ipn service %q: %w", service, err)
		}

		eid := NewIpnEndpoint(n, s)
		return eid, eid.CheckValid()

	default:
		return EndpointID{}, fmt.Errorf("EndpointID: unknown URI scheme %q", scheme)
	}
}

// MustNewEndpointID is like NewEndpointID, but panics on error. Intended for
// tests and CLI convenience, not for parsing untrusted input.
func MustNewEndpointID(uri string) EndpointID {
	eid, err := NewEndpointID(uri)
	if err != nil {
		panic(err)
	}
	return eid
}

// Authority is the authority part of the Endpoint URI, e.g., "foo" for
// "dtn://foo/bar", or "none" for "dtn:none".
func (eid EndpointID) Authority() string {
	switch eid.scheme {
	case endpointSchemeDtn:
		if eid.dtnNone {
			return "none"
		}
		return eid.parsedURL().Hostname()
	case endpointSchemeIpn:
		return strconv.FormatUint(eid.ipnNode, 10)
	default:
		return ""
	}
}

// Path is the path part of the Endpoint URI, e.g., "/bar" for
// "dtn://foo/bar", or "/" for "dtn:none".
func (eid EndpointID) Path() string {
	switch eid.scheme {
	case endpointSchemeDtn:
		if eid.dtnNone {
			return "/"
		}
		return eid.parsedURL().RequestURI()
	case endpointSchemeIpn:
		return strconv.FormatUint(eid.ipnService, 10)
	default:
		return ""
	}
}

// parsedURL parses a "dtn" SSP through net/url by reusing its authority
// grammar; the SSP is prefixed with "//" if it lacks one, mirroring the
// teacher's own parsing trick for dtn URIs.
func (eid EndpointID) parsedURL() *url.URL {
	ssp := eid.dtnSsp
	if !strings.HasPrefix(ssp, "//") {
		ssp = "//" + ssp
	}

	u, err := url.Parse("dtn:" + ssp)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// IsSingleton checks if this Endpoint represents a singleton. "ipn"
// endpoints are always singletons; "dtn:none" never is; a "dtn" endpoint is
// a singleton unless its path starts with "~", the group-endpoint marker.
func (eid EndpointID) IsSingleton() bool {
	switch eid.scheme {
	case endpointSchemeDtn:
		if eid.dtnNone {
			return false
		}
		return !strings.HasPrefix(strings.TrimPrefix(eid.Path(), "/"), "~")
	case endpointSchemeIpn:
		return true
	default:
		return false
	}
}

// SameNode checks if two Endpoints refer to the same node, based on scheme
// and authority, ignoring any service/path component.
func (eid EndpointID) SameNode(other EndpointID) bool {
	if eid.scheme != other.scheme {
		return false
	}

	switch eid.scheme {
	case endpointSchemeDtn:
		return eid.Authority() == other.Authority()
	case endpointSchemeIpn:
		return eid.ipnNode == other.ipnNode
	default:
		return true
	}
}

// CheckValid returns an error for an unset or otherwise malformed endpoint.
func (eid EndpointID) CheckValid() error {
	switch eid.scheme {
	case endpointSchemeDtn:
		return nil
	case endpointSchemeIpn:
		if eid.ipnNode < 1 || eid.ipnService < 1 {
			return fmt.Errorf("EndpointID: ipn node and service numbers must both be >= 1, got %d.%d",
				eid.ipnNode, eid.ipnService)
		}
		return nil
	default:
		return fmt.Errorf("EndpointID: unset or unknown scheme")
	}
}

func (eid EndpointID) String() string {
	switch eid.scheme {
	case endpointSchemeDtn:
		if eid.dtnNone {
			return "dtn:none"
		}
		return "dtn:" + eid.dtnSsp
	case endpointSchemeIpn:
		return fmt.Sprintf("ipn:%d.%d", eid.ipnNode, eid.ipnService)
	default:
		return "eid:unset"
	}
}

// MarshalCbor writes the CBOR representation of this Endpoint ID: a
// 2-element array of [scheme, body]. The "dtn:none" form always encodes its
// body as the unsigned integer 0, never an empty text string.
func (eid *EndpointID) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteUInt(uint64(eid.scheme), w); err != nil {
		return err
	}

	switch eid.scheme {
	case endpointSchemeDtn:
		if eid.dtnNone {
			return cboring.WriteUInt(0, w)
		}
		return cboring.WriteTextString(eid.dtnSsp, w)

	case endpointSchemeIpn:
		if err := cboring.WriteArrayLength(2, w); err != nil {
			return err
		}
		if err := cboring.WriteUInt(eid.ipnNode, w); err != nil {
			return err
		}
		return cboring.WriteUInt(eid.ipnService, w)

	default:
		return fmt.Errorf("EndpointID: cannot marshal unset or unknown scheme")
	}
}

// UnmarshalCbor reads the CBOR representation of an Endpoint ID. Both
// `[1, 0]` and `[1, ""]` decode to the "dtn:none" null endpoint, per the
// wire format's tolerance for either encoding of an absent SSP.
func (eid *EndpointID) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("EndpointID: expected array of 2 elements, got %d", l)
	}

	scheme, err := cboring.ReadUInt(r)
	if err != nil {
		return err
	}

	switch endpointScheme(scheme) {
	case endpointSchemeDtn:
		m, n, err := cboring.ReadMajors(r)
		if err != nil {
			return err
		}

		switch m {
		case cboring.UInt:
			if n != 0 {
				return fmt.Errorf("EndpointID: dtn body integer must be 0, got %d", n)
			}
			*eid = EndpointID{scheme: endpointSchemeDtn, dtnNone: true}

		case cboring.TextString:
			raw, err := cboring.ReadRawBytes(n, r)
			if err != nil {
				return err
			}
			ssp := string(raw)
			switch ssp {
			case "":
				*eid = EndpointID{scheme: endpointSchemeDtn, dtnNone: true}
			case "none":
				return fmt.Errorf("EndpointID: dtn SSP must not be the text string \"none\"; use [1, 0] or [1, \"\"]")
			default:
				*eid = EndpointID{scheme: endpointSchemeDtn, dtnSsp: ssp}
			}

		default:
			return fmt.Errorf("EndpointID: unexpected major type 0x%x for dtn body", m)
		}

	case endpointSchemeIpn:
		if n, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if n != 2 {
			return fmt.Errorf("EndpointID: ipn body expects array of 2 elements, got %d", n)
		}

		node, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}
		service, err := cboring.ReadUInt(r)
		if err != nil {
			return err
		}

		*eid = EndpointID{scheme: endpointSchemeIpn, ipnNode: node, ipnService: service}

	default:
		return fmt.Errorf("EndpointID: unknown URI scheme number %d", scheme)
	}

	return nil
}
