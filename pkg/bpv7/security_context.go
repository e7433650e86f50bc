// SPDX-License-Identifier: GPL-3.0-or-later

package bpv7

// BibContextID is the BIB-HMAC-SHA2 security context identifier, RFC 9173
// section 3. Its wire representation is a CBOR negative integer, see
// writeCborHeader/readCborHeader in bib.go.
const BibContextID uint64 = 1

// SecConNameBIBHMACSHA2 names the BIB-HMAC-SHA2 security context.
const SecConNameBIBHMACSHA2 string = "BIB-HMAC-SHA2"

// BIB-HMAC-SHA2 security parameter identifiers, RFC 9173 section 3.3.
const (
	SecParIdBIBShaVariant           uint64 = 1
	SecParIdBIBWrappedKey           uint64 = 2
	SecParIdBIBIntegrityScopeFlags  uint64 = 3
)

// SHA variant parameter values for BIB-HMAC-SHA2.
const (
	HMACSHA256 uint64 = 5 // default
	HMACSHA384 uint64 = 6
	HMACSHA512 uint64 = 7
)

// Integrity scope flag bits controlling which canonical forms enter the
// IPPT, RFC 9173 section 3.5.
const (
	IntegrityScopePrimaryBlock   uint16 = 0b001
	IntegrityScopeTargetHeader   uint16 = 0b010
	IntegrityScopeSecurityHeader uint16 = 0b100

	// DefaultIntegrityScopeFlags is used whenever a BIB omits the
	// integrityScopeFlags parameter.
	DefaultIntegrityScopeFlags uint16 = 0b111
)
