// SPDX-License-Identifier: GPL-3.0-or-later

// Package bpv7 implements a Bundle Protocol Version 7 codec and the
// BIB-HMAC-SHA2 integrity security context (RFC 9171, RFC 9172, RFC 9173).
//
// The easiest way to create a new Bundle is the BundleBuilder.
//
//	bundle, err := bpv7.Builder().
//	  CRC(bpv7.CRC32).
//	  Source("dtn://src/").
//	  Destination("dtn://dest/").
//	  CreationTimestampNow().
//	  Lifetime(time.Hour).
//	  HopCountBlock(64).
//	  PayloadBlock([]byte("hello world!")).
//	  Build()
//
// Bundles serialize to and parse from CBOR.
//
//	buff := new(bytes.Buffer)
//	err1 := b1.WriteBundle(buff)
//	b2, err2 := bpv7.ParseBundle(buff)
//
// The package is a pure, synchronous codec: encoding, decoding, validation
// and HMAC computation are deterministic functions of their inputs, with
// the sole exception of the process-wide Creation Timestamp sequence
// generator behind NewCreationTimestampNow.
package bpv7
