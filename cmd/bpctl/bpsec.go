// SPDX-FileCopyrightText: 2022 Matthias Axel Kröll
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io"
	"os"

	"github.com/dtn7-net/bpv7/pkg/bpv7"
	log "github.com/sirupsen/logrus"
)

// signBundle for the "sign" CLI option.
func signBundle(args []string) {
	if len(args) != 3 {
		printUsage()
	}

	var (
		input  = args[0]
		psk    = args[1]
		output = args[2]
		err    error
		f      io.ReadCloser
		b      bpv7.Bundle
	)

	if psk == "" {
		psk = cfg.Defaults.Key
	}

	if input == "-" {
		f = os.Stdin
	} else if f, err = os.Open(input); err != nil {
		printFatal(err, "Opening file for reading erred")
	}

	if err = b.UnmarshalCbor(f); err != nil {
		printFatal(err, "Unmarshaling Bundle erred")
	}
	if err = f.Close(); err != nil {
		printFatal(err, "Closing file erred")
	}

	payload, err := b.PayloadBlock()
	if err != nil {
		printFatal(err, "Bundle has no payload block")
	}

	bib, err := bpv7.NewBib([]uint64{payload.BlockNumber}, b.PrimaryBlock.SourceNode, nil)
	if err != nil {
		printFatal(err, "Creating Bundle Integrity Block erred")
	}

	bibBlockNumber := nextFreeBlockNumber(b)
	const bibBlockFlags = 0

	signed, err := bib.Sign(b, bibBlockNumber, bibBlockFlags, []byte(psk))
	if err != nil {
		printFatal(err, "Signing Targets erred")
	}

	integrityData, err := bpv7.NewIntegrityCanonicalData(signed)
	if err != nil {
		printFatal(err, "Encoding the signed Integrity Block erred")
	}
	b.CanonicalBlocks = append(b.CanonicalBlocks, bpv7.NewCanonicalBlock(bibBlockNumber, bibBlockFlags, integrityData))

	logger := log.WithFields(log.Fields{
		"bundle": b.ID(),
		"file":   output,
	})

	if f, err := os.Create(output); err != nil {
		logger.WithError(err).Error("Creating file erred")
	} else if err := b.MarshalCbor(f); err != nil {
		logger.WithError(err).Error("Marshalling Bundle erred")
	} else if err := f.Close(); err != nil {
		logger.WithError(err).Error("Closing file erred")
	}
}

// verifyBundle for the "verify" CLI option.
func verifyBundle(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	var (
		input = args[0]
		psk   = args[1]
		err   error
		f     io.ReadCloser
		b     bpv7.Bundle
	)

	if psk == "" {
		psk = cfg.Defaults.Key
	}

	if input == "-" {
		f = os.Stdin
	} else if f, err = os.Open(input); err != nil {
		printFatal(err, "Opening file for reading erred")
	}

	if err = b.UnmarshalCbor(f); err != nil {
		printFatal(err, "Unmarshaling Bundle erred")
	}
	if err = f.Close(); err != nil {
		printFatal(err, "Closing file erred")
	}

	bibBlock, err := b.ExtensionBlock(bpv7.ExtBlockTypeIntegrityBlock)
	if err != nil {
		printFatal(err, "Bundle carries no Integrity Block")
	}

	bib, err := bpv7.ParseBib(bibBlock.Value.IntegrityBytes())
	if err != nil {
		printFatal(err, "Decoding the Integrity Block erred")
	}

	if err = bib.Verify(b, bibBlock.BlockNumber, bibBlock.BlockControlFlags, []byte(psk)); err != nil {
		printFatal(err, "Verification Error")
	}

	log.Info("Verify OK")
}

// nextFreeBlockNumber returns the lowest extension block number (>= 2) not
// already occupied by one of b's canonical blocks.
func nextFreeBlockNumber(b bpv7.Bundle) uint64 {
	used := make(map[uint64]bool, len(b.CanonicalBlocks))
	for _, cb := range b.CanonicalBlocks {
		used[cb.BlockNumber] = true
	}
	n := uint64(2)
	for used[n] {
		n++
	}
	return n
}
