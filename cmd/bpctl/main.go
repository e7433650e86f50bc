// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
)

// printUsage of bpctl and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s [-config filename] create|show|sign|verify:\n\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  -config filename applies a TOML configuration's Logging block and\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Defaults: lifetime for every bundle create makes, key for sign/verify\n")
	_, _ = fmt.Fprintf(os.Stderr, "  when their key argument is empty.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s create sender receiver -|filename [-|filename]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Creates a new Bundle, addressed from sender to receiver with the stdin (-)\n")
	_, _ = fmt.Fprintf(os.Stderr, "  or the given file (filename) as payload. If no further specified, the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Bundle is stored locally named after the hex representation of its ID.\n")
	_, _ = fmt.Fprintf(os.Stderr, "  Otherwise, the Bundle can be written to the stdout (-) or saved\n")
	_, _ = fmt.Fprintf(os.Stderr, "  according to a freely selectable filename.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s show -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Prints a JSON version of a Bundle, read from stdin (-) or filename.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s sign -|filename pre-shared-key -|filename\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Adds a Bundle Integrity Block over the Bundle's payload, keyed with the\n")
	_, _ = fmt.Fprintf(os.Stderr, "  given pre-shared key, and writes the result to stdout (-) or filename.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s verify -|filename pre-shared-key\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Verifies a Bundle's Integrity Block against the given pre-shared key.\n\n")

	os.Exit(1)
}

// printFatal of an error with a short context description and exits afterwards.
func printFatal(err error, msg string) {
	_, _ = fmt.Fprintf(os.Stderr, "%s errored: %s\n  %v\n", os.Args[0], msg, err)
	os.Exit(1)
}

func main() {
	args := os.Args[1:]

	if len(args) >= 2 && args[0] == "-config" {
		var err error
		if cfg, err = loadConfig(args[1]); err != nil {
			printFatal(err, "Loading configuration errored")
		}
		args = args[2:]
	}

	if len(args) < 1 {
		printUsage()
	}

	switch args[0] {
	case "create":
		createBundle(args[1:])

	case "show":
		showBundle(args[1:])

	case "sign":
		signBundle(args[1:])

	case "verify":
		verifyBundle(args[1:])

	default:
		printUsage()
	}
}
