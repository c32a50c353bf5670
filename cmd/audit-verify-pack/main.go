// Copyright 2025 Lantern Protocol
//
// audit-verify-pack replays a forensic pack entirely offline and
// reports PASS or FAIL. It performs no network I/O.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lanternledger/ledger/internal/keyring"
	"github.com/lanternledger/ledger/internal/verify"
)

func main() {
	publicKeyPath := flag.String("public-key", "", "path to a PEM public key file or a directory of <kid>.pem files")
	strictKID := flag.Bool("strict-kid", false, "require an exact kid match; disables single-key fallback")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: audit-verify-pack [--public-key <file|dir>] [--strict-kid] <pack>")
		os.Exit(2)
	}
	packPath := flag.Arg(0)

	var ring *keyring.Ring
	if *publicKeyPath != "" {
		r, err := keyring.Load(*publicKeyPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load key ring: %v\n", err)
			os.Exit(1)
		}
		ring = r
	}

	v, err := verify.VerifyPack(packPath, ring, *strictKID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}

	if !v.Pass {
		fmt.Fprintf(os.Stderr, "FAIL: %s\n", v.Reason)
		if v.FirstBadSeq != nil {
			fmt.Fprintf(os.Stderr, "first failing seq: %d\n", *v.FirstBadSeq)
		}
		os.Exit(1)
	}

	fmt.Printf("PASS (chain replay + checkpoint signatures)\n")
	fmt.Printf("chain_status=%s checked_events=%d coverage=%s\n", v.ChainStatus, v.CheckedEvents, v.Coverage)
	fmt.Printf("anchoring: %s\n", v.AnchorNote)
	for _, w := range v.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}
