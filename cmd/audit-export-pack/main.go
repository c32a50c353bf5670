// Copyright 2025 Lantern Protocol
//
// audit-export-pack writes a forensic pack covering a contiguous
// event segment to disk, atomically.

package main

import (
	"context"
	"flag"
	"log"

	"github.com/lanternledger/ledger/internal/config"
	"github.com/lanternledger/ledger/internal/pack"
	"github.com/lanternledger/ledger/internal/store"
)

func main() {
	output := flag.String("output", "", "path to write the forensic pack to (required)")
	fromSeq := flag.Int64("from-seq", 1, "first event seq to include")
	toSeq := flag.Int64("to-seq", 0, "last event seq to include (0 = up to current head)")
	generator := flag.String("generator", "audit-export-pack", "generator label recorded in the pack manifest")
	flag.Parse()

	if *output == "" {
		log.Fatal("--output is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbClient, err := store.NewClient(store.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer dbClient.Close()

	repo := store.NewRepository(dbClient)
	ctx := context.Background()

	to := *toSeq
	if to == 0 {
		head, err := repo.GetHead(ctx)
		if err != nil {
			log.Fatalf("get head: %v", err)
		}
		to = head.LastSeq
	}

	p, err := pack.Export(ctx, repo, *fromSeq, to, *generator)
	if err != nil {
		log.Fatalf("export pack: %v", err)
	}

	if err := pack.WriteFile(*output, p); err != nil {
		log.Fatalf("write pack: %v", err)
	}

	log.Printf("wrote pack %s covering seq [%d, %d], pack_hash=%s", *output, *fromSeq, to, p.PackHash)
}
