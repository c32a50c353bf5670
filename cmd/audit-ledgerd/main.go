// Copyright 2025 Lantern Protocol
//
// audit-ledgerd is the audit ledger daemon: it accepts event appends
// over HTTP, runs the checkpoint/anchor pipeline, and exposes health
// and metrics endpoints.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternledger/ledger/internal/anchor"
	"github.com/lanternledger/ledger/internal/chain"
	"github.com/lanternledger/ledger/internal/checkpoint"
	"github.com/lanternledger/ledger/internal/config"
	"github.com/lanternledger/ledger/internal/keyring"
	"github.com/lanternledger/ledger/internal/metrics"
	"github.com/lanternledger/ledger/internal/mirror"
	"github.com/lanternledger/ledger/internal/store"
)

func main() {
	configFile := flag.String("anchor-config", "", "path to anchor backend YAML config (overrides LEDGER_ANCHOR_CONFIG)")
	flag.Parse()
	if *configFile != "" {
		os.Setenv("LEDGER_ANCHOR_CONFIG", *configFile)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbClient, err := store.NewClient(store.Config{
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer dbClient.Close()

	ctx := context.Background()
	if err := dbClient.Migrate(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	repo := store.NewRepository(dbClient)

	signingKey, err := loadOrGenerateSigningKey(cfg)
	if err != nil {
		log.Fatalf("load signing key: %v", err)
	}

	signer := checkpoint.NewSigner(cfg.CheckpointInterval, signingKey.PrivateKey, signingKey.Kid)
	engine := chain.NewEngine(repo, signer)

	if err := engine.RecoverHead(ctx); err != nil {
		log.Fatalf("recover head: %v", err)
	}

	backends, err := anchor.BuildBackends(ctx, cfg.Anchors, log.New(os.Stdout, "[anchor] ", log.LstdFlags))
	if err != nil {
		log.Fatalf("build anchor backends: %v", err)
	}
	required := cfg.Anchors.Mode == "required"
	publisher := anchor.NewPublisher(repo, required, cfg.EngineID, cfg.AuditPayloadVersion, backends...)

	met := metrics.New()

	mirrorClient, err := mirror.New(ctx, mirror.Config{
		ProjectID:       cfg.Firestore.ProjectID,
		CredentialsFile: cfg.Firestore.CredentialsFile,
		Enabled:         cfg.Firestore.Enabled,
	})
	if err != nil {
		log.Fatalf("init mirror: %v", err)
	}

	srv := &server{engine: engine, publisher: publisher, metrics: met, mirror: mirrorClient}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", srv.handleAppendEvent)
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.Handle("/metrics", met.Handler())

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		log.Printf("audit-ledgerd listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down audit-ledgerd...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	if err := mirrorClient.Close(); err != nil {
		log.Printf("mirror close error: %v", err)
	}
	log.Println("audit-ledgerd stopped")
}

type server struct {
	engine    *chain.Engine
	publisher *anchor.Publisher
	metrics   *metrics.Metrics
	mirror    *mirror.Client
}

type appendEventRequest struct {
	TS          string  `json:"ts"`
	Action      string  `json:"action"`
	Actor       string  `json:"actor"`
	ReceiptID   *string `json:"receipt_id"`
	ExportID    *string `json:"export_id"`
	SavedViewID *string `json:"saved_view_id"`
	Payload     json.RawMessage `json:"payload"`
	IP          *string `json:"ip"`
	UserAgent   *string `json:"user_agent"`
}

// handleAppendEvent implements the architectural rule from spec §5:
// the anchor subsystem is invoked here, in the HTTP handler, strictly
// after AppendEvent's transaction has committed — never inside it.
func (s *server) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req appendEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.TS == "" {
		req.TS = time.Now().UTC().Format(time.RFC3339)
	}

	ctx := r.Context()
	event, cp, err := s.engine.AppendEvent(ctx, chain.Fields{
		TS: req.TS, Action: req.Action, Actor: req.Actor,
		ReceiptID: req.ReceiptID, ExportID: req.ExportID, SavedViewID: req.SavedViewID,
		Payload: string(req.Payload), IP: req.IP, UserAgent: req.UserAgent,
	})
	if err != nil {
		s.metrics.AppendFailures.Inc()
		log.Printf("append event failed: %v", err)
		http.Error(w, "append failed", http.StatusInternalServerError)
		return
	}
	s.metrics.EventsAppended.Inc()
	s.metrics.HeadSeq.Set(float64(event.Seq))

	if cp != nil {
		s.metrics.CheckpointsTaken.Inc()
		if err := s.mirror.MirrorCheckpoint(ctx, cp); err != nil {
			log.Printf("mirror checkpoint: %v", err)
		}
		receipts, errs := s.publisher.PublishCheckpoint(ctx, cp)
		for _, perr := range errs {
			s.metrics.AnchorFailures.WithLabelValues("unknown").Inc()
			log.Printf("anchor publish error: %v", perr)
		}
		for _, rcpt := range receipts {
			s.metrics.AnchorPublishes.WithLabelValues(rcpt.AnchorType).Inc()
			if err := s.mirror.MirrorAnchorReceipt(ctx, rcpt); err != nil {
				log.Printf("mirror anchor receipt: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"seq":  event.Seq,
		"hash": event.Hash,
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func loadOrGenerateSigningKey(cfg *config.Config) (*keyring.SigningKey, error) {
	if cfg.Ed25519KeyPath == "" {
		log.Printf("no ED25519_KEY_PATH set; generating an ephemeral signing key (not for production use)")
		return keyring.GenerateSigningKey(cfg.PublicKeyID)
	}
	if _, err := os.Stat(cfg.Ed25519KeyPath); os.IsNotExist(err) {
		sk, err := keyring.GenerateSigningKey(cfg.PublicKeyID)
		if err != nil {
			return nil, err
		}
		pem, err := sk.WritePrivatePEM()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(cfg.Ed25519KeyPath, pem, 0o600); err != nil {
			return nil, err
		}
		return sk, nil
	}
	return keyring.LoadSigningKey(cfg.Ed25519KeyPath, cfg.PublicKeyID)
}
