// Copyright 2025 Lantern Protocol

package anchor

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"cloud.google.com/go/storage"

	"github.com/lanternledger/ledger/internal/config"
)

// BuildBackends selects and constructs the Backend set named by
// cfg.Type (spec §6: log-only | s3-worm | rfc3161 | both), plus the
// supplemental Ethereum backend when ethereum.* keys are configured.
// "both" means s3-worm and rfc3161 together via a CompositeBackend
// requiring both to succeed, matching the teacher's all-or-nothing
// anchoring posture in required mode.
func BuildBackends(ctx context.Context, cfg config.AnchorConfig, logger *log.Logger) ([]Backend, error) {
	var backends []Backend

	switch cfg.Type {
	case "", "log-only":
		backends = append(backends, NewLogOnlyBackend(logger))
	case "s3-worm":
		b, err := buildObjectStoreBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	case "rfc3161":
		backends = append(backends, NewRFC3161Backend(cfg.TSAURL, http.DefaultClient))
	case "both":
		objStore, err := buildObjectStoreBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tsa := NewRFC3161Backend(cfg.TSAURL, http.DefaultClient)
		backends = append(backends, NewCompositeBackend(2, objStore, tsa))
	default:
		return nil, fmt.Errorf("anchor: unrecognized type %q", cfg.Type)
	}

	if cfg.EthereumURL != "" && cfg.EthereumContractAddress != "" {
		eth, err := NewEthereumAnchorBackend(cfg.EthereumURL, cfg.EthereumChainID, cfg.EthereumContractAddress, cfg.EthereumPrivateKey, cfg.EthereumGasLimit)
		if err != nil {
			return nil, fmt.Errorf("build ethereum anchor backend: %w", err)
		}
		backends = append(backends, eth)
	}

	if cfg.Mode == "required" && onlyLogOnly(backends) {
		return nil, fmt.Errorf("%w (set ANCHOR_TYPE=s3-worm|rfc3161|both, with ANCHOR_S3_BUCKET/ANCHOR_GCS_BUCKET or ANCHOR_TSA_URL, and/or ANCHOR_ETHEREUM_URL+ANCHOR_ETHEREUM_CONTRACT_ADDRESS)",
			ErrRequiredModeNeedsTrustBoundary)
	}

	return backends, nil
}

// onlyLogOnly reports whether every backend in the set is log-only,
// i.e. the set provides no external trust boundary at all.
func onlyLogOnly(backends []Backend) bool {
	if len(backends) == 0 {
		return false
	}
	for _, b := range backends {
		if b.Type() != "log-only" {
			return false
		}
	}
	return true
}

func buildObjectStoreBackend(ctx context.Context, cfg config.AnchorConfig) (Backend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("build object store client: %w", err)
	}
	retention := time.Duration(cfg.EffectiveRetentionDays()) * 24 * time.Hour
	return NewObjectStoreWORMBackend(client, cfg.EffectiveBucket(), retention), nil
}
