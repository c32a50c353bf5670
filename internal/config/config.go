// Copyright 2025 Lantern Protocol
//
// Package config loads the ledger's runtime configuration from
// environment variables, with an optional YAML file for the anchor
// backend settings (spec §6 "Anchor backend configuration").

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ledger daemon and CLI tools.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database
	DatabaseURL         string
	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int
	DatabaseConnMaxLifetime time.Duration

	// Checkpoint signer
	CheckpointInterval int64
	Ed25519KeyPath     string
	PublicKeyID        string

	// Ledger identity, embedded in every anchor payload (spec §3)
	EngineID            string
	AuditPayloadVersion int

	// Anchor subsystem
	Anchors AnchorConfig

	// Optional Firestore mirror
	Firestore FirestoreConfig

	LogLevel string
}

// AnchorConfig mirrors spec.md §6's `type | s3.* | tsa.* | anchors_mode`
// configuration surface, extended with the supplemental `ethereum.*`
// and `gcs.*` keys this implementation's backend set actually needs.
// `s3.*` takes precedence over `gcs.*` when both are set, since `s3.*`
// is the name the spec normatively recognizes; `gcs.*` names the
// concrete object-store client this ledger wires (cloud.google.com/go/storage).
type AnchorConfig struct {
	Type string `yaml:"type"` // log-only | s3-worm | rfc3161 | both

	S3Bucket          string `yaml:"s3_bucket"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3RetentionDays   int    `yaml:"s3_retention_days"`
	S3RetentionMode   string `yaml:"s3_retention_mode"` // GOVERNANCE | COMPLIANCE
	S3CrossAccountID  string `yaml:"s3_cross_account_id"`

	GCSBucket        string `yaml:"gcs_bucket"`
	GCSRetentionDays int    `yaml:"gcs_retention_days"`

	TSAURL                string   `yaml:"tsa_url"`
	TSATrustedFingerprints []string `yaml:"tsa_trusted_fingerprints"`

	EthereumURL             string `yaml:"ethereum_url"`
	EthereumChainID         int64  `yaml:"ethereum_chain_id"`
	EthereumContractAddress string `yaml:"ethereum_contract_address"`
	EthereumPrivateKey      string `yaml:"ethereum_private_key"`
	EthereumGasLimit        uint64 `yaml:"ethereum_gas_limit"`

	Mode string `yaml:"anchors_mode"` // required | optional
}

// FirestoreConfig controls the optional, non-authoritative dashboard mirror.
type FirestoreConfig struct {
	Enabled         bool
	ProjectID       string
	CredentialsFile string
}

// Load reads configuration from environment variables. If
// LEDGER_ANCHOR_CONFIG names a YAML file, its contents populate
// Anchors (environment variables still take precedence for any field
// also settable via env).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("LEDGER_HOST", "0.0.0.0") + ":" + getEnv("LEDGER_PORT", "8080"),
		MetricsAddr: getEnv("LEDGER_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("LEDGER_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_PORT", "8081"),

		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		DatabaseConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),

		CheckpointInterval: getEnvInt64("CHECKPOINT_INTERVAL", 100),
		Ed25519KeyPath:     getEnv("ED25519_KEY_PATH", ""),
		PublicKeyID:        getEnv("PUBLIC_KEY_ID", "default"),

		EngineID:            getEnv("ENGINE_ID", "ledger-default"),
		AuditPayloadVersion: getEnvInt("AUDIT_PAYLOAD_VERSION", 1),

		Firestore: FirestoreConfig{
			Enabled:         getEnvBool("FIRESTORE_ENABLED", false),
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	anchors, err := loadAnchorConfig()
	if err != nil {
		return nil, fmt.Errorf("load anchor config: %w", err)
	}
	cfg.Anchors = anchors

	return cfg, nil
}

func loadAnchorConfig() (AnchorConfig, error) {
	var a AnchorConfig
	if path := os.Getenv("LEDGER_ANCHOR_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return a, fmt.Errorf("read anchor config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &a); err != nil {
			return a, fmt.Errorf("parse anchor config %s: %w", path, err)
		}
	}

	a.Type = getEnvOrKeep("ANCHOR_TYPE", a.Type)
	a.Mode = getEnvOrKeep("ANCHORS_MODE", a.Mode)
	if a.Mode == "" {
		a.Mode = "optional"
	}

	a.S3Bucket = getEnvOrKeep("ANCHOR_S3_BUCKET", a.S3Bucket)
	a.S3Prefix = getEnvOrKeep("ANCHOR_S3_PREFIX", a.S3Prefix)
	a.S3RetentionMode = getEnvOrKeep("ANCHOR_S3_RETENTION_MODE", a.S3RetentionMode)
	a.S3CrossAccountID = getEnvOrKeep("ANCHOR_S3_CROSS_ACCOUNT_ID", a.S3CrossAccountID)
	if v := os.Getenv("ANCHOR_S3_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.S3RetentionDays = n
		}
	}

	a.GCSBucket = getEnvOrKeep("ANCHOR_GCS_BUCKET", a.GCSBucket)
	if v := os.Getenv("ANCHOR_GCS_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			a.GCSRetentionDays = n
		}
	}

	a.TSAURL = getEnvOrKeep("ANCHOR_TSA_URL", a.TSAURL)

	a.EthereumURL = getEnvOrKeep("ANCHOR_ETHEREUM_URL", a.EthereumURL)
	a.EthereumContractAddress = getEnvOrKeep("ANCHOR_ETHEREUM_CONTRACT_ADDRESS", a.EthereumContractAddress)
	a.EthereumPrivateKey = getEnvOrKeep("ANCHOR_ETHEREUM_PRIVATE_KEY", a.EthereumPrivateKey)
	if v := os.Getenv("ANCHOR_ETHEREUM_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			a.EthereumChainID = n
		}
	}
	if v := os.Getenv("ANCHOR_ETHEREUM_GAS_LIMIT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			a.EthereumGasLimit = n
		}
	}

	return a, nil
}

// EffectiveBucket returns the object-store bucket this config resolves
// to, preferring the spec-normative s3.* key over the supplemental
// gcs.* key when both are set.
func (a AnchorConfig) EffectiveBucket() string {
	if a.S3Bucket != "" {
		return a.S3Bucket
	}
	return a.GCSBucket
}

// EffectiveRetentionDays mirrors EffectiveBucket's s3-over-gcs precedence.
func (a AnchorConfig) EffectiveRetentionDays() int {
	if a.S3RetentionDays > 0 {
		return a.S3RetentionDays
	}
	return a.GCSRetentionDays
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvOrKeep(key, current string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
