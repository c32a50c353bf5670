// Copyright 2025 Lantern Protocol

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CheckpointInterval != 100 {
		t.Fatalf("expected default checkpoint interval 100, got %d", cfg.CheckpointInterval)
	}
	if cfg.Anchors.Mode != "optional" {
		t.Fatalf("expected default anchors_mode optional, got %s", cfg.Anchors.Mode)
	}
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("CHECKPOINT_INTERVAL", "12")
	t.Setenv("ANCHORS_MODE", "required")
	t.Setenv("ANCHOR_TYPE", "both")
	t.Setenv("ANCHOR_S3_BUCKET", "my-bucket")
	t.Setenv("ANCHOR_GCS_BUCKET", "my-gcs-bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CheckpointInterval != 12 {
		t.Fatalf("expected interval 12, got %d", cfg.CheckpointInterval)
	}
	if cfg.Anchors.Mode != "required" {
		t.Fatalf("expected anchors_mode required, got %s", cfg.Anchors.Mode)
	}
	if cfg.Anchors.Type != "both" {
		t.Fatalf("expected type both, got %s", cfg.Anchors.Type)
	}
	if cfg.Anchors.EffectiveBucket() != "my-bucket" {
		t.Fatalf("expected s3 bucket to take precedence over gcs bucket, got %s", cfg.Anchors.EffectiveBucket())
	}
}

func TestEffectiveBucketFallsBackToGCS(t *testing.T) {
	a := AnchorConfig{GCSBucket: "gcs-only"}
	if a.EffectiveBucket() != "gcs-only" {
		t.Fatalf("expected fallback to gcs bucket, got %s", a.EffectiveBucket())
	}
}
