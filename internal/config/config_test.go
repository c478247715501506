package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9091 {
		t.Errorf("Server.Port = %d, want 9091", cfg.Server.Port)
	}
	if cfg.Scheduler.MaxConcurrentDownloads != 50 {
		t.Errorf("MaxConcurrentDownloads = %d, want 50", cfg.Scheduler.MaxConcurrentDownloads)
	}
	ds, ok := cfg.Dataset(11)
	if !ok {
		t.Fatal("expected dataset 11 to be pre-registered")
	}
	if ds.FirstID != 2205655 || ds.LastID != 2730262 {
		t.Errorf("dataset 11 range = [%d,%d], want [2205655,2730262]", ds.FirstID, ds.LastID)
	}
}

func TestValidateRejectsBadConcurrency(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Scheduler.MaxConcurrentDownloads = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero concurrency")
	}
	cfg.Scheduler.MaxConcurrentDownloads = 501
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for concurrency above 500")
	}
}

func TestValidateRequiresAPIKeyWhenAuthEnabled(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Auth.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for enabled auth with no api key")
	}
}

func TestValidateRequiresBucketForGCSMirror(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Mirror.Provider = "gcs"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for gcs mirror with no bucket")
	}
}
