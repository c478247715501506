package storage

import "testing"

func TestLocalProviderIsNoop(t *testing.T) {
	var p Provider = LocalProvider{}
	if err := p.Upload(t.Context(), "/nonexistent", "key"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
