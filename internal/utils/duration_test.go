package utils

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	var doc struct {
		Timeout Duration `yaml:"timeout"`
	}

	if err := yaml.Unmarshal([]byte("timeout: 1m30s\n"), &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Timeout.Std() != 90*time.Second {
		t.Fatalf("expected 90s, got %v", doc.Timeout)
	}

	if err := yaml.Unmarshal([]byte("timeout: not-a-duration\n"), &doc); err == nil {
		t.Fatalf("expected error for malformed duration")
	}
}
