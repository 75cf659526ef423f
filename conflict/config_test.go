package conflict

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePolicyConfig_Valid(t *testing.T) {
	data := []byte(`
default_strategy: last_write_wins
auto_resolve_threshold: 45
delete_rule: honor_delete
max_resolution_attempts: 5
collections:
  notes: smart_merge
  settings: manual
`)
	cfg, err := ParsePolicyConfig(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DefaultStrategy != StrategyLastWriteWins {
		t.Errorf("DefaultStrategy = %v", cfg.DefaultStrategy)
	}
	if cfg.AutoResolveThreshold != 45 {
		t.Errorf("AutoResolveThreshold = %d", cfg.AutoResolveThreshold)
	}
	if cfg.DeleteRule != DeleteRuleHonorDelete {
		t.Errorf("DeleteRule = %v", cfg.DeleteRule)
	}
	if cfg.MaxResolutionAttempts != 5 {
		t.Errorf("MaxResolutionAttempts = %d", cfg.MaxResolutionAttempts)
	}
	if cfg.Collections["notes"] != StrategySmartMerge || cfg.Collections["settings"] != StrategyManual {
		t.Errorf("Collections = %v", cfg.Collections)
	}
}

func TestParsePolicyConfig_Defaults(t *testing.T) {
	cfg, err := ParsePolicyConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DefaultPolicyConfig()
	if cfg.DefaultStrategy != want.DefaultStrategy ||
		cfg.AutoResolveThreshold != want.AutoResolveThreshold ||
		cfg.DeleteRule != want.DeleteRule ||
		cfg.MaxResolutionAttempts != want.MaxResolutionAttempts {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestParsePolicyConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown default strategy", `default_strategy: telepathy`},
		{"unknown collection strategy", "collections:\n  notes: telepathy"},
		{"unknown delete rule", `delete_rule: flip_a_coin`},
		{"threshold out of range", `auto_resolve_threshold: 250`},
		{"negative attempts", `max_resolution_attempts: -2`},
		{"malformed yaml", `: [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePolicyConfig([]byte(tt.yaml)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadPolicyConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("auto_resolve_threshold: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPolicyConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AutoResolveThreshold != 10 {
		t.Errorf("AutoResolveThreshold = %d", cfg.AutoResolveThreshold)
	}

	if _, err := LoadPolicyConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
