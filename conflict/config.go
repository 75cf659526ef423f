package conflict

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadPolicyConfig reads a PolicyConfig from a YAML file and validates
// it. Unset fields fall back to the documented defaults.
//
// Example:
//
//	default_strategy: three_way_merge
//	auto_resolve_threshold: 30
//	delete_rule: keep_surviving_edit
//	max_resolution_attempts: 3
//	collections:
//	  notes: smart_merge
//	  settings: last_write_wins
func LoadPolicyConfig(path string) (PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyConfig{}, fmt.Errorf("failed to read policy config: %w", err)
	}
	return ParsePolicyConfig(data)
}

// ParsePolicyConfig parses and validates YAML policy configuration.
func ParsePolicyConfig(data []byte) (PolicyConfig, error) {
	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PolicyConfig{}, fmt.Errorf("failed to parse policy config: %w", err)
	}
	cfg.setDefaults()

	if err := validatePolicyConfig(&cfg); err != nil {
		return PolicyConfig{}, err
	}
	return cfg, nil
}

func validatePolicyConfig(cfg *PolicyConfig) error {
	if !knownStrategies[cfg.DefaultStrategy] {
		return fmt.Errorf("unknown default strategy %q", cfg.DefaultStrategy)
	}
	for collection, s := range cfg.Collections {
		if !knownStrategies[s] {
			return fmt.Errorf("unknown strategy %q for collection %q", s, collection)
		}
	}
	switch cfg.DeleteRule {
	case DeleteRuleKeepSurvivingEdit, DeleteRuleHonorDelete:
	default:
		return fmt.Errorf("unknown delete rule %q", cfg.DeleteRule)
	}
	if cfg.AutoResolveThreshold < 0 || cfg.AutoResolveThreshold > 100 {
		return fmt.Errorf("auto_resolve_threshold must be in [0,100], got %d", cfg.AutoResolveThreshold)
	}
	if cfg.MaxResolutionAttempts < 1 {
		return fmt.Errorf("max_resolution_attempts must be positive, got %d", cfg.MaxResolutionAttempts)
	}
	return nil
}
