package policy

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/emberveil/governor/internal/metrics"
)

// #region config-types

// Config is the YAML policy file loaded at startup.
type Config struct {
	BreachThreshold float64      `yaml:"breach_threshold"`
	Rules           []RuleConfig `yaml:"rules"`
}

// RuleConfig is one declarative threshold rule. Rules compile to policies in
// file order, which is also their registration order in the engine.
type RuleConfig struct {
	Name     string   `yaml:"name"`
	Metric   string   `yaml:"metric"`
	Op       string   `yaml:"op"` // lt | lte | gt | gte
	Value    float64  `yaml:"value"`
	Severity Severity `yaml:"severity"`
}

// #endregion config-types

// #region load

// DefaultConfig returns the stock policy set: warn early on continuity,
// pause when it collapses, shut down when identity is gone.
func DefaultConfig() Config {
	return Config{
		BreachThreshold: 0.3,
		Rules: []RuleConfig{
			{Name: "continuity_warn", Metric: metrics.KeyContinuity, Op: "lt", Value: 0.5, Severity: SeverityWarn},
			{Name: "continuity_collapse", Metric: metrics.KeyContinuity, Op: "lt", Value: 0.1, Severity: SeverityPause},
			{Name: "identity_loss", Metric: metrics.KeyIdentity, Op: "lt", Value: 0.05, Severity: SeverityShutdown},
		},
	}
}

// LoadConfigFile reads and validates a YAML policy file.
func LoadConfigFile(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read policy config: %w", err)
	}
	return ParseConfigYAML(content)
}

// ParseConfigYAML parses and validates policy YAML.
func ParseConfigYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse policy yaml: %w", err)
	}
	if cfg.BreachThreshold < 0 || cfg.BreachThreshold > 1 {
		return Config{}, fmt.Errorf("breach_threshold %.3f out of range [0,1]", cfg.BreachThreshold)
	}
	seen := make(map[string]bool, len(cfg.Rules))
	for i, r := range cfg.Rules {
		if r.Name == "" {
			return Config{}, fmt.Errorf("rule %d: name required", i)
		}
		if seen[r.Name] {
			return Config{}, fmt.Errorf("rule %d: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if r.Metric == "" {
			return Config{}, fmt.Errorf("rule %s: metric required", r.Name)
		}
		if !validOp(r.Op) {
			return Config{}, fmt.Errorf("rule %s: unknown op %q", r.Name, r.Op)
		}
		if !r.Severity.Valid() {
			return Config{}, fmt.Errorf("rule %s: unknown severity %q", r.Name, r.Severity)
		}
	}
	return cfg, nil
}

// #endregion load

// #region compile

// Policies compiles the declarative rules into engine policies.
func (c Config) Policies() []Policy {
	out := make([]Policy, 0, len(c.Rules))
	for _, r := range c.Rules {
		r := r
		out = append(out, Policy{
			Name:     r.Name,
			Severity: r.Severity,
			Predicate: func(m metrics.Metrics) bool {
				v, ok := m[r.Metric]
				if !ok {
					return false
				}
				return compare(v, r.Op, r.Value)
			},
		})
	}
	return out
}

func validOp(op string) bool {
	switch op {
	case "lt", "lte", "gt", "gte":
		return true
	default:
		return false
	}
}

func compare(v float64, op string, threshold float64) bool {
	switch op {
	case "lt":
		return v < threshold
	case "lte":
		return v <= threshold
	case "gt":
		return v > threshold
	case "gte":
		return v >= threshold
	default:
		return false
	}
}

// #endregion compile
