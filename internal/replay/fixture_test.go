package replay

import (
	"os"
	"path/filepath"
	"testing"
)

// #region fixture-tests

const sampleFixture = `{
  "description": "two calm cycles, then collapse",
  "breach_threshold": 0.3,
  "cycles": [
    {"cycle": 1, "metrics": {"continuity_score": 0.9, "identity_score": 1}},
    {"cycle": 2, "metrics": {"continuity_score": 0.7, "identity_score": 0.95}},
    {"cycle": 3, "metrics": {"continuity_score": 0.05, "identity_score": 0.4}}
  ],
  "expected": [
    {"cycle": 1, "outcome": "ok"},
    {"cycle": 3, "outcome": "pause"}
  ]
}`

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadFixture(t *testing.T) {
	f, err := LoadFixture(writeFixture(t, sampleFixture))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Cycles) != 3 {
		t.Fatalf("cycles = %d, want 3", len(f.Cycles))
	}
	if f.BreachThreshold != 0.3 {
		t.Fatalf("breach_threshold = %v, want 0.3", f.BreachThreshold)
	}
	cycles := f.ToCycles()
	if cycles[2].Metrics.Continuity() != 0.05 {
		t.Fatalf("cycle 3 continuity = %v, want 0.05", cycles[2].Metrics.Continuity())
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("want error for missing fixture file")
	}
}

func TestValidateFixtureRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{"cycles": [`},
		{"no cycles", `{"description": "empty"}`},
		{"empty cycles", `{"cycles": []}`},
		{"cycle missing metrics", `{"cycles": [{"cycle": 1}]}`},
		{"string metric", `{"cycles": [{"cycle": 1, "metrics": {"continuity_score": "high"}}]}`},
		{"threshold out of range", `{"breach_threshold": 2, "cycles": [{"cycle": 1, "metrics": {}}]}`},
		{"unknown outcome", `{"cycles": [{"cycle": 1, "metrics": {}}], "expected": [{"cycle": 1, "outcome": "explode"}]}`},
		{"stray field", `{"cycles": [{"cycle": 1, "metrics": {}}], "turns": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateFixtureBytes([]byte(tc.raw)); err == nil {
				t.Fatalf("fixture accepted: %s", tc.raw)
			}
		})
	}
}

func TestValidateFixtureAccepts(t *testing.T) {
	if err := ValidateFixtureBytes([]byte(sampleFixture)); err != nil {
		t.Fatalf("sample fixture rejected: %v", err)
	}
	minimal := `{"cycles": [{"cycle": 1, "metrics": {}}]}`
	if err := ValidateFixtureBytes([]byte(minimal)); err != nil {
		t.Fatalf("minimal fixture rejected: %v", err)
	}
}

// #endregion fixture-tests
