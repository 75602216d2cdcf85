package replay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/emberveil/governor/internal/metrics"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// run of metrics snapshots, optionally with the outcomes the recording
// governor reached.
type Fixture struct {
	Description     string               `json:"description"`
	BreachThreshold float64              `json:"breach_threshold"`
	Cycles          []FixtureCycle       `json:"cycles"`
	Expected        []FixtureExpectation `json:"expected,omitempty"`
}

// FixtureCycle is one recorded cycle's metrics snapshot.
type FixtureCycle struct {
	Cycle   int64              `json:"cycle"`
	Metrics map[string]float64 `json:"metrics"`
}

// FixtureExpectation pins the outcome a replay must reproduce for one cycle.
type FixtureExpectation struct {
	Cycle   int64  `json:"cycle"`
	Outcome string `json:"outcome"`
}

// #endregion fixture-types

// #region schema

// fixtureSchema is the wire contract for fixture files. Validation runs
// before unmarshaling so a malformed fixture fails with a path into the
// document instead of a zero-valued struct.
const fixtureSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["cycles"],
  "properties": {
    "description": {"type": "string"},
    "breach_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "cycles": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["cycle", "metrics"],
        "properties": {
          "cycle": {"type": "integer", "minimum": 1},
          "metrics": {
            "type": "object",
            "additionalProperties": {"type": "number"}
          }
        },
        "additionalProperties": false
      }
    },
    "expected": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["cycle", "outcome"],
        "properties": {
          "cycle": {"type": "integer", "minimum": 1},
          "outcome": {"enum": ["ok", "warn", "pause", "shutdown"]}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

var compiledFixtureSchema = jsonschema.MustCompileString("fixture.schema.json", fixtureSchema)

// ValidateFixtureBytes checks raw fixture JSON against the schema.
func ValidateFixtureBytes(raw []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}
	if err := compiledFixtureSchema.Validate(doc); err != nil {
		return fmt.Errorf("fixture schema: %w", err)
	}
	return nil
}

// #endregion schema

// #region fixture-loader

// LoadFixture reads, schema-validates, and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	if err := ValidateFixtureBytes(raw); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToCycles converts the fixture's recorded cycles to replay input.
func (f *Fixture) ToCycles() []Cycle {
	out := make([]Cycle, len(f.Cycles))
	for i, fc := range f.Cycles {
		out[i] = Cycle{Cycle: fc.Cycle, Metrics: metrics.Metrics(fc.Metrics).Clone()}
	}
	return out
}

// #endregion fixture-loader
