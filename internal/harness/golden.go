package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/capsale/internal/ir"
)

// CanonicalTrace renders the result's trace as RFC 8785 canonical JSON.
// The output is byte-stable for a given scenario.
func (r *Result) CanonicalTrace() ([]byte, error) {
	entries := make(ir.Array, len(r.Trace))
	for i, e := range r.Trace {
		entries[i] = e.toValue()
	}
	return ir.MarshalCanonical(ir.Object{
		"scenario": ir.String(r.Scenario),
		"trace":    entries,
	})
}

func (e TraceEntry) toValue() ir.Object {
	obj := ir.Object{
		"step":   ir.Int(e.Step),
		"action": ir.String(e.Action),
		"height": ir.HeightValue(e.Height),
	}
	if e.Tx != "" {
		obj["tx"] = ir.String(e.Tx)
	}
	if e.Error != "" {
		obj["error"] = ir.String(e.Error)
	}
	if len(e.Events) > 0 {
		events := make(ir.Array, len(e.Events))
		for i, ev := range e.Events {
			events[i] = ir.Object{
				"emitter": ir.String(ev.Emitter),
				"name":    ir.String(ev.Name),
				"fields":  ev.Fields,
			}
		}
		obj["events"] = events
	}
	if len(e.Permissions) > 0 {
		grants := make(ir.Array, len(e.Permissions))
		for i, g := range e.Permissions {
			grants[i] = ir.Object{
				"op":         ir.String(g.Op),
				"where":      ir.String(g.Where),
				"who":        ir.String(g.Who),
				"capability": ir.String(g.Capability),
			}
		}
		obj["permissions"] = grants
	}
	return obj
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/scenarios/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := result.CanonicalTrace()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/scenarios/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
