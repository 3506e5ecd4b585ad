package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a sale scenario: a chain set up with funded accounts,
// one installation, a sequence of steps and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also prefixes tx ids
	// and names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Height is the block height before the first step.
	Height uint64 `yaml:"height"`

	// DAO names the account that owns the sale. Defaults to "dao".
	DAO string `yaml:"dao,omitempty"`

	// Asset names the asset contract. An explicit empty string installs
	// against the zero address.
	Asset *string `yaml:"asset,omitempty"`

	// RatePolicy selects the engine's rate check: reject_zero (default)
	// or reject_positive.
	RatePolicy string `yaml:"rate_policy,omitempty"`

	// Accounts maps account names to starting native balances.
	Accounts map[string]string `yaml:"accounts,omitempty"`

	// Install configures the sale installed before the steps run.
	Install InstallStep `yaml:"install"`

	// Steps run in order after the installation.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// InstallStep is the sale configuration handed to the provisioner.
type InstallStep struct {
	Rate        string `yaml:"rate"`
	Cap         string `yaml:"cap"`
	StartHeight uint64 `yaml:"start_height"`
	EndHeight   uint64 `yaml:"end_height"`

	// ExpectError is the error code installation must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step is one scenario action. Exactly one action field must be set.
type Step struct {
	Height    *uint64        `yaml:"height,omitempty"`
	Advance   uint64         `yaml:"advance,omitempty"`
	Buy       *BuyStep       `yaml:"buy,omitempty"`
	SetRate   *SetRateStep   `yaml:"set_rate,omitempty"`
	SetPaused *SetPausedStep `yaml:"set_paused,omitempty"`
	SetStart  *SetHeightStep `yaml:"set_start_height,omitempty"`
	SetEnd    *SetHeightStep `yaml:"set_end_height,omitempty"`
	Uninstall *UninstallStep `yaml:"uninstall,omitempty"`
	Hook      *HookStep      `yaml:"hook,omitempty"`
	Restart   bool           `yaml:"restart,omitempty"`

	// ExpectError is the error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// BuyStep pays value from purchaser for tokens minted to beneficiary.
type BuyStep struct {
	Purchaser   string `yaml:"purchaser"`
	Beneficiary string `yaml:"beneficiary"`
	Value       string `yaml:"value"`
}

// SetRateStep calls SetRate as caller.
type SetRateStep struct {
	Caller string `yaml:"caller"`
	Rate   string `yaml:"rate"`
}

// SetPausedStep calls SetPaused as caller.
type SetPausedStep struct {
	Caller string `yaml:"caller"`
	Paused bool   `yaml:"paused"`
}

// SetHeightStep calls SetStartHeight or SetEndHeight as caller.
type SetHeightStep struct {
	Caller string `yaml:"caller"`
	Height uint64 `yaml:"height"`
}

// UninstallStep revokes the installation's grants. Helpers overrides the
// recorded helper list when set.
type UninstallStep struct {
	Helpers []string `yaml:"helpers,omitempty"`
}

// HookStep installs a receive hook on an account.
//
//   - refuse: the account rejects incoming value
//   - reenter: the account buys from the engine with what it just received
//   - pause_refuse: the account pauses the engine, then rejects the value
//   - none: removes the hook
type HookStep struct {
	Account string `yaml:"account"`
	Action  string `yaml:"action"`
}

// Hook actions.
const (
	HookRefuse      = "refuse"
	HookReenter     = "reenter"
	HookPauseRefuse = "pause_refuse"
	HookNone        = "none"
)

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Account is the account name (balance, asset_balance).
	Account string `yaml:"account,omitempty"`

	// Event is the event name (event_count).
	Event string `yaml:"event,omitempty"`

	// Who, Where and Capability name the triple (has_capability).
	Who        string `yaml:"who,omitempty"`
	Where      string `yaml:"where,omitempty"`
	Capability string `yaml:"capability,omitempty"`

	// Expect is the expected amount (raised, balance, asset_balance, supply).
	Expect string `yaml:"expect,omitempty"`

	// Count is the expected number of events (event_count).
	Count *int `yaml:"count,omitempty"`

	// Held is the expected capability state (has_capability).
	Held *bool `yaml:"held,omitempty"`
}

// Assertion type constants.
const (
	AssertRaised        = "raised"
	AssertBalance       = "balance"
	AssertAssetBalance  = "asset_balance"
	AssertSupply        = "supply"
	AssertEventCount    = "event_count"
	AssertHasCapability = "has_capability"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir whose base name matches
// the glob filter (empty matches all), sorted by file name.
func LoadScenarios(dir, filter string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(paths)

	var scenarios []*Scenario
	for _, p := range paths {
		if filter != "" {
			name := filepath.Base(p)
			ok, err := filepath.Match(filter, name[:len(name)-len(filepath.Ext(name))])
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Install.Rate == "" || s.Install.Cap == "" {
		return fmt.Errorf("install: rate and cap are required")
	}

	if s.Install.ExpectError != "" && len(s.Steps) > 0 {
		return fmt.Errorf("steps cannot follow an installation expected to fail")
	}

	if len(s.Assertions) == 0 && s.Install.ExpectError == "" {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that exactly one action is set.
func validateStep(index int, st *Step) error {
	actions := 0
	for _, set := range []bool{
		st.Height != nil,
		st.Advance > 0,
		st.Buy != nil,
		st.SetRate != nil,
		st.SetPaused != nil,
		st.SetStart != nil,
		st.SetEnd != nil,
		st.Uninstall != nil,
		st.Hook != nil,
		st.Restart,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, actions)
	}

	if st.Buy != nil && (st.Buy.Purchaser == "" || st.Buy.Value == "") {
		return fmt.Errorf("steps[%d]: buy needs purchaser and value", index)
	}
	if st.Hook != nil {
		switch st.Hook.Action {
		case HookRefuse, HookReenter, HookPauseRefuse, HookNone:
		default:
			return fmt.Errorf("steps[%d]: unknown hook action %q", index, st.Hook.Action)
		}
		if st.Hook.Account == "" {
			return fmt.Errorf("steps[%d]: hook needs an account", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRaised, AssertSupply:
		if a.Expect == "" {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertBalance, AssertAssetBalance:
		if a.Account == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: account and expect are required for %s", index, a.Type)
		}
	case AssertEventCount:
		if a.Event == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: event and count are required for event_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertHasCapability:
		if a.Who == "" || a.Where == "" || a.Capability == "" || a.Held == nil {
			return fmt.Errorf("assertions[%d]: who, where, capability and held are required for has_capability", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
