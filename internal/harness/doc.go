// Package harness runs token sale scenarios against a real chain,
// provisioner and store, and checks the outcome.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: happy_path
//	description: "One purchase inside the window"
//	height: 150
//	dao: dao
//	asset: token
//	accounts:
//	  alice: "2000000000000000000"
//	install:
//	  rate: "1000"
//	  cap: "10000000000000000000"
//	  start_height: 100
//	  end_height: 200
//	steps:
//	  - buy: {purchaser: alice, beneficiary: bob, value: "1000000000000000000"}
//	  - height: 250
//	  - buy: {purchaser: alice, beneficiary: bob, value: "1"}
//	    expect_error: SALE_NOT_OPEN
//	assertions:
//	  - type: raised
//	    expect: "1000000000000000000"
//
// Amounts are quoted decimal strings. Accounts are referred to by name;
// each name maps to a fixed address, and "engine" names the installed
// sale engine.
//
// # Assertion Types
//
//   - raised: the engine's ledger
//   - balance: an account's native balance
//   - asset_balance: an account's balance of the sale asset
//   - supply: total supply of the sale asset
//   - event_count: number of stored events with a given name
//   - has_capability: whether who holds capability on where
//
// # Deterministic Testing
//
// Transaction ids are "<scenario>-0001", "<scenario>-0002", ... and
// addresses are rendered as names, so a trace is byte-stable and can be
// compared against golden/<scenario>.golden next to the scenario files.
//
// After the steps run, the harness also checks properties that must hold
// for every scenario: the ledger never exceeds the cap, the ledger equals
// the sum of stored purchases, and every stored event ID matches its
// content.
package harness
