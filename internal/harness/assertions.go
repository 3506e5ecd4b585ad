package harness

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/sale"
	"github.com/roach88/capsale/internal/store"
	"github.com/roach88/capsale/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext is the final state assertions are evaluated against.
type AssertionContext struct {
	Ctx    context.Context
	Store  *store.Store
	Chain  *chain.Chain
	Engine *sale.Engine // nil when installation failed
	Asset  ir.Address
	Book   *testutil.AddressBook
}

// EvaluateAssertions evaluates all assertions and returns error messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertRaised:
		if actx.Engine == nil {
			return &AssertionError{Type: a.Type, Expected: a.Expect, Actual: "no engine installed"}
		}
		return compareAmount(a.Type, a.Expect, actx.Engine.Raised())

	case AssertBalance:
		return compareAmount(a.Type+" of "+a.Account, a.Expect,
			actx.Chain.Balance(actx.Book.Address(a.Account)))

	case AssertAssetBalance:
		return compareAmount(a.Type+" of "+a.Account, a.Expect,
			actx.Chain.AssetBalance(actx.Asset, actx.Book.Address(a.Account)))

	case AssertSupply:
		return compareAmount(a.Type, a.Expect, actx.Chain.Supply(actx.Asset))

	case AssertEventCount:
		events, err := actx.Store.ReadEvents(actx.Ctx, store.EventFilter{Name: a.Event})
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}
		if len(events) != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d %s events", *a.Count, a.Event),
				Actual:   fmt.Sprintf("%d %s events", len(events), a.Event),
			}
		}
		return nil

	case AssertHasCapability:
		who := actx.Book.Address(a.Who)
		where := actx.Book.Address(a.Where)
		held := actx.Chain.Check(actx.Ctx, who, where, ir.Capability(a.Capability))
		if held != *a.Held {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s holds %s on %s: %t", a.Who, a.Capability, a.Where, *a.Held),
				Actual:   fmt.Sprintf("%t", held),
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func compareAmount(what, expect string, actual *big.Int) error {
	want, err := ir.ParseAmount(expect)
	if err != nil {
		return fmt.Errorf("%s: bad expected amount: %w", what, err)
	}
	if want.Cmp(actual) != 0 {
		return &AssertionError{Type: what, Expected: want.String(), Actual: actual.String()}
	}
	return nil
}

// CheckInvariants verifies properties that hold after every run:
//   - raised never exceeds cap
//   - raised equals the sum of stored purchase values
//   - every stored event ID matches its content
func CheckInvariants(actx *AssertionContext) []string {
	var errs []string

	if err := actx.Chain.NotifyErrors(); err != nil {
		errs = append(errs, fmt.Sprintf("invariant: event log incomplete: %v", err))
	}

	mismatches, err := actx.Store.VerifyEvents(actx.Ctx)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invariant: verify events: %v", err))
	}
	for _, m := range mismatches {
		errs = append(errs, fmt.Sprintf("invariant: event %s: stored id does not match content (computed %s)", m.Stored, m.Computed))
	}

	if actx.Engine == nil {
		return errs
	}
	raised := actx.Engine.Raised()
	if raised.Cmp(actx.Engine.Cap()) > 0 {
		errs = append(errs, fmt.Sprintf("invariant: raised %s exceeds cap %s", raised, actx.Engine.Cap()))
	}
	replayed, err := actx.Store.ReplayRaised(actx.Ctx, actx.Engine.Address())
	if err != nil {
		errs = append(errs, fmt.Sprintf("invariant: replay raised: %v", err))
	} else if replayed.Cmp(raised) != 0 {
		errs = append(errs, fmt.Sprintf("invariant: raised %s but stored purchases sum to %s", raised, replayed))
	}
	return errs
}
