package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/compiler"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
	"github.com/roach88/capsale/internal/store"
	"github.com/roach88/capsale/internal/testutil"
)

// Error codes for failures that do not come from the sale engine.
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeMissingAsset        = "MISSING_ASSET"
	CodeMissingPlugin       = "MISSING_PLUGIN"
	CodeMissingDAO          = "MISSING_DAO"
	CodeInvalidParams       = "INVALID_PARAMS"
	CodeRefused             = "REFUSED"
	CodeUnknown             = "ERROR"
)

// EngineName is the account name the installed engine is traced under.
const EngineName = "engine"

var errRefused = errors.New("transfer refused by recipient")

// Option configures a scenario run.
type Option func(*Harness)

// WithStore records the run into st instead of a fresh in-memory store.
// The caller keeps ownership of st. Each scenario deploys from its own
// factory so several scenarios can share one store.
func WithStore(st *store.Store) Option {
	return func(h *Harness) {
		h.store = st
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Harness is the scenario execution engine.
// It drives a real chain, provisioner and store with deterministic
// transaction ids and addresses.
type Harness struct {
	scenario   *Scenario
	store      *store.Store
	chain      *chain.Chain
	prov       *permission.Provisioner
	book       *testutil.AddressBook
	logger     *slog.Logger
	engineOpts []sale.Option

	dao     ir.Address
	asset   ir.Address
	engine  *sale.Engine
	helpers []ir.Address
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation unless
// WithStore is given. Transaction ids are derived from the scenario name.
//
// Execution flow:
//  1. Fund accounts and create the asset
//  2. Install the sale through the provisioner
//  3. Execute steps, checking expect_error on each
//  4. Store the engine's final snapshot
//  5. Evaluate assertions and the run invariants
//
// An error is returned only when the run itself cannot proceed; failed
// expectations are reported on the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		book:     testutil.NewAddressBook(),
		logger:   testutil.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.store == nil {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		h.store = st
	}

	ctx := context.Background()
	if err := h.setup(); err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	result := NewResult(scenario.Name)
	if err := h.install(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to install: %w", err)
	}

	if h.engine != nil {
		for i := range scenario.Steps {
			if err := h.executeStep(ctx, i+1, &scenario.Steps[i], result); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		if err := h.store.SaveSnapshot(ctx, h.engine.Snapshot(), h.chain.Height()); err != nil {
			return nil, fmt.Errorf("final snapshot: %w", err)
		}
	}

	actx := &AssertionContext{
		Ctx:    ctx,
		Store:  h.store,
		Chain:  h.chain,
		Engine: h.engine,
		Asset:  h.asset,
		Book:   h.book,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	for _, msg := range CheckInvariants(actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"steps", len(scenario.Steps),
		"errors", len(result.Errors),
	)
	return result, nil
}

// setup builds the chain, funds accounts and creates the asset.
func (h *Harness) setup() error {
	s := h.scenario
	registry := permission.NewMemoryRegistry(h.logger)
	h.chain = chain.New(registry,
		chain.WithTxIDGenerator(chain.NewSequentialGenerator(s.Name)),
		chain.WithLogger(h.logger),
		chain.WithHeight(s.Height),
		chain.WithFactory(ir.NamedAddress("factory/"+s.Name)),
	)
	h.chain.Subscribe(h.store)

	daoName := s.DAO
	if daoName == "" {
		daoName = "dao"
	}
	h.dao = h.book.Address(daoName)

	assetName := "token"
	if s.Asset != nil {
		assetName = *s.Asset
	}
	if assetName != "" {
		h.asset = h.book.Address(assetName)
		if err := h.chain.CreateAsset(h.asset, strings.ToUpper(assetName)); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(s.Accounts))
	for name := range s.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		amount, err := ir.ParseAmount(s.Accounts[name])
		if err != nil {
			return fmt.Errorf("account %s: %w", name, err)
		}
		if err := h.chain.Fund(h.book.Address(name), amount); err != nil {
			return fmt.Errorf("account %s: %w", name, err)
		}
	}
	return nil
}

// install provisions the sale and applies its grants in one transaction.
func (h *Harness) install(ctx context.Context, result *Result) error {
	in := h.scenario.Install
	m := &compiler.Manifest{
		Name:        h.scenario.Name,
		Asset:       h.asset.String(),
		Rate:        in.Rate,
		Cap:         in.Cap,
		StartHeight: in.StartHeight,
		EndHeight:   in.EndHeight,
		RatePolicy:  h.scenario.RatePolicy,
	}
	params, err := m.InstallParams()
	if err != nil {
		return err
	}
	encoded, err := permission.EncodeInstallParams(params)
	if err != nil {
		return err
	}
	h.engineOpts = m.EngineOptions()
	h.prov = permission.NewProvisioner(h.chain, h.chain.SaleEnv(h.logger),
		permission.WithEngineOptions(h.engineOpts...),
		permission.WithLogger(h.logger),
	)

	var inst *permission.Installation
	receipt, err := h.chain.Execute(ctx, func(ctx context.Context) error {
		var err error
		inst, err = h.prov.PrepareInstallation(ctx, h.dao, encoded)
		if err != nil {
			return err
		}
		return h.chain.ApplyPermissions(ctx, inst.Grants)
	})
	if err == nil {
		h.engine = inst.Engine
		h.helpers = inst.Helpers
		h.book.Bind(EngineName, inst.Engine.Address())
	}
	h.record(result, 0, "install", in.ExpectError, receipt, err)
	return nil
}

// executeStep runs one scenario step.
func (h *Harness) executeStep(ctx context.Context, n int, st *Step, result *Result) error {
	var (
		action  string
		receipt chain.Receipt
		err     error
	)

	switch {
	case st.Height != nil:
		h.chain.SetHeight(*st.Height)
		return nil

	case st.Advance > 0:
		h.chain.Advance(st.Advance)
		return nil

	case st.Hook != nil:
		h.setHook(st.Hook)
		return nil

	case st.Restart:
		return h.restart(ctx)

	case st.Buy != nil:
		action = "buy"
		value, perr := ir.ParseAmount(st.Buy.Value)
		if perr != nil {
			return fmt.Errorf("buy value: %w", perr)
		}
		purchaser := h.book.Address(st.Buy.Purchaser)
		beneficiary := purchaser
		if st.Buy.Beneficiary != "" {
			beneficiary = h.book.Address(st.Buy.Beneficiary)
		}
		_, receipt, err = h.chain.Buy(ctx, h.engine, purchaser, beneficiary, value)

	case st.SetRate != nil:
		action = "set_rate"
		rate, perr := ir.ParseAmount(st.SetRate.Rate)
		if perr != nil {
			return fmt.Errorf("set_rate rate: %w", perr)
		}
		caller := h.book.Address(st.SetRate.Caller)
		receipt, err = h.chain.Execute(ctx, func(ctx context.Context) error {
			return h.engine.SetRate(ctx, caller, rate)
		})

	case st.SetPaused != nil:
		action = "set_paused"
		caller := h.book.Address(st.SetPaused.Caller)
		receipt, err = h.chain.Execute(ctx, func(ctx context.Context) error {
			return h.engine.SetPaused(ctx, caller, st.SetPaused.Paused)
		})

	case st.SetStart != nil:
		action = "set_start_height"
		caller := h.book.Address(st.SetStart.Caller)
		receipt, err = h.chain.Execute(ctx, func(ctx context.Context) error {
			return h.engine.SetStartHeight(ctx, caller, st.SetStart.Height)
		})

	case st.SetEnd != nil:
		action = "set_end_height"
		caller := h.book.Address(st.SetEnd.Caller)
		receipt, err = h.chain.Execute(ctx, func(ctx context.Context) error {
			return h.engine.SetEndHeight(ctx, caller, st.SetEnd.Height)
		})

	case st.Uninstall != nil:
		action = "uninstall"
		helpers := h.helpers
		if st.Uninstall.Helpers != nil {
			helpers = make([]ir.Address, len(st.Uninstall.Helpers))
			for i, name := range st.Uninstall.Helpers {
				helpers[i] = h.book.Address(name)
			}
		}
		payload := permission.UninstallPayload{Plugin: h.engine.Address(), Helpers: helpers}
		receipt, err = h.chain.Execute(ctx, func(ctx context.Context) error {
			grants, err := h.prov.PrepareUninstallation(ctx, h.dao, payload)
			if err != nil {
				return err
			}
			return h.chain.ApplyPermissions(ctx, grants)
		})

	default:
		return fmt.Errorf("step has no action")
	}

	h.record(result, n, action, st.ExpectError, receipt, err)
	return nil
}

// setHook installs or removes a receive hook on an account.
func (h *Harness) setHook(hs *HookStep) {
	addr := h.book.Address(hs.Account)
	switch hs.Action {
	case HookRefuse:
		h.chain.SetReceiveHook(addr, func(context.Context, ir.Address, *big.Int) error {
			return errRefused
		})
	case HookReenter:
		h.chain.SetReceiveHook(addr, func(ctx context.Context, _ ir.Address, amount *big.Int) error {
			_, _, err := h.chain.Buy(ctx, h.engine, addr, addr, amount)
			return err
		})
	case HookPauseRefuse:
		h.chain.SetReceiveHook(addr, func(ctx context.Context, _ ir.Address, _ *big.Int) error {
			if err := h.engine.SetPaused(ctx, addr, true); err != nil {
				return err
			}
			return errRefused
		})
	default:
		h.chain.SetReceiveHook(addr, nil)
	}
}

// restart persists the engine's snapshot and replaces the engine with
// one restored from the store.
func (h *Harness) restart(ctx context.Context) error {
	if err := h.store.SaveSnapshot(ctx, h.engine.Snapshot(), h.chain.Height()); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	snap, err := h.store.LatestSnapshot(ctx, h.engine.Address())
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	restored, err := sale.Restore(snap, h.chain.SaleEnv(h.logger), h.engineOpts...)
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	h.engine = restored
	h.logger.Debug("engine restarted", "engine", restored.Address().String(), "raised", restored.Raised().String())
	return nil
}

// record checks a step's outcome against its expectation and appends it
// to the trace.
func (h *Harness) record(result *Result, n int, action, expect string, receipt chain.Receipt, err error) {
	entry := TraceEntry{
		Step:   n,
		Action: action,
		Height: h.chain.Height(),
	}

	if err != nil {
		code := ErrorCode(err)
		entry.Error = code
		switch {
		case expect == "":
			result.AddError(fmt.Sprintf("step %d (%s): unexpected error %s: %v", n, action, code, err))
		case expect != code:
			result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got %s: %v", n, action, expect, code, err))
		}
		result.AddTrace(entry)
		return
	}

	if expect != "" {
		result.AddError(fmt.Sprintf("step %d (%s): expected error %s, got success", n, action, expect))
	}
	entry.Tx = receipt.TxID
	for _, ev := range receipt.Events {
		entry.Events = append(entry.Events, TraceEvent{
			Emitter: h.book.Label(ev.Emitter),
			Name:    ev.Name,
			Fields:  h.nameFields(ev.Fields),
		})
	}
	for _, g := range receipt.Permissions {
		entry.Permissions = append(entry.Permissions, TraceGrant{
			Op:         string(g.Op),
			Where:      h.book.Label(g.Where),
			Who:        h.book.Label(g.Who),
			Capability: string(g.Capability),
		})
	}
	result.AddTrace(entry)
}

// nameFields replaces known addresses in event fields with their names.
func (h *Harness) nameFields(fields ir.Object) ir.Object {
	out := make(ir.Object, len(fields))
	for k, v := range fields {
		if s, ok := v.(ir.String); ok {
			if addr, err := ir.ParseAddress(string(s)); err == nil {
				out[k] = ir.String(h.book.Label(addr))
				continue
			}
		}
		out[k] = v
	}
	return out
}

// ErrorCode maps a step failure to the code scenarios expect.
func ErrorCode(err error) string {
	if code := sale.CodeOf(err); code != "" {
		return string(code)
	}

	var unauthorized *ir.UnauthorizedError
	var decodeErr *permission.DecodeError
	switch {
	case errors.As(err, &unauthorized):
		return CodeUnauthorized
	case errors.As(err, &decodeErr):
		return CodeInvalidParams
	case errors.Is(err, chain.ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, permission.ErrMissingAsset):
		return CodeMissingAsset
	case errors.Is(err, permission.ErrMissingPlugin):
		return CodeMissingPlugin
	case errors.Is(err, permission.ErrMissingDAO):
		return CodeMissingDAO
	case errors.Is(err, errRefused):
		return CodeRefused
	default:
		return CodeUnknown
	}
}
