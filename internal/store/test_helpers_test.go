package store

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/roach88/capsale/internal/chain"
	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
)

var (
	testDAO   = ir.NamedAddress("dao")
	testAsset = ir.NamedAddress("token")
	testAlice = ir.NamedAddress("alice")
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type recorded struct {
	store *Store
	chain *chain.Chain
	inst  *permission.Installation
	prov  *permission.Provisioner
}

// recordSale installs a sale with the store subscribed to the chain and
// makes one purchase of 2 wei by alice.
func recordSale(t *testing.T) *recorded {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := createTestStore(t)
	c := chain.New(permission.NewMemoryRegistry(logger),
		chain.WithLogger(logger),
		chain.WithTxIDGenerator(chain.NewSequentialGenerator("tx")),
		chain.WithHeight(150),
	)
	c.Subscribe(s)
	if err := c.CreateAsset(testAsset, "TOKEN"); err != nil {
		t.Fatalf("CreateAsset() failed: %v", err)
	}
	if err := c.Fund(testAlice, big.NewInt(100)); err != nil {
		t.Fatalf("Fund() failed: %v", err)
	}

	prov := permission.NewProvisioner(c, c.SaleEnv(logger), permission.WithLogger(logger))
	encoded, err := permission.EncodeInstallParams(permission.InstallParams{
		Asset:       testAsset,
		Rate:        big.NewInt(1000),
		Cap:         big.NewInt(1000),
		StartHeight: 100,
		EndHeight:   200,
	})
	if err != nil {
		t.Fatalf("EncodeInstallParams() failed: %v", err)
	}

	r := &recorded{store: s, chain: c, prov: prov}
	_, err = c.Execute(ctx, func(ctx context.Context) error {
		inst, err := prov.PrepareInstallation(ctx, testDAO, encoded)
		if err != nil {
			return err
		}
		r.inst = inst
		return c.ApplyPermissions(ctx, inst.Grants)
	})
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}

	if _, _, err := c.Buy(ctx, r.inst.Engine, testAlice, testAlice, big.NewInt(2)); err != nil {
		t.Fatalf("Buy() failed: %v", err)
	}
	return r
}
