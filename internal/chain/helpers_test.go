package chain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/capsale/internal/ir"
	"github.com/roach88/capsale/internal/permission"
	"github.com/roach88/capsale/internal/sale"
)

var (
	testDAO   = ir.NamedAddress("dao")
	testAsset = ir.NamedAddress("token")
	testAlice = ir.NamedAddress("alice")
	testBob   = ir.NamedAddress("bob")

	oneEther = ir.MustParseAmount("1000000000000000000")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	chain    *Chain
	registry *permission.MemoryRegistry
	engine   *sale.Engine
	commits  []Receipt
}

// newFixture installs a sale (rate 1000, cap 10 ether, window [100,200])
// at height 150 and funds alice with 20 ether.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{registry: permission.NewMemoryRegistry(discardLogger())}
	f.chain = New(f.registry,
		WithTxIDGenerator(NewSequentialGenerator("tx")),
		WithLogger(discardLogger()),
		WithHeight(150),
	)
	f.chain.Subscribe(SubscriberFunc(func(_ context.Context, r Receipt) error {
		f.commits = append(f.commits, r)
		return nil
	}))
	require.NoError(t, f.chain.CreateAsset(testAsset, "TOKEN"))
	require.NoError(t, f.chain.Fund(testAlice, new(big.Int).Mul(oneEther, big.NewInt(20))))

	prov := permission.NewProvisioner(f.chain, f.chain.SaleEnv(discardLogger()), permission.WithLogger(discardLogger()))
	encoded, err := permission.EncodeInstallParams(permission.InstallParams{
		Asset:       testAsset,
		Rate:        big.NewInt(1000),
		Cap:         new(big.Int).Mul(oneEther, big.NewInt(10)),
		StartHeight: 100,
		EndHeight:   200,
	})
	require.NoError(t, err)

	_, err = f.chain.Execute(ctx, func(ctx context.Context) error {
		inst, err := prov.PrepareInstallation(ctx, testDAO, encoded)
		if err != nil {
			return err
		}
		f.engine = inst.Engine
		return f.chain.ApplyPermissions(ctx, inst.Grants)
	})
	require.NoError(t, err)
	f.commits = nil
	return f
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(oneEther, big.NewInt(n))
}
