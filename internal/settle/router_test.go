package settle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasvaultlabs/gasvault/internal/domain"
)

type fakeRegistry struct {
	dests map[string]domain.Destination
}

func (r *fakeRegistry) ResolveDestination(name string) (domain.Destination, error) {
	d, ok := r.dests[name]
	if !ok {
		return domain.Destination{}, domain.ErrInvalidDestination
	}
	return d, nil
}

type fakeCustody struct {
	transfers   []string
	approvals   []string
	transferErr error
	approveErr  error
}

func (c *fakeCustody) Transfer(_ context.Context, to string, amount *big.Int) error {
	if c.transferErr != nil {
		return c.transferErr
	}
	c.transfers = append(c.transfers, to+":"+amount.String())
	return nil
}

func (c *fakeCustody) TransferFrom(context.Context, string, string, *big.Int) error { return nil }

func (c *fakeCustody) Approve(_ context.Context, spender string, amount *big.Int) error {
	if c.approveErr != nil {
		return c.approveErr
	}
	c.approvals = append(c.approvals, spender+":"+amount.String())
	return nil
}

func (c *fakeCustody) BalanceOf(context.Context, string) (*big.Int, error) { return new(big.Int), nil }
func (c *fakeCustody) Address() string                                     { return "0xvault" }

type fakeBridge struct {
	calls      int
	networkID  uint64
	recipient  string
	routeData  []byte
	deliverErr error
}

func (b *fakeBridge) Deliver(_ context.Context, networkID uint64, _ *big.Int, recipient string, routeData []byte) error {
	if b.deliverErr != nil {
		return b.deliverErr
	}
	b.calls++
	b.networkID = networkID
	b.recipient = recipient
	b.routeData = routeData
	return nil
}

func (b *fakeBridge) Spender() string { return "0xbridge" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *fakeRegistry {
	return &fakeRegistry{dests: map[string]domain.Destination{
		"local":  {Name: "local", NetworkID: domain.LocalNetworkID},
		"remote": {Name: "remote", NetworkID: 137},
	}}
}

func TestDeliverLocal(t *testing.T) {
	custody := &fakeCustody{}
	bridge := &fakeBridge{}
	r := NewRouter(testRegistry(), custody, bridge, testLogger())

	err := r.Deliver(context.Background(), big.NewInt(100), "local", []byte("ignored"), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, []string{"0xabc:100"}, custody.transfers)
	assert.Zero(t, bridge.calls, "local delivery must not touch the bridge")
	assert.Empty(t, custody.approvals)
}

func TestDeliverRemote(t *testing.T) {
	custody := &fakeCustody{}
	bridge := &fakeBridge{}
	r := NewRouter(testRegistry(), custody, bridge, testLogger())

	route := []byte{0x01, 0x02}
	err := r.Deliver(context.Background(), big.NewInt(250), "remote", route, "0xdef")
	require.NoError(t, err)

	// The bridge is approved for exactly the delivered amount.
	assert.Equal(t, []string{"0xbridge:250"}, custody.approvals)
	assert.Equal(t, 1, bridge.calls)
	assert.Equal(t, uint64(137), bridge.networkID)
	assert.Equal(t, "0xdef", bridge.recipient)
	assert.Equal(t, route, bridge.routeData)
	assert.Empty(t, custody.transfers)
}

func TestDeliverUnknownDestination(t *testing.T) {
	r := NewRouter(testRegistry(), &fakeCustody{}, &fakeBridge{}, testLogger())

	err := r.Deliver(context.Background(), big.NewInt(1), "nowhere", nil, "0xabc")
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)
}

func TestDeliverLocalFailureMapsToTransferFailed(t *testing.T) {
	custody := &fakeCustody{transferErr: errors.New("rpc down")}
	r := NewRouter(testRegistry(), custody, &fakeBridge{}, testLogger())

	err := r.Deliver(context.Background(), big.NewInt(1), "local", nil, "0xabc")
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
}

func TestDeliverRemoteFailuresMapToBridgeFailed(t *testing.T) {
	t.Run("approve fails", func(t *testing.T) {
		custody := &fakeCustody{approveErr: errors.New("rpc down")}
		r := NewRouter(testRegistry(), custody, &fakeBridge{}, testLogger())

		err := r.Deliver(context.Background(), big.NewInt(1), "remote", nil, "0xabc")
		assert.ErrorIs(t, err, domain.ErrBridgeFailed)
	})

	t.Run("bridge call fails", func(t *testing.T) {
		bridge := &fakeBridge{deliverErr: errors.New("bridge reverted")}
		r := NewRouter(testRegistry(), &fakeCustody{}, bridge, testLogger())

		err := r.Deliver(context.Background(), big.NewInt(1), "remote", nil, "0xabc")
		assert.ErrorIs(t, err, domain.ErrBridgeFailed)
	})
}

func TestDeliverRemoteWithoutBridge(t *testing.T) {
	r := NewRouter(testRegistry(), &fakeCustody{}, nil, testLogger())

	err := r.Deliver(context.Background(), big.NewInt(1), "remote", nil, "0xabc")
	assert.ErrorIs(t, err, domain.ErrBridgeFailed)
}

func TestSetBridgeTakesEffect(t *testing.T) {
	r := NewRouter(testRegistry(), &fakeCustody{}, nil, testLogger())

	bridge := &fakeBridge{}
	r.SetBridge(bridge)

	err := r.Deliver(context.Background(), big.NewInt(1), "remote", nil, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, 1, bridge.calls)
}
