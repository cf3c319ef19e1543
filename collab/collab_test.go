package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/domain"
)

func TestFakeInferenceRouterIsDeterministic(t *testing.T) {
	r := FakeInferenceRouter{}
	capacity := domain.CapacityVector{TokenLimit: 1000, ToolAllowlist: []string{"search"}}

	a, err := r.RouteTurn(context.Background(), "hello world", capacity)
	require.NoError(t, err)
	b, err := r.RouteTurn(context.Background(), "hello world", capacity)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFakeWalletTransferDebitsBalance(t *testing.T) {
	w := NewFakeWallet(map[string]float64{"USDC": 100})

	txHash, err := w.Transfer(context.Background(), "0x1111111111111111111111111111111111111111", "USDC", 40, "ethereum", "")
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)

	bal, err := w.Balance(context.Background(), "USDC")
	require.NoError(t, err)
	assert.InDelta(t, 60.0, bal, 1e-9)
}

func TestFakeWalletRejectsTransferExceedingBalance(t *testing.T) {
	w := NewFakeWallet(map[string]float64{"USDC": 10})
	_, err := w.Transfer(context.Background(), "0x1111111111111111111111111111111111111111", "USDC", 50, "ethereum", "")
	assert.Error(t, err)
}

func TestFakeToolGatewayEnforcesAllowlist(t *testing.T) {
	g := FakeToolGateway{}

	_, err := g.Invoke(context.Background(), "search", []string{"search", "notes"}, nil)
	assert.NoError(t, err)

	_, err = g.Invoke(context.Background(), "replicate", []string{"search", "notes"}, nil)
	assert.Error(t, err)
}
