package bequests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automaton-systems/lifecycle-core/domain"
)

const sampleWill = `
# Will

[bequests]

[[bequests.transfer]]
recipient = "0x1111111111111111111111111111111111111111"
asset = "USDC"
amount = "70"
chain = "ethereum"
note = "for my friend"

[[bequests.transfer]]
recipient = "0x2222222222222222222222222222222222222222"
asset = "USDC"
amount = "60"
chain = "ethereum"

[[bequests.transfer]]
recipient = "0x3333333333333333333333333333333333333333"
asset = "USDC"
amount = "remaining_balance"
chain = "ethereum"
`

func TestParseExtractsTransfersFromWillDocument(t *testing.T) {
	table := Parse(sampleWill)
	require.Len(t, table.Transfers, 3)
	assert.Equal(t, "70", table.Transfers[0].Amount)
	assert.Equal(t, "remaining_balance", table.Transfers[2].Amount)
}

func TestParseDropsEntriesMissingRequiredFields(t *testing.T) {
	will := `
[bequests]
[[bequests.transfer]]
recipient = "0x1111111111111111111111111111111111111111"
amount = "10"
`
	table := Parse(will)
	assert.Empty(t, table.Transfers, "missing asset/chain must drop the entry")
}

func TestValidateRejectsMalformedRecipientAndDuplicateRemaining(t *testing.T) {
	table := domain.BequestsTable{Transfers: []domain.BequestTransfer{
		{Recipient: "not-an-address", Asset: "USDC", Amount: "10", Chain: "ethereum"},
		{Recipient: "0x1111111111111111111111111111111111111111", Asset: "USDC", Amount: "remaining_balance", Chain: "ethereum"},
		{Recipient: "0x2222222222222222222222222222222222222222", Asset: "USDC", Amount: "remaining_balance", Chain: "ethereum"},
	}}

	results := Validate(table)
	require.Len(t, results, 3)
	assert.NotNil(t, results[0].Err)
	assert.Nil(t, results[1].Err)
	assert.NotNil(t, results[2].Err, "second remaining_balance entry for the same asset must be rejected")
}

func TestExecuteScalesFixedTransfersWhenTheyExceedBalance(t *testing.T) {
	table := domain.BequestsTable{Transfers: []domain.BequestTransfer{
		{Recipient: "0x1111111111111111111111111111111111111111", Asset: "USDC", Amount: "70", Chain: "ethereum"},
		{Recipient: "0x2222222222222222222222222222222222222222", Asset: "USDC", Amount: "60", Chain: "ethereum"},
	}}

	transferFn := func(ctx context.Context, recipient, asset string, amount float64, chain, note string) (string, error) {
		return "0xdeadbeef", nil
	}
	balanceFn := func(ctx context.Context, asset string) (float64, error) {
		return 100, nil
	}

	results := Execute(context.Background(), table, transferFn, balanceFn)
	require.Len(t, results, 2)

	sum := 0.0
	for _, r := range results {
		assert.True(t, r.Success)
		sum += r.Amount
	}
	// The declared order (§4.12 step 1-2) scales each fixed transfer by
	// balance/sum(fixed) = 100/130, so the scaled amounts must still sum
	// to no more than the available balance.
	assert.InDelta(t, 100.0, sum, 0.01)
	assert.InDelta(t, 53.846154, results[0].Amount, 1e-5)
	assert.InDelta(t, 46.153846, results[1].Amount, 1e-5)
}

func TestExecuteRunsRemainingBalanceTransferLastAndConsumesResidual(t *testing.T) {
	table := domain.BequestsTable{Transfers: []domain.BequestTransfer{
		{Recipient: "0x1111111111111111111111111111111111111111", Asset: "USDC", Amount: "30", Chain: "ethereum"},
		{Recipient: "0x2222222222222222222222222222222222222222", Asset: "USDC", Amount: "remaining_balance", Chain: "ethereum"},
	}}

	transferFn := func(ctx context.Context, recipient, asset string, amount float64, chain, note string) (string, error) {
		return "0xdeadbeef", nil
	}
	balanceFn := func(ctx context.Context, asset string) (float64, error) {
		return 100, nil
	}

	results := Execute(context.Background(), table, transferFn, balanceFn)
	require.Len(t, results, 2)
	assert.InDelta(t, 30.0, results[0].Amount, 1e-9)
	assert.InDelta(t, 70.0, results[1].Amount, 1e-9, "residual transfer must consume balance - sum(fixed)")
}

func TestExecuteRecordsFailedTransfersWithoutAbortingTheSequence(t *testing.T) {
	table := domain.BequestsTable{Transfers: []domain.BequestTransfer{
		{Recipient: "0x1111111111111111111111111111111111111111", Asset: "USDC", Amount: "10", Chain: "ethereum"},
		{Recipient: "0x2222222222222222222222222222222222222222", Asset: "USDC", Amount: "20", Chain: "ethereum"},
	}}

	calls := 0
	transferFn := func(ctx context.Context, recipient, asset string, amount float64, chain, note string) (string, error) {
		calls++
		if calls == 1 {
			return "", assert.AnError
		}
		return "0xdeadbeef", nil
	}
	balanceFn := func(ctx context.Context, asset string) (float64, error) {
		return 100, nil
	}

	results := Execute(context.Background(), table, transferFn, balanceFn)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success, "a failed transfer must not abort remaining entries")
}
