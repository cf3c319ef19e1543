// Package collab defines the small interfaces the lifecycle core talks to
// but does not own: the external inference router, wallet, and tool
// gateway (spec.md §1 Non-goals; SPEC_FULL.md §4.14). Real wiring of these
// is out of scope for this module — what's here exists so the reference
// daemon and its integration tests can exercise a full tick end-to-end
// against deterministic in-memory fakes.
package collab

import (
	"context"
	"fmt"
	"sync"

	"github.com/automaton-systems/lifecycle-core/domain"
)

// InferenceRouter routes one turn of inference, consuming the computed
// capacity vector as a scheduling and budget input. The real router lives
// outside this module.
type InferenceRouter interface {
	RouteTurn(ctx context.Context, prompt string, capacity domain.CapacityVector) (string, error)
}

// Wallet is the minimal balance/transfer surface the bequests executor and
// the lifecycle reserve need.
type Wallet interface {
	Balance(ctx context.Context, asset string) (float64, error)
	Transfer(ctx context.Context, recipient, asset string, amount float64, chain, note string) (txHash string, err error)
}

// ToolGateway exposes only the tools named in a capacity vector's
// allowlist; anything else is refused.
type ToolGateway interface {
	Invoke(ctx context.Context, tool string, allowlist []string, args map[string]interface{}) (string, error)
}

// FakeInferenceRouter is a deterministic stand-in: it echoes the prompt
// length and the capacity vector it was given, never calling out to a real
// model. Used by the reference daemon and its tests.
type FakeInferenceRouter struct{}

// RouteTurn implements InferenceRouter deterministically.
func (FakeInferenceRouter) RouteTurn(_ context.Context, prompt string, capacity domain.CapacityVector) (string, error) {
	return fmt.Sprintf("[fake inference] %d chars of context, token_limit=%d, tools=%d",
		len(prompt), capacity.TokenLimit, len(capacity.ToolAllowlist)), nil
}

// FakeWallet is an in-memory wallet keyed by asset symbol, safe for
// concurrent use.
type FakeWallet struct {
	mu       sync.Mutex
	balances map[string]float64
}

// NewFakeWallet constructs a FakeWallet seeded with the given balances.
func NewFakeWallet(seed map[string]float64) *FakeWallet {
	balances := make(map[string]float64, len(seed))
	for k, v := range seed {
		balances[k] = v
	}
	return &FakeWallet{balances: balances}
}

// Balance implements Wallet.
func (w *FakeWallet) Balance(_ context.Context, asset string) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balances[asset], nil
}

// Transfer implements Wallet: it debits the asset balance and returns a
// synthetic transaction hash. Insufficient balance is rejected.
func (w *FakeWallet) Transfer(_ context.Context, recipient, asset string, amount float64, chain, note string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if amount > w.balances[asset] {
		return "", fmt.Errorf("insufficient %s balance: have %.6f, need %.6f", asset, w.balances[asset], amount)
	}
	w.balances[asset] -= amount
	return fmt.Sprintf("0xfake%s%s%.6f", chain, recipient[2:10], amount), nil
}

// FakeToolGateway invokes nothing; it reports whether the requested tool
// would have been allowed.
type FakeToolGateway struct{}

// Invoke implements ToolGateway by checking the allowlist only.
func (FakeToolGateway) Invoke(_ context.Context, tool string, allowlist []string, _ map[string]interface{}) (string, error) {
	for _, t := range allowlist {
		if t == tool {
			return fmt.Sprintf("[fake tool result] %s", tool), nil
		}
	}
	return "", fmt.Errorf("tool %q not in allowlist", tool)
}
