// Package bequests parses, validates, and executes the post-mortem asset
// transfers declared in a will document (spec.md §4.12). Parsing targets
// the will's `[[bequests.transfer]]` blocks, a minimal TOML-like dialect;
// no TOML library is wired into this module (see DESIGN.md), so parsing is
// hand-rolled line scanning, the way the teacher's lightweight config
// readers scan key=value pairs without a general parser.
package bequests

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/automaton-systems/lifecycle-core/domain"
	sverrors "github.com/automaton-systems/lifecycle-core/infrastructure/errors"
)

var recipientPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

const (
	blockMarker = "[[bequests.transfer]]"
	tableHeader = "[bequests]"
)

// Parse extracts the bequests table from a will document's text. Entries
// missing any of recipient/asset/amount/chain are dropped silently, per
// spec.md §4.12.
func Parse(willContent string) domain.BequestsTable {
	var table domain.BequestsTable

	inBequests := false
	var current map[string]string

	flush := func() {
		if current == nil {
			return
		}
		recipient, asset, amount, chain := current["recipient"], current["asset"], current["amount"], current["chain"]
		if recipient != "" && asset != "" && amount != "" && chain != "" {
			table.Transfers = append(table.Transfers, domain.BequestTransfer{
				Recipient: recipient,
				Asset:     asset,
				Amount:    amount,
				Chain:     chain,
				Note:      current["note"],
			})
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(willContent))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == tableHeader:
			inBequests = true
			continue
		case strings.HasPrefix(line, "[") && line != blockMarker:
			flush()
			inBequests = false
			continue
		case line == blockMarker:
			flush()
			current = make(map[string]string)
			continue
		}

		if !inBequests || current == nil || line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := splitKeyValue(line)
		if ok {
			current[key] = value
		}
	}
	flush()

	return table
}

func splitKeyValue(line string) (string, string, bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	value = strings.Trim(value, `"`)
	return key, value, true
}

// ValidationResult pairs a transfer with any validation error — validation
// is per-entry and never aborts the batch (spec.md §4.12, §7).
type ValidationResult struct {
	Transfer domain.BequestTransfer
	Err      *sverrors.ServiceError
}

// Validate checks recipient format, numeric amount positivity, and the
// at-most-one-remaining_balance-per-asset invariant.
func Validate(table domain.BequestsTable) []ValidationResult {
	results := make([]ValidationResult, 0, len(table.Transfers))
	seenRemaining := map[string]bool{}

	for _, t := range table.Transfers {
		if !recipientPattern.MatchString(t.Recipient) {
			results = append(results, ValidationResult{t, sverrors.BequestValidationFailed(t.Recipient, "recipient is not a valid 0x-prefixed 40-hex-digit address")})
			continue
		}

		if t.IsRemainingBalance() {
			if seenRemaining[t.Asset] {
				results = append(results, ValidationResult{t, sverrors.BequestValidationFailed(t.Recipient, "more than one remaining_balance entry for asset "+t.Asset)})
				continue
			}
			seenRemaining[t.Asset] = true
			results = append(results, ValidationResult{Transfer: t})
			continue
		}

		if t.IsUnboundedAll() {
			results = append(results, ValidationResult{Transfer: t})
			continue
		}

		amount, err := strconv.ParseFloat(t.Amount, 64)
		if err != nil || amount <= 0 {
			results = append(results, ValidationResult{t, sverrors.BequestValidationFailed(t.Recipient, "amount must be a positive number, \"remaining_balance\", or \"all\"")})
			continue
		}

		results = append(results, ValidationResult{Transfer: t})
	}

	return results
}

// TransferFunc performs one on-chain (or off-chain) transfer, returning a
// transaction hash on success. Bound to an external wallet collaborator;
// see package collab.
type TransferFunc func(ctx context.Context, recipient, asset string, amount float64, chain, note string) (txHash string, err error)

// BalanceFunc returns the current balance of an asset.
type BalanceFunc func(ctx context.Context, asset string) (float64, error)

// Execute runs the parsed, validated table against transferFn/balanceFn
// following the fixed-then-scaled-then-remaining order of spec.md §4.12.
// A failed or invalid entry is recorded in the results and never aborts
// the remaining sequence.
func Execute(ctx context.Context, table domain.BequestsTable, transferFn TransferFunc, balanceFn BalanceFunc) []domain.BequestResult {
	validated := Validate(table)

	var results []domain.BequestResult

	byAsset := map[string][]ValidationResult{}
	order := []string{}
	for _, v := range validated {
		if v.Err != nil {
			results = append(results, domain.BequestResult{
				Recipient: v.Transfer.Recipient,
				Asset:     v.Transfer.Asset,
				Success:   false,
				Error:     v.Err.Error(),
			})
			continue
		}
		if _, ok := byAsset[v.Transfer.Asset]; !ok {
			order = append(order, v.Transfer.Asset)
		}
		byAsset[v.Transfer.Asset] = append(byAsset[v.Transfer.Asset], v)
	}

	for _, asset := range order {
		results = append(results, executeAsset(ctx, asset, byAsset[asset], transferFn, balanceFn)...)
	}

	return results
}

func executeAsset(ctx context.Context, asset string, entries []ValidationResult, transferFn TransferFunc, balanceFn BalanceFunc) []domain.BequestResult {
	var fixed []domain.BequestTransfer
	var unboundedAll []domain.BequestTransfer
	var remaining *domain.BequestTransfer

	for _, e := range entries {
		t := e.Transfer
		switch {
		case t.IsRemainingBalance():
			tCopy := t
			remaining = &tCopy
		case t.IsUnboundedAll():
			unboundedAll = append(unboundedAll, t)
		default:
			fixed = append(fixed, t)
		}
	}

	var results []domain.BequestResult

	balance, err := balanceFn(ctx, asset)
	if err != nil {
		balance = 0
	}

	sumFixed := 0.0
	for _, t := range fixed {
		amount, _ := strconv.ParseFloat(t.Amount, 64)
		sumFixed += amount
	}

	scale := 1.0
	if sumFixed > balance && len(unboundedAll) == 0 && sumFixed > 0 {
		scale = balance / sumFixed
	}

	spent := 0.0
	for _, t := range fixed {
		amount, _ := strconv.ParseFloat(t.Amount, 64)
		scaledAmount := roundTo6(amount * scale)
		spent += scaledAmount
		results = append(results, runTransfer(ctx, t, scaledAmount, transferFn))
	}

	for _, t := range unboundedAll {
		results = append(results, runTransfer(ctx, t, roundTo6(balance), transferFn))
		spent = balance
	}

	if remaining != nil {
		residual := balance - spent
		if residual < 0 {
			residual = 0
		}
		results = append(results, runTransfer(ctx, *remaining, roundTo6(residual), transferFn))
	}

	return results
}

func runTransfer(ctx context.Context, t domain.BequestTransfer, amount float64, transferFn TransferFunc) domain.BequestResult {
	txHash, err := transferFn(ctx, t.Recipient, t.Asset, amount, t.Chain, t.Note)
	if err != nil {
		return domain.BequestResult{
			Recipient: t.Recipient, Asset: t.Asset, Amount: amount,
			Success: false, Error: sverrors.BequestTransferFailed(t.Recipient, err).Error(),
		}
	}
	return domain.BequestResult{
		Recipient: t.Recipient, Asset: t.Asset, Amount: amount,
		TxHash: &txHash, Success: true,
	}
}

func roundTo6(v float64) float64 {
	s := fmt.Sprintf("%.6f", v)
	out, _ := strconv.ParseFloat(s, 64)
	return out
}
