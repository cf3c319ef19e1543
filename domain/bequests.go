package domain

// BequestTransfer is one declarative post-mortem asset transfer
// (spec.md §3, §4.12). Amount is kept as a string because it may carry the
// literal sentinels "remaining_balance" or "all" instead of a number.
type BequestTransfer struct {
	Recipient string
	Asset     string
	Amount    string
	Chain     string
	Note      string
}

// BequestsTable is the parsed [bequests] block of a will document.
type BequestsTable struct {
	Transfers []BequestTransfer
}

// IsRemainingBalance reports whether this transfer's amount is the
// "remaining_balance" sentinel.
func (t BequestTransfer) IsRemainingBalance() bool {
	return t.Amount == "remaining_balance"
}

// IsUnboundedAll reports whether this transfer's amount is the "all"
// sentinel (treated as infinite for scaling purposes, spec.md §4.12 step 2).
func (t BequestTransfer) IsUnboundedAll() bool {
	return t.Amount == "all"
}

// BequestResult is one row of the execution log (spec.md §4.12).
type BequestResult struct {
	Recipient string
	Asset     string
	Amount    float64
	TxHash    *string
	Success   bool
	Error     string
}
