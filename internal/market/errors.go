package market

import (
	"errors"
	"fmt"
)

// Caller-facing errors. Every one of these aborts the purchase before any
// side effect has happened and maps to a short, stable message.
var (
	// ErrItemGone means the listing no longer exists; another buyer won
	// the race or the listing expired.
	ErrItemGone = errors.New("item is no longer available")
	// ErrSelfPurchase means the buyer tried to buy their own listing.
	ErrSelfPurchase = errors.New("cannot buy your own listing")
	// ErrInsufficientFunds means the buyer balance is below the price.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNoCapacity means the buyer cannot receive the item.
	ErrNoCapacity = errors.New("no room to receive the item")
	// ErrInvalidPrice rejects a sell attempt with a non-positive price.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrTooManyListings rejects a sell attempt over the per-seller cap.
	ErrTooManyListings = errors.New("listing limit reached")
	// ErrDuplicateListing rejects re-listing an identical offer.
	ErrDuplicateListing = errors.New("identical listing already exists")
	// ErrNotSeller rejects cancelling somebody else's listing.
	ErrNotSeller = errors.New("not the seller of this listing")
)

// LedgerError wraps a failed external ledger call.
type LedgerError struct {
	Op  string // "withdraw", "deposit", "balance"
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

// InconsistencyError reports that the buyer was debited but a later
// pipeline step failed. There is no automatic compensation; the error
// carries enough context for manual reconciliation and is also logged at
// the highest severity by the pipeline.
type InconsistencyError struct {
	Step      string
	BuyerID   string
	SellerID  string
	ListingID string
	Err       error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("purchase inconsistent after debit (step %s, buyer %s, seller %s, listing %s): %v",
		e.Step, e.BuyerID, e.SellerID, e.ListingID, e.Err)
}

func (e *InconsistencyError) Unwrap() error { return e.Err }
