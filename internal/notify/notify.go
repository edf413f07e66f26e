// Package notify delivers fire-and-forget event notifications to an
// external webhook sink. Delivery failures are logged and never surfaced
// to the caller.
package notify

import (
	"context"

	"github.com/shopspring/decimal"
)

// EventKind identifies what happened.
type EventKind string

const (
	EventPurchase            EventKind = "purchase"
	EventBlackMarketPurchase EventKind = "blackmarket_purchase"
	EventListed              EventKind = "listed"
	EventBlackMarketRefresh  EventKind = "blackmarket_refresh"
)

// Event is the structured payload handed to the sink.
type Event struct {
	Kind       EventKind
	BuyerName  string
	SellerName string
	ItemName   string
	Price      decimal.Decimal
	// ItemCount is set for refresh events.
	ItemCount int
}

// Notifier sends events off the critical path. Implementations must not
// block the caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
