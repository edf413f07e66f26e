// Package session tracks which interactive view each actor currently has
// open, routes input events to the right handler, and filters out input
// gestures that could move items in or out of a view surface.
package session

import "context"

// Kind identifies which interactive view a session is bound to.
type Kind string

const (
	KindMarketplace Kind = "marketplace"
	KindBlackMarket Kind = "blackmarket"
	KindMyItems     Kind = "my_items"
	KindHistory     Kind = "history"
	KindConfirm     Kind = "confirm"
	KindAdmin       Kind = "admin"
)

// Gesture is the closed set of input gestures a host surface can report.
// Anything the host cannot map onto one of the named gestures must be
// reported as GestureUnknown.
type Gesture int

const (
	// GestureSelect is a primary single activation (click).
	GestureSelect Gesture = iota
	// GestureSecondarySelect is a secondary single activation.
	GestureSecondarySelect
	// GestureBulkTransfer moves a whole stack between surfaces.
	GestureBulkTransfer
	// GestureNumericSwap swaps the target with a numbered quick slot.
	GestureNumericSwap
	// GestureDoubleCollect gathers matching items onto the cursor.
	GestureDoubleCollect
	// GestureDragPlace places a held item into the surface.
	GestureDragPlace
	// GestureUnknown is any gesture the host could not classify.
	GestureUnknown
)

func (g Gesture) String() string {
	switch g {
	case GestureSelect:
		return "select"
	case GestureSecondarySelect:
		return "secondary_select"
	case GestureBulkTransfer:
		return "bulk_transfer"
	case GestureNumericSwap:
		return "numeric_swap"
	case GestureDoubleCollect:
		return "double_collect"
	case GestureDragPlace:
		return "drag_place"
	default:
		return "unknown"
	}
}

// Event is one input interaction against an active session's surface.
type Event struct {
	Gesture Gesture
	// Slot is the surface position the gesture targeted.
	Slot int
	// Button names the navigation control at the slot, if any
	// ("next-page", "previous-page", "close", ...). Empty for item slots.
	Button string
	// HeldPayload is the item currently on the actor's input cursor,
	// nil when the cursor is empty.
	HeldPayload []byte
}

// Verdict is the classifier's decision for one event. The host owns the
// cursor; ClearCursor instructs it to drop any held item.
type Verdict struct {
	Allowed     bool
	ClearCursor bool
}

// Session binds one actor to one active interactive view. Sessions are
// in-memory only and carry whatever paging state the view needs.
type Session struct {
	ActorID string
	Kind    Kind
	// Page is the current zero-based page of a paged view.
	Page int
}

// Handler processes allowed events and refresh pushes for one session kind.
type Handler interface {
	// Handle runs the view's own logic for an event that passed
	// classification.
	Handle(ctx context.Context, s *Session, ev Event) error
	// Refresh pushes the current state to a live session after a
	// listing mutation.
	Refresh(ctx context.Context, s *Session) error
}

// HandlerFunc adapts plain functions to Handler with a no-op Refresh.
type HandlerFunc func(ctx context.Context, s *Session, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, s *Session, ev Event) error {
	return f(ctx, s, ev)
}

func (f HandlerFunc) Refresh(context.Context, *Session) error { return nil }
