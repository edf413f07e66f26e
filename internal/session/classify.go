package session

// navButtons are the only controls a read-only history view responds to.
var navButtons = map[string]struct{}{
	"next-page":     {},
	"previous-page": {},
	"close":         {},
}

// Classify decides whether an event may reach the session's handler.
// Classification errs toward suppression: any gesture that could move an
// item into or out of the surface is denied, and a denied event clears
// whatever the cursor holds so nothing can be duplicated.
func Classify(kind Kind, ev Event) Verdict {
	deny := Verdict{Allowed: false, ClearCursor: ev.HeldPayload != nil}

	switch ev.Gesture {
	case GestureSelect, GestureSecondarySelect:
		// Single activations are the only legitimate interactions,
		// and only with an empty cursor; a held item on a select is a
		// placement attempt.
		if ev.HeldPayload != nil {
			return deny
		}
	case GestureBulkTransfer, GestureNumericSwap, GestureDoubleCollect, GestureDragPlace, GestureUnknown:
		return deny
	default:
		return deny
	}

	// Transaction history is fully read-only: only recognized navigation
	// buttons pass.
	if kind == KindHistory {
		if _, ok := navButtons[ev.Button]; !ok {
			return deny
		}
	}

	return Verdict{Allowed: true}
}
