package market

import (
	"encoding/json"
	"strings"
)

// envelopePrefix marks metadata keys the exchange attaches to item payloads
// when rendering them into a view surface (listing id, button tags). These
// keys must never leave the marketplace: an item granted to a buyer has to
// be indistinguishable from a freshly created item of its kind.
const envelopePrefix = "bazaar:"

// AttachListingID tags a JSON item payload with its listing id for view
// rendering. Non-JSON payloads are returned unchanged.
func AttachListingID(payload []byte, listingID string) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	id, _ := json.Marshal(listingID)
	obj[envelopePrefix+"listing_id"] = id
	out, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return out
}

// ListingIDFromPayload extracts the listing id tag from a rendered payload,
// or "" if none is present.
func ListingIDFromPayload(payload []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return ""
	}
	raw, ok := obj[envelopePrefix+"listing_id"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id
}

// StripEnvelope removes every marketplace metadata key from a JSON item
// payload. Payloads that are not JSON objects carry no envelope and pass
// through untouched.
func StripEnvelope(payload []byte) []byte {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	stripped := false
	for k := range obj {
		if strings.HasPrefix(k, envelopePrefix) {
			delete(obj, k)
			stripped = true
		}
	}
	if !stripped {
		return payload
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return out
}

// ItemName extracts a human-readable item name from a JSON payload's
// "name" field, falling back to "Unknown Item".
func ItemName(payload []byte) string {
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil || obj.Name == "" {
		return "Unknown Item"
	}
	return obj.Name
}
