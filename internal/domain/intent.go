package domain

import "github.com/google/uuid"

type IntentKind string

const (
	IntentAdd         IntentKind = "ADD"
	IntentRemove      IntentKind = "REMOVE"
	IntentSetQuantity IntentKind = "SET_QUANTITY"
)

// MutationIntent is one desired change to a cart. The same value travels
// the whole pipeline: applied optimistically by the cart store, coalesced
// by the coordinator, and executed authoritatively by the sync service.
type MutationIntent struct {
	ID            uuid.UUID  `json:"id"`
	Kind          IntentKind `json:"kind"`
	ServiceID     string     `json:"service_id,omitempty"`
	OptionID      string     `json:"option_id,omitempty"`
	ItemID        string     `json:"item_id,omitempty"`
	QuantityDelta int        `json:"quantity_delta,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
}

func NewAddIntent(serviceID, optionID string, quantityDelta int) MutationIntent {
	return MutationIntent{
		ID:            uuid.New(),
		Kind:          IntentAdd,
		ServiceID:     serviceID,
		OptionID:      optionID,
		QuantityDelta: quantityDelta,
	}
}

func NewRemoveIntent(itemID string) MutationIntent {
	return MutationIntent{
		ID:     uuid.New(),
		Kind:   IntentRemove,
		ItemID: itemID,
	}
}

func NewSetQuantityIntent(itemID string, quantity int) MutationIntent {
	return MutationIntent{
		ID:       uuid.New(),
		Kind:     IntentSetQuantity,
		ItemID:   itemID,
		Quantity: quantity,
	}
}

// DedupeKey groups intents that represent the same user action so rapid
// repeats can be coalesced into a single network call.
func (m MutationIntent) DedupeKey() string {
	if m.Kind == IntentAdd {
		return string(m.Kind) + "|" + LineKey(m.ServiceID, m.OptionID)
	}
	return string(m.Kind) + "|" + m.ItemID
}
