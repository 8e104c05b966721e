package cartstore

import (
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

type EventKind string

const (
	EventApplied    EventKind = "APPLIED"
	EventReconciled EventKind = "RECONCILED"
	EventRolledBack EventKind = "ROLLED_BACK"
)

// Event tells the UI layer that the rendered cart changed. Side effects
// like toasts belong to whoever consumes this channel, not to the store.
type Event struct {
	Kind     EventKind
	IntentID uuid.UUID
	Cart     domain.Cart
}

// Events is the observer channel for UI consumption.
func (s *Store) Events() <-chan Event {
	return s.events
}

// emit never blocks; a slow or absent consumer just misses events, the
// next Snapshot call still shows current state.
func (s *Store) emit(e Event) {
	select {
	case s.events <- e:
	default:
	}
}
