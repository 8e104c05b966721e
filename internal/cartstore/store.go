package cartstore

import (
	"strings"
	"sync"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

// Store holds the cart the UI renders. Mutations apply immediately and
// optimistically; server snapshots arriving through Reconcile replace the
// optimistic state wholesale. A journal of pending changes makes failed
// intents revertible without touching state that other intents have since
// confirmed.
type Store struct {
	mu      sync.Mutex
	cart    domain.Cart
	pending map[uuid.UUID]pendingChange
	lastSeq uint64
	events  chan Event
}

type changeKind int

const (
	changeInsert changeKind = iota
	changeQuantity
	changeRemove
)

type pendingChange struct {
	kind     changeKind
	itemID   string
	prevQty  int
	prevItem domain.CartItem // populated for changeRemove
}

func New(ownerID string) *Store {
	return &Store{
		cart:    domain.Cart{OwnerID: ownerID},
		pending: make(map[uuid.UUID]pendingChange),
		events:  make(chan Event, 64),
	}
}

// Snapshot returns a deep copy of the current cart.
func (s *Store) Snapshot() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cart.Clone()
}

// Apply performs the intent synchronously against local state. It never
// fails: validation that needs the catalog is the server's job, and the
// server's snapshot will correct anything it disagrees with.
func (s *Store) Apply(intent domain.MutationIntent) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch intent.Kind {
	case domain.IntentAdd:
		s.applyAdd(intent)
	case domain.IntentRemove:
		s.applyRemove(intent.ID, intent.ItemID)
	case domain.IntentSetQuantity:
		if intent.Quantity <= 0 {
			s.applyRemove(intent.ID, intent.ItemID)
		} else {
			s.applySetQuantity(intent)
		}
	}

	snapshot := *s.cart.Clone()
	s.emit(Event{Kind: EventApplied, IntentID: intent.ID, Cart: snapshot})
	return snapshot
}

func (s *Store) applyAdd(intent domain.MutationIntent) {
	if line := s.cart.FindLine(intent.ServiceID, intent.OptionID); line != nil {
		s.pending[intent.ID] = pendingChange{
			kind:    changeQuantity,
			itemID:  line.ID,
			prevQty: line.Quantity,
		}
		line.Quantity += intent.QuantityDelta
		if line.Quantity <= 0 {
			// Treat an over-decrement like a removal so rollback restores it.
			prev := *line
			prev.Quantity = s.pending[intent.ID].prevQty
			s.pending[intent.ID] = pendingChange{kind: changeRemove, itemID: line.ID, prevItem: prev}
			s.removeItem(line.ID)
		}
		return
	}

	if intent.QuantityDelta <= 0 {
		return
	}

	// Placeholder until the server confirms and assigns the durable id.
	item := domain.CartItem{
		ID:        localID(),
		ServiceID: intent.ServiceID,
		OptionID:  intent.OptionID,
		Quantity:  intent.QuantityDelta,
		AddedAt:   time.Now(),
	}
	s.cart.Items = append(s.cart.Items, item)
	s.pending[intent.ID] = pendingChange{kind: changeInsert, itemID: item.ID}
}

func (s *Store) applySetQuantity(intent domain.MutationIntent) {
	item := s.cart.FindItem(intent.ItemID)
	if item == nil {
		return
	}
	s.pending[intent.ID] = pendingChange{
		kind:    changeQuantity,
		itemID:  item.ID,
		prevQty: item.Quantity,
	}
	item.Quantity = intent.Quantity
}

func (s *Store) applyRemove(intentID uuid.UUID, itemID string) {
	item := s.cart.FindItem(itemID)
	if item == nil {
		return
	}
	s.pending[intentID] = pendingChange{
		kind:     changeRemove,
		itemID:   item.ID,
		prevItem: *item,
	}
	s.removeItem(itemID)
}

// Reconcile replaces local state with the canonical server cart. seq is
// the coordinator's send sequence: last-arrived wins, but a response that
// is older than one already applied is discarded since each snapshot is
// the full cart. acked intents leave the journal; their changes are now
// server truth and must no longer be rolled back.
func (s *Store) Reconcile(seq uint64, serverCart domain.Cart, acked ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range acked {
		delete(s.pending, id)
	}

	if seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.cart = *serverCart.Clone()

	s.emit(Event{Kind: EventReconciled, Cart: *s.cart.Clone()})
}

// Ack drops journal entries for intents that no longer need rollback,
// e.g. a burst that coalesced to a net no-op and was never sent.
func (s *Store) Ack(intentIDs ...uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range intentIDs {
		delete(s.pending, id)
	}
}

// Rollback reverts the optimistic change of a failed intent. Confirmed
// state is sacred: if the intent's journal entry is gone (a reconcile
// acked it) or its placeholder has been replaced by a server item, the
// rollback is a no-op rather than deleting someone else's confirmed line.
func (s *Store) Rollback(intentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, ok := s.pending[intentID]
	if !ok {
		return
	}
	delete(s.pending, intentID)

	switch change.kind {
	case changeInsert:
		if isLocalID(change.itemID) {
			s.removeItem(change.itemID)
		}
	case changeQuantity:
		if item := s.cart.FindItem(change.itemID); item != nil {
			item.Quantity = change.prevQty
		}
	case changeRemove:
		if s.cart.FindItem(change.itemID) == nil {
			s.cart.Items = append(s.cart.Items, change.prevItem)
		}
	}

	s.emit(Event{Kind: EventRolledBack, IntentID: intentID, Cart: *s.cart.Clone()})
}

func (s *Store) removeItem(itemID string) {
	for i, item := range s.cart.Items {
		if item.ID == itemID {
			s.cart.Items = append(s.cart.Items[:i], s.cart.Items[i+1:]...)
			return
		}
	}
}

func localID() string {
	return "local-" + uuid.NewString()
}

func isLocalID(id string) bool {
	return strings.HasPrefix(id, "local-")
}
