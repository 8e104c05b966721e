package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avrach/go_storefront/internal/cartstore"
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

// Sender executes one authoritative mutation. cartsync.Service satisfies
// it in-process; an HTTP client would satisfy it across the wire.
type Sender interface {
	Mutate(ctx context.Context, owner domain.Principal, intent domain.MutationIntent, idempotencyKey string) (*domain.Cart, error)
}

// CartMutationFailed is the typed failure surfaced to the caller when a
// network mutation ultimately fails. The optimistic change has already
// been rolled back by the time the caller sees it.
type CartMutationFailed struct {
	Reason string
	Err    error
}

func (e *CartMutationFailed) Error() string {
	return fmt.Sprintf("cart mutation failed (%s): %v", e.Reason, e.Err)
}

func (e *CartMutationFailed) Unwrap() error { return e.Err }

type Result struct {
	IntentIDs []uuid.UUID
	Cart      *domain.Cart
	Err       error
}

// Coordinator buffers one cart's outbound mutations for a short window so
// bursts of identical taps collapse into a single call, drops calls whose
// identical twin is already in flight, bounds each call with a timeout,
// and rolls back the optimistic state of anything that fails. It never
// retries; retrying is the caller's decision.
type Coordinator struct {
	owner   domain.Principal
	store   *cartstore.Store
	sender  Sender
	clock   Clock
	window  time.Duration
	timeout time.Duration

	mu       sync.Mutex
	buffer   map[string]*bufferedMutation
	order    []string
	timer    Timer
	inflight map[string]*inflightCall
	seq      uint64
	results  chan Result
	wg       sync.WaitGroup
}

type bufferedMutation struct {
	kind      domain.IntentKind
	serviceID string
	optionID  string
	itemID    string
	delta     int // coalesced quantityDelta for Add
	quantity  int // latest quantity for SetQuantity
	intentIDs []uuid.UUID
}

// inflightCall collects intents that were dropped because an identical
// call was already on the wire; they are acknowledged when that call
// completes so their journal entries do not dangle.
type inflightCall struct {
	extraAcks []uuid.UUID
}

const (
	DefaultDebounceWindow = 300 * time.Millisecond
	DefaultCallTimeout    = 5 * time.Second
)

func New(owner domain.Principal, store *cartstore.Store, sender Sender, clock Clock, window, timeout time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Coordinator{
		owner:    owner,
		store:    store,
		sender:   sender,
		clock:    clock,
		window:   window,
		timeout:  timeout,
		buffer:   make(map[string]*bufferedMutation),
		inflight: make(map[string]*inflightCall),
		results:  make(chan Result, 64),
	}
}

// Results reports the outcome of every network send. The channel never
// blocks the coordinator; consume it or lose old entries.
func (c *Coordinator) Results() <-chan Result {
	return c.results
}

// Enqueue applies the intent optimistically and schedules its network
// delivery. The debounce timer is per cart: all buffered mutations flush
// together once the shared window elapses, in issuance order.
func (c *Coordinator) Enqueue(intent domain.MutationIntent) domain.Cart {
	snapshot := c.store.Apply(intent)

	c.mu.Lock()
	defer c.mu.Unlock()

	key := intent.DedupeKey()
	buf, ok := c.buffer[key]
	if !ok {
		buf = &bufferedMutation{
			kind:      intent.Kind,
			serviceID: intent.ServiceID,
			optionID:  intent.OptionID,
			itemID:    intent.ItemID,
		}
		c.buffer[key] = buf
		c.order = append(c.order, key)
	}
	buf.delta += intent.QuantityDelta
	buf.quantity = intent.Quantity
	buf.intentIDs = append(buf.intentIDs, intent.ID)

	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.window, c.flushAsync)
	}
	return snapshot
}

func (c *Coordinator) flushAsync() {
	c.mu.Lock()
	c.flushLocked()
	c.mu.Unlock()
}

// Flush forces buffered mutations out immediately and waits for every
// in-flight call to finish. Checkout uses it so the server cart reflects
// all local intents before assembly.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.flushLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) flushLocked() {
	c.timer = nil
	keys := c.order
	c.order = nil
	buffered := c.buffer
	c.buffer = make(map[string]*bufferedMutation)

	for _, key := range keys {
		buf := buffered[key]

		intent, skip := mergedIntent(buf)
		if skip {
			// Coalesced to a net no-op; nothing to send, nothing to roll back.
			c.store.Ack(buf.intentIDs...)
			continue
		}

		flightKey := fmt.Sprintf("%s|%d|%d", key, buf.delta, buf.quantity)
		if fl, busy := c.inflight[flightKey]; busy {
			// Identical call already on the wire; it represents this
			// intent too, so drop the duplicate send.
			fl.extraAcks = append(fl.extraAcks, buf.intentIDs...)
			continue
		}
		c.inflight[flightKey] = &inflightCall{}

		c.seq++
		c.wg.Add(1)
		go c.send(c.seq, flightKey, intent, buf.intentIDs)
	}
}

// mergedIntent folds a burst of identical actions into one wire intent.
func mergedIntent(buf *bufferedMutation) (domain.MutationIntent, bool) {
	switch buf.kind {
	case domain.IntentAdd:
		if buf.delta == 0 {
			return domain.MutationIntent{}, true
		}
		return domain.MutationIntent{
			ID:            uuid.New(),
			Kind:          domain.IntentAdd,
			ServiceID:     buf.serviceID,
			OptionID:      buf.optionID,
			QuantityDelta: buf.delta,
		}, false
	case domain.IntentSetQuantity:
		return domain.MutationIntent{
			ID:       uuid.New(),
			Kind:     domain.IntentSetQuantity,
			ItemID:   buf.itemID,
			Quantity: buf.quantity,
		}, false
	default:
		return domain.MutationIntent{
			ID:     uuid.New(),
			Kind:   domain.IntentRemove,
			ItemID: buf.itemID,
		}, false
	}
}

func (c *Coordinator) send(seq uint64, flightKey string, intent domain.MutationIntent, intentIDs []uuid.UUID) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	// Fresh key per send: a retried caller reusing it is a server no-op.
	cart, err := c.sender.Mutate(ctx, c.owner, intent, uuid.NewString())

	c.mu.Lock()
	acked := intentIDs
	if fl, ok := c.inflight[flightKey]; ok {
		acked = append(acked, fl.extraAcks...)
	}
	delete(c.inflight, flightKey)
	c.mu.Unlock()

	if err != nil {
		for _, id := range acked {
			c.store.Rollback(id)
		}
		c.emit(Result{IntentIDs: acked, Err: &CartMutationFailed{Reason: failureReason(err), Err: err}})
		return
	}

	c.store.Reconcile(seq, *cart, acked...)
	c.emit(Result{IntentIDs: acked, Cart: cart})
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "rejected"
}

func (c *Coordinator) emit(r Result) {
	select {
	case c.results <- r:
	default:
		log.Printf("coordinator result dropped: %+v", r.Err)
	}
}
