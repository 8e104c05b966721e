package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/repository"
	"golang.org/x/sync/singleflight"
)

// Service is the single authority over persisted carts. Every mutation is
// serialized per cart, validated against the catalog, and recorded under
// its idempotency key so a retried request is a no-op returning the prior
// snapshot.
type Service struct {
	repo    repository.CartRepository
	catalog repository.CatalogRepository
	idem    repository.IdempotencyStore
	cache   CartCache
	locks   keyedLocks
	sfg     singleflight.Group // Prevents cache stampede on reads
}

func NewService(repo repository.CartRepository, catalog repository.CatalogRepository, idem repository.IdempotencyStore, cache CartCache) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		idem:    idem,
		cache:   cache,
	}
}

// Mutate applies one intent on behalf of owner and returns the full
// resulting cart, never a delta.
func (s *Service) Mutate(ctx context.Context, owner domain.Principal, intent domain.MutationIntent, idempotencyKey string) (*domain.Cart, error) {
	if idempotencyKey == "" {
		return nil, ErrIdempotencyKeyRequired
	}

	unlock := s.locks.lock(owner.UserID)
	defer unlock()

	prior, err := s.idem.Get(ctx, idempotencyKey)
	if err == nil {
		// Redelivery of an already-applied mutation.
		return prior, nil
	}
	if !errors.Is(err, repository.ErrIdempotencyKeyNotFound) {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}

	cart, err := s.applyIntent(ctx, owner.UserID, intent)
	if err != nil {
		return nil, err
	}

	if errPut := s.idem.Put(ctx, idempotencyKey, cart); errPut != nil {
		// The mutation is already durable; losing the replay record only
		// costs idempotence on a retry, so log and continue.
		log.Printf("failed to record idempotency key %s: %v", idempotencyKey, errPut)
	}

	s.invalidateCache(owner.UserID)
	return cart, nil
}

func (s *Service) applyIntent(ctx context.Context, ownerID string, intent domain.MutationIntent) (*domain.Cart, error) {
	switch intent.Kind {
	case domain.IntentAdd:
		if intent.QuantityDelta == 0 {
			return nil, ErrInvalidQuantity
		}
		svc, err := s.catalog.GetService(ctx, intent.ServiceID)
		if err != nil {
			if errors.Is(err, repository.ErrServiceNotFound) {
				return nil, ErrServiceNotFound
			}
			return nil, err
		}
		if !svc.Sellable() {
			return nil, ErrServiceUnavailable
		}
		unitPrice, ok := svc.UnitPriceFor(intent.OptionID)
		if !ok {
			return nil, ErrServiceNotFound
		}
		line := domain.CartItem{
			ServiceID: intent.ServiceID,
			OptionID:  intent.OptionID,
			UnitPrice: unitPrice,
		}
		return s.repo.IncrementLine(ctx, ownerID, line, intent.QuantityDelta)

	case domain.IntentSetQuantity:
		if intent.Quantity < 0 {
			return nil, ErrInvalidQuantity
		}
		return s.repo.SetItemQuantity(ctx, ownerID, intent.ItemID, intent.Quantity)

	case domain.IntentRemove:
		return s.repo.RemoveItem(ctx, ownerID, intent.ItemID)

	default:
		return nil, ErrUnknownIntent
	}
}

func (s *Service) GetCart(ctx context.Context, owner domain.Principal) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(owner.UserID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, owner.UserID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, owner.UserID)
		if errGet != nil && errors.Is(errGet, repository.ErrCartNotFound) {
			// No mutation yet means an empty cart, not an error.
			return &domain.Cart{
				OwnerID:   owner.UserID,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), owner.UserID, cart); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *Service) ClearCart(ctx context.Context, owner domain.Principal) error {
	unlock := s.locks.lock(owner.UserID)
	defer unlock()

	err := s.repo.DeleteCart(ctx, owner.UserID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return err
	}
	s.invalidateCache(owner.UserID)
	return nil
}

// ConsumeCart runs fn with the owner's cart while holding the per-cart
// lock, then clears the cart. If fn fails the cart is left untouched.
// This is the "same logical transaction" the assembler needs: no mutation
// can interleave between order creation and cart clearing.
func (s *Service) ConsumeCart(ctx context.Context, owner domain.Principal, fn func(cart *domain.Cart) error) error {
	unlock := s.locks.lock(owner.UserID)
	defer unlock()

	cart, err := s.repo.GetCart(ctx, owner.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			cart = &domain.Cart{OwnerID: owner.UserID}
		} else {
			return err
		}
	}

	if err := fn(cart); err != nil {
		return err
	}

	if errDel := s.repo.DeleteCart(ctx, owner.UserID); errDel != nil && !errors.Is(errDel, repository.ErrCartNotFound) {
		return fmt.Errorf("clear consumed cart: %w", errDel)
	}
	s.invalidateCache(owner.UserID)
	return nil
}

func (s *Service) invalidateCache(ownerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, ownerID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}

// keyedLocks hands out one mutex per cart owner. Entries are never
// reclaimed; the population is bounded by active users and each entry is
// a single mutex.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
