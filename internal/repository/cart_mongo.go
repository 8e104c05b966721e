package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// cartDoc mirrors domain.Cart with money as strings; BSON has no native
// decimal representation we want to round-trip through.
type cartDoc struct {
	ID        string        `bson:"_id"`
	OwnerID   string        `bson:"owner_id"`
	Items     []cartItemDoc `bson:"items"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type cartItemDoc struct {
	ItemID    string    `bson:"item_id"`
	ServiceID string    `bson:"service_id"`
	OptionID  string    `bson:"option_id,omitempty"`
	Quantity  int       `bson:"quantity"`
	UnitPrice string    `bson:"unit_price"`
	AddedAt   time.Time `bson:"added_at"`
}

type MongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) *MongoCartRepository {
	return &MongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoCartRepository) GetCart(ctx context.Context, ownerID string) (*domain.Cart, error) {
	var doc cartDoc
	err := m.collection.FindOne(ctx, bson.M{"owner_id": ownerID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return docToCart(&doc)
}

// IncrementLine relies on the sync service holding the per-cart lock, so a
// load-modify-replace is race-free here.
func (m *MongoCartRepository) IncrementLine(ctx context.Context, ownerID string, item domain.CartItem, delta int) (*domain.Cart, error) {
	now := time.Now()
	cart, err := m.GetCart(ctx, ownerID)
	if errors.Is(err, ErrCartNotFound) {
		// Carts are created lazily on the first mutation.
		cart = &domain.Cart{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			CreatedAt: now,
		}
	} else if err != nil {
		return nil, err
	}

	if line := cart.FindLine(item.ServiceID, item.OptionID); line != nil {
		line.Quantity += delta
		line.UnitPrice = item.UnitPrice
		if line.Quantity <= 0 {
			removeItemByID(cart, line.ID)
		}
	} else if delta > 0 {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        uuid.NewString(),
			ServiceID: item.ServiceID,
			OptionID:  item.OptionID,
			Quantity:  delta,
			UnitPrice: item.UnitPrice,
			AddedAt:   now,
		})
	}

	return cart, m.replace(ctx, cart, now)
}

func (m *MongoCartRepository) SetItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) (*domain.Cart, error) {
	cart, err := m.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	item := cart.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if quantity <= 0 {
		removeItemByID(cart, itemID)
	} else {
		item.Quantity = quantity
	}
	return cart, m.replace(ctx, cart, time.Now())
}

func (m *MongoCartRepository) RemoveItem(ctx context.Context, ownerID, itemID string) (*domain.Cart, error) {
	cart, err := m.GetCart(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cart.FindItem(itemID) == nil {
		return nil, ErrItemNotFound
	}
	removeItemByID(cart, itemID)
	return cart, m.replace(ctx, cart, time.Now())
}

func (m *MongoCartRepository) DeleteCart(ctx context.Context, ownerID string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (m *MongoCartRepository) replace(ctx context.Context, cart *domain.Cart, now time.Time) error {
	cart.UpdatedAt = now
	doc := cartToDoc(cart)
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"owner_id": cart.OwnerID}, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

// CreateIndexes enforces one cart per owner and expires abandoned carts.
func (m *MongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func removeItemByID(cart *domain.Cart, itemID string) {
	for i, item := range cart.Items {
		if item.ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			return
		}
	}
}

func cartToDoc(cart *domain.Cart) *cartDoc {
	doc := &cartDoc{
		ID:        cart.ID,
		OwnerID:   cart.OwnerID,
		Items:     make([]cartItemDoc, 0, len(cart.Items)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDoc{
			ItemID:    item.ID,
			ServiceID: item.ServiceID,
			OptionID:  item.OptionID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
			AddedAt:   item.AddedAt,
		})
	}
	return doc
}

func docToCart(doc *cartDoc) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        doc.ID,
		OwnerID:   doc.OwnerID,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("corrupt unit price %q on item %s: %w", item.UnitPrice, item.ItemID, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ItemID,
			ServiceID: item.ServiceID,
			OptionID:  item.OptionID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			AddedAt:   item.AddedAt,
		})
	}
	return cart, nil
}
