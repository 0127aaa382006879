// Package repository stores carts in MongoDB, one document per cart.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/storefront/internal/cart"
)

// cartTTL drops carts nobody touched for 90 days.
const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	CartID    string         `bson:"cart_id"`
	Items     []itemDocument `bson:"items"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

// Prices are stored as strings so no precision is lost to BSON doubles.
type itemDocument struct {
	ProductID      string `bson:"product_id"`
	VariantID      string `bson:"variant_id"`
	DisplayName    string `bson:"display_name"`
	Brand          string `bson:"brand"`
	Size           string `bson:"size"`
	UnitPrice      string `bson:"unit_price"`
	Quantity       int    `bson:"quantity"`
	AvailableStock *int   `bson:"available_stock,omitempty"`
	ImageURL       string `bson:"image_url,omitempty"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) Load(ctx context.Context, cartID string) ([]cart.Item, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"cart_id": cartID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items := make([]cart.Item, 0, len(doc.Items))
	for _, d := range doc.Items {
		price, err := decimal.NewFromString(d.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("cart %s: bad unit price %q: %w", cartID, d.UnitPrice, err)
		}
		items = append(items, cart.Item{
			ProductID:      d.ProductID,
			VariantID:      d.VariantID,
			DisplayName:    d.DisplayName,
			Brand:          d.Brand,
			Size:           d.Size,
			UnitPrice:      price,
			Quantity:       d.Quantity,
			AvailableStock: d.AvailableStock,
			ImageURL:       d.ImageURL,
		})
	}
	return items, nil
}

// Save replaces the stored lines of the cart, creating it when missing.
func (m *MongoRepository) Save(ctx context.Context, cartID string, items []cart.Item) error {
	now := time.Now()

	docs := make([]itemDocument, 0, len(items))
	for _, it := range items {
		docs = append(docs, itemDocument{
			ProductID:      it.ProductID,
			VariantID:      it.VariantID,
			DisplayName:    it.DisplayName,
			Brand:          it.Brand,
			Size:           it.Size,
			UnitPrice:      it.UnitPrice.String(),
			Quantity:       it.Quantity,
			AvailableStock: it.AvailableStock,
			ImageURL:       it.ImageURL,
		})
	}

	filter := bson.M{"cart_id": cartID}
	update := bson.M{
		"$set":         bson.M{"items": docs, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

// Clear deletes the cart. Clearing a missing cart is not an error.
func (m *MongoRepository) Clear(ctx context.Context, cartID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"cart_id": cartID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cart_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
