package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoclient "github.com/montoyitadevelp/acme-order-pipeline/internal/dal/mongo"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/customer"
	"github.com/montoyitadevelp/acme-order-pipeline/internal/service/models/order"
)

// itemDocument is the stored line-item snapshot. Money is stored as a string
// to keep the fixed-point value exact.
type itemDocument struct {
	SKU      string `bson:"sku"`
	Quantity int64  `bson:"quantity"`
	Price    string `bson:"price"`
}

// orderDocument is the versioned persisted shape of an order.
type orderDocument struct {
	OrderID  string            `bson:"order_id"`
	Status   string            `bson:"status"`
	Customer customer.Customer `bson:"customer"`
	Items    []itemDocument    `bson:"items"`
	Pricing  struct {
		Subtotal string `bson:"subtotal"`
		Tax      string `bson:"tax"`
		Total    string `bson:"total"`
	} `bson:"pricing"`
	Payment struct {
		Status        string `bson:"status"`
		TransactionID string `bson:"transaction_id"`
	} `bson:"payment"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
	SchemaVersion int       `bson:"schema_version"`
}

// orderDocumentFromModel converts a service layer Order to its stored shape.
func orderDocumentFromModel(o order.Order) orderDocument {
	doc := orderDocument{
		OrderID:       o.OrderID,
		Status:        string(o.Status),
		Customer:      o.Customer,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		SchemaVersion: o.SchemaVersion,
	}
	doc.Pricing.Subtotal = o.Pricing.Subtotal.StringFixed(2)
	doc.Pricing.Tax = o.Pricing.Tax.StringFixed(2)
	doc.Pricing.Total = o.Pricing.Total.StringFixed(2)
	doc.Payment.Status = string(o.Payment.Status)
	doc.Payment.TransactionID = o.Payment.TransactionID

	doc.Items = make([]itemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		doc.Items = append(doc.Items, itemDocument{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
		})
	}

	return doc
}

// toModel converts the stored shape back, validating the money fields so
// writer/reader drift surfaces as an error instead of silent garbage.
func (d orderDocument) toModel() (order.Order, error) {
	subtotal, err := decimal.NewFromString(d.Pricing.Subtotal)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to parse order subtotal: %w", err)
	}
	tax, err := decimal.NewFromString(d.Pricing.Tax)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to parse order tax: %w", err)
	}
	total, err := decimal.NewFromString(d.Pricing.Total)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to parse order total: %w", err)
	}

	items := make([]order.Item, 0, len(d.Items))
	for _, item := range d.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return order.Order{}, fmt.Errorf("failed to parse item price for %s: %w", item.SKU, err)
		}
		items = append(items, order.Item{
			SKU:      item.SKU,
			Quantity: item.Quantity,
			Price:    price,
		})
	}

	return order.Order{
		OrderID:  d.OrderID,
		Status:   order.Status(d.Status),
		Customer: d.Customer,
		Items:    items,
		Pricing:  order.Pricing{Subtotal: subtotal, Tax: tax, Total: total},
		Payment: order.Payment{
			Status:        order.PaymentStatus(d.Payment.Status),
			TransactionID: d.Payment.TransactionID,
		},
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		SchemaVersion: d.SchemaVersion,
	}, nil
}

// OrderRepository implements the order document store on MongoDB.
type OrderRepository struct {
	client *mongoclient.Client
}

// NewOrderRepository creates a new order repository.
func NewOrderRepository(client *mongoclient.Client) *OrderRepository {
	return &OrderRepository{
		client: client,
	}
}

// Insert persists a new order document.
func (r *OrderRepository) Insert(ctx context.Context, o order.Order) error {
	if _, err := r.client.Orders().InsertOne(ctx, orderDocumentFromModel(o)); err != nil {
		return fmt.Errorf("failed to insert order document: %w", err)
	}

	return nil
}

// GetByID fetches one order by its id.
func (r *OrderRepository) GetByID(ctx context.Context, orderID string) (order.Order, error) {
	var doc orderDocument
	err := r.client.Orders().FindOne(ctx, bson.M{"order_id": orderID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return order.Order{}, order.ErrOrderNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to query order: %w", err)
	}

	return doc.toModel()
}

// UpdateStatus sets the saga status with a fresh updated_at.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	return r.update(ctx, orderID, bson.M{
		"status":     string(status),
		"updated_at": time.Now(),
	})
}

// UpdateStatusAndPayment sets saga and payment status in one targeted update.
func (r *OrderRepository) UpdateStatusAndPayment(
	ctx context.Context,
	orderID string,
	status order.Status,
	payment order.PaymentStatus,
) error {
	return r.update(ctx, orderID, bson.M{
		"status":         string(status),
		"payment.status": string(payment),
		"updated_at":     time.Now(),
	})
}

func (r *OrderRepository) update(ctx context.Context, orderID string, fields bson.M) error {
	res, err := r.client.Orders().UpdateOne(
		ctx,
		bson.M{"order_id": orderID},
		bson.M{"$set": fields},
	)
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", orderID, err)
	}
	if res.MatchedCount == 0 {
		return order.ErrOrderNotFound
	}

	return nil
}

// QueryByUser returns one page of a user's orders, newest first, plus the
// total match count for pagination metadata.
func (r *OrderRepository) QueryByUser(
	ctx context.Context,
	userID string,
	page, size int64,
) ([]order.UserOrder, int64, error) {
	filter := bson.M{"customer.user_id": userID}

	total, err := r.client.Orders().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count user orders: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * size).
		SetLimit(size)

	cursor, err := r.client.Orders().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query user orders: %w", err)
	}
	defer cursor.Close(ctx)

	result := []order.UserOrder{}
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("failed to decode order document: %w", err)
		}

		docTotal, err := decimal.NewFromString(doc.Pricing.Total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse order total: %w", err)
		}

		result = append(result, order.UserOrder{
			OrderID:   doc.OrderID,
			Status:    order.Status(doc.Status),
			Total:     docTotal,
			CreatedAt: doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor iteration error: %w", err)
	}

	return result, total, nil
}
