package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type OrderStatus string

const (
	OrderStatusConfirmed                    OrderStatus = "confirmed"
	OrderStatusDeliveredPendingConfirmation OrderStatus = "delivered_pending_confirmation"
	OrderStatusDelivered                    OrderStatus = "delivered"
)

type OrderSource string

const (
	OrderSourceOffer       OrderSource = "rfq_offer"
	OrderSourceInstantTake OrderSource = "instant_take"
)

type OrderItem struct {
	Name      string  `bson:"name"      json:"name"`
	Quantity  float64 `bson:"quantity"  json:"quantity"`
	Unit      string  `bson:"unit"      json:"unit"`
	UnitPrice float64 `bson:"unitPrice" json:"unitPrice"`
	Total     float64 `bson:"total"     json:"total"`
}

// Order is derived from an accepted offer or an instant take. It is written
// once and afterwards only its fulfilment fields change.
type Order struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"-"`
	TrackingID string        `bson:"trackingId"    json:"trackingId"`

	BuyerID  string `bson:"buyerId"  json:"buyerId"`
	SellerID string `bson:"sellerId" json:"sellerId"`

	OriginRequestID string      `bson:"originRequestId" json:"originRequestId"`
	OriginOfferID   string      `bson:"originOfferId"   json:"originOfferId"`
	Source          OrderSource `bson:"source"          json:"source"`

	Items       []OrderItem `bson:"items"       json:"items"`
	TotalAmount float64     `bson:"totalAmount" json:"totalAmount"`
	Currency    string      `bson:"currency"    json:"currency"`

	DeliveryLocation Location   `bson:"deliveryLocation"       json:"deliveryLocation"`
	DeliveryDate     *time.Time `bson:"deliveryDate,omitempty" json:"deliveryDate,omitempty"`
	PaymentTerms     string     `bson:"paymentTerms,omitempty" json:"paymentTerms,omitempty"`

	Status OrderStatus `bson:"status" json:"status"`
	// IsRFQOrder orders are settled directly between the parties; the
	// platform holds no funds for them and never pays them out.
	IsRFQOrder       bool       `bson:"isRfqOrder"            json:"isRfqOrder"`
	ConfirmedByBuyer bool       `bson:"confirmedByBuyer"      json:"confirmedByBuyer"`
	DeliveredAt      *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
