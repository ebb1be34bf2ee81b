package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type RequestType string

const (
	RequestTypeInstant  RequestType = "instant"
	RequestTypeStandard RequestType = "standard"
)

type RequestStatus string

const (
	RequestStatusActive    RequestStatus = "active"
	RequestStatusOnHold    RequestStatus = "on_hold"
	RequestStatusClosed    RequestStatus = "closed"
	RequestStatusCompleted RequestStatus = "completed"
)

// IsOpen reports whether sellers may still act on the request.
func (s RequestStatus) IsOpen() bool {
	return s == RequestStatusActive || s == RequestStatusOnHold
}

type LineItem struct {
	Name        string   `bson:"name"                  json:"name"`
	Quantity    float64  `bson:"quantity"              json:"quantity"`
	Unit        string   `bson:"unit"                  json:"unit"`
	TargetPrice *float64 `bson:"targetPrice,omitempty" json:"targetPrice,omitempty"`
	Spec        string   `bson:"spec,omitempty"        json:"spec,omitempty"`
}

type Location struct {
	State   string `bson:"state"             json:"state"`
	City    string `bson:"city,omitempty"    json:"city,omitempty"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
}

// Request is a buyer's RFQ. RequestID is the public lookup key; ID is the
// storage surrogate and is never exposed or used for lookups.
type Request struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	RequestID string        `bson:"requestId"     json:"requestId"`

	BuyerID       string `bson:"buyerId"       json:"buyerId"`
	BuyerUsername string `bson:"buyerUsername" json:"buyerUsername"`

	Type         RequestType `bson:"type"                   json:"type"`
	Title        string      `bson:"title,omitempty"        json:"title,omitempty"`
	Items        []LineItem  `bson:"items"                  json:"items"`
	Location     Location    `bson:"location"               json:"location"`
	Notes        string      `bson:"notes,omitempty"        json:"notes,omitempty"`
	ContactPhone string      `bson:"contactPhone,omitempty" json:"contactPhone,omitempty"`

	DeliveryDays *int       `bson:"deliveryDays,omitempty" json:"deliveryDays,omitempty"`
	DeliveryDate *time.Time `bson:"deliveryDate,omitempty" json:"deliveryDate,omitempty"`
	PublishDate  time.Time  `bson:"publishDate"            json:"publishDate"`
	ExpiryDate   time.Time  `bson:"expiryDate"             json:"expiryDate"`

	Budget        *float64 `bson:"budget,omitempty"        json:"budget,omitempty"`
	Currency      string   `bson:"currency"                json:"currency"`
	PriceRangeMin *float64 `bson:"priceRangeMin,omitempty" json:"priceRangeMin,omitempty"`
	PriceRangeMax *float64 `bson:"priceRangeMax,omitempty" json:"priceRangeMax,omitempty"`

	PaymentReference string   `bson:"paymentReference"       json:"paymentReference"`
	AgentFeeHeld     *float64 `bson:"agentFeeHeld,omitempty" json:"agentFeeHeld,omitempty"`
	// ServiceFeesPaid is informational only.
	ServiceFeesPaid float64 `bson:"serviceFeesPaid" json:"serviceFeesPaid"`

	Status              RequestStatus `bson:"status"                        json:"status"`
	OffersCount         int           `bson:"offersCount"                   json:"offersCount"`
	HoldDurationSeconds *int64        `bson:"holdDurationSeconds,omitempty" json:"holdDurationSeconds,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsPublished reports whether sellers may see the request at now.
func (r *Request) IsPublished(now time.Time) bool {
	return !r.PublishDate.After(now)
}
