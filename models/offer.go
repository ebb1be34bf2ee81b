package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type OfferStatus string

const (
	OfferStatusPending         OfferStatus = "pending"
	OfferStatusAcceptedByBuyer OfferStatus = "accepted_by_buyer"
	OfferStatusTermsRejected   OfferStatus = "terms_rejected"
	OfferStatusAccepted        OfferStatus = "accepted"
	OfferStatusRejected        OfferStatus = "rejected"
	OfferStatusDelivered       OfferStatus = "delivered"
	OfferStatusCompleted       OfferStatus = "completed"
)

type QuotationItem struct {
	Name      string  `bson:"name"      json:"name"`
	Quantity  float64 `bson:"quantity"  json:"quantity"`
	Unit      string  `bson:"unit"      json:"unit"`
	UnitPrice float64 `bson:"unitPrice" json:"unitPrice"`
	Total     float64 `bson:"total"     json:"total"`
}

// BuyerTerms is the snapshot the buyer attaches when accepting an offer.
type BuyerTerms struct {
	AcknowledgmentNote    string     `bson:"acknowledgmentNote,omitempty"    json:"acknowledgmentNote,omitempty"`
	AcknowledgmentFiles   []string   `bson:"acknowledgmentFiles,omitempty"   json:"acknowledgmentFiles,omitempty"`
	ConfirmedDeliveryDate *time.Time `bson:"confirmedDeliveryDate,omitempty" json:"confirmedDeliveryDate,omitempty"`
	PaymentTerms          string     `bson:"paymentTerms"                    json:"paymentTerms"`
	ProposedAt            time.Time  `bson:"proposedAt"                      json:"proposedAt"`
}

// Offer is a seller's bid against a Request.
type Offer struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"-"`
	OfferID   string        `bson:"offerId"       json:"offerId"`
	RequestID string        `bson:"requestId"     json:"requestId"`

	SellerID       string `bson:"sellerId"       json:"sellerId"`
	SellerUsername string `bson:"sellerUsername" json:"sellerUsername"`
	SellerRole     Role   `bson:"sellerRole"     json:"sellerRole"`

	Price             float64         `bson:"price"                       json:"price"`
	Currency          string          `bson:"currency"                    json:"currency"`
	Quotation         []QuotationItem `bson:"quotation,omitempty"         json:"quotation,omitempty"`
	Images            []Attachment    `bson:"images,omitempty"            json:"images,omitempty"`
	QuotationDocument *Attachment     `bson:"quotationDocument,omitempty" json:"quotationDocument,omitempty"`
	Message           string          `bson:"message,omitempty"           json:"message,omitempty"`
	DeliveryDate      *time.Time      `bson:"deliveryDate,omitempty"      json:"deliveryDate,omitempty"`

	Status     OfferStatus `bson:"status"               json:"status"`
	BuyerTerms *BuyerTerms `bson:"buyerTerms,omitempty" json:"buyerTerms,omitempty"`
	OrderID    *string     `bson:"orderId,omitempty"    json:"orderId,omitempty"`
	// IsInstant marks the synthetic offer written by an instant take.
	IsInstant bool `bson:"isInstant" json:"isInstant"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
