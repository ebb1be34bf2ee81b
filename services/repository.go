package services

import (
	"context"
	"time"

	"github.com/princinho/agrorfq/models"
)

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	BuyerID  string
	Statuses []models.RequestStatus
	Type     models.RequestType
	State    string
	// Query matches title and line item names, case-insensitively.
	Query string
	// PublishedBy hides requests whose publish date is after it.
	PublishedBy *time.Time
	Skip        int64
	Limit       int64
}

// RequestTransition is the state a status change writes.
type RequestTransition struct {
	Status models.RequestStatus
	// ExpiryDate is left alone when nil.
	ExpiryDate *time.Time
	// HoldDurationSeconds is cleared when nil.
	HoldDurationSeconds *int64
	UpdatedAt           time.Time
}

// RequestRepository persists requests keyed by RequestID.
type RequestRepository interface {
	// InsertRequest returns ErrDuplicate when the request id or payment reference is taken.
	InsertRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, requestID string) (*models.Request, error)
	GetRequestByPaymentReference(ctx context.Context, reference string) (*models.Request, error)
	// UpdateRequest writes only the buyer-editable fields of req (and its
	// UpdatedAt), provided the stored status still equals expected. Status,
	// expiry, hold snapshot and OffersCount are left as stored. A lost race
	// returns ErrConflict.
	UpdateRequest(ctx context.Context, req *models.Request, expected models.RequestStatus) error
	// TransitionRequest changes the status of a request whose stored status
	// equals expected, leaving every buyer-editable field as stored.
	TransitionRequest(ctx context.Context, requestID string, expected models.RequestStatus, t RequestTransition) error
	IncrementOffersCount(ctx context.Context, requestID string) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]models.Request, int64, error)
}

type OfferFilter struct {
	RequestID string
	SellerID  string
	Skip      int64
	Limit     int64
}

// OfferRepository persists offers keyed by OfferID.
type OfferRepository interface {
	InsertOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, offerID string) (*models.Offer, error)
	// UpdateOffer replaces the mutable state of offer if its stored status is
	// one of expected. A lost race returns ErrConflict.
	UpdateOffer(ctx context.Context, offer *models.Offer, expected ...models.OfferStatus) error
	ListOffers(ctx context.Context, filter OfferFilter) ([]models.Offer, int64, error)
}

type OrderFilter struct {
	// ParticipantID matches either the buyer or the seller side.
	ParticipantID string
	Skip          int64
	Limit         int64
}

// OrderRepository persists orders keyed by TrackingID, unique per OriginOfferID.
type OrderRepository interface {
	// InsertOrder returns ErrDuplicate when an order already exists for the origin offer.
	InsertOrder(ctx context.Context, order *models.Order) error
	GetOrderByOfferID(ctx context.Context, offerID string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order, expected ...models.OrderStatus) error
	ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
}

// PaymentLedger tracks gateway references through initialisation and verification.
type PaymentLedger interface {
	// RecordPayment inserts tx if its reference is new and leaves an existing entry alone.
	RecordPayment(ctx context.Context, tx *models.PaymentTransaction) error
	// MarkPayment upserts the outcome of a verification onto the entry for tx.Reference.
	MarkPayment(ctx context.Context, tx *models.PaymentTransaction) error
	GetPayment(ctx context.Context, reference string) (*models.PaymentTransaction, error)
}

// Store is everything the engine persists.
type Store interface {
	RequestRepository
	OfferRepository
	OrderRepository
	PaymentLedger
}
