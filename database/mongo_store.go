package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/princinho/agrorfq/utils"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var _ services.Store = (*MongoStore)(nil)

// MongoStore persists the engine's documents. Every lookup goes through an
// issued identifier, never _id.
type MongoStore struct {
	requests *mongo.Collection
	offers   *mongo.Collection
	orders   *mongo.Collection
	payments *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		requests: db.Collection(RequestsCollection),
		offers:   db.Collection(OffersCollection),
		orders:   db.Collection(OrdersCollection),
		payments: db.Collection(PaymentsCollection),
	}
}

// EnsureIndexes creates the unique indexes the conditional writes rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := func(key string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}
	plain := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d}
	}

	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.requests: {unique("requestId"), unique("paymentReference"), plain("buyerId", "createdAt"), plain("status", "publishDate")},
		s.offers:   {unique("offerId"), plain("requestId", "createdAt"), plain("sellerId", "createdAt")},
		s.orders:   {unique("trackingId"), unique("originOfferId"), plain("buyerId"), plain("sellerId")},
		s.payments: {unique("reference"), plain("userId")},
	}
	for col, idx := range specs {
		if _, err := col.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", col.Name(), err)
		}
	}
	return nil
}

// ====== Requests ====

func (s *MongoStore) InsertRequest(ctx context.Context, req *models.Request) error {
	res, err := s.requests.InsertOne(ctx, req)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return err
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		req.ID = id
	}
	return nil
}

func (s *MongoStore) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	var req models.Request
	if err := s.requests.FindOne(ctx, bson.M{"requestId": requestID}).Decode(&req); err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (s *MongoStore) GetRequestByPaymentReference(ctx context.Context, reference string) (*models.Request, error) {
	var req models.Request
	if err := s.requests.FindOne(ctx, bson.M{"paymentReference": reference}).Decode(&req); err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (s *MongoStore) UpdateRequest(ctx context.Context, req *models.Request, expected models.RequestStatus) error {
	u := newUpdate()
	u.set("title", req.Title)
	u.set("items", req.Items)
	u.set("location", req.Location)
	u.set("notes", req.Notes)
	u.set("contactPhone", req.ContactPhone)
	u.setPtr("deliveryDays", req.DeliveryDays == nil, req.DeliveryDays)
	u.setPtr("deliveryDate", req.DeliveryDate == nil, req.DeliveryDate)
	u.setPtr("budget", req.Budget == nil, req.Budget)
	u.setPtr("priceRangeMin", req.PriceRangeMin == nil, req.PriceRangeMin)
	u.setPtr("priceRangeMax", req.PriceRangeMax == nil, req.PriceRangeMax)
	u.set("updatedAt", req.UpdatedAt)

	filter := bson.M{"requestId": req.RequestID, "status": expected}
	return s.conditionalUpdate(ctx, s.requests, filter, bson.M{"requestId": req.RequestID}, u.doc())
}

func (s *MongoStore) TransitionRequest(ctx context.Context, requestID string, expected models.RequestStatus, t services.RequestTransition) error {
	u := newUpdate()
	u.set("status", t.Status)
	if t.ExpiryDate != nil {
		u.set("expiryDate", *t.ExpiryDate)
	}
	u.setPtr("holdDurationSeconds", t.HoldDurationSeconds == nil, t.HoldDurationSeconds)
	u.set("updatedAt", t.UpdatedAt)

	filter := bson.M{"requestId": requestID, "status": expected}
	return s.conditionalUpdate(ctx, s.requests, filter, bson.M{"requestId": requestID}, u.doc())
}

func (s *MongoStore) IncrementOffersCount(ctx context.Context, requestID string) error {
	res, err := s.requests.UpdateOne(ctx,
		bson.M{"requestId": requestID},
		bson.M{"$inc": bson.M{"offersCount": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListRequests(ctx context.Context, f services.RequestFilter) ([]models.Request, int64, error) {
	filter := bson.M{}
	if f.BuyerID != "" {
		filter["buyerId"] = f.BuyerID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.State != "" {
		filter["location.state"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.State) + "$", "$options": "i"}
	}
	if f.PublishedBy != nil {
		filter["publishDate"] = bson.M{"$lte": *f.PublishedBy}
	}
	if f.Query != "" {
		rx := bson.M{"$regex": regexp.QuoteMeta(f.Query), "$options": "i"}
		filter["$or"] = bson.A{
			bson.M{"title": rx},
			bson.M{"items.name": rx},
		}
	}

	var out []models.Request
	total, err := s.list(ctx, s.requests, filter, f.Skip, f.Limit, &out)
	return out, total, err
}

// ====== Offers ====

func (s *MongoStore) InsertOffer(ctx context.Context, offer *models.Offer) error {
	res, err := s.offers.InsertOne(ctx, offer)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return err
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		offer.ID = id
	}
	return nil
}

func (s *MongoStore) GetOffer(ctx context.Context, offerID string) (*models.Offer, error) {
	var offer models.Offer
	if err := s.offers.FindOne(ctx, bson.M{"offerId": offerID}).Decode(&offer); err != nil {
		return nil, notFound(err)
	}
	return &offer, nil
}

func (s *MongoStore) UpdateOffer(ctx context.Context, offer *models.Offer, expected ...models.OfferStatus) error {
	u := newUpdate()
	u.set("status", offer.Status)
	u.setPtr("buyerTerms", offer.BuyerTerms == nil, offer.BuyerTerms)
	u.setPtr("orderId", offer.OrderID == nil, offer.OrderID)
	u.set("updatedAt", offer.UpdatedAt)

	filter := bson.M{"offerId": offer.OfferID}
	if len(expected) > 0 {
		filter["status"] = bson.M{"$in": expected}
	}
	return s.conditionalUpdate(ctx, s.offers, filter, bson.M{"offerId": offer.OfferID}, u.doc())
}

func (s *MongoStore) ListOffers(ctx context.Context, f services.OfferFilter) ([]models.Offer, int64, error) {
	filter := bson.M{}
	if f.RequestID != "" {
		filter["requestId"] = f.RequestID
	}
	if f.SellerID != "" {
		filter["sellerId"] = f.SellerID
	}
	var out []models.Offer
	total, err := s.list(ctx, s.offers, filter, f.Skip, f.Limit, &out)
	return out, total, err
}

// ====== Orders ====

func (s *MongoStore) InsertOrder(ctx context.Context, order *models.Order) error {
	res, err := s.orders.InsertOne(ctx, order)
	if err != nil {
		if utils.IsDuplicateKey(err) {
			return services.ErrDuplicate
		}
		return err
	}
	if id, ok := res.InsertedID.(bson.ObjectID); ok {
		order.ID = id
	}
	return nil
}

func (s *MongoStore) GetOrderByOfferID(ctx context.Context, offerID string) (*models.Order, error) {
	var order models.Order
	if err := s.orders.FindOne(ctx, bson.M{"originOfferId": offerID}).Decode(&order); err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

func (s *MongoStore) UpdateOrder(ctx context.Context, order *models.Order, expected ...models.OrderStatus) error {
	u := newUpdate()
	u.set("status", order.Status)
	u.set("confirmedByBuyer", order.ConfirmedByBuyer)
	u.setPtr("deliveredAt", order.DeliveredAt == nil, order.DeliveredAt)
	u.set("updatedAt", order.UpdatedAt)

	filter := bson.M{"trackingId": order.TrackingID}
	if len(expected) > 0 {
		filter["status"] = bson.M{"$in": expected}
	}
	return s.conditionalUpdate(ctx, s.orders, filter, bson.M{"trackingId": order.TrackingID}, u.doc())
}

func (s *MongoStore) ListOrders(ctx context.Context, f services.OrderFilter) ([]models.Order, int64, error) {
	filter := bson.M{}
	if f.ParticipantID != "" {
		filter["$or"] = bson.A{
			bson.M{"buyerId": f.ParticipantID},
			bson.M{"sellerId": f.ParticipantID},
		}
	}
	var out []models.Order
	total, err := s.list(ctx, s.orders, filter, f.Skip, f.Limit, &out)
	return out, total, err
}

// ====== Payment ledger ====

func (s *MongoStore) RecordPayment(ctx context.Context, tx *models.PaymentTransaction) error {
	now := time.Now().UTC()
	_, err := s.payments.UpdateOne(ctx,
		bson.M{"reference": tx.Reference},
		bson.M{"$setOnInsert": bson.M{
			"reference":   tx.Reference,
			"userId":      tx.UserID,
			"email":       tx.Email,
			"purpose":     tx.Purpose,
			"requestType": tx.RequestType,
			"amountMinor": tx.AmountMinor,
			"status":      tx.Status,
			"createdAt":   now,
			"updatedAt":   now,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if utils.IsDuplicateKey(err) {
		// A concurrent upsert inserted it first.
		return nil
	}
	return err
}

func (s *MongoStore) MarkPayment(ctx context.Context, tx *models.PaymentTransaction) error {
	return s.markPayment(ctx, tx, true)
}

func (s *MongoStore) markPayment(ctx context.Context, tx *models.PaymentTransaction, retry bool) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":    tx.Status,
		"paidMinor": tx.PaidMinor,
		"updatedAt": now,
	}
	if tx.RequestID != "" {
		set["requestId"] = tx.RequestID
	}
	_, err := s.payments.UpdateOne(ctx,
		bson.M{"reference": tx.Reference},
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"userId":      tx.UserID,
				"email":       tx.Email,
				"purpose":     tx.Purpose,
				"requestType": tx.RequestType,
				"amountMinor": tx.AmountMinor,
				"createdAt":   now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if retry && utils.IsDuplicateKey(err) {
		// Lost an upsert race; the document exists now.
		return s.markPayment(ctx, tx, false)
	}
	return err
}

func (s *MongoStore) GetPayment(ctx context.Context, reference string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	if err := s.payments.FindOne(ctx, bson.M{"reference": reference}).Decode(&tx); err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

// ====== Helpers ====

// conditionalUpdate applies update to the document matching filter. When
// nothing matches it tells a missing document (ErrNotFound) apart from one
// whose status moved on (ErrConflict).
func (s *MongoStore) conditionalUpdate(ctx context.Context, col *mongo.Collection, filter, idFilter, update bson.M) error {
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := col.CountDocuments(ctx, idFilter)
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return services.ErrConflict
}

func (s *MongoStore) list(ctx context.Context, col *mongo.Collection, filter bson.M, skip, limit int64, out any) (int64, error) {
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)
	if err := cursor.All(ctx, out); err != nil {
		return 0, err
	}
	return total, nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return services.ErrNotFound
	}
	return err
}

type update struct {
	sets   bson.M
	unsets bson.M
}

func newUpdate() *update { return &update{sets: bson.M{}, unsets: bson.M{}} }

func (u *update) set(key string, v any) { u.sets[key] = v }

// setPtr unsets key when the pointer is nil, so cleared optional fields do not linger.
func (u *update) setPtr(key string, isNil bool, v any) {
	if isNil {
		u.unsets[key] = ""
		return
	}
	u.sets[key] = v
}

func (u *update) doc() bson.M {
	d := bson.M{"$set": u.sets}
	if len(u.unsets) > 0 {
		d["$unset"] = u.unsets
	}
	return d
}
