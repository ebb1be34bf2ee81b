package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/metrics"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/tracing"
	"github.com/princinho/agrorfq/utils"
)

// OfferService runs the negotiation between a request's buyer and the
// sellers bidding on it, and derives the order once terms are agreed.
type OfferService struct {
	requests RequestRepository
	offers   OfferRepository
	orders   OrderRepository
	clock    clock.Clock
}

func NewOfferService(requests RequestRepository, offers OfferRepository, orders OrderRepository, clk clock.Clock) *OfferService {
	return &OfferService{requests: requests, offers: offers, orders: orders, clock: clk}
}

type SubmitOfferInput struct {
	Price             float64
	Currency          string
	Quotation         []models.QuotationItem
	Images            []models.Attachment
	QuotationDocument *models.Attachment
	Message           string
	DeliveryDate      *time.Time
}

// ====== Submit ====

func (s *OfferService) Submit(ctx context.Context, seller models.Caller, requestID string, in SubmitOfferInput) (*models.Offer, error) {
	if !seller.CanSell() {
		return nil, forbiddenError("role %q cannot submit offers", seller.Role)
	}
	if !seller.IsVerified {
		return nil, forbiddenError("complete identity verification before submitting offers")
	}

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError(err, "request", requestID)
	}
	if req.BuyerID == seller.ID {
		return nil, validationError("you cannot bid on your own request")
	}
	if !req.Status.IsOpen() {
		return nil, invalidStateError("request %s is %s and no longer accepts offers", requestID, req.Status)
	}
	now := s.clock.Now()
	if !req.IsPublished(now) {
		return nil, invalidStateError("request %s is not published until %s", requestID, req.PublishDate.Format(time.RFC3339))
	}

	if in.Price <= 0 {
		return nil, validationError("price must be greater than zero")
	}
	quotation, err := normalizeQuotation(in.Quotation)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = req.Currency
	}

	offer := &models.Offer{
		OfferID:           newOfferID(),
		RequestID:         req.RequestID,
		SellerID:          seller.ID,
		SellerUsername:    seller.Username,
		SellerRole:        seller.Role,
		Price:             in.Price,
		Currency:          currency,
		Quotation:         quotation,
		Images:            in.Images,
		QuotationDocument: in.QuotationDocument,
		Message:           utils.CleanText(in.Message),
		Status:            models.OfferStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.DeliveryDate != nil {
		d := in.DeliveryDate.UTC()
		offer.DeliveryDate = &d
	}

	if err := s.offers.InsertOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}
	if err := s.requests.IncrementOffersCount(ctx, req.RequestID); err != nil {
		logging.L(ctx).Warn("failed to increment offers count", "request_id", req.RequestID, "offer_id", offer.OfferID, "error", err)
	}

	metrics.OffersSubmittedTotal.Inc()
	logging.L(ctx).Info("offer submitted", "offer_id", offer.OfferID, "request_id", req.RequestID, "seller_id", seller.ID)
	return offer, nil
}

func normalizeQuotation(items []models.QuotationItem) ([]models.QuotationItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]models.QuotationItem, 0, len(items))
	for i, it := range items {
		it.Name = utils.CleanText(it.Name)
		it.Unit = utils.NormalizeUnit(it.Unit)
		if it.Name == "" {
			return nil, validationError("quotation item %d: name is required", i+1)
		}
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			return nil, validationError("quotation item %d: quantity must be positive and unit price non-negative", i+1)
		}
		if it.Total == 0 {
			it.Total = it.Quantity * it.UnitPrice
		}
		out = append(out, it)
	}
	return out, nil
}

// ====== Buyer actions ====

type AcceptTermsInput struct {
	AcknowledgmentNote    string
	AcknowledgmentFiles   []string
	ConfirmedDeliveryDate *time.Time
	PaymentTerms          string
}

// AcceptByBuyer attaches the buyer's terms to a pending offer. Several offers
// on the same request may await seller confirmation at once.
func (s *OfferService) AcceptByBuyer(ctx context.Context, buyer models.Caller, offerID string, terms AcceptTermsInput) (*models.Offer, error) {
	offer, req, err := s.offerForBuyer(ctx, buyer, offerID)
	if err != nil {
		return nil, err
	}
	if !req.Status.IsOpen() {
		return nil, invalidStateError("request %s is %s; offers can no longer be accepted", req.RequestID, req.Status)
	}
	if offer.Status != models.OfferStatusPending {
		return nil, invalidStateError("offer %s is %s; only pending offers can be accepted", offerID, offer.Status)
	}
	paymentTerms := utils.CleanText(terms.PaymentTerms)
	if paymentTerms == "" {
		return nil, validationError("payment terms are required")
	}

	now := s.clock.Now()
	bt := &models.BuyerTerms{
		AcknowledgmentNote:  utils.CleanText(terms.AcknowledgmentNote),
		AcknowledgmentFiles: terms.AcknowledgmentFiles,
		PaymentTerms:        paymentTerms,
		ProposedAt:          now,
	}
	switch {
	case terms.ConfirmedDeliveryDate != nil:
		d := terms.ConfirmedDeliveryDate.UTC()
		bt.ConfirmedDeliveryDate = &d
	case offer.DeliveryDate != nil:
		d := *offer.DeliveryDate
		bt.ConfirmedDeliveryDate = &d
	}

	offer.BuyerTerms = bt
	return s.transition(ctx, offer, models.OfferStatusAcceptedByBuyer, models.OfferStatusPending)
}

// Reject declines an offer outright, either before terms were proposed or
// after the seller turned them down.
func (s *OfferService) Reject(ctx context.Context, buyer models.Caller, offerID string) (*models.Offer, error) {
	offer, _, err := s.offerForBuyer(ctx, buyer, offerID)
	if err != nil {
		return nil, err
	}
	from := []models.OfferStatus{models.OfferStatusPending, models.OfferStatusTermsRejected}
	if !slices.Contains(from, offer.Status) {
		return nil, invalidStateError("offer %s is %s and cannot be rejected", offerID, offer.Status)
	}
	return s.transition(ctx, offer, models.OfferStatusRejected, offer.Status)
}

// ====== Seller actions ====

type ConfirmTermsResult struct {
	Offer *models.Offer
	Order *models.Order
}

// ConfirmTerms agrees to the buyer's terms and derives the order. The offer
// is claimed first so that concurrent confirmations produce one order.
func (s *OfferService) ConfirmTerms(ctx context.Context, seller models.Caller, offerID string) (res *ConfirmTermsResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "rfq.confirm_terms", tracing.OfferID(offerID))
	defer func() { tracing.End(span, err) }()

	offer, err := s.offerForSeller(ctx, seller, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusAcceptedByBuyer {
		return nil, invalidStateError("offer %s is %s; only offers awaiting your confirmation can be confirmed", offerID, offer.Status)
	}
	req, err := s.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return nil, lookupError(err, "request", offer.RequestID)
	}

	now := s.clock.Now()
	order := orderFromOffer(req, offer, now)

	claimed := *offer
	claimed.Status = models.OfferStatusAccepted
	claimed.OrderID = &order.TrackingID
	claimed.UpdatedAt = now
	if err := s.offers.UpdateOffer(ctx, &claimed, models.OfferStatusAcceptedByBuyer); err != nil {
		return nil, writeError(err, "offer", offerID)
	}

	if err := s.orders.InsertOrder(ctx, order); err != nil {
		if revertErr := s.offers.UpdateOffer(ctx, offer, models.OfferStatusAccepted); revertErr != nil {
			logging.L(ctx).Error("failed to release offer after order insert failed",
				"offer_id", offerID, "error", revertErr)
		}
		if errors.Is(err, ErrDuplicate) {
			return nil, invalidStateError("an order already exists for offer %s", offerID)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.completeRequest(ctx, req, now)

	metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferStatusAccepted)).Inc()
	metrics.OrdersCreatedTotal.WithLabelValues(string(order.Source)).Inc()
	logging.L(ctx).Info("offer terms confirmed", "offer_id", offerID, "tracking_id", order.TrackingID)
	return &ConfirmTermsResult{Offer: &claimed, Order: order}, nil
}

// completeRequest marks the originating request fulfilled once it has an
// order. Another confirmed offer may have done so already, and a concurrent
// hold or resume is retried once against the fresh status.
func (s *OfferService) completeRequest(ctx context.Context, req *models.Request, now time.Time) {
	status := req.Status
	for attempt := 0; attempt < 2 && status.IsOpen(); attempt++ {
		err := s.requests.TransitionRequest(ctx, req.RequestID, status, RequestTransition{
			Status:    models.RequestStatusCompleted,
			UpdatedAt: now,
		})
		if err == nil {
			return
		}
		if !errors.Is(err, ErrConflict) {
			logging.L(ctx).Warn("failed to complete request after order creation", "request_id", req.RequestID, "error", err)
			return
		}
		fresh, getErr := s.requests.GetRequest(ctx, req.RequestID)
		if getErr != nil {
			logging.L(ctx).Warn("failed to reload request after order creation", "request_id", req.RequestID, "error", getErr)
			return
		}
		status = fresh.Status
	}
}

func orderFromOffer(req *models.Request, offer *models.Offer, now time.Time) *models.Order {
	var items []models.OrderItem
	if len(offer.Quotation) > 0 {
		for _, q := range offer.Quotation {
			items = append(items, models.OrderItem{
				Name: q.Name, Quantity: q.Quantity, Unit: q.Unit, UnitPrice: q.UnitPrice, Total: q.Total,
			})
		}
	} else {
		// Without an itemised quotation the price covers the request as a whole.
		for _, it := range req.Items {
			items = append(items, models.OrderItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit})
		}
	}

	order := &models.Order{
		TrackingID:       newTrackingID(),
		BuyerID:          req.BuyerID,
		SellerID:         offer.SellerID,
		OriginRequestID:  req.RequestID,
		OriginOfferID:    offer.OfferID,
		Source:           models.OrderSourceOffer,
		Items:            items,
		TotalAmount:      offer.Price,
		Currency:         offer.Currency,
		DeliveryLocation: req.Location,
		DeliveryDate:     offer.DeliveryDate,
		Status:           models.OrderStatusConfirmed,
		IsRFQOrder:       true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if bt := offer.BuyerTerms; bt != nil {
		order.PaymentTerms = bt.PaymentTerms
		if bt.ConfirmedDeliveryDate != nil {
			order.DeliveryDate = bt.ConfirmedDeliveryDate
		}
	}
	return order
}

// RejectTerms sends the buyer's terms back; the buyer may then reject the
// offer or accept another.
func (s *OfferService) RejectTerms(ctx context.Context, seller models.Caller, offerID string) (*models.Offer, error) {
	offer, err := s.offerForSeller(ctx, seller, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusAcceptedByBuyer {
		return nil, invalidStateError("offer %s is %s; there are no terms to reject", offerID, offer.Status)
	}
	return s.transition(ctx, offer, models.OfferStatusTermsRejected, models.OfferStatusAcceptedByBuyer)
}

type DeliveryMark struct {
	Offer *models.Offer
	Order *models.Order
}

// MarkDelivered records that the seller has delivered an accepted offer and
// moves its order to await the buyer's confirmation.
func (s *OfferService) MarkDelivered(ctx context.Context, seller models.Caller, offerID string) (*DeliveryMark, error) {
	offer, err := s.offerForSeller(ctx, seller, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != models.OfferStatusAccepted {
		return nil, invalidStateError("offer %s is %s; only accepted offers can be marked delivered", offerID, offer.Status)
	}

	now := s.clock.Now()
	order, err := s.orders.GetOrderByOfferID(ctx, offerID)
	switch {
	case errors.Is(err, ErrNotFound):
		order = nil
	case err != nil:
		return nil, lookupError(err, "order for offer", offerID)
	}

	var before models.Order
	if order != nil {
		before = *order
		order.Status = models.OrderStatusDeliveredPendingConfirmation
		order.UpdatedAt = now
		if err := s.orders.UpdateOrder(ctx, order, models.OrderStatusConfirmed); err != nil {
			return nil, writeError(err, "order", order.TrackingID)
		}
	}

	updated, err := s.transition(ctx, offer, models.OfferStatusDelivered, models.OfferStatusAccepted)
	if err != nil {
		if order != nil {
			if revertErr := s.orders.UpdateOrder(ctx, &before, models.OrderStatusDeliveredPendingConfirmation); revertErr != nil {
				logging.L(ctx).Error("failed to revert order status", "tracking_id", before.TrackingID, "error", revertErr)
			}
		}
		return nil, err
	}
	return &DeliveryMark{Offer: updated, Order: order}, nil
}

// ====== Reads ====

// Get returns an offer to its seller or to the owner of its request.
func (s *OfferService) Get(ctx context.Context, caller models.Caller, offerID string) (*models.Offer, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, lookupError(err, "offer", offerID)
	}
	if offer.SellerID == caller.ID {
		return offer, nil
	}
	req, err := s.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return nil, lookupError(err, "request", offer.RequestID)
	}
	if req.BuyerID != caller.ID {
		return nil, forbiddenError("offer %s belongs to another buyer's request", offerID)
	}
	return offer, nil
}

// ListForRequest returns every offer to the request owner and a seller's
// own offers to anyone else.
func (s *OfferService) ListForRequest(ctx context.Context, caller models.Caller, requestID string, skip, limit int64) ([]models.Offer, int64, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, 0, lookupError(err, "request", requestID)
	}
	f := OfferFilter{RequestID: requestID, Skip: skip, Limit: limit}
	if req.BuyerID != caller.ID {
		if !req.IsPublished(s.clock.Now()) {
			return nil, 0, notFoundError("request %s not found", requestID)
		}
		f.SellerID = caller.ID
	}
	return s.offers.ListOffers(ctx, f)
}

func (s *OfferService) ListMine(ctx context.Context, seller models.Caller, skip, limit int64) ([]models.Offer, int64, error) {
	return s.offers.ListOffers(ctx, OfferFilter{SellerID: seller.ID, Skip: skip, Limit: limit})
}

func (s *OfferService) ListOrders(ctx context.Context, caller models.Caller, skip, limit int64) ([]models.Order, int64, error) {
	return s.orders.ListOrders(ctx, OrderFilter{ParticipantID: caller.ID, Skip: skip, Limit: limit})
}

// ====== Helpers ====

func (s *OfferService) offerForBuyer(ctx context.Context, buyer models.Caller, offerID string) (*models.Offer, *models.Request, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, lookupError(err, "offer", offerID)
	}
	req, err := s.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return nil, nil, lookupError(err, "request", offer.RequestID)
	}
	if req.BuyerID != buyer.ID {
		return nil, nil, forbiddenError("only the buyer who created request %s may act on its offers", req.RequestID)
	}
	return offer, req, nil
}

func (s *OfferService) offerForSeller(ctx context.Context, seller models.Caller, offerID string) (*models.Offer, error) {
	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, lookupError(err, "offer", offerID)
	}
	if offer.SellerID != seller.ID {
		return nil, forbiddenError("only the seller who submitted offer %s may act on it", offerID)
	}
	return offer, nil
}

// transition writes offer with status to, provided it is still in from.
func (s *OfferService) transition(ctx context.Context, offer *models.Offer, to models.OfferStatus, from ...models.OfferStatus) (*models.Offer, error) {
	updated := *offer
	updated.Status = to
	updated.UpdatedAt = s.clock.Now()
	if err := s.offers.UpdateOffer(ctx, &updated, from...); err != nil {
		return nil, writeError(err, "offer", offer.OfferID)
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(to)).Inc()
	logging.L(ctx).Info("offer transitioned", "offer_id", offer.OfferID, "from", offer.Status, "to", to)
	return &updated, nil
}
