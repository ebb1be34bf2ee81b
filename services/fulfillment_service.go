package services

import (
	"context"
	"slices"
	"strings"

	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/metrics"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/tracing"
)

// Payout outcomes reported by ConfirmDelivery.
const (
	PayoutReleased           = "released"
	PayoutPendingAdminReview = "pending_admin_review"
	PayoutNotApplicable      = "not_applicable"
)

// FulfillmentService closes out an order once the buyer quotes its delivery
// code, and releases held funds for escrow orders.
type FulfillmentService struct {
	requests RequestRepository
	offers   OfferRepository
	orders   OrderRepository
	payout   PayoutService
	clock    clock.Clock
}

func NewFulfillmentService(requests RequestRepository, offers OfferRepository, orders OrderRepository, payout PayoutService, clk clock.Clock) *FulfillmentService {
	return &FulfillmentService{requests: requests, offers: offers, orders: orders, payout: payout, clock: clk}
}

type DeliveryConfirmation struct {
	Offer        *models.Offer
	Order        *models.Order
	PayoutStatus string
	Message      string
}

// ConfirmDelivery checks code against the last characters of the order's
// tracking id. A failed payout does not fail the confirmation; it is left
// for an administrator.
func (s *FulfillmentService) ConfirmDelivery(ctx context.Context, buyer models.Caller, offerID, code string) (res *DeliveryConfirmation, err error) {
	ctx, span := tracing.StartSpan(ctx, "rfq.confirm_delivery", tracing.OfferID(offerID))
	defer func() { tracing.End(span, err) }()

	offer, err := s.offers.GetOffer(ctx, offerID)
	if err != nil {
		return nil, lookupError(err, "offer", offerID)
	}
	req, err := s.requests.GetRequest(ctx, offer.RequestID)
	if err != nil {
		return nil, lookupError(err, "request", offer.RequestID)
	}
	if req.BuyerID != buyer.ID {
		return nil, forbiddenError("only the buyer who created request %s may confirm delivery", req.RequestID)
	}

	order, err := s.orders.GetOrderByOfferID(ctx, offerID)
	if err != nil {
		return nil, lookupError(err, "order for offer", offerID)
	}
	span.SetAttributes(tracing.TrackingID(order.TrackingID))

	if !codeMatches(order.TrackingID, code) {
		return nil, newError(KindInvalidCode, "the delivery code does not match this order")
	}

	deliverable := []models.OfferStatus{models.OfferStatusAccepted, models.OfferStatusDelivered}
	if !slices.Contains(deliverable, offer.Status) {
		return nil, invalidStateError("offer %s is %s; delivery cannot be confirmed", offerID, offer.Status)
	}

	now := s.clock.Now()
	before := *order
	order.Status = models.OrderStatusDelivered
	order.ConfirmedByBuyer = true
	order.DeliveredAt = &now
	order.UpdatedAt = now
	if err := s.orders.UpdateOrder(ctx, order,
		models.OrderStatusConfirmed, models.OrderStatusDeliveredPendingConfirmation); err != nil {
		return nil, writeError(err, "order", order.TrackingID)
	}

	completed := *offer
	completed.Status = models.OfferStatusCompleted
	completed.UpdatedAt = now
	if err := s.offers.UpdateOffer(ctx, &completed, deliverable...); err != nil {
		if revertErr := s.orders.UpdateOrder(ctx, &before, models.OrderStatusDelivered); revertErr != nil {
			logging.L(ctx).Error("failed to revert order after offer update failed",
				"tracking_id", order.TrackingID, "error", revertErr)
		}
		return nil, writeError(err, "offer", offerID)
	}
	metrics.OfferTransitionsTotal.WithLabelValues(string(models.OfferStatusCompleted)).Inc()

	result := &DeliveryConfirmation{Offer: &completed, Order: order}
	if order.IsRFQOrder {
		result.PayoutStatus = PayoutNotApplicable
		result.Message = "Delivery confirmed. Payment for this order is settled directly between buyer and seller."
		metrics.PayoutsTotal.WithLabelValues(PayoutNotApplicable).Inc()
		return result, nil
	}

	ok, msg := false, "payout service is not configured"
	if s.payout != nil {
		ok, msg = s.payout.ProcessOrderPayout(ctx, order.TrackingID)
	}
	if ok {
		result.PayoutStatus = PayoutReleased
		result.Message = "Delivery confirmed. Payment has been released to the seller."
		metrics.PayoutsTotal.WithLabelValues(PayoutReleased).Inc()
		logging.L(ctx).Info("payout released", "tracking_id", order.TrackingID)
		return result, nil
	}

	result.PayoutStatus = PayoutPendingAdminReview
	result.Message = "Delivery confirmed. The seller's payout is pending admin review."
	metrics.PayoutsTotal.WithLabelValues(PayoutPendingAdminReview).Inc()
	logging.L(ctx).Warn("payout failed after delivery confirmation",
		"tracking_id", order.TrackingID, "offer_id", offerID, "reason", msg)
	return result, nil
}

func codeMatches(trackingID, code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != DeliveryCodeLength {
		return false
	}
	return strings.HasSuffix(strings.ToUpper(trackingID), code)
}
