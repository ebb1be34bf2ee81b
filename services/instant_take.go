package services

import (
	"context"
	"fmt"
	"time"

	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/metrics"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/tracing"
)

// InstantTakeService lets a verified agent fulfil an instant request at its
// stated budget without negotiating.
type InstantTakeService struct {
	requests RequestRepository
	offers   OfferRepository
	orders   OrderRepository
	clock    clock.Clock
}

func NewInstantTakeService(requests RequestRepository, offers OfferRepository, orders OrderRepository, clk clock.Clock) *InstantTakeService {
	return &InstantTakeService{requests: requests, offers: offers, orders: orders, clock: clk}
}

type TakeResult struct {
	Request *models.Request
	Offer   *models.Offer
	Order   *models.Order
}

// Take claims the request, then writes an already-accepted synthetic offer
// and a confirmed order priced at the request's budget.
func (s *InstantTakeService) Take(ctx context.Context, agent models.Caller, requestID string) (res *TakeResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "rfq.instant_take", tracing.RequestID(requestID))
	defer func() { tracing.End(span, err) }()

	if agent.Role != models.RoleAgent {
		return nil, forbiddenError("only agents can take instant requests")
	}
	if !agent.IsVerified {
		return nil, forbiddenError("complete identity verification before taking requests")
	}

	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError(err, "request", requestID)
	}
	if req.BuyerID == agent.ID {
		return nil, validationError("you cannot take your own request")
	}
	if req.Type != models.RequestTypeInstant {
		return nil, validationError("request %s is a standard request; submit an offer instead", requestID)
	}
	if !req.Status.IsOpen() {
		return nil, invalidStateError("request %s is %s and can no longer be taken", requestID, req.Status)
	}
	now := s.clock.Now()
	if !req.IsPublished(now) {
		return nil, invalidStateError("request %s is not published yet", requestID)
	}
	if req.Budget == nil {
		return nil, validationError("request %s has no budget; use the standard offer flow to quote a price", requestID)
	}

	previous := *req
	err = s.requests.TransitionRequest(ctx, requestID, previous.Status, RequestTransition{
		Status:    models.RequestStatusCompleted,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, writeError(err, "request", requestID)
	}
	req.Status = models.RequestStatusCompleted
	req.HoldDurationSeconds = nil
	req.UpdatedAt = now

	trackingID := newTrackingID()
	offer := syntheticOffer(req, agent, trackingID, now)
	order := instantOrder(req, agent, offer.OfferID, trackingID, now)

	if err := s.offers.InsertOffer(ctx, offer); err != nil {
		s.release(ctx, &previous)
		return nil, fmt.Errorf("insert instant offer: %w", err)
	}
	if err := s.orders.InsertOrder(ctx, order); err != nil {
		s.release(ctx, &previous)
		voided := *offer
		voided.Status = models.OfferStatusRejected
		voided.OrderID = nil
		voided.UpdatedAt = now
		if voidErr := s.offers.UpdateOffer(ctx, &voided, models.OfferStatusAccepted); voidErr != nil {
			logging.L(ctx).Error("failed to void instant offer", "offer_id", offer.OfferID, "error", voidErr)
		}
		return nil, fmt.Errorf("insert instant order: %w", err)
	}
	if err := s.requests.IncrementOffersCount(ctx, requestID); err != nil {
		logging.L(ctx).Warn("failed to increment offers count", "request_id", requestID, "error", err)
	} else {
		req.OffersCount++
	}

	metrics.OrdersCreatedTotal.WithLabelValues(string(order.Source)).Inc()
	logging.L(ctx).Info("instant request taken",
		"request_id", requestID, "agent_id", agent.ID, "tracking_id", trackingID)
	return &TakeResult{Request: req, Offer: offer, Order: order}, nil
}

// release puts a claimed request back the way it was.
func (s *InstantTakeService) release(ctx context.Context, previous *models.Request) {
	err := s.requests.TransitionRequest(ctx, previous.RequestID, models.RequestStatusCompleted, RequestTransition{
		Status:              previous.Status,
		HoldDurationSeconds: previous.HoldDurationSeconds,
		UpdatedAt:           previous.UpdatedAt,
	})
	if err != nil {
		logging.L(ctx).Error("failed to release claimed request", "request_id", previous.RequestID, "error", err)
	}
}

func syntheticOffer(req *models.Request, agent models.Caller, trackingID string, now time.Time) *models.Offer {
	orderID := trackingID
	offer := &models.Offer{
		OfferID:        newInstantOfferID(),
		RequestID:      req.RequestID,
		SellerID:       agent.ID,
		SellerUsername: agent.Username,
		SellerRole:     agent.Role,
		Price:          *req.Budget,
		Currency:       req.Currency,
		Message:        "Instant take at the buyer's budget",
		Status:         models.OfferStatusAccepted,
		OrderID:        &orderID,
		IsInstant:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d := instantDeliveryDate(req, now); d != nil {
		offer.DeliveryDate = d
	}
	return offer
}

func instantOrder(req *models.Request, agent models.Caller, offerID, trackingID string, now time.Time) *models.Order {
	items := make([]models.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		oi := models.OrderItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit}
		if it.TargetPrice != nil {
			oi.UnitPrice = *it.TargetPrice
			oi.Total = *it.TargetPrice * it.Quantity
		}
		items = append(items, oi)
	}
	return &models.Order{
		TrackingID:       trackingID,
		BuyerID:          req.BuyerID,
		SellerID:         agent.ID,
		OriginRequestID:  req.RequestID,
		OriginOfferID:    offerID,
		Source:           models.OrderSourceInstantTake,
		Items:            items,
		TotalAmount:      *req.Budget,
		Currency:         req.Currency,
		DeliveryLocation: req.Location,
		DeliveryDate:     instantDeliveryDate(req, now),
		Status:           models.OrderStatusConfirmed,
		IsRFQOrder:       false,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func instantDeliveryDate(req *models.Request, now time.Time) *time.Time {
	if req.DeliveryDate != nil {
		d := *req.DeliveryDate
		return &d
	}
	if req.DeliveryDays != nil {
		d := now.AddDate(0, 0, *req.DeliveryDays)
		return &d
	}
	return nil
}
