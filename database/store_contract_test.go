package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func sampleRequest(id, buyerID, ref string, created time.Time) *models.Request {
	budget := 50000.0
	return &models.Request{
		RequestID:        id,
		BuyerID:          buyerID,
		Type:             models.RequestTypeStandard,
		Title:            "Yam tubers",
		Items:            []models.LineItem{{Name: "Yam", Quantity: 100, Unit: "tubers"}},
		Location:         models.Location{State: "Benue"},
		Budget:           &budget,
		Currency:         "NGN",
		PaymentReference: ref,
		Status:           models.RequestStatusActive,
		PublishDate:      created,
		ExpiryDate:       created.Add(7 * 24 * time.Hour),
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func sampleOffer(id, requestID, sellerID string, created time.Time) *models.Offer {
	return &models.Offer{
		OfferID:   id,
		RequestID: requestID,
		SellerID:  sellerID,
		Price:     1000,
		Currency:  "NGN",
		Status:    models.OfferStatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func sampleOrder(trackingID, offerID string, created time.Time) *models.Order {
	return &models.Order{
		TrackingID:    trackingID,
		BuyerID:       "buyer-1",
		SellerID:      "seller-1",
		OriginOfferID: offerID,
		Source:        models.OrderSourceOffer,
		Status:        models.OrderStatusConfirmed,
		IsRFQOrder:    true,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

// testStoreContract runs the behaviour every services.Store must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) services.Store) {
	t.Run("request uniqueness", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertRequest(ctx, sampleRequest("RFQ-1", "b1", "ref-1", base)))

		err := s.InsertRequest(ctx, sampleRequest("RFQ-1", "b1", "ref-2", base))
		assert.ErrorIs(t, err, services.ErrDuplicate)
		err = s.InsertRequest(ctx, sampleRequest("RFQ-2", "b1", "ref-1", base))
		assert.ErrorIs(t, err, services.ErrDuplicate)

		got, err := s.GetRequestByPaymentReference(ctx, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, "RFQ-1", got.RequestID)

		_, err = s.GetRequest(ctx, "RFQ-404")
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("conditional request update", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertRequest(ctx, sampleRequest("RFQ-1", "b1", "ref-1", base)))
		require.NoError(t, s.IncrementOffersCount(ctx, "RFQ-1"))

		req, err := s.GetRequest(ctx, "RFQ-1")
		require.NoError(t, err)
		req.Notes = "Grade A only"
		req.Budget = nil
		req.Status = models.RequestStatusClosed
		req.OffersCount = 0
		req.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, s.UpdateRequest(ctx, req, models.RequestStatusActive))

		got, err := s.GetRequest(ctx, "RFQ-1")
		require.NoError(t, err)
		assert.Equal(t, "Grade A only", got.Notes)
		assert.Nil(t, got.Budget)
		assert.Equal(t, models.RequestStatusActive, got.Status, "edits never change the status")
		assert.Equal(t, 1, got.OffersCount, "updates never touch the offers counter")
		assert.True(t, got.UpdatedAt.Equal(base.Add(time.Hour)))

		err = s.UpdateRequest(ctx, req, models.RequestStatusOnHold)
		assert.ErrorIs(t, err, services.ErrConflict)

		missing := sampleRequest("RFQ-404", "b1", "ref-x", base)
		err = s.UpdateRequest(ctx, missing, models.RequestStatusActive)
		assert.ErrorIs(t, err, services.ErrNotFound)
		assert.ErrorIs(t, s.IncrementOffersCount(ctx, "RFQ-404"), services.ErrNotFound)
	})

	t.Run("request transitions", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertRequest(ctx, sampleRequest("RFQ-1", "b1", "ref-1", base)))

		hold := int64(120)
		require.NoError(t, s.TransitionRequest(ctx, "RFQ-1", models.RequestStatusActive, services.RequestTransition{
			Status:              models.RequestStatusOnHold,
			HoldDurationSeconds: &hold,
			UpdatedAt:           base.Add(time.Minute),
		}))
		got, err := s.GetRequest(ctx, "RFQ-1")
		require.NoError(t, err)
		assert.Equal(t, models.RequestStatusOnHold, got.Status)
		require.NotNil(t, got.HoldDurationSeconds)
		assert.Equal(t, int64(120), *got.HoldDurationSeconds)
		assert.True(t, got.ExpiryDate.Equal(base.Add(7*24*time.Hour)), "a nil expiry leaves it alone")

		expiry := base.Add(48 * time.Hour)
		require.NoError(t, s.TransitionRequest(ctx, "RFQ-1", models.RequestStatusOnHold, services.RequestTransition{
			Status:     models.RequestStatusActive,
			ExpiryDate: &expiry,
			UpdatedAt:  base.Add(2 * time.Minute),
		}))
		got, err = s.GetRequest(ctx, "RFQ-1")
		require.NoError(t, err)
		assert.Equal(t, "Yam tubers", got.Title)
		assert.Equal(t, models.RequestStatusActive, got.Status)
		assert.Nil(t, got.HoldDurationSeconds)
		assert.True(t, got.ExpiryDate.Equal(expiry))
		require.NotNil(t, got.Budget)

		err = s.TransitionRequest(ctx, "RFQ-1", models.RequestStatusOnHold, services.RequestTransition{Status: models.RequestStatusClosed})
		assert.ErrorIs(t, err, services.ErrConflict)
		err = s.TransitionRequest(ctx, "RFQ-404", models.RequestStatusActive, services.RequestTransition{Status: models.RequestStatusClosed})
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("concurrent increments", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertRequest(ctx, sampleRequest("RFQ-1", "b1", "ref-1", base)))

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.IncrementOffersCount(ctx, "RFQ-1"))
			}()
		}
		wg.Wait()

		got, err := s.GetRequest(ctx, "RFQ-1")
		require.NoError(t, err)
		assert.Equal(t, 20, got.OffersCount)
	})

	t.Run("list requests", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			r := sampleRequest(fmt.Sprintf("RFQ-%d", i), "b1", fmt.Sprintf("ref-%d", i), base.Add(time.Duration(i)*time.Hour))
			if i == 4 {
				r.Title = "Sorghum"
				r.Items[0].Name = "Sorghum"
				r.Location.State = "Kaduna"
				r.BuyerID = "b2"
			}
			require.NoError(t, s.InsertRequest(ctx, r))
		}

		page, total, err := s.ListRequests(ctx, services.RequestFilter{BuyerID: "b1", Skip: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		require.Len(t, page, 2)
		assert.Equal(t, "RFQ-2", page[0].RequestID, "newest first")
		assert.Equal(t, "RFQ-1", page[1].RequestID)

		found, _, err := s.ListRequests(ctx, services.RequestFilter{Query: "sorghum", State: "KADUNA"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "RFQ-4", found[0].RequestID)

		cutoff := base.Add(90 * time.Minute)
		published, total, err := s.ListRequests(ctx, services.RequestFilter{PublishedBy: &cutoff})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, published, 2)
	})

	t.Run("offer updates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertOffer(ctx, sampleOffer("OFF-1", "RFQ-1", "s1", base)))
		assert.ErrorIs(t, s.InsertOffer(ctx, sampleOffer("OFF-1", "RFQ-1", "s1", base)), services.ErrDuplicate)

		offer, err := s.GetOffer(ctx, "OFF-1")
		require.NoError(t, err)
		offer.Status = models.OfferStatusAcceptedByBuyer
		offer.BuyerTerms = &models.BuyerTerms{PaymentTerms: "cash on delivery", ProposedAt: base}
		offer.Price = 999999
		require.NoError(t, s.UpdateOffer(ctx, offer, models.OfferStatusPending))

		got, err := s.GetOffer(ctx, "OFF-1")
		require.NoError(t, err)
		assert.Equal(t, models.OfferStatusAcceptedByBuyer, got.Status)
		require.NotNil(t, got.BuyerTerms)
		assert.Equal(t, "cash on delivery", got.BuyerTerms.PaymentTerms)
		assert.Equal(t, 1000.0, got.Price, "the bid itself is immutable")

		assert.ErrorIs(t, s.UpdateOffer(ctx, offer, models.OfferStatusPending), services.ErrConflict)
		_, err = s.GetOffer(ctx, "OFF-404")
		assert.ErrorIs(t, err, services.ErrNotFound)

		require.NoError(t, s.InsertOffer(ctx, sampleOffer("OFF-2", "RFQ-1", "s2", base.Add(time.Minute))))
		require.NoError(t, s.InsertOffer(ctx, sampleOffer("OFF-3", "RFQ-9", "s2", base.Add(2*time.Minute))))
		byRequest, total, err := s.ListOffers(ctx, services.OfferFilter{RequestID: "RFQ-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, "OFF-2", byRequest[0].OfferID)
		bySeller, _, err := s.ListOffers(ctx, services.OfferFilter{RequestID: "RFQ-1", SellerID: "s2"})
		require.NoError(t, err)
		require.Len(t, bySeller, 1)
		assert.Equal(t, "OFF-2", bySeller[0].OfferID)
	})

	t.Run("one order per offer", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.InsertOrder(ctx, sampleOrder("ORD-1", "OFF-1", base)))
		assert.ErrorIs(t, s.InsertOrder(ctx, sampleOrder("ORD-2", "OFF-1", base)), services.ErrDuplicate)
		assert.ErrorIs(t, s.InsertOrder(ctx, sampleOrder("ORD-1", "OFF-2", base)), services.ErrDuplicate)

		order, err := s.GetOrderByOfferID(ctx, "OFF-1")
		require.NoError(t, err)
		delivered := base.Add(time.Hour)
		order.Status = models.OrderStatusDelivered
		order.ConfirmedByBuyer = true
		order.DeliveredAt = &delivered
		order.TotalAmount = 1
		require.NoError(t, s.UpdateOrder(ctx, order, models.OrderStatusConfirmed, models.OrderStatusDeliveredPendingConfirmation))

		got, err := s.GetOrderByOfferID(ctx, "OFF-1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusDelivered, got.Status)
		assert.True(t, got.ConfirmedByBuyer)
		require.NotNil(t, got.DeliveredAt)
		assert.True(t, delivered.Equal(*got.DeliveredAt))
		assert.Zero(t, got.TotalAmount, "order contents are written once")

		assert.ErrorIs(t, s.UpdateOrder(ctx, order, models.OrderStatusConfirmed), services.ErrConflict)

		orders, total, err := s.ListOrders(ctx, services.OrderFilter{ParticipantID: "seller-1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, orders, 1)
		_, total, err = s.ListOrders(ctx, services.OrderFilter{ParticipantID: "nobody"})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("payment ledger", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		pending := &models.PaymentTransaction{
			Reference:   "ref-1",
			UserID:      "b1",
			Purpose:     models.PaymentPurposeRFQFee,
			RequestType: models.RequestTypeInstant,
			AmountMinor: 700000,
			Status:      models.PaymentStatusPending,
		}
		require.NoError(t, s.RecordPayment(ctx, pending))

		again := *pending
		again.AmountMinor = 1
		require.NoError(t, s.RecordPayment(ctx, &again), "recording is insert-if-absent")

		require.NoError(t, s.MarkPayment(ctx, &models.PaymentTransaction{
			Reference: "ref-1", Status: models.PaymentStatusSuccess, PaidMinor: 700000, RequestID: "RFQ-1",
		}))
		got, err := s.GetPayment(ctx, "ref-1")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusSuccess, got.Status)
		assert.Equal(t, int64(700000), got.AmountMinor)
		assert.Equal(t, int64(700000), got.PaidMinor)
		assert.Equal(t, "RFQ-1", got.RequestID)
		assert.Equal(t, "b1", got.UserID)

		require.NoError(t, s.MarkPayment(ctx, &models.PaymentTransaction{
			Reference: "ref-2", UserID: "b2", Status: models.PaymentStatusFailed,
		}))
		failed, err := s.GetPayment(ctx, "ref-2")
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusFailed, failed.Status)
		assert.Equal(t, "b2", failed.UserID)

		_, err = s.GetPayment(ctx, "ref-404")
		assert.ErrorIs(t, err, services.ErrNotFound)
	})
}
