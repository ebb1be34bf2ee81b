package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_StandardWithoutPaymentReference(t *testing.T) {
	h := newHarness(t)
	spec := standardSpec()
	spec.Budget = ptr(0.0)

	_, err := h.requests.Create(context.Background(), buyer, spec, "")
	assert.ErrorIs(t, err, services.ErrPaymentRequired)
	assert.Equal(t, services.KindPaymentRequired, services.KindOf(err))
}

func TestCreate_InstantWithoutContactPhone(t *testing.T) {
	h := newHarness(t)
	spec := instantSpec(ptr(50000.0))
	spec.ContactPhone = "   "

	_, err := h.requests.Create(context.Background(), buyer, spec, "")
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = h.requests.Create(context.Background(), buyer, spec, "ref-x")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestCreate_Defaults(t *testing.T) {
	h := newHarness(t)

	std := h.createRequest(t, standardSpec())
	assert.Regexp(t, `^RFQ-[0-9A-F]{8}$`, std.RequestID)
	assert.Equal(t, models.RequestStatusActive, std.Status)
	assert.Equal(t, t0, std.PublishDate)
	assert.Equal(t, t0.Add(7*24*time.Hour), std.ExpiryDate)
	assert.Equal(t, "NGN", std.Currency)
	assert.Equal(t, "bags", std.Items[0].Unit)
	assert.Equal(t, 5000.0, std.ServiceFeesPaid)
	assert.Nil(t, std.AgentFeeHeld)

	inst := h.createRequest(t, instantSpec(ptr(100000.0)))
	assert.Equal(t, t0.Add(24*time.Hour), inst.ExpiryDate)
	require.NotNil(t, inst.AgentFeeHeld)
	assert.Equal(t, 4000.0, *inst.AgentFeeHeld)
	assert.Equal(t, 7000.0, inst.ServiceFeesPaid)
}

func TestCreate_ExplicitDates(t *testing.T) {
	h := newHarness(t)
	spec := standardSpec()
	spec.PublishDate = ptr(t0.Add(24 * time.Hour))
	spec.ExpiryDate = ptr(t0.Add(12 * time.Hour))
	h.verifiedPayment(t, buyer, "ref-1", 500000)

	_, err := h.requests.Create(context.Background(), buyer, spec, "ref-1")
	assert.ErrorIs(t, err, services.ErrValidation)

	spec.ExpiryDate = ptr(t0.Add(48 * time.Hour))
	req, err := h.requests.Create(context.Background(), buyer, spec, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(24*time.Hour), req.PublishDate)
	assert.Equal(t, t0.Add(48*time.Hour), req.ExpiryDate)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		mutate func(*services.RequestSpec)
	}{
		{"unknown type", func(s *services.RequestSpec) { s.Type = "bulk" }},
		{"no items", func(s *services.RequestSpec) { s.Items = nil }},
		{"blank item name", func(s *services.RequestSpec) { s.Items[0].Name = " " }},
		{"zero quantity", func(s *services.RequestSpec) { s.Items[0].Quantity = 0 }},
		{"negative budget", func(s *services.RequestSpec) { s.Budget = ptr(-1.0) }},
		{"inverted price range", func(s *services.RequestSpec) { s.PriceRangeMin, s.PriceRangeMax = ptr(10.0), ptr(5.0) }},
		{"zero delivery days", func(s *services.RequestSpec) { s.DeliveryDays = ptr(0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := standardSpec()
			tt.mutate(&spec)
			_, err := h.requests.Create(context.Background(), buyer, spec, h.paidRef(t))
			assert.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestCreate_DuplicatePaymentReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.verifiedPayment(t, buyer, "ref-dup", 500000)

	req, err := h.requests.Create(ctx, buyer, standardSpec(), "ref-dup")
	require.NoError(t, err)

	tx, err := h.store.GetPayment(ctx, "ref-dup")
	require.NoError(t, err)
	assert.Equal(t, req.RequestID, tx.RequestID)

	_, err = h.requests.Create(ctx, buyer, standardSpec(), "ref-dup")
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestCreate_RequiresVerifiedPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := models.Caller{ID: "buyer-2", Username: "ngozi", Role: models.RoleBuyer, IsVerified: true}

	_, err := h.requests.Create(ctx, buyer, standardSpec(), "never-paid-ref")
	assert.ErrorIs(t, err, services.ErrPaymentRequired)

	started, err := h.requests.InitializePayment(ctx, buyer, services.InitializePaymentInput{Type: models.RequestTypeStandard})
	require.NoError(t, err)
	_, err = h.requests.Create(ctx, buyer, standardSpec(), started.Reference)
	assert.ErrorIs(t, err, services.ErrPaymentRequired, "a pending payment is not enough")

	h.verifiedPayment(t, buyer, "ref-small", 400000)
	_, err = h.requests.Create(ctx, buyer, standardSpec(), "ref-small")
	assert.ErrorIs(t, err, services.ErrInsufficientPayment)

	h.verifiedPayment(t, buyer, "ref-mine", 500000)
	_, err = h.requests.Create(ctx, other, standardSpec(), "ref-mine")
	assert.ErrorIs(t, err, services.ErrForbidden)

	assert.Zero(t, h.gateway.verifyCalls.Load())
	_, total, err := h.requests.ListMine(ctx, other, "", 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreate_CannotClaimAnotherBuyersReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := models.Caller{ID: "buyer-2", Username: "ngozi", Role: models.RoleBuyer, IsVerified: true}

	started, err := h.requests.InitializePayment(ctx, buyer, services.InitializePaymentInput{Type: models.RequestTypeStandard})
	require.NoError(t, err)
	h.gateway.paid(started.Reference, 500000)

	_, err = h.requests.Create(ctx, other, standardSpec(), started.Reference)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = h.requests.VerifyAndCreate(ctx, other, standardSpec(), started.Reference)
	assert.ErrorIs(t, err, services.ErrForbidden)

	res, err := h.requests.VerifyAndCreate(ctx, buyer, standardSpec(), started.Reference)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, buyer.ID, res.Request.BuyerID)
}

// ====== VerifyAndCreate ====

func TestVerifyAndCreate_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gateway.paid("ref-pay", 500000)

	first, err := h.requests.VerifyAndCreate(ctx, buyer, standardSpec(), "ref-pay")
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := h.requests.VerifyAndCreate(ctx, buyer, standardSpec(), "ref-pay")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Request.RequestID, second.Request.RequestID)

	mine, total, err := h.requests.ListMine(ctx, buyer, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, mine, 1)
	assert.Equal(t, int32(1), h.gateway.verifyCalls.Load(), "retry should not hit the gateway again")

	tx, err := h.store.GetPayment(ctx, "ref-pay")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusSuccess, tx.Status)
	assert.Equal(t, first.Request.RequestID, tx.RequestID)
	assert.Equal(t, int64(500000), tx.PaidMinor)
}

func TestVerifyAndCreate_ConcurrentRetriesCreateOneRequest(t *testing.T) {
	h := newHarness(t)
	h.gateway.paid("ref-race", 500000)

	const callers = 16
	ids := make([]string, callers)
	created := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.requests.VerifyAndCreate(context.Background(), buyer, standardSpec(), "ref-race")
			if assert.NoError(t, err) {
				ids[i] = res.Request.RequestID
				created[i] = res.Created
			}
		}(i)
	}
	wg.Wait()

	_, total, err := h.requests.ListMine(context.Background(), buyer, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	createdCount := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)
}

func TestVerifyAndCreate_GatewayFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.verifyErr = errors.New("connection refused")

	_, err := h.requests.VerifyAndCreate(context.Background(), buyer, standardSpec(), "ref-down")
	assert.ErrorIs(t, err, services.ErrPaymentVerification)
}

func TestVerifyAndCreate_NotConfirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.requests.VerifyAndCreate(ctx, buyer, standardSpec(), "ref-abandoned")
	assert.ErrorIs(t, err, services.ErrPaymentNotConfirmed)

	tx, err := h.store.GetPayment(ctx, "ref-abandoned")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, tx.Status)

	_, total, _ := h.requests.ListMine(ctx, buyer, "", 0, 0)
	assert.Zero(t, total)
}

func TestVerifyAndCreate_Insufficient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 3,000 + 4% of 100,000 = 7,000 naira.
	h.gateway.paid("ref-short", 690000)
	_, err := h.requests.VerifyAndCreate(ctx, buyer, instantSpec(ptr(100000.0)), "ref-short")
	assert.ErrorIs(t, err, services.ErrInsufficientPayment)

	h.gateway.paid("ref-rounded", 699900)
	res, err := h.requests.VerifyAndCreate(ctx, buyer, instantSpec(ptr(100000.0)), "ref-rounded")
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestVerifyAndCreate_ReferenceOfAnotherBuyer(t *testing.T) {
	h := newHarness(t)
	h.gateway.paid("ref-owned", 500000)
	_, err := h.requests.VerifyAndCreate(context.Background(), buyer, standardSpec(), "ref-owned")
	require.NoError(t, err)

	other := models.Caller{ID: "buyer-2", Role: models.RoleBuyer}
	_, err = h.requests.VerifyAndCreate(context.Background(), other, standardSpec(), "ref-owned")
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestVerifyAndCreate_MissingReference(t *testing.T) {
	h := newHarness(t)
	_, err := h.requests.VerifyAndCreate(context.Background(), buyer, standardSpec(), " ")
	assert.ErrorIs(t, err, services.ErrPaymentRequired)
	assert.Zero(t, h.gateway.verifyCalls.Load())
}

// ====== InitializePayment ====

func TestInitializePayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	init, err := h.requests.InitializePayment(ctx, buyer, services.InitializePaymentInput{
		Type:            models.RequestTypeInstant,
		EstimatedBudget: 100000,
	})
	require.NoError(t, err)
	assert.Equal(t, "ref-init-1", init.Reference)
	assert.Equal(t, int64(700000), init.Fee.TotalMinorUnits())

	require.Len(t, h.gateway.initialized, 1)
	sent := h.gateway.initialized[0]
	assert.Equal(t, buyer.Email, sent.Email)
	assert.Equal(t, int64(700000), sent.AmountMinor)
	assert.Equal(t, "https://app.example.com/rfq/callback", sent.CallbackURL)

	tx, err := h.store.GetPayment(ctx, "ref-init-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, tx.Status)
	assert.Equal(t, buyer.ID, tx.UserID)
}

func TestInitializePayment_RequiresEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.requests.InitializePayment(context.Background(), models.Caller{ID: "x"}, services.InitializePaymentInput{
		Type: models.RequestTypeStandard,
	})
	assert.ErrorIs(t, err, services.ErrValidation)
}

// ====== UpdateStatus ====

func TestUpdateStatus_HoldAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := standardSpec()
	spec.ExpiryDate = ptr(t0.Add(600 * time.Second))
	req := h.createRequest(t, spec)

	held, err := h.requests.UpdateStatus(ctx, buyer, req.RequestID, models.RequestStatusOnHold)
	require.NoError(t, err)
	assert.True(t, held.Changed)
	require.NotNil(t, held.Request.HoldDurationSeconds)
	assert.Equal(t, int64(600), *held.Request.HoldDurationSeconds)

	h.clock.Advance(3*time.Hour + 17*time.Second)
	view := h.requests.View(*held.Request)
	assert.Equal(t, int64(600), view.RemainingSeconds, "countdown is frozen while on hold")
	assert.False(t, view.IsExpired)

	resumed, err := h.requests.UpdateStatus(ctx, buyer, req.RequestID, models.RequestStatusActive)
	require.NoError(t, err)
	assert.Nil(t, resumed.Request.HoldDurationSeconds)
	assert.WithinDuration(t, h.clock.Now().Add(600*time.Second), resumed.Request.ExpiryDate, time.Second)

	stored, err := h.store.GetRequest(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusActive, stored.Status)
	assert.Nil(t, stored.HoldDurationSeconds)
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	h := newHarness(t)
	req := h.createRequest(t, standardSpec())

	res, err := h.requests.UpdateStatus(context.Background(), buyer, req.RequestID, models.RequestStatusActive)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Contains(t, res.Message, "already active")
}

func TestUpdateStatus_ClosedIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.createRequest(t, standardSpec())

	_, err := h.requests.UpdateStatus(ctx, buyer, req.RequestID, models.RequestStatusClosed)
	require.NoError(t, err)

	for _, next := range []models.RequestStatus{models.RequestStatusActive, models.RequestStatusOnHold, models.RequestStatusClosed} {
		_, err = h.requests.UpdateStatus(ctx, buyer, req.RequestID, next)
		assert.ErrorIs(t, err, services.ErrInvalidState, "closed -> %s", next)
	}
}

func TestUpdateStatus_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.createRequest(t, standardSpec())

	_, err := h.requests.UpdateStatus(ctx, buyer, req.RequestID, models.RequestStatusCompleted)
	assert.ErrorIs(t, err, services.ErrInvalidState)

	_, err = h.requests.UpdateStatus(ctx, farmer, req.RequestID, models.RequestStatusClosed)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = h.requests.UpdateStatus(ctx, buyer, "RFQ-MISSING0", models.RequestStatusClosed)
	assert.ErrorIs(t, err, services.ErrNotFoundKind)
}

// ====== Edit ====

func TestEdit_AppliesOnlyProvidedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := h.createRequest(t, standardSpec())
	h.submitOffer(t, farmer, req.RequestID, 1000)

	res, err := h.requests.Edit(ctx, buyer, req.RequestID, services.RequestPatch{
		Title:  ptr("  Yellow   maize "),
		Budget: ptr(900000.0),
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	stored, err := h.store.GetRequest(ctx, req.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "Yellow maize", stored.Title)
	assert.Equal(t, 900000.0, *stored.Budget)
	assert.Equal(t, req.Items, stored.Items)
	assert.Equal(t, 1, stored.OffersCount, "edits never overwrite the offers counter")
}

func TestEdit_NoopPatch(t *testing.T) {
	h := newHarness(t)
	req := h.createRequest(t, standardSpec())

	res, err := h.requests.Edit(context.Background(), buyer, req.RequestID, services.RequestPatch{})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = h.requests.Edit(context.Background(), buyer, req.RequestID, services.RequestPatch{Title: ptr(req.Title)})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestEdit_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inst := h.createRequest(t, instantSpec(ptr(100000.0)))
	_, err := h.requests.Edit(ctx, buyer, inst.RequestID, services.RequestPatch{Budget: ptr(200000.0)})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = h.requests.Edit(ctx, buyer, inst.RequestID, services.RequestPatch{ContactPhone: ptr("")})
	assert.ErrorIs(t, err, services.ErrValidation)

	_, err = h.requests.Edit(ctx, farmer, inst.RequestID, services.RequestPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, services.ErrForbidden)

	std := h.createRequest(t, standardSpec())
	_, err = h.requests.UpdateStatus(ctx, buyer, std.RequestID, models.RequestStatusClosed)
	require.NoError(t, err)
	_, err = h.requests.Edit(ctx, buyer, std.RequestID, services.RequestPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

// ====== Reads ====

func TestGet_UnpublishedVisibleOnlyToOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	spec := standardSpec()
	spec.PublishDate = ptr(t0.Add(24 * time.Hour))
	req := h.createRequest(t, spec)

	_, err := h.requests.Get(ctx, buyer, req.RequestID)
	assert.NoError(t, err)

	_, err = h.requests.Get(ctx, farmer, req.RequestID)
	assert.ErrorIs(t, err, services.ErrNotFoundKind)

	h.clock.Advance(25 * time.Hour)
	_, err = h.requests.Get(ctx, farmer, req.RequestID)
	assert.NoError(t, err)
}

func TestListOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	maize := h.createRequest(t, standardSpec())
	tomatoes := h.createRequest(t, instantSpec(ptr(90000.0)))

	future := standardSpec()
	future.PublishDate = ptr(t0.Add(time.Hour))
	h.createRequest(t, future)

	closed := h.createRequest(t, standardSpec())
	_, err := h.requests.UpdateStatus(ctx, buyer, closed.RequestID, models.RequestStatusClosed)
	require.NoError(t, err)

	all, total, err := h.requests.ListOpen(ctx, services.RequestQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, all, 2)

	byType, _, err := h.requests.ListOpen(ctx, services.RequestQuery{Type: models.RequestTypeInstant})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, tomatoes.RequestID, byType[0].RequestID)

	byQuery, _, err := h.requests.ListOpen(ctx, services.RequestQuery{Query: "MAIZE"})
	require.NoError(t, err)
	require.Len(t, byQuery, 1)
	assert.Equal(t, maize.RequestID, byQuery[0].RequestID)

	byState, _, err := h.requests.ListOpen(ctx, services.RequestQuery{State: "lagos"})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, tomatoes.RequestID, byState[0].RequestID)
}

func TestView_ExpiredActiveRequest(t *testing.T) {
	h := newHarness(t)
	req := h.createRequest(t, instantSpec(ptr(1000.0)))

	h.clock.Advance(25 * time.Hour)
	v := h.requests.View(*req)
	assert.Zero(t, v.RemainingSeconds)
	assert.True(t, v.IsExpired)
}
