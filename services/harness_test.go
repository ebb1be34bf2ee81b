package services_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/database"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

var (
	buyer  = models.Caller{ID: "buyer-1", Username: "amaka", Email: "amaka@example.com", Role: models.RoleBuyer, IsVerified: true}
	farmer = models.Caller{ID: "seller-1", Username: "musa", Role: models.RoleFarmer, IsVerified: true}
	trader = models.Caller{ID: "seller-2", Username: "bisi", Role: models.RoleBusiness, IsVerified: true}
	agent  = models.Caller{ID: "agent-1", Username: "tunde", Role: models.RoleAgent, IsVerified: true}
)

type fakeGateway struct {
	mu            sync.Mutex
	verifications map[string]*services.Verification
	verifyErr     error
	verifyCalls   atomic.Int32
	initErr       error
	initialized   []services.InitializeParams
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifications: make(map[string]*services.Verification)}
}

// paid registers a successful payment of amountMinor under reference.
func (g *fakeGateway) paid(reference string, amountMinor int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifications[reference] = &services.Verification{
		Reference: reference, Status: services.GatewayStatusSuccess, AmountMinor: amountMinor, Currency: "NGN",
	}
}

func (g *fakeGateway) Initialize(_ context.Context, p services.InitializeParams) (*services.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.initialized = append(g.initialized, p)
	ref := fmt.Sprintf("ref-init-%d", len(g.initialized))
	return &services.InitializeResult{
		Reference:        ref,
		AuthorizationURL: "https://checkout.example.com/" + ref,
		AccessCode:       "code-" + ref,
	}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*services.Verification, error) {
	g.verifyCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	if v, ok := g.verifications[reference]; ok {
		cp := *v
		return &cp, nil
	}
	return &services.Verification{Reference: reference, Status: "failed"}, nil
}

type fakePayout struct {
	mu    sync.Mutex
	ok    bool
	msg   string
	calls []string
}

func (p *fakePayout) ProcessOrderPayout(_ context.Context, trackingID string) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, trackingID)
	return p.ok, p.msg
}

func (p *fakePayout) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type harness struct {
	store       *database.MemoryStore
	clock       *clock.Manual
	gateway     *fakeGateway
	payout      *fakePayout
	requests    *services.RequestService
	offers      *services.OfferService
	instant     *services.InstantTakeService
	fulfillment *services.FulfillmentService
	refs        atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := database.NewMemoryStore()
	clk := clock.NewManual(t0)
	gw := newFakeGateway()
	payout := &fakePayout{ok: true, msg: "released"}
	return &harness{
		store:       store,
		clock:       clk,
		gateway:     gw,
		payout:      payout,
		requests:    services.NewRequestService(store, store, gw, clk, services.WithCallbackURL("https://app.example.com/rfq/callback")),
		offers:      services.NewOfferService(store, store, store, clk),
		instant:     services.NewInstantTakeService(store, store, store, clk),
		fulfillment: services.NewFulfillmentService(store, store, store, payout, clk),
	}
}

func ptr[T any](v T) *T { return &v }

func standardSpec() services.RequestSpec {
	return services.RequestSpec{
		Type:     models.RequestTypeStandard,
		Title:    "Maize for feed mill",
		Items:    []models.LineItem{{Name: "White maize", Quantity: 20, Unit: "Bags"}},
		Location: models.Location{State: "Kano", City: "Kano"},
	}
}

func instantSpec(budget *float64) services.RequestSpec {
	return services.RequestSpec{
		Type:         models.RequestTypeInstant,
		Title:        "Tomatoes today",
		Items:        []models.LineItem{{Name: "Tomatoes", Quantity: 5, Unit: "baskets", TargetPrice: ptr(18000.0)}},
		Location:     models.Location{State: "Lagos", City: "Ikeja"},
		ContactPhone: "+2348030000000",
		DeliveryDays: ptr(1),
		Budget:       budget,
	}
}

func (h *harness) nextRef() string {
	return fmt.Sprintf("ref-%03d", h.refs.Add(1))
}

// verifiedPayment records reference in the ledger as a successful payment by
// payer of amountMinor that no request has used yet.
func (h *harness) verifiedPayment(t *testing.T, payer models.Caller, reference string, amountMinor int64) {
	t.Helper()
	require.NoError(t, h.store.MarkPayment(context.Background(), &models.PaymentTransaction{
		Reference: reference,
		UserID:    payer.ID,
		Purpose:   models.PaymentPurposeRFQFee,
		PaidMinor: amountMinor,
		Status:    models.PaymentStatusSuccess,
	}))
}

// paidRef returns a fresh reference backed by a verified payment covering any fee used here.
func (h *harness) paidRef(t *testing.T) string {
	t.Helper()
	ref := h.nextRef()
	h.verifiedPayment(t, buyer, ref, 10_000_000)
	return ref
}

func (h *harness) createRequest(t *testing.T, spec services.RequestSpec) *models.Request {
	t.Helper()
	req, err := h.requests.Create(context.Background(), buyer, spec, h.paidRef(t))
	require.NoError(t, err)
	return req
}

func (h *harness) submitOffer(t *testing.T, seller models.Caller, requestID string, price float64) *models.Offer {
	t.Helper()
	offer, err := h.offers.Submit(context.Background(), seller, requestID, services.SubmitOfferInput{
		Price:        price,
		DeliveryDate: ptr(t0.Add(72 * time.Hour)),
	})
	require.NoError(t, err)
	return offer
}

func (h *harness) accept(t *testing.T, offerID string) *models.Offer {
	t.Helper()
	offer, err := h.offers.AcceptByBuyer(context.Background(), buyer, offerID, services.AcceptTermsInput{
		PaymentTerms:       "50% on dispatch, balance on delivery",
		AcknowledgmentNote: "Please bag in 50kg sacks",
	})
	require.NoError(t, err)
	return offer
}

// confirmedOffer walks a fresh standard request to an accepted offer with an order.
func (h *harness) confirmedOffer(t *testing.T) (*models.Request, *services.ConfirmTermsResult) {
	t.Helper()
	req := h.createRequest(t, standardSpec())
	offer := h.submitOffer(t, farmer, req.RequestID, 250000)
	h.accept(t, offer.OfferID)
	res, err := h.offers.ConfirmTerms(context.Background(), farmer, offer.OfferID)
	require.NoError(t, err)
	return req, res
}
