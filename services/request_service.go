package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/princinho/agrorfq/clock"
	"github.com/princinho/agrorfq/logging"
	"github.com/princinho/agrorfq/metrics"
	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/tracing"
	"github.com/princinho/agrorfq/utils"
)

const (
	DefaultInstantTTL  = 24 * time.Hour
	DefaultStandardTTL = 7 * 24 * time.Hour
	DefaultCurrency    = "NGN"
)

// RequestService owns the Request entity: creation behind a verified
// payment, status transitions with hold and resume, and buyer edits.
type RequestService struct {
	requests    RequestRepository
	ledger      PaymentLedger
	gateway     PaymentGateway
	clock       clock.Clock
	instantTTL  time.Duration
	standardTTL time.Duration
	callbackURL string
}

type RequestOption func(*RequestService)

// WithRequestTTLs overrides how long after publishing a request expires when
// the buyer gives no expiry date.
func WithRequestTTLs(instant, standard time.Duration) RequestOption {
	return func(s *RequestService) {
		if instant > 0 {
			s.instantTTL = instant
		}
		if standard > 0 {
			s.standardTTL = standard
		}
	}
}

func WithCallbackURL(url string) RequestOption {
	return func(s *RequestService) { s.callbackURL = url }
}

func NewRequestService(requests RequestRepository, ledger PaymentLedger, gateway PaymentGateway, clk clock.Clock, opts ...RequestOption) *RequestService {
	s := &RequestService{
		requests:    requests,
		ledger:      ledger,
		gateway:     gateway,
		clock:       clk,
		instantTTL:  DefaultInstantTTL,
		standardTTL: DefaultStandardTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestSpec is what a buyer submits to open a request.
type RequestSpec struct {
	Type          models.RequestType
	Title         string
	Items         []models.LineItem
	Location      models.Location
	Notes         string
	ContactPhone  string
	DeliveryDays  *int
	DeliveryDate  *time.Time
	PublishDate   *time.Time
	ExpiryDate    *time.Time
	Budget        *float64
	Currency      string
	PriceRangeMin *float64
	PriceRangeMax *float64
}

type CreateResult struct {
	Request *models.Request
	// Created is false when an earlier call already created the request for this payment reference.
	Created bool
}

// ====== Create ====

// Create opens a request against a payment the ledger already records as
// successful for this buyer and not yet spent on another request, such as a
// verified payment whose request could not be written at the time.
func (s *RequestService) Create(ctx context.Context, buyer models.Caller, spec RequestSpec, paymentReference string) (*models.Request, error) {
	req, err := s.build(buyer, spec, strings.TrimSpace(paymentReference))
	if err != nil {
		return nil, err
	}
	if req.PaymentReference == "" {
		return nil, newError(KindPaymentRequired, "a payment reference is required to publish a request")
	}
	fee, err := CalculateFee(req.Type, budgetOrZero(req.Budget))
	if err != nil {
		return nil, err
	}
	payment, err := s.verifiedPayment(ctx, buyer, req.PaymentReference, fee)
	if err != nil {
		return nil, err
	}

	if err := s.requests.InsertRequest(ctx, req); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, validationError("payment reference %s has already been used", req.PaymentReference)
		}
		return nil, fmt.Errorf("insert request: %w", err)
	}
	payment.RequestID = req.RequestID
	s.markPayment(ctx, payment)

	metrics.RequestsCreatedTotal.WithLabelValues(string(req.Type)).Inc()
	logging.L(ctx).Info("request created", "request_id", req.RequestID, "type", req.Type, "buyer_id", req.BuyerID)
	return req, nil
}

// verifiedPayment returns the ledger entry that lets buyer spend reference on
// a request costing fee.
func (s *RequestService) verifiedPayment(ctx context.Context, buyer models.Caller, reference string, fee FeeBreakdown) (*models.PaymentTransaction, error) {
	if s.ledger == nil {
		return nil, newError(KindPaymentRequired, "payment %s has not been verified", reference)
	}
	tx, err := s.ledger.GetPayment(ctx, reference)
	if errors.Is(err, ErrNotFound) {
		return nil, newError(KindPaymentRequired, "payment %s has not been verified", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup payment %s: %w", reference, err)
	}
	if tx.UserID != buyer.ID {
		return nil, forbiddenError("payment reference belongs to another buyer")
	}
	if tx.RequestID != "" {
		return nil, validationError("payment reference %s has already been used", reference)
	}
	if tx.Status != models.PaymentStatusSuccess {
		return nil, newError(KindPaymentRequired, "payment %s has not been verified (status %s)", reference, tx.Status)
	}
	if !SufficientPayment(tx.PaidMinor, fee) {
		return nil, newError(KindInsufficientPayment,
			"payment of %d kobo does not cover the required fee of %d kobo", tx.PaidMinor, fee.TotalMinorUnits())
	}
	return tx, nil
}

// VerifyAndCreate confirms the payment with the gateway and opens the
// request. Repeated calls with the same reference return the request the
// first call created.
func (s *RequestService) VerifyAndCreate(ctx context.Context, buyer models.Caller, spec RequestSpec, paymentReference string) (res *CreateResult, err error) {
	ref := strings.TrimSpace(paymentReference)
	ctx, span := tracing.StartSpan(ctx, "rfq.verify_and_create", tracing.Reference(ref))
	defer func() { tracing.End(span, err) }()

	if ref == "" {
		return nil, newError(KindPaymentRequired, "a payment reference is required to publish a request")
	}

	existing, err := s.requests.GetRequestByPaymentReference(ctx, ref)
	switch {
	case err == nil:
		return existingResult(existing, buyer)
	case !errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("lookup payment reference: %w", err)
	}

	req, err := s.build(buyer, spec, ref)
	if err != nil {
		return nil, err
	}
	fee, err := CalculateFee(req.Type, budgetOrZero(req.Budget))
	if err != nil {
		return nil, err
	}
	if s.ledger != nil {
		tx, err := s.ledger.GetPayment(ctx, ref)
		switch {
		case err == nil && tx.UserID != "" && tx.UserID != buyer.ID:
			return nil, forbiddenError("payment reference belongs to another buyer")
		case err != nil && !errors.Is(err, ErrNotFound):
			return nil, fmt.Errorf("lookup payment %s: %w", ref, err)
		}
	}

	verification, err := s.gateway.Verify(ctx, ref)
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues("error").Inc()
		return nil, &Error{Kind: KindPaymentVerification, Message: "could not verify payment with the gateway", Err: err}
	}

	ledgerEntry := &models.PaymentTransaction{
		Reference:   ref,
		UserID:      buyer.ID,
		Email:       buyer.Email,
		Purpose:     models.PaymentPurposeRFQFee,
		RequestType: req.Type,
		AmountMinor: fee.TotalMinorUnits(),
		PaidMinor:   verification.AmountMinor,
		Status:      models.PaymentStatusFailed,
	}

	if verification.Status != GatewayStatusSuccess {
		metrics.PaymentVerificationsTotal.WithLabelValues("not_confirmed").Inc()
		s.markPayment(ctx, ledgerEntry)
		return nil, newError(KindPaymentNotConfirmed, "payment %s was not successful (gateway status %q)", ref, verification.Status)
	}
	if !SufficientPayment(verification.AmountMinor, fee) {
		metrics.PaymentVerificationsTotal.WithLabelValues("insufficient").Inc()
		s.markPayment(ctx, ledgerEntry)
		return nil, newError(KindInsufficientPayment,
			"payment of %d kobo does not cover the required fee of %d kobo", verification.AmountMinor, fee.TotalMinorUnits())
	}
	metrics.PaymentVerificationsTotal.WithLabelValues("success").Inc()
	ledgerEntry.Status = models.PaymentStatusSuccess
	s.markPayment(ctx, ledgerEntry)

	if err := s.requests.InsertRequest(ctx, req); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("insert request: %w", err)
		}
		// Lost the race to a concurrent call carrying the same reference.
		existing, getErr := s.requests.GetRequestByPaymentReference(ctx, ref)
		if getErr != nil {
			return nil, fmt.Errorf("reload request after duplicate insert: %w", getErr)
		}
		return existingResult(existing, buyer)
	}

	ledgerEntry.RequestID = req.RequestID
	s.markPayment(ctx, ledgerEntry)

	metrics.RequestsCreatedTotal.WithLabelValues(string(req.Type)).Inc()
	logging.L(ctx).Info("request created from verified payment",
		"request_id", req.RequestID, "reference", ref, "paid_minor", verification.AmountMinor)
	return &CreateResult{Request: req, Created: true}, nil
}

func existingResult(req *models.Request, buyer models.Caller) (*CreateResult, error) {
	if req.BuyerID != buyer.ID {
		return nil, forbiddenError("payment reference belongs to another buyer")
	}
	return &CreateResult{Request: req, Created: false}, nil
}

func (s *RequestService) markPayment(ctx context.Context, tx *models.PaymentTransaction) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.MarkPayment(ctx, tx); err != nil {
		logging.L(ctx).Error("failed to update payment ledger", "reference", tx.Reference, "status", tx.Status, "error", err)
	}
}

// ====== Payment initialisation ====

type InitializePaymentInput struct {
	Type            models.RequestType
	EstimatedBudget float64
	Email           string
}

type PaymentInit struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
	Fee              FeeBreakdown
}

// InitializePayment prices a prospective request and opens a gateway
// transaction for it.
func (s *RequestService) InitializePayment(ctx context.Context, buyer models.Caller, in InitializePaymentInput) (*PaymentInit, error) {
	fee, err := CalculateFee(in.Type, in.EstimatedBudget)
	if err != nil {
		return nil, err
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = buyer.Email
	}
	if email == "" {
		return nil, validationError("an email address is required to start a payment")
	}

	result, err := s.gateway.Initialize(ctx, InitializeParams{
		Email:       email,
		AmountMinor: fee.TotalMinorUnits(),
		CallbackURL: s.callbackURL,
		Metadata: map[string]any{
			"purpose":          models.PaymentPurposeRFQFee,
			"request_type":     string(in.Type),
			"buyer_id":         buyer.ID,
			"estimated_budget": in.EstimatedBudget,
		},
	})
	if err != nil {
		return nil, &Error{Kind: KindPaymentVerification, Message: "could not start payment with the gateway", Err: err}
	}

	if s.ledger != nil {
		now := s.clock.Now()
		err := s.ledger.RecordPayment(ctx, &models.PaymentTransaction{
			Reference:   result.Reference,
			UserID:      buyer.ID,
			Email:       email,
			Purpose:     models.PaymentPurposeRFQFee,
			RequestType: in.Type,
			AmountMinor: fee.TotalMinorUnits(),
			Status:      models.PaymentStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			logging.L(ctx).Error("failed to record pending payment", "reference", result.Reference, "error", err)
		}
	}

	return &PaymentInit{
		Reference:        result.Reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		Fee:              fee,
	}, nil
}

// ====== Status ====

type StatusChange struct {
	Request *models.Request
	Changed bool
	Message string
}

// UpdateStatus moves a request between active, on_hold and closed.
// Holding freezes the expiry countdown; resuming restarts it from the snapshot.
func (s *RequestService) UpdateStatus(ctx context.Context, buyer models.Caller, requestID string, newStatus models.RequestStatus) (*StatusChange, error) {
	req, err := s.ownedRequest(ctx, buyer, requestID)
	if err != nil {
		return nil, err
	}

	current := req.Status
	switch current {
	case models.RequestStatusClosed, models.RequestStatusCompleted:
		return nil, invalidStateError("request %s is %s and can no longer change status", requestID, current)
	}
	switch newStatus {
	case models.RequestStatusActive, models.RequestStatusOnHold, models.RequestStatusClosed:
	default:
		return nil, invalidStateError("status %q cannot be set by the buyer", newStatus)
	}
	if newStatus == current {
		return &StatusChange{Request: req, Changed: false, Message: fmt.Sprintf("request is already %s", current)}, nil
	}

	now := s.clock.Now()
	change := RequestTransition{Status: newStatus, UpdatedAt: now}
	switch {
	case newStatus == models.RequestStatusOnHold:
		remaining := RemainingSeconds(req.ExpiryDate, now)
		change.HoldDurationSeconds = &remaining
	case current == models.RequestStatusOnHold && newStatus == models.RequestStatusActive:
		var held int64
		if req.HoldDurationSeconds != nil {
			held = *req.HoldDurationSeconds
		}
		expiry := ResumedExpiry(now, held)
		change.ExpiryDate = &expiry
	}

	if err := s.requests.TransitionRequest(ctx, requestID, current, change); err != nil {
		return nil, writeError(err, "request", requestID)
	}
	req.Status = change.Status
	req.HoldDurationSeconds = change.HoldDurationSeconds
	if change.ExpiryDate != nil {
		req.ExpiryDate = *change.ExpiryDate
	}
	req.UpdatedAt = now

	logging.L(ctx).Info("request status changed", "request_id", requestID, "from", current, "to", newStatus)
	return &StatusChange{Request: req, Changed: true, Message: fmt.Sprintf("request is now %s", newStatus)}, nil
}

// ====== Edit ====

// RequestPatch holds optional replacements; nil fields are left alone.
type RequestPatch struct {
	Title         *string
	Items         *[]models.LineItem
	Location      *models.Location
	Notes         *string
	ContactPhone  *string
	DeliveryDays  *int
	DeliveryDate  *time.Time
	Budget        *float64
	PriceRangeMin *float64
	PriceRangeMax *float64
}

type EditResult struct {
	Request *models.Request
	Changed bool
}

func (s *RequestService) Edit(ctx context.Context, buyer models.Caller, requestID string, patch RequestPatch) (*EditResult, error) {
	req, err := s.ownedRequest(ctx, buyer, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.IsOpen() {
		return nil, invalidStateError("request %s is %s and can no longer be edited", requestID, req.Status)
	}

	changed := false
	applyText(&req.Title, patch.Title, &changed)
	applyText(&req.Notes, patch.Notes, &changed)
	applyText(&req.ContactPhone, patch.ContactPhone, &changed)
	if patch.Items != nil {
		items := normalizeItems(*patch.Items)
		if !reflect.DeepEqual(items, req.Items) {
			req.Items = items
			changed = true
		}
	}
	if patch.Location != nil {
		loc := normalizeLocation(*patch.Location)
		if loc != req.Location {
			req.Location = loc
			changed = true
		}
	}
	applyValue(&req.DeliveryDays, patch.DeliveryDays, &changed)
	if patch.DeliveryDate != nil && (req.DeliveryDate == nil || !req.DeliveryDate.Equal(*patch.DeliveryDate)) {
		d := patch.DeliveryDate.UTC()
		req.DeliveryDate = &d
		changed = true
	}
	if patch.Budget != nil && req.Type == models.RequestTypeInstant &&
		(req.Budget == nil || *req.Budget != *patch.Budget) {
		return nil, validationError("the budget of an instant request was paid for and cannot be changed")
	}
	applyValue(&req.Budget, patch.Budget, &changed)
	applyValue(&req.PriceRangeMin, patch.PriceRangeMin, &changed)
	applyValue(&req.PriceRangeMax, patch.PriceRangeMax, &changed)

	if !changed {
		return &EditResult{Request: req, Changed: false}, nil
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	previous := req.Status
	req.UpdatedAt = s.clock.Now()
	if err := s.requests.UpdateRequest(ctx, req, previous); err != nil {
		return nil, writeError(err, "request", requestID)
	}
	return &EditResult{Request: req, Changed: true}, nil
}

func applyText(dst *string, v *string, changed *bool) {
	if v == nil {
		return
	}
	if nv := utils.CleanText(*v); nv != *dst {
		*dst = nv
		*changed = true
	}
}

func applyValue[T comparable](dst **T, v *T, changed *bool) {
	if v == nil {
		return
	}
	if *dst != nil && **dst == *v {
		return
	}
	val := *v
	*dst = &val
	*changed = true
}

// ====== Reads ====

// Get returns a request. Unpublished requests are visible only to their owner.
func (s *RequestService) Get(ctx context.Context, caller models.Caller, requestID string) (*models.Request, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError(err, "request", requestID)
	}
	if req.BuyerID != caller.ID && !req.IsPublished(s.clock.Now()) {
		return nil, notFoundError("request %s not found", requestID)
	}
	return req, nil
}

type RequestQuery struct {
	Type  models.RequestType
	State string
	Query string
	Skip  int64
	Limit int64
}

// ListOpen lists published requests sellers can still act on.
func (s *RequestService) ListOpen(ctx context.Context, q RequestQuery) ([]models.Request, int64, error) {
	now := s.clock.Now()
	return s.requests.ListRequests(ctx, RequestFilter{
		Statuses:    []models.RequestStatus{models.RequestStatusActive, models.RequestStatusOnHold},
		Type:        q.Type,
		State:       utils.CleanText(q.State),
		Query:       utils.CleanText(q.Query),
		PublishedBy: &now,
		Skip:        q.Skip,
		Limit:       q.Limit,
	})
}

func (s *RequestService) ListMine(ctx context.Context, buyer models.Caller, status models.RequestStatus, skip, limit int64) ([]models.Request, int64, error) {
	f := RequestFilter{BuyerID: buyer.ID, Skip: skip, Limit: limit}
	if status != "" {
		f.Statuses = []models.RequestStatus{status}
	}
	return s.requests.ListRequests(ctx, f)
}

// RequestView decorates a request with its countdown as seen at read time.
type RequestView struct {
	models.Request
	RemainingSeconds int64 `json:"remainingSeconds"`
	IsExpired        bool  `json:"isExpired"`
}

func (s *RequestService) View(req models.Request) RequestView {
	v := RequestView{Request: req}
	switch {
	case req.Status == models.RequestStatusOnHold && req.HoldDurationSeconds != nil:
		v.RemainingSeconds = *req.HoldDurationSeconds
	case req.Status.IsOpen():
		v.RemainingSeconds = RemainingSeconds(req.ExpiryDate, s.clock.Now())
		v.IsExpired = v.RemainingSeconds == 0
	}
	return v
}

func (s *RequestService) Views(reqs []models.Request) []RequestView {
	out := make([]RequestView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, s.View(r))
	}
	return out
}

// ====== Helpers ====

func (s *RequestService) ownedRequest(ctx context.Context, buyer models.Caller, requestID string) (*models.Request, error) {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError(err, "request", requestID)
	}
	if req.BuyerID != buyer.ID {
		return nil, forbiddenError("only the buyer who created request %s may change it", requestID)
	}
	return req, nil
}

func (s *RequestService) build(buyer models.Caller, spec RequestSpec, paymentReference string) (*models.Request, error) {
	now := s.clock.Now()

	req := &models.Request{
		RequestID:        newRequestID(),
		BuyerID:          buyer.ID,
		BuyerUsername:    buyer.Username,
		Type:             spec.Type,
		Title:            utils.CleanText(spec.Title),
		Items:            normalizeItems(spec.Items),
		Location:         normalizeLocation(spec.Location),
		Notes:            utils.CleanText(spec.Notes),
		ContactPhone:     utils.CleanText(spec.ContactPhone),
		DeliveryDays:     spec.DeliveryDays,
		Budget:           spec.Budget,
		Currency:         strings.ToUpper(strings.TrimSpace(spec.Currency)),
		PriceRangeMin:    spec.PriceRangeMin,
		PriceRangeMax:    spec.PriceRangeMax,
		PaymentReference: strings.TrimSpace(paymentReference),
		Status:           models.RequestStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if req.Currency == "" {
		req.Currency = DefaultCurrency
	}
	if spec.DeliveryDate != nil {
		d := spec.DeliveryDate.UTC()
		req.DeliveryDate = &d
	}

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	req.PublishDate = now
	if spec.PublishDate != nil {
		req.PublishDate = spec.PublishDate.UTC()
	}
	ttl := s.standardTTL
	if req.Type == models.RequestTypeInstant {
		ttl = s.instantTTL
	}
	req.ExpiryDate = req.PublishDate.Add(ttl)
	if spec.ExpiryDate != nil {
		if !spec.ExpiryDate.After(req.PublishDate) {
			return nil, validationError("expiry date must be after the publish date")
		}
		req.ExpiryDate = spec.ExpiryDate.UTC()
	}

	if req.Type == models.RequestTypeInstant && req.Budget != nil {
		held := AgentFeeHeld(*req.Budget)
		req.AgentFeeHeld = &held
	}
	fee, err := CalculateFee(req.Type, budgetOrZero(req.Budget))
	if err != nil {
		return nil, err
	}
	req.ServiceFeesPaid = fee.Total.InexactFloat64()

	return req, nil
}

func validateRequest(req *models.Request) error {
	switch req.Type {
	case models.RequestTypeInstant:
		if req.ContactPhone == "" {
			return validationError("a contact phone is required for instant requests")
		}
	case models.RequestTypeStandard:
	default:
		return validationError("type must be %q or %q", models.RequestTypeInstant, models.RequestTypeStandard)
	}

	if len(req.Items) == 0 {
		return validationError("at least one line item is required")
	}
	for i, it := range req.Items {
		if it.Name == "" {
			return validationError("item %d: name is required", i+1)
		}
		if it.Quantity <= 0 {
			return validationError("item %d: quantity must be greater than zero", i+1)
		}
		if it.TargetPrice != nil && *it.TargetPrice < 0 {
			return validationError("item %d: target price cannot be negative", i+1)
		}
	}

	if req.DeliveryDays != nil && *req.DeliveryDays <= 0 {
		return validationError("delivery days must be greater than zero")
	}
	if req.Budget != nil && *req.Budget < 0 {
		return validationError("budget cannot be negative")
	}
	if req.PriceRangeMin != nil && req.PriceRangeMax != nil && *req.PriceRangeMin > *req.PriceRangeMax {
		return validationError("price range minimum exceeds maximum")
	}
	return nil
}

func normalizeItems(items []models.LineItem) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, it := range items {
		it.Name = utils.CleanText(it.Name)
		it.Unit = utils.NormalizeUnit(it.Unit)
		it.Spec = utils.CleanText(it.Spec)
		out = append(out, it)
	}
	return out
}

func normalizeLocation(l models.Location) models.Location {
	return models.Location{
		State:   utils.CleanText(l.State),
		City:    utils.CleanText(l.City),
		Address: utils.CleanText(l.Address),
	}
}

// writeError translates a failed conditional write.
func writeError(err error, what, id string) error {
	switch {
	case errors.Is(err, ErrConflict):
		return invalidStateError("%s %s was changed by another action; reload and retry", what, id)
	case errors.Is(err, ErrNotFound):
		return notFoundError("%s %s not found", what, id)
	}
	return fmt.Errorf("update %s %s: %w", what, id, err)
}
