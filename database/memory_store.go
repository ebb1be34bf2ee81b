package database

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
	"github.com/princinho/agrorfq/utils"
)

var _ services.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory store for development mode and tests. It
// enforces the same uniqueness and conditional-write rules as MongoStore.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*models.Request
	offers   map[string]*models.Offer
	orders   map[string]*models.Order
	payments map[string]*models.PaymentTransaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]*models.Request),
		offers:   make(map[string]*models.Offer),
		orders:   make(map[string]*models.Order),
		payments: make(map[string]*models.PaymentTransaction),
	}
}

// ====== Requests ====

func (m *MemoryStore) InsertRequest(_ context.Context, req *models.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.RequestID]; ok {
		return services.ErrDuplicate
	}
	if req.PaymentReference != "" {
		for _, r := range m.requests {
			if r.PaymentReference == req.PaymentReference {
				return services.ErrDuplicate
			}
		}
	}
	m.requests[req.RequestID] = cloneRequest(req)
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, requestID string) (*models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneRequest(r), nil
}

func (m *MemoryStore) GetRequestByPaymentReference(_ context.Context, reference string) (*models.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.requests {
		if r.PaymentReference == reference {
			return cloneRequest(r), nil
		}
	}
	return nil, services.ErrNotFound
}

func (m *MemoryStore) UpdateRequest(_ context.Context, req *models.Request, expected models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[req.RequestID]
	if !ok {
		return services.ErrNotFound
	}
	if stored.Status != expected {
		return services.ErrConflict
	}
	edited := cloneRequest(req)
	next := cloneRequest(stored)
	next.Title = edited.Title
	next.Items = edited.Items
	next.Location = edited.Location
	next.Notes = edited.Notes
	next.ContactPhone = edited.ContactPhone
	next.DeliveryDays = edited.DeliveryDays
	next.DeliveryDate = edited.DeliveryDate
	next.Budget = edited.Budget
	next.PriceRangeMin = edited.PriceRangeMin
	next.PriceRangeMax = edited.PriceRangeMax
	next.UpdatedAt = edited.UpdatedAt
	m.requests[req.RequestID] = next
	return nil
}

func (m *MemoryStore) TransitionRequest(_ context.Context, requestID string, expected models.RequestStatus, t services.RequestTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.requests[requestID]
	if !ok {
		return services.ErrNotFound
	}
	if stored.Status != expected {
		return services.ErrConflict
	}
	next := cloneRequest(stored)
	next.Status = t.Status
	if t.ExpiryDate != nil {
		next.ExpiryDate = *t.ExpiryDate
	}
	next.HoldDurationSeconds = nil
	if t.HoldDurationSeconds != nil {
		hold := *t.HoldDurationSeconds
		next.HoldDurationSeconds = &hold
	}
	next.UpdatedAt = t.UpdatedAt
	m.requests[requestID] = next
	return nil
}

func (m *MemoryStore) IncrementOffersCount(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return services.ErrNotFound
	}
	r.OffersCount++
	return nil
}

func (m *MemoryStore) ListRequests(_ context.Context, f services.RequestFilter) ([]models.Request, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := utils.FoldForSearch(f.Query)
	var result []models.Request
	for _, r := range m.requests {
		if f.BuyerID != "" && r.BuyerID != f.BuyerID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
			continue
		}
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.State != "" && !strings.EqualFold(r.Location.State, f.State) {
			continue
		}
		if f.PublishedBy != nil && r.PublishDate.After(*f.PublishedBy) {
			continue
		}
		if query != "" && !requestMatches(r, query) {
			continue
		}
		result = append(result, *cloneRequest(r))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Skip, f.Limit), int64(len(result)), nil
}

func requestMatches(r *models.Request, folded string) bool {
	if strings.Contains(utils.FoldForSearch(r.Title), folded) {
		return true
	}
	for _, it := range r.Items {
		if strings.Contains(utils.FoldForSearch(it.Name), folded) {
			return true
		}
	}
	return false
}

// ====== Offers ====

func (m *MemoryStore) InsertOffer(_ context.Context, offer *models.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offers[offer.OfferID]; ok {
		return services.ErrDuplicate
	}
	m.offers[offer.OfferID] = cloneOffer(offer)
	return nil
}

func (m *MemoryStore) GetOffer(_ context.Context, offerID string) (*models.Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[offerID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return cloneOffer(o), nil
}

func (m *MemoryStore) UpdateOffer(_ context.Context, offer *models.Offer, expected ...models.OfferStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.offers[offer.OfferID]
	if !ok {
		return services.ErrNotFound
	}
	if len(expected) > 0 && !slices.Contains(expected, stored.Status) {
		return services.ErrConflict
	}
	next := cloneOffer(stored)
	src := cloneOffer(offer)
	next.Status = src.Status
	next.BuyerTerms = src.BuyerTerms
	next.OrderID = src.OrderID
	next.UpdatedAt = src.UpdatedAt
	m.offers[offer.OfferID] = next
	return nil
}

func (m *MemoryStore) ListOffers(_ context.Context, f services.OfferFilter) ([]models.Offer, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Offer
	for _, o := range m.offers {
		if f.RequestID != "" && o.RequestID != f.RequestID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		result = append(result, *cloneOffer(o))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Skip, f.Limit), int64(len(result)), nil
}

// ====== Orders ====

func (m *MemoryStore) InsertOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.TrackingID]; ok {
		return services.ErrDuplicate
	}
	for _, o := range m.orders {
		if o.OriginOfferID == order.OriginOfferID {
			return services.ErrDuplicate
		}
	}
	m.orders[order.TrackingID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) GetOrderByOfferID(_ context.Context, offerID string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.OriginOfferID == offerID {
			return cloneOrder(o), nil
		}
	}
	return nil, services.ErrNotFound
}

func (m *MemoryStore) UpdateOrder(_ context.Context, order *models.Order, expected ...models.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.TrackingID]
	if !ok {
		return services.ErrNotFound
	}
	if len(expected) > 0 && !slices.Contains(expected, stored.Status) {
		return services.ErrConflict
	}
	next := cloneOrder(stored)
	next.Status = order.Status
	next.ConfirmedByBuyer = order.ConfirmedByBuyer
	next.DeliveredAt = nil
	if order.DeliveredAt != nil {
		t := *order.DeliveredAt
		next.DeliveredAt = &t
	}
	next.UpdatedAt = order.UpdatedAt
	m.orders[order.TrackingID] = next
	return nil
}

func (m *MemoryStore) ListOrders(_ context.Context, f services.OrderFilter) ([]models.Order, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Order
	for _, o := range m.orders {
		if f.ParticipantID != "" && o.BuyerID != f.ParticipantID && o.SellerID != f.ParticipantID {
			continue
		}
		result = append(result, *cloneOrder(o))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Skip, f.Limit), int64(len(result)), nil
}

// ====== Payment ledger ====

func (m *MemoryStore) RecordPayment(_ context.Context, tx *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[tx.Reference]; ok {
		return nil
	}
	cp := *tx
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.payments[tx.Reference] = &cp
	return nil
}

func (m *MemoryStore) MarkPayment(_ context.Context, tx *models.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	stored, ok := m.payments[tx.Reference]
	if !ok {
		cp := *tx
		cp.CreatedAt = now
		cp.UpdatedAt = now
		m.payments[tx.Reference] = &cp
		return nil
	}
	stored.Status = tx.Status
	stored.PaidMinor = tx.PaidMinor
	if tx.RequestID != "" {
		stored.RequestID = tx.RequestID
	}
	stored.UpdatedAt = now
	return nil
}

func (m *MemoryStore) GetPayment(_ context.Context, reference string) (*models.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[reference]
	if !ok {
		return nil, services.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ====== Copies ====

func cloneRequest(r *models.Request) *models.Request {
	cp := *r
	cp.Items = slices.Clone(r.Items)
	return &cp
}

func cloneOffer(o *models.Offer) *models.Offer {
	cp := *o
	cp.Quotation = slices.Clone(o.Quotation)
	cp.Images = slices.Clone(o.Images)
	if o.BuyerTerms != nil {
		bt := *o.BuyerTerms
		bt.AcknowledgmentFiles = slices.Clone(o.BuyerTerms.AcknowledgmentFiles)
		cp.BuyerTerms = &bt
	}
	if o.OrderID != nil {
		id := *o.OrderID
		cp.OrderID = &id
	}
	return &cp
}

func cloneOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

func paginate[T any](items []T, skip, limit int64) []T {
	if skip >= int64(len(items)) {
		return []T{}
	}
	items = items[skip:]
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items
}
