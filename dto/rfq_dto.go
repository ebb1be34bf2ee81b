package dto

import (
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
)

type LineItemDTO struct {
	Name        string   `json:"name"        binding:"required"`
	Quantity    float64  `json:"quantity"    binding:"required,gt=0"`
	Unit        string   `json:"unit"`
	TargetPrice *float64 `json:"targetPrice" binding:"omitempty,gte=0"`
	Spec        string   `json:"spec"`
}

type LocationDTO struct {
	State   string `json:"state" binding:"required"`
	City    string `json:"city"`
	Address string `json:"address"`
}

type CreateRequestDTO struct {
	Type          string        `json:"type"          binding:"required,oneof=instant standard"`
	Title         string        `json:"title"`
	Items         []LineItemDTO `json:"items"         binding:"required,min=1,dive"`
	Location      LocationDTO   `json:"location"      binding:"required"`
	Notes         string        `json:"notes"         binding:"max=5000"`
	ContactPhone  string        `json:"contactPhone"`
	DeliveryDays  *int          `json:"deliveryDays"  binding:"omitempty,min=1"`
	DeliveryDate  *time.Time    `json:"deliveryDate"`
	PublishDate   *time.Time    `json:"publishDate"`
	ExpiryDate    *time.Time    `json:"expiryDate"`
	Budget        *float64      `json:"budget"        binding:"omitempty,gte=0"`
	Currency      string        `json:"currency"`
	PriceRangeMin *float64      `json:"priceRangeMin" binding:"omitempty,gte=0"`
	PriceRangeMax *float64      `json:"priceRangeMax" binding:"omitempty,gte=0"`

	PaymentReference string `json:"paymentReference"`
}

func (d CreateRequestDTO) Spec() services.RequestSpec {
	return services.RequestSpec{
		Type:          models.RequestType(d.Type),
		Title:         d.Title,
		Items:         lineItems(d.Items),
		Location:      models.Location(d.Location),
		Notes:         d.Notes,
		ContactPhone:  d.ContactPhone,
		DeliveryDays:  d.DeliveryDays,
		DeliveryDate:  d.DeliveryDate,
		PublishDate:   d.PublishDate,
		ExpiryDate:    d.ExpiryDate,
		Budget:        d.Budget,
		Currency:      d.Currency,
		PriceRangeMin: d.PriceRangeMin,
		PriceRangeMax: d.PriceRangeMax,
	}
}

type UpdateRequestDTO struct {
	Title         *string        `json:"title"`
	Items         *[]LineItemDTO `json:"items"         binding:"omitempty,min=1,dive"`
	Location      *LocationDTO   `json:"location"`
	Notes         *string        `json:"notes"`
	ContactPhone  *string        `json:"contactPhone"`
	DeliveryDays  *int           `json:"deliveryDays"  binding:"omitempty,min=1"`
	DeliveryDate  *time.Time     `json:"deliveryDate"`
	Budget        *float64       `json:"budget"        binding:"omitempty,gte=0"`
	PriceRangeMin *float64       `json:"priceRangeMin" binding:"omitempty,gte=0"`
	PriceRangeMax *float64       `json:"priceRangeMax" binding:"omitempty,gte=0"`
}

func (d UpdateRequestDTO) Patch() services.RequestPatch {
	p := services.RequestPatch{
		Title:         d.Title,
		Notes:         d.Notes,
		ContactPhone:  d.ContactPhone,
		DeliveryDays:  d.DeliveryDays,
		DeliveryDate:  d.DeliveryDate,
		Budget:        d.Budget,
		PriceRangeMin: d.PriceRangeMin,
		PriceRangeMax: d.PriceRangeMax,
	}
	if d.Items != nil {
		items := lineItems(*d.Items)
		p.Items = &items
	}
	if d.Location != nil {
		loc := models.Location(*d.Location)
		p.Location = &loc
	}
	return p
}

type UpdateRequestStatusDTO struct {
	Status string `json:"status" binding:"required"`
}

func lineItems(in []LineItemDTO) []models.LineItem {
	out := make([]models.LineItem, 0, len(in))
	for _, it := range in {
		out = append(out, models.LineItem{
			Name:        it.Name,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			TargetPrice: it.TargetPrice,
			Spec:        it.Spec,
		})
	}
	return out
}
