package dto

import (
	"time"

	"github.com/princinho/agrorfq/models"
	"github.com/princinho/agrorfq/services"
)

type QuotationItemDTO struct {
	Name      string  `json:"name"      binding:"required"`
	Quantity  float64 `json:"quantity"  binding:"required,gt=0"`
	Unit      string  `json:"unit"`
	UnitPrice float64 `json:"unitPrice" binding:"gte=0"`
	Total     float64 `json:"total"     binding:"gte=0"`
}

// SubmitOfferDTO is the JSON body, or the "data" field of a multipart upload.
type SubmitOfferDTO struct {
	Price        float64            `json:"price"        binding:"required,gt=0"`
	Currency     string             `json:"currency"`
	Quotation    []QuotationItemDTO `json:"quotation"    binding:"omitempty,dive"`
	Message      string             `json:"message"      binding:"max=5000"`
	DeliveryDate *time.Time         `json:"deliveryDate"`
}

func (d SubmitOfferDTO) Input() services.SubmitOfferInput {
	in := services.SubmitOfferInput{
		Price:        d.Price,
		Currency:     d.Currency,
		Message:      d.Message,
		DeliveryDate: d.DeliveryDate,
	}
	for _, q := range d.Quotation {
		in.Quotation = append(in.Quotation, models.QuotationItem(q))
	}
	return in
}

type AcceptOfferDTO struct {
	AcknowledgmentNote    string     `json:"acknowledgmentNote"  binding:"max=5000"`
	AcknowledgmentFiles   []string   `json:"acknowledgmentFiles" binding:"max=10,dive,url"`
	ConfirmedDeliveryDate *time.Time `json:"confirmedDeliveryDate"`
	PaymentTerms          string     `json:"paymentTerms"        binding:"required"`
}

func (d AcceptOfferDTO) Terms() services.AcceptTermsInput {
	return services.AcceptTermsInput{
		AcknowledgmentNote:    d.AcknowledgmentNote,
		AcknowledgmentFiles:   d.AcknowledgmentFiles,
		ConfirmedDeliveryDate: d.ConfirmedDeliveryDate,
		PaymentTerms:          d.PaymentTerms,
	}
}

type ConfirmDeliveryDTO struct {
	Code string `json:"code" binding:"required"`
}
