package dto

type InitializePaymentDTO struct {
	Type            string  `json:"type"            binding:"required,oneof=instant standard"`
	EstimatedBudget float64 `json:"estimatedBudget" binding:"gte=0"`
	Email           string  `json:"email"           binding:"omitempty,email"`
}

// VerifyPaymentDTO carries the request to open once the payment checks out.
type VerifyPaymentDTO struct {
	Reference string           `json:"reference" binding:"required"`
	Request   CreateRequestDTO `json:"request"   binding:"required"`
}
