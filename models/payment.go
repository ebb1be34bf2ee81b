package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

const PaymentPurposeRFQFee = "rfq_fee"

// PaymentTransaction is the ledger entry tracking one gateway reference.
type PaymentTransaction struct {
	ID          bson.ObjectID `bson:"_id,omitempty"       json:"-"`
	Reference   string        `bson:"reference"           json:"reference"`
	UserID      string        `bson:"userId"              json:"userId"`
	Email       string        `bson:"email,omitempty"     json:"email,omitempty"`
	Purpose     string        `bson:"purpose"             json:"purpose"`
	RequestType RequestType   `bson:"requestType"         json:"requestType"`
	AmountMinor int64         `bson:"amountMinor"         json:"amountMinor"`
	PaidMinor   int64         `bson:"paidMinor,omitempty" json:"paidMinor,omitempty"`
	Status      PaymentStatus `bson:"status"              json:"status"`
	RequestID   string        `bson:"requestId,omitempty" json:"requestId,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt"           json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"           json:"updatedAt"`
}
