package services

import (
	"strings"

	"github.com/google/uuid"
)

const (
	requestIDPrefix      = "RFQ-"
	offerIDPrefix        = "OFF-"
	instantOfferIDPrefix = "INS-"
	trackingIDPrefix     = "ORD-"

	// DeliveryCodeLength is how many trailing tracking-id characters make up the delivery code.
	DeliveryCodeLength = 8
)

func randomToken(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(hex[:n])
}

func newRequestID() string      { return requestIDPrefix + randomToken(8) }
func newOfferID() string        { return offerIDPrefix + randomToken(8) }
func newInstantOfferID() string { return instantOfferIDPrefix + randomToken(8) }
func newTrackingID() string     { return trackingIDPrefix + randomToken(16) }

// DeliveryCode is the suffix of trackingID the buyer quotes to confirm delivery.
func DeliveryCode(trackingID string) string {
	if len(trackingID) <= DeliveryCodeLength {
		return trackingID
	}
	return trackingID[len(trackingID)-DeliveryCodeLength:]
}

// IsInstantOfferID reports whether id belongs to a synthetic instant-take offer.
func IsInstantOfferID(id string) bool {
	return strings.HasPrefix(id, instantOfferIDPrefix)
}
