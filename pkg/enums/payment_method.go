package enums

import "fmt"

// PaymentMethod is the settlement option chosen during checkout.
// Payments are settled off-platform by the operator.
type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentBlik       PaymentMethod = "blik"
	PaymentTransferPL PaymentMethod = "transfer_pln"
	PaymentTransferUA PaymentMethod = "transfer_ua"
	PaymentCrypto     PaymentMethod = "crypto"
)

var validPaymentMethods = []PaymentMethod{
	PaymentCash,
	PaymentBlik,
	PaymentTransferPL,
	PaymentTransferUA,
	PaymentCrypto,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
