package enums

import "fmt"

// CheckoutStage tracks where a user is inside the checkout wizard.
type CheckoutStage string

const (
	CheckoutStageSelectingDelivery CheckoutStage = "selecting_delivery"
	CheckoutStageSelectingPayment  CheckoutStage = "selecting_payment"
	CheckoutStageCommitted         CheckoutStage = "committed"
)

var validCheckoutStages = []CheckoutStage{
	CheckoutStageSelectingDelivery,
	CheckoutStageSelectingPayment,
	CheckoutStageCommitted,
}

// String implements fmt.Stringer.
func (s CheckoutStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutStage.
func (s CheckoutStage) IsValid() bool {
	for _, candidate := range validCheckoutStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseCheckoutStage converts raw input into a CheckoutStage.
func ParseCheckoutStage(value string) (CheckoutStage, error) {
	for _, candidate := range validCheckoutStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout stage %q", value)
}
