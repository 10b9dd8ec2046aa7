package enums

import "fmt"

// DeliveryMethod is the fulfilment option chosen during checkout.
type DeliveryMethod string

const (
	DeliveryPickup       DeliveryMethod = "pickup"
	DeliveryParcelLocker DeliveryMethod = "parcel_locker"
)

var validDeliveryMethods = []DeliveryMethod{
	DeliveryPickup,
	DeliveryParcelLocker,
}

// String implements fmt.Stringer.
func (d DeliveryMethod) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DeliveryMethod.
func (d DeliveryMethod) IsValid() bool {
	for _, candidate := range validDeliveryMethods {
		if candidate == d {
			return true
		}
	}
	return false
}

// HasShippingFee reports whether the flat shipping fee applies.
// Only parcel-locker delivery is charged; pickup ships for free.
func (d DeliveryMethod) HasShippingFee() bool {
	return d == DeliveryParcelLocker
}

// ParseDeliveryMethod converts raw input into a DeliveryMethod.
func ParseDeliveryMethod(value string) (DeliveryMethod, error) {
	for _, candidate := range validDeliveryMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid delivery method %q", value)
}
