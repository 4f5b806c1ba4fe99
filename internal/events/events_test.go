package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "payments.order.completed", RoutingKey(TypePaymentOrderCompleted))
	assert.Equal(t, "payments.booking.charged", RoutingKey(TypeBookingCharged))

	// Unmapped types route under their own name.
	assert.Equal(t, "booking.confirmed", RoutingKey(TypeBookingConfirmed))
	assert.Equal(t, "some.custom.event", RoutingKey("some.custom.event"))
}
