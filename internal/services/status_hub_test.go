package services

import (
	"testing"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStatusHub_PublishAndCancel(t *testing.T) {
	hub := NewStatusHub()

	a, cancelA := hub.Subscribe("ORD-1-a")
	b, cancelB := hub.Subscribe("ORD-1-a")
	other, cancelOther := hub.Subscribe("ORD-2-b")
	defer cancelOther()
	assert.Equal(t, 2, hub.Subscribers("ORD-1-a"))

	hub.Publish(models.OrderStatusUpdate{Reference: "ORD-1-a", PaymentStatus: models.PaymentCompleted})

	assert.Equal(t, models.PaymentCompleted, (<-a).PaymentStatus)
	assert.Equal(t, models.PaymentCompleted, (<-b).PaymentStatus)
	assert.Len(t, other, 0)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open, "cancel closes the channel")
	assert.Equal(t, 1, hub.Subscribers("ORD-1-a"))

	cancelB()
	assert.Equal(t, 0, hub.Subscribers("ORD-1-a"))

	// Publishing with nobody listening is a no-op.
	hub.Publish(models.OrderStatusUpdate{Reference: "ORD-1-a"})
}

func TestStatusHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewStatusHub()
	ch, cancel := hub.Subscribe("ORD-1-a")
	defer cancel()

	for i := 0; i < statusBuffer*2; i++ {
		hub.Publish(models.OrderStatusUpdate{Reference: "ORD-1-a", PaymentStatus: models.PaymentPending})
	}
	assert.Len(t, ch, statusBuffer)
}
