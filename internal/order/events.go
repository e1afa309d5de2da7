package order

import (
	"hk-gateway/internal/events"
	exchange "hk-gateway/pkg/exchanges/common"
)

// OrderFailure is published when the exchange refuses or never receives an order.
type OrderFailure struct {
	Request exchange.OrderRequest `json:"request"`
	Error   string                `json:"error"`
}

func publish(bus *events.Bus, e events.Event, payload any) {
	if bus == nil {
		return
	}
	bus.Publish(e, payload)
}
