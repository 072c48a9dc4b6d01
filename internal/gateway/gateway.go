// Package gateway defines the payment gateway surface the booking core
// consumes. The gateway's own order/signature machinery is external; calls
// are opaque and network-fallible.
package gateway

import "context"

type PaymentGateway interface {
	// CreateOrder registers an order with the gateway and returns the
	// gateway-assigned order id.
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, error)

	// VerifySignature checks the callback signature over
	// (gateway order id, gateway payment id).
	VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool
}
