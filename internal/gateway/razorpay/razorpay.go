package razorpay

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

type Config struct {
	KeyID     string
	KeySecret string
}

// Gateway wraps the Razorpay SDK behind gateway.PaymentGateway.
type Gateway struct {
	client *razorpay.Client
	secret string
}

func New(cfg Config) *Gateway {
	return &Gateway{
		client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		secret: cfg.KeySecret,
	}
}

// CreateOrder registers the order with Razorpay with payment auto-capture.
// The SDK does not take a context; the ctx parameter keeps the call surface
// uniform for callers and fakes.
func (g *Gateway) CreateOrder(_ context.Context, amountPaise int64, currency, receipt string) (string, error) {
	const op = "razorpay.Gateway.CreateOrder"

	data := map[string]interface{}{
		"amount":          amountPaise,
		"currency":        currency,
		"receipt":         receipt,
		"payment_capture": 1,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, ok := body["id"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%s: response missing order id", op)
	}

	return id, nil
}

// VerifySignature checks the HMAC the checkout callback carries. Razorpay
// signs "order_id|payment_id" with the key secret.
func (g *Gateway) VerifySignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	if gatewayOrderID == "" || gatewayPaymentID == "" || signature == "" {
		return false
	}

	params := map[string]interface{}{
		"razorpay_order_id":   gatewayOrderID,
		"razorpay_payment_id": gatewayPaymentID,
	}

	return utils.VerifyPaymentSignature(params, signature, g.secret)
}
