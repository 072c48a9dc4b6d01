package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	g := New(Config{KeyID: "rzp_test_key", KeySecret: "s3cret"})

	sig := sign("order_abc", "pay_xyz", "s3cret")

	assert.True(t, g.VerifySignature("order_abc", "pay_xyz", sig))

	// tampered payment id
	assert.False(t, g.VerifySignature("order_abc", "pay_other", sig))

	// signature produced with a different secret
	assert.False(t, g.VerifySignature("order_abc", "pay_xyz", sign("order_abc", "pay_xyz", "wrong")))

	// missing fields never verify
	assert.False(t, g.VerifySignature("", "pay_xyz", sig))
	assert.False(t, g.VerifySignature("order_abc", "pay_xyz", ""))
}
