package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SubscriptionSignaturePayload builds the string the gateway signs when it
// confirms a subscription payment.
func SubscriptionSignaturePayload(paymentID, subscriptionID string) string {
	return fmt.Sprintf("%s|%s", paymentID, subscriptionID)
}

// VerifySubscriptionSignature checks the hex-encoded HMAC-SHA256 signature
// sent by the gateway's checkout callback. The comparison is constant time.
func VerifySubscriptionSignature(keySecret, paymentID, subscriptionID, signature string) bool {
	if keySecret == "" || paymentID == "" || subscriptionID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(SubscriptionSignaturePayload(paymentID, subscriptionID)))
	expected := hex.EncodeToString(mac.Sum(nil))

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expectedRaw, _ := hex.DecodeString(expected)
	return hmac.Equal(expectedRaw, provided)
}
