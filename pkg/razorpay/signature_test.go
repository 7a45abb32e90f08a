package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signFor(secret, paymentID, subscriptionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(paymentID + "|" + subscriptionID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySubscriptionSignature(t *testing.T) {
	secret := "rzp_test_secret"
	sig := signFor(secret, "pay_1", "sub_1")

	if !VerifySubscriptionSignature(secret, "pay_1", "sub_1", sig) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySubscriptionSignature(secret, "pay_2", "sub_1", sig) {
		t.Fatal("signature verified against wrong payment id")
	}
	if VerifySubscriptionSignature("other_secret", "pay_1", "sub_1", sig) {
		t.Fatal("signature verified with wrong secret")
	}
	if VerifySubscriptionSignature(secret, "pay_1", "sub_1", "zz-not-hex") {
		t.Fatal("malformed signature should not verify")
	}
	if VerifySubscriptionSignature(secret, "", "sub_1", sig) {
		t.Fatal("empty payment id should not verify")
	}
}
