package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSecretNotConfigured is returned when a verification secret is absent.
// Verification fails closed: without a secret no signature is ever accepted.
var ErrSecretNotConfigured = errors.New("payments: verification secret not configured")

// SignatureVerifier validates gateway signatures for the browser callback and
// the server-to-server webhook. The two flows sign different material with
// different secrets: the callback signs "orderRef|paymentRef" with the API key
// secret, the webhook signs the raw request body with the webhook secret.
type SignatureVerifier struct {
	keySecret     []byte
	webhookSecret []byte
}

// NewSignatureVerifier constructs a SignatureVerifier. Either secret may be
// empty; the corresponding verification then rejects with ErrSecretNotConfigured.
func NewSignatureVerifier(keySecret, webhookSecret string) *SignatureVerifier {
	return &SignatureVerifier{
		keySecret:     []byte(strings.TrimSpace(keySecret)),
		webhookSecret: []byte(strings.TrimSpace(webhookSecret)),
	}
}

// VerifyCallback checks the signature delivered by the buyer's browser after
// a payment attempt.
func (v *SignatureVerifier) VerifyCallback(orderRef, paymentRef, signature string) (bool, error) {
	if v == nil || len(v.keySecret) == 0 {
		return false, ErrSecretNotConfigured
	}
	payload := orderRef + "|" + paymentRef
	return verifyHex(v.keySecret, []byte(payload), signature), nil
}

// VerifyWebhook checks the signature header against the raw webhook body.
func (v *SignatureVerifier) VerifyWebhook(body []byte, signature string) (bool, error) {
	if v == nil || len(v.webhookSecret) == 0 {
		return false, ErrSecretNotConfigured
	}
	return verifyHex(v.webhookSecret, body, signature), nil
}

func verifyHex(secret, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
