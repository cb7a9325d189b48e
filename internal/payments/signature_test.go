package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCallbackAcceptsValidSignature(t *testing.T) {
	verifier := NewSignatureVerifier("key-secret", "")

	signature := sign("key-secret", []byte("order_abc|pay_xyz"))
	ok, err := verifier.VerifyCallback("order_abc", "pay_xyz", signature)
	if err != nil {
		t.Fatalf("VerifyCallback returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyCallbackRejectsTamperedPaymentRef(t *testing.T) {
	verifier := NewSignatureVerifier("key-secret", "")

	signature := sign("key-secret", []byte("order_abc|pay_xyz"))
	ok, err := verifier.VerifyCallback("order_abc", "pay_other", signature)
	if err != nil {
		t.Fatalf("VerifyCallback returned error: %v", err)
	}
	if ok {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestVerifyCallbackFailsClosedWithoutSecret(t *testing.T) {
	verifier := NewSignatureVerifier("", "hook-secret")

	if _, err := verifier.VerifyCallback("order_abc", "pay_xyz", "deadbeef"); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured, got %v", err)
	}
}

func TestVerifyWebhookAcceptsValidSignature(t *testing.T) {
	verifier := NewSignatureVerifier("", "hook-secret")

	body := []byte(`{"event":"payment.captured"}`)
	ok, err := verifier.VerifyWebhook(body, sign("hook-secret", body))
	if err != nil {
		t.Fatalf("VerifyWebhook returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected webhook signature to verify")
	}
}

func TestVerifyWebhookRejectsModifiedBody(t *testing.T) {
	verifier := NewSignatureVerifier("", "hook-secret")

	signature := sign("hook-secret", []byte(`{"event":"payment.captured"}`))
	ok, err := verifier.VerifyWebhook([]byte(`{"event":"payment.failed"}`), signature)
	if err != nil {
		t.Fatalf("VerifyWebhook returned error: %v", err)
	}
	if ok {
		t.Fatal("expected modified body to fail verification")
	}
}

func TestVerifyWebhookRejectsNonHexSignature(t *testing.T) {
	verifier := NewSignatureVerifier("", "hook-secret")

	ok, err := verifier.VerifyWebhook([]byte("{}"), "not-hex!")
	if err != nil {
		t.Fatalf("VerifyWebhook returned error: %v", err)
	}
	if ok {
		t.Fatal("expected non-hex signature to fail")
	}
}

func TestVerifyWebhookFailsClosedWithoutSecret(t *testing.T) {
	verifier := NewSignatureVerifier("key-secret", "")

	if _, err := verifier.VerifyWebhook([]byte("{}"), "deadbeef"); !errors.Is(err, ErrSecretNotConfigured) {
		t.Fatalf("expected ErrSecretNotConfigured, got %v", err)
	}
}
