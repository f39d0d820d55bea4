package webhooks

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/grundyhq/grundy-backend/pkg/errors"
)

// SignatureHeader carries the processor's HMAC of the raw body.
const SignatureHeader = "X-Paystack-Signature"

// Sign returns the hex HMAC-SHA512 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the raw body before anything is
// parsed.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "missing webhook signature")
	}
	provided, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "malformed webhook signature")
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "webhook signature mismatch")
	}
	return nil
}
