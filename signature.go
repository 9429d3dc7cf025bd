package cryptopay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the optional scheme prefix on the signature header ("sha256=<hex>")
const signaturePrefix = "sha256="

// ComputeSignature returns the lowercase hex HMAC-SHA256 of body under secret.
// body must be the exact bytes received; re-encoded JSON will not match.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC-SHA256 of body under secret.
//
// An empty secret is a configuration mistake and returns an error rather than false, so it
// cannot be mistaken for tampering. Every other defect (empty, non-hex or wrong-length
// signature) returns false. The comparison takes the same time wherever the first differing
// byte is.
func VerifySignature(body []byte, signature, secret string) (bool, error) {
	if secret == "" {
		return false, newConfigurationError("webhookSecret", "webhook secret is not configured")
	}

	sig := strings.TrimSpace(signature)
	if len(sig) >= len(signaturePrefix) && strings.EqualFold(sig[:len(signaturePrefix)], signaturePrefix) {
		sig = sig[len(signaturePrefix):]
	}
	if sig == "" {
		return false, nil
	}

	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(expected, provided), nil
}
