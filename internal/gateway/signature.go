package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks a webhook HMAC-SHA256 signature header of the form
// "sha256=<hex>" against the raw request body. Comparison is constant-time,
// so verification latency is independent of where a mismatch occurs.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	actual := signatureHeader[len(signaturePrefix):]
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(actual)))
}
