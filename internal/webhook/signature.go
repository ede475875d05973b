package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const signaturePrefix = "sha256="

// VerifySignature checks a GitHub x-hub-signature-256 header against the
// raw request body. Comparison is constant time.
func VerifySignature(secret string, body []byte, signature string) bool {
	if len(signature) <= len(signaturePrefix) || signature[:len(signaturePrefix)] != signaturePrefix {
		return false
	}

	received, err := hex.DecodeString(signature[len(signaturePrefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hmac.Equal(received, mac.Sum(nil))
}

// SignBody produces the signature header value GitHub would send for a
// body. Used by tests and the local delivery replayer.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
