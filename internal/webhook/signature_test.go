package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifySignatureAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"action":"closed"}`)
	signature := SignBody("s3cret", body)

	require.True(t, VerifySignature("s3cret", body, signature))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"action":"closed"}`)
	signature := SignBody("s3cret", body)

	require.False(t, VerifySignature("s3cret", []byte(`{"action":"opened"}`), signature))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{"action":"closed"}`)
	signature := SignBody("s3cret", body)

	require.False(t, VerifySignature("other", body, signature))
}

func TestVerifySignatureRejectsMalformedHeader(t *testing.T) {
	body := []byte(`{"action":"closed"}`)

	require.False(t, VerifySignature("s3cret", body, ""))
	require.False(t, VerifySignature("s3cret", body, "sha256="))
	require.False(t, VerifySignature("s3cret", body, "sha256=not-hex"))
	require.False(t, VerifySignature("s3cret", body, "sha1=deadbeef"))
}
