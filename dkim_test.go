package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const unsignedMessage = "From: sender@example.com\r\n" +
	"To: recipient@example.com\r\n" +
	"Subject: round trip\r\n" +
	"\r\n" +
	"body text\r\n"

// fixedKeyLookup stands in for the DNS resolver dkim.Verify would otherwise
// use, returning a single caller-controlled TXT record regardless of which
// domain is queried.
func fixedKeyLookup(record string) func(string) ([]string, error) {
	return func(string) ([]string, error) {
		return []string{record}, nil
	}
}

func dkimPublicKeyRecord(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)
}

func TestSignAndVerifyDKIMRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	signed, err := signDKIM([]byte(unsignedMessage), "example.com", "default", key)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(signed), "DKIM-Signature"))

	lookup := fixedKeyLookup(dkimPublicKeyRecord(t, key))
	ok, err := verifyDKIMWithLookup(signed, lookup)
	require.NoError(t, err)
	require.True(t, ok, "a message just signed with the matching key must verify")
}

func TestVerifyDKIMRejectsUnsignedMessage(t *testing.T) {
	ok, err := verifyDKIM([]byte(unsignedMessage))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyDKIMRejectsWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	signed, err := signDKIM([]byte(unsignedMessage), "example.com", "default", key)
	require.NoError(t, err)

	lookup := fixedKeyLookup(dkimPublicKeyRecord(t, otherKey))
	ok, err := verifyDKIMWithLookup(signed, lookup)
	require.NoError(t, err)
	require.False(t, ok, "a signature must not verify against a mismatched public key")
}
