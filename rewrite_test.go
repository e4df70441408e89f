package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const rawMessageWithSignature = "Mime-Version: 1.0\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Dkim-Signature: v=1; a=rsa-sha256; d=example.com\r\n" +
	"Message-Id: <abc@example.com>\r\n" +
	"Subject: hello\r\n" +
	"\r\n" +
	"body text\r\n"

func TestRewriteForDeliveryStripsSignatureHeaders(t *testing.T) {
	require.True(t, containsStrippedHeader([]byte(rawMessageWithSignature)))

	out, err := rewriteForDelivery([]byte(rawMessageWithSignature))
	require.NoError(t, err)
	require.False(t, containsStrippedHeader(out))

	s := string(out)
	require.Contains(t, s, "Subject: hello")
	require.Contains(t, s, "body text")
	require.NotContains(t, strings.ToLower(s), "dkim-signature")
}

func TestRewriteForDeliveryPreservesUnlistedHeaders(t *testing.T) {
	out, err := rewriteForDelivery([]byte(rawMessageWithSignature))
	require.NoError(t, err)
	require.Contains(t, string(out), "Subject: hello")
}
