package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const plainTextMessage = "From: sender@example.com\r\n" +
	"To: recipient@example.com\r\n" +
	"Subject: hello there\r\n" +
	"Date: Mon, 1 Jan 2024 00:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"this is the body\r\n"

func TestParseMessageExtractsPromotedHeaders(t *testing.T) {
	msg, err := parseMessage(strings.NewReader(plainTextMessage), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "hello there", msg.Subject)
	require.Equal(t, "sender@example.com", msg.From)
	require.Equal(t, "recipient@example.com", msg.To)
	require.Contains(t, msg.Text, "this is the body")
	require.Empty(t, msg.Attachments)
}

func TestParseMessageRejectsOversizedBody(t *testing.T) {
	huge := plainTextMessage + strings.Repeat("x", 1024)
	_, err := parseMessage(strings.NewReader(huge), 16)
	require.Error(t, err)
	relayErr, ok := err.(*RelayError)
	require.True(t, ok)
	require.Equal(t, KindMessageTooLarge, relayErr.Kind)
	require.Equal(t, 450, relayErr.Code)
}

func TestParseMessageDoesNotPromoteArbitraryHeaders(t *testing.T) {
	raw := "From: sender@example.com\r\n" +
		"To: recipient@example.com\r\n" +
		"X-Custom-Header: value\r\n" +
		"Subject: s\r\n" +
		"\r\n" +
		"body\r\n"
	msg, err := parseMessage(strings.NewReader(raw), 1<<20)
	require.NoError(t, err)
	require.Equal(t, "value", msg.Headers["x-custom-header"])
	_, promoted := msg.Headers["subject"]
	require.False(t, promoted, "promoted headers must not also land in Headers")
}
