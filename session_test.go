package main

import (
	"errors"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

func TestRequireExchangesAllPresent(t *testing.T) {
	mxs := []MXRecord{{Exchange: "mx1.forwardemail.net", Priority: 10}, {Exchange: "mx2.forwardemail.net", Priority: 20}}
	err := requireExchanges(mxs, []string{"mx1.forwardemail.net", "mx2.forwardemail.net"})
	require.NoError(t, err)
}

func TestRequireExchangesCaseInsensitive(t *testing.T) {
	mxs := []MXRecord{{Exchange: "MX1.ForwardEmail.NET", Priority: 10}}
	err := requireExchanges(mxs, []string{"mx1.forwardemail.net"})
	require.NoError(t, err)
}

func TestRequireExchangesMissing(t *testing.T) {
	mxs := []MXRecord{{Exchange: "mx1.forwardemail.net", Priority: 10}}
	err := requireExchanges(mxs, []string{"mx1.forwardemail.net", "mx2.forwardemail.net"})
	require.Error(t, err)
	relayErr, ok := err.(*RelayError)
	require.True(t, ok)
	require.Equal(t, KindInvalidMX, relayErr.Kind)
	require.Equal(t, 550, relayErr.Code)
	require.Contains(t, relayErr.Message, "mx2.forwardemail.net")
}

func TestDedupeRecipientsCaseInsensitive(t *testing.T) {
	recipients := []ResolvedRecipient{
		{Original: "a@x.com", Resolved: "dest@gmail.com"},
		{Original: "b@x.com", Resolved: "DEST@gmail.com"},
		{Original: "c@x.com", Resolved: "other@gmail.com"},
	}
	targets := dedupeRecipients(recipients)
	require.Len(t, targets, 2)
}

func TestAggregateDeliveryErrorsNoFailures(t *testing.T) {
	results := []deliveryResult{{recipient: "a@x.com", err: nil}}
	require.NoError(t, aggregateDeliveryErrors(results))
}

func TestAggregateDeliveryErrorsFatalBeatsTransient(t *testing.T) {
	results := []deliveryResult{
		{recipient: "a@x.com", err: &RelayError{Kind: KindTransientDNS, Code: 421}},
		{recipient: "b@x.com", err: &RelayError{Kind: KindDownstreamSMTP, Code: 550}},
	}
	err := aggregateDeliveryErrors(results)
	require.Error(t, err)
	require.Equal(t, 550, codeOf(err))
}

func TestToSMTPErrorTranslatesRelayError(t *testing.T) {
	err := toSMTPError(newKindErr(KindRateLimited, "slow down"))
	smtpErr, ok := err.(*smtp.SMTPError)
	require.True(t, ok)
	require.Equal(t, 451, smtpErr.Code)
	require.Equal(t, "slow down", smtpErr.Message)
}

func TestToSMTPErrorDefaultsUnknownErrorsTo421(t *testing.T) {
	err := toSMTPError(errors.New("boom"))
	smtpErr, ok := err.(*smtp.SMTPError)
	require.True(t, ok)
	require.Equal(t, 421, smtpErr.Code)
}

func TestToSMTPErrorNilPassesThrough(t *testing.T) {
	require.NoError(t, toSMTPError(nil))
}
