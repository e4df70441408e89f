package main

import (
	"errors"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

func TestClassifyDownstreamPreservesSMTPErrorCode(t *testing.T) {
	err := classifyDownstream(&smtp.SMTPError{Code: 552, Message: "mailbox full"})
	relayErr, ok := err.(*RelayError)
	require.True(t, ok)
	require.Equal(t, KindDownstreamSMTP, relayErr.Kind)
	require.Equal(t, 552, relayErr.Code)
	require.Equal(t, "mailbox full", relayErr.Message)
}

func TestClassifyDownstreamDefaultsOtherErrorsTo421(t *testing.T) {
	err := classifyDownstream(errors.New("connection reset"))
	relayErr, ok := err.(*RelayError)
	require.True(t, ok)
	require.Equal(t, 421, relayErr.Code)
}
