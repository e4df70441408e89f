package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsFQDN(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   bool
	}{
		{"simple", "example.com", true},
		{"subdomain", "mail.example.com", true},
		{"no dot", "localhost", false},
		{"leading dot", ".example.com", false},
		{"trailing dot", "example.com.", false},
		{"empty label", "example..com", false},
		{"leading hyphen label", "-example.com", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, isFQDN(tt.domain))
		})
	}
}

func TestParseLocalAndFilter(t *testing.T) {
	local, err := parseLocal("hello+spam@x.com")
	require.NoError(t, err)
	require.Equal(t, "hello", local)

	filter, err := parseFilter("hello+spam@x.com")
	require.NoError(t, err)
	require.Equal(t, "spam", filter)

	filter, err = parseFilter("hello@x.com")
	require.NoError(t, err)
	require.Equal(t, "", filter)
}

func TestParseDomainRejectsDisposable(t *testing.T) {
	deny, err := loadDisposableSet("")
	require.NoError(t, err)

	_, err = parseDomain("user@mailinator.com", deny)
	require.Error(t, err)
	relayErr, ok := err.(*RelayError)
	require.True(t, ok)
	require.Equal(t, KindInvalidDomain, relayErr.Kind)
	require.Equal(t, 550, relayErr.Code)

	_, err = parseDomain("user@sub.mailinator.com", deny)
	require.Error(t, err, "wildcard suffix match should also be rejected")
}

func TestParseDomainRejectsNonFQDN(t *testing.T) {
	deny, err := loadDisposableSet("")
	require.NoError(t, err)

	_, err = parseDomain("user@localhost", deny)
	require.Error(t, err)
}

func TestParseDomainAccepts(t *testing.T) {
	deny, err := loadDisposableSet("")
	require.NoError(t, err)

	domain, err := parseDomain("user@example.com", deny)
	require.NoError(t, err)
	require.Equal(t, "example.com", domain)
}
