package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisposableSetExactAndWildcard(t *testing.T) {
	ds, err := loadDisposableSet("")
	require.NoError(t, err)

	require.True(t, ds.Contains("mailinator.com"))
	require.True(t, ds.Contains("MAILINATOR.COM"), "match should be case-insensitive")
	require.True(t, ds.Contains("x.y.mailinator.com"), "subdomain should suffix-match the wildcard entry")
	require.False(t, ds.Contains("notmailinator.com"), "must not substring-match a domain that merely contains the entry")
	require.False(t, ds.Contains("example.com"))
}
