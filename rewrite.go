package main

import (
	"bufio"
	"bytes"
	"io"

	"github.com/emersion/go-message/textproto"
)

// strippedHeaders is the design invariant from spec §3: removing these
// before re-transmission prevents duplicate signatures and leaked routing
// metadata from surviving the hop. This is the only place these names are
// listed — every outbound message goes through rewriteForDelivery.
var strippedHeaders = []string{
	"Mime-Version",
	"Content-Type",
	"Dkim-Signature",
	"X-Google-Dkim-Signature",
	"X-Gm-Message-State",
	"X-Google-Smtp-Source",
	"X-Received",
	"Message-Id",
}

// rewriteForDelivery strips the headers listed above from the raw message
// and returns the re-serialized bytes, ready for DKIM signing. This is a
// distinct canonicalization from the one verifyDKIM runs against the raw
// bytes (spec §9).
func rewriteForDelivery(raw []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, err
	}

	for _, name := range strippedHeaders {
		h.Del(name)
	}

	var out bytes.Buffer
	if err := textproto.WriteHeader(&out, h); err != nil {
		return nil, err
	}
	if _, err := io.Copy(&out, br); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// containsStrippedHeader is used by tests to assert the invariant holds.
func containsStrippedHeader(raw []byte) bool {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return false
	}
	for _, name := range strippedHeaders {
		if h.Has(name) {
			return true
		}
	}
	return false
}
