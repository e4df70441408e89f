package main

import (
	"bytes"
	"crypto"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-msgauth/dmarc"
)

// verifyDKIM reports whether any signature on the raw, as-received message
// bytes verifies. Verification always operates on the exact bytes the
// client sent — never on a re-serialized message — per spec §9's note that
// verify and sign use distinct canonicalizations and must not share a code
// path with signDKIM below.
func verifyDKIM(raw []byte) (bool, error) {
	return verifyDKIMWithLookup(raw, nil)
}

// verifyDKIMWithLookup is verifyDKIM with the public-key TXT lookup
// overridable, so tests can supply a fixed key record instead of the real
// resolver.
func verifyDKIMWithLookup(raw []byte, lookupTXT func(domain string) ([]string, error)) (bool, error) {
	var options *dkim.VerifyOptions
	if lookupTXT != nil {
		options = &dkim.VerifyOptions{LookupTXT: lookupTXT}
	}
	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(raw), options)
	if err != nil {
		return false, wrapErr(KindTransientDKIM, 421, "DKIM verification transport error", err)
	}
	for _, v := range verifications {
		if v.Err == nil {
			return true, nil
		}
	}
	return false, nil
}

// signDKIM signs the re-serialized outbound message (headers already
// stripped per the design invariant in spec §3) with the relay's own
// selector and key, returning the message with a DKIM-Signature header
// prepended. This never reuses the origin's signature.
func signDKIM(msg []byte, domainName, selector string, key crypto.Signer) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:   domainName,
		Selector: selector,
		Signer:   key,
	}
	var out bytes.Buffer
	if err := dkim.Sign(&out, bytes.NewReader(msg), options); err != nil {
		return nil, wrapErr(KindTransientDKIM, 421, "DKIM signing failed", err)
	}
	return out.Bytes(), nil
}

// dmarcAlignment is a purely informational lookup: spec.md gates delivery
// on SPF/DKIM only, but a DMARC alignment note on the accepted-message log
// line helps operators spot spoofing attempts that individually pass SPF
// or DKIM but fail alignment. It never changes a reply code.
func dmarcAlignment(domain string, spfPass, dkimPass bool) string {
	rec, err := dmarc.Lookup(domain)
	if err != nil {
		return "no-dmarc-record"
	}
	aligned := spfPass || dkimPass
	if aligned {
		return "aligned"
	}
	return "misaligned:policy=" + string(rec.Policy)
}
