package main

import (
	"net/mail"
	"strings"
)

const forwardPrefix = "forward-email="

// forwardEntry is one parsed element of a forward-email= TXT record: either
// a wildcard (Local == "") or a per-user redirect.
type forwardEntry struct {
	Local  string
	Target string
}

// parseForwardingRecord selects the first TXT record beginning with
// forward-email=, splits its comma-separated entries, and classifies each
// as wildcard or per-user. Per spec §4.D step 5, any entry that isn't a
// bare valid email (wildcard) or a "local:addr" pair (per-user) fails the
// whole record.
func parseForwardingRecord(records []string) (entries []forwardEntry, wildcard string, err error) {
	var raw string
	found := false
	for _, rec := range records {
		if strings.HasPrefix(rec, forwardPrefix) {
			raw = strings.TrimPrefix(rec, forwardPrefix)
			found = true
			break
		}
	}
	if !found {
		return nil, "", newKindErr(KindInvalidTXT, "no forward-email= TXT record")
	}

	parts := strings.Split(raw, ",")
	if len(parts) == 0 {
		return nil, "", newKindErr(KindInvalidTXT, "empty forward-email= entry list")
	}

	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	if len(trimmed) == 0 {
		return nil, "", newKindErr(KindInvalidTXT, "empty forward-email= entry list")
	}

	for _, entry := range trimmed {
		if !strings.Contains(entry, ":") {
			if wildcard != "" {
				// a second bare address is not a recognized shape; spec only
				// defines one wildcard per record.
				return nil, "", newKindErr(KindInvalidTXT, "multiple wildcard entries in forward-email=")
			}
			if !isValidForwardTarget(entry) {
				return nil, "", newKindErr(KindInvalidTXT, "malformed forward-email= entry: "+entry)
			}
			wildcard = entry
			continue
		}
		idx := strings.Index(entry, ":")
		local, target := entry[:idx], entry[idx+1:]
		local = strings.TrimSpace(local)
		target = strings.TrimSpace(target)
		if local == "" || !isValidForwardTarget(target) {
			return nil, "", newKindErr(KindInvalidTXT, "malformed forward-email= entry: "+entry)
		}
		entries = append(entries, forwardEntry{Local: local, Target: target})
	}

	if len(entries) == 0 && wildcard == "" {
		return nil, "", newKindErr(KindInvalidTXT, "no usable forward-email= entries")
	}
	return entries, wildcard, nil
}

func isValidForwardTarget(addr string) bool {
	a, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	_, domain, err := splitAddress(a.Address)
	if err != nil {
		return false
	}
	return isFQDN(domain)
}

// resolveForwarding computes the forwarding address for recipient R, per
// spec §4.D. Per-user entries always take precedence over the wildcard
// regardless of TXT ordering (spec §9's recommended, documented rule —
// see DESIGN.md).
func resolveForwarding(resolver *Resolver, recipient string, deny *disposableSet) (string, error) {
	domain, err := parseDomain(recipient, deny)
	if err != nil {
		return "", err
	}

	records, err := resolver.resolveTXT(domain)
	if err != nil {
		return "", err
	}

	entries, wildcard, err := parseForwardingRecord(records)
	if err != nil {
		return "", err
	}

	recipientLocal, err := parseLocal(recipient)
	if err != nil {
		return "", err
	}

	target := ""
	for _, e := range entries {
		if e.Local == recipientLocal {
			target = e.Target
			break
		}
	}
	if target == "" {
		target = wildcard
	}
	if target == "" {
		return "", newKindErr(KindInvalidTXT, "no forwarding entry matches "+recipient)
	}

	return applyPlusTag(recipient, target)
}

// applyPlusTag preserves the plus-tag filter on the original recipient:
// "user+filter@orig" forwarding to "name@dest" resolves to
// "name+filter@dest". An original address with no plus-tag forwards the
// target verbatim. The forwarding target's domain was already validated as
// an FQDN when the TXT entry was parsed, so it is not re-checked against
// the disposable-domain deny-list here — that list guards sender-supplied
// domains, not the operator-configured forwarding destination.
func applyPlusTag(original, target string) (string, error) {
	filter, err := parseFilter(original)
	if err != nil {
		return "", err
	}
	if filter == "" {
		return target, nil
	}

	targetLocal, err := parseLocal(target)
	if err != nil {
		return "", err
	}
	_, targetDomain, err := splitAddress(target)
	if err != nil {
		return "", err
	}
	return targetLocal + "+" + filter + "@" + strings.ToLower(targetDomain), nil
}
