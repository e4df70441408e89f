package main

import (
	"net/mail"
	"strings"
)

// fqdnRegex-free check: a domain is an FQDN if it has at least one dot, no
// leading/trailing dot or hyphen on a label, and is not an IP literal.
func isFQDN(domain string) bool {
	if domain == "" || !strings.Contains(domain, ".") {
		return false
	}
	if strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	for _, l := range labels {
		if l == "" {
			return false
		}
		if strings.HasPrefix(l, "-") || strings.HasSuffix(l, "-") {
			return false
		}
		for _, r := range l {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// splitAddress splits a bare address (no display name, no angle brackets
// expected but tolerated) into local-part and domain.
func splitAddress(addr string) (local, domain string, err error) {
	addr = strings.TrimSpace(addr)
	if a, parseErr := mail.ParseAddress(addr); parseErr == nil {
		addr = a.Address
	}
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", "", newKindErr(KindInvalidDomain, "address missing local-part or domain")
	}
	return addr[:at], addr[at+1:], nil
}

// parseLocal returns the local-part with any plus-tag stripped.
// "hello+spam@x" -> "hello".
func parseLocal(addr string) (string, error) {
	local, _, err := splitAddress(addr)
	if err != nil {
		return "", err
	}
	if idx := strings.Index(local, "+"); idx >= 0 {
		local = local[:idx]
	}
	return local, nil
}

// parseFilter returns the plus-tag without the leading "+", or "" if none.
func parseFilter(addr string) (string, error) {
	local, _, err := splitAddress(addr)
	if err != nil {
		return "", err
	}
	if idx := strings.Index(local, "+"); idx >= 0 {
		return local[idx+1:], nil
	}
	return "", nil
}

// parseDomain returns the FQDN domain of addr, rejecting non-FQDN and
// disposable domains.
func parseDomain(addr string, deny *disposableSet) (string, error) {
	_, domain, err := splitAddress(addr)
	if err != nil {
		return "", err
	}
	domain = strings.ToLower(domain)
	if !isFQDN(domain) {
		return "", newKindErr(KindInvalidDomain, "domain is not a fully-qualified domain name: "+domain)
	}
	if deny != nil && deny.Contains(domain) {
		return "", newKindErr(KindInvalidDomain, "Disposable email domain rejected: "+domain)
	}
	return domain, nil
}
