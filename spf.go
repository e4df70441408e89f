package main

import (
	"net"

	"github.com/mileusna/spf"
)

// verifySPF reports whether remoteIP is authorized to send mail as
// mailFrom's domain, per spec §4.E. A transport error while evaluating the
// SPF policy maps to TransientSPF(421); a definitive "fail" or "none"
// result is a plain false, not an error — the caller decides whether that
// is fatal (spec §4.I: either SPF or DKIM passing is sufficient).
func verifySPF(remoteIP net.IP, mailFrom, heloHostname string) (bool, error) {
	domain := domainOf(mailFrom)
	if domain == "" {
		return false, nil
	}

	switch spf.CheckHost(remoteIP, domain, mailFrom, heloHostname) {
	case spf.Pass:
		return true, nil
	case spf.TempError:
		return false, newKindErr(KindTransientSPF, "SPF evaluation temporary error for "+domain)
	default:
		return false, nil
	}
}

func domainOf(addr string) string {
	_, domain, err := splitAddress(addr)
	if err != nil {
		return ""
	}
	return domain
}
