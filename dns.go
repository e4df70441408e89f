package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// MXRecord is one resolved mail exchanger, sorted ascending by Priority by
// resolveMX.
type MXRecord struct {
	Exchange string
	Priority uint16
}

// Resolver is the typed DNS facade used by every other component. It never
// returns a bare error — always a *RelayError classified per spec §4.B.
type Resolver struct {
	servers []string
	timeout time.Duration
}

func NewResolver(servers []string, timeout time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{servers: servers, timeout: timeout}
}

func (r *Resolver) exchange(m *dns.Msg) (*dns.Msg, error) {
	c := &dns.Client{Timeout: r.timeout}
	var lastErr error
	for _, server := range r.servers {
		in, _, err := c.Exchange(m, server)
		if err == nil {
			return in, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// resolveMX resolves the MX set for domain, sorted ascending by priority.
// Empty result or NXDOMAIN maps to InvalidMX(550); transport failure maps
// to TransientDNS(421).
func (r *Resolver) resolveMX(domain string) ([]MXRecord, error) {
	fqdn := dns.Fqdn(domain)
	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeMX)
	m.RecursionDesired = true

	in, err := r.exchange(m)
	if err != nil {
		return nil, wrapErr(KindTransientDNS, 421, "MX lookup transport failure for "+domain, err)
	}

	switch in.Rcode {
	case dns.RcodeNameError:
		return nil, newKindErr(KindInvalidMX, "no such domain: "+domain)
	case dns.RcodeServerFailure, dns.RcodeRefused:
		return nil, newErr(KindTransientDNS, 421, fmt.Sprintf("DNS server failure resolving MX for %s", domain))
	case dns.RcodeSuccess:
		// fall through
	default:
		return nil, newErr(KindTransientDNS, 421, fmt.Sprintf("unexpected DNS rcode %d resolving MX for %s", in.Rcode, domain))
	}

	var mxs []MXRecord
	for _, rr := range in.Answer {
		if mx, ok := rr.(*dns.MX); ok {
			mxs = append(mxs, MXRecord{Exchange: strings.TrimSuffix(mx.Mx, "."), Priority: mx.Preference})
		}
	}
	if len(mxs) == 0 {
		return nil, newKindErr(KindInvalidMX, "no MX records for "+domain)
	}
	sort.Slice(mxs, func(i, j int) bool { return mxs[i].Priority < mxs[j].Priority })
	return mxs, nil
}

// resolveTXT returns every TXT record for domain, with each record's
// ≤255-byte chunks already concatenated by the miekg/dns TXT RR decoder.
// Missing record maps to InvalidTXT(550).
func (r *Resolver) resolveTXT(domain string) ([]string, error) {
	fqdn := dns.Fqdn(domain)
	m := new(dns.Msg)
	m.SetQuestion(fqdn, dns.TypeTXT)
	m.RecursionDesired = true

	in, err := r.exchange(m)
	if err != nil {
		return nil, wrapErr(KindTransientDNS, 421, "TXT lookup transport failure for "+domain, err)
	}

	switch in.Rcode {
	case dns.RcodeNameError:
		return nil, newKindErr(KindInvalidTXT, "no such domain: "+domain)
	case dns.RcodeServerFailure, dns.RcodeRefused:
		return nil, newErr(KindTransientDNS, 421, fmt.Sprintf("DNS server failure resolving TXT for %s", domain))
	case dns.RcodeSuccess:
		// fall through
	default:
		return nil, newErr(KindTransientDNS, 421, fmt.Sprintf("unexpected DNS rcode %d resolving TXT for %s", in.Rcode, domain))
	}

	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			// dns.TXT.Txt is already the list of chunks for this one record;
			// join them so callers see one logical string per record.
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	if len(records) == 0 {
		return nil, newKindErr(KindInvalidTXT, "no TXT records for "+domain)
	}
	return records, nil
}
