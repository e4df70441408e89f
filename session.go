package main

import (
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"github.com/emersion/go-smtp"
	"golang.org/x/sync/errgroup"
)

// NewSession implements the CONNECT event of spec §4.I: if the client's
// HELO/EHLO hostname is a FQDN, accept; otherwise reject with 550.
func (bk *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	helo := c.Hostname()
	remoteIP := remoteIPOf(c.Conn())

	log := bk.log.With(map[string]any{"remote_ip": remoteIP.String(), "helo": helo})

	if !isFQDN(helo) {
		log.Warn("rejecting connection: HELO hostname is not a FQDN", nil)
		return nil, newKindErr(KindBadClientHostname, "HELO hostname must be a fully-qualified domain name")
	}

	return &Session{be: bk, remoteIP: remoteIP, helo: helo, log: log}, nil
}

func remoteIPOf(conn net.Conn) net.IP {
	if conn == nil {
		return net.IPv4zero
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return net.IPv4zero
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return net.IPv4zero
	}
	return ip
}

// Mail handles MAIL FROM: rate-limit check on addr, then sender-domain MX
// sanity, per spec §4.I.
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	if _, err := parseDomain(from, s.be.deny); err != nil {
		return toSMTPError(err)
	}

	if err := s.be.limiter.Check(from); err != nil {
		s.log.Warn("rate limited MAIL FROM", map[string]any{"from": from})
		return toSMTPError(err)
	}

	domain := domainOf(from)
	if _, err := s.be.resolver.resolveMX(domain); err != nil {
		s.log.Warn("sender domain MX check failed", map[string]any{"from": from, "err": err.Error()})
		return toSMTPError(err)
	}

	s.envelope.MailFrom = from
	return nil
}

// Rcpt handles RCPT TO: resolve the forwarding address via the TXT
// resolver, and require the recipient domain's MX set to include every
// configured relay exchange, per spec §4.I.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	domain, err := parseDomain(to, s.be.deny)
	if err != nil {
		return toSMTPError(err)
	}

	mxs, err := s.be.resolver.resolveMX(domain)
	if err != nil {
		return toSMTPError(err)
	}
	if err := requireExchanges(mxs, s.be.cfg.Relay.Exchanges); err != nil {
		s.log.Warn("recipient MX missing required exchanges", map[string]any{"to": to})
		return toSMTPError(err)
	}

	resolved, err := resolveForwarding(s.be.resolver, to, s.be.deny)
	if err != nil {
		s.log.Warn("TXT forwarding resolution failed", map[string]any{"to": to, "err": err.Error()})
		return toSMTPError(err)
	}

	s.envelope.Recipients = append(s.envelope.Recipients, ResolvedRecipient{Original: to, Resolved: resolved})
	return nil
}

// requireExchanges enforces spec §4.I's RCPT TO rule: the recipient
// domain's MX set must name every one of the relay's own configured
// exchange FQDNs.
func requireExchanges(mxs []MXRecord, exchanges []string) error {
	present := make(map[string]bool, len(mxs))
	for _, mx := range mxs {
		present[strings.ToLower(mx.Exchange)] = true
	}
	var missing []string
	for _, ex := range exchanges {
		if !present[strings.ToLower(ex)] {
			missing = append(missing, ex)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return newKindErr(KindInvalidMX, "Missing required DNS MX records: "+strings.Join(missing, ", "))
	}
	return nil
}

// Reset resets the session state (RSET).
func (s *Session) Reset() {
	s.envelope = Envelope{}
}

// Logout handles QUIT.
func (s *Session) Logout() error {
	return nil
}

// Data implements the DATA-phase composite logic of spec §4.I:
//  1. parse to completion, enforcing the size limit;
//  2. dedupe resolved recipient addresses;
//  3. gate on SPF-or-DKIM provenance;
//  4. fan out delivery to every unique resolved recipient concurrently;
//  5. aggregate replies, most severe first.
func (s *Session) Data(r io.Reader) error {
	maxSize := s.be.cfg.Relay.MaxMessageSize
	if maxSize == 0 {
		maxSize = 25 * 1024 * 1024
	}

	msg, err := parseMessage(r, maxSize)
	if err != nil {
		s.log.Warn("DATA parse failed", map[string]any{"err": err.Error()})
		return toSMTPError(err)
	}

	targets := dedupeRecipients(s.envelope.Recipients)

	spfOk, spfErr := verifySPF(s.remoteIP, s.envelope.MailFrom, s.helo)
	if spfErr != nil {
		return toSMTPError(spfErr)
	}
	dkimOk, dkimErr := verifyDKIM(msg.Raw)
	if dkimErr != nil {
		return toSMTPError(dkimErr)
	}

	if !spfOk && !dkimOk {
		s.log.Warn("provenance check failed", map[string]any{"from": s.envelope.MailFrom, "spf": spfOk, "dkim": dkimOk})
		return toSMTPError(newKindErr(KindProvenanceFailed, "No passing DKIM signature found"))
	}

	outbound, err := s.prepareOutboundMessage(msg)
	if err != nil {
		return toSMTPError(fmt.Errorf("preparing outbound message: %w", err))
	}

	results := s.deliverAll(targets, outbound)

	s.log.Info("delivery summary", map[string]any{
		"from":       s.envelope.MailFrom,
		"recipients": len(s.envelope.Recipients),
		"deduped":    len(targets),
		"spf":        spfOk,
		"dkim":       dkimOk,
		"dmarc":      dmarcAlignment(domainOf(s.envelope.MailFrom), spfOk, dkimOk),
	})

	return toSMTPError(aggregateDeliveryErrors(results))
}

// prepareOutboundMessage strips leaked-metadata headers and signs the
// result with the relay's own DKIM identity, per spec §3 and §4.F.
func (s *Session) prepareOutboundMessage(msg *ParsedMessage) ([]byte, error) {
	stripped, err := rewriteForDelivery(msg.Raw)
	if err != nil {
		return nil, err
	}
	if s.be.dkimKey == nil {
		return stripped, nil
	}
	return signDKIM(stripped, s.be.cfg.DKIM.DomainName, s.be.cfg.DKIM.Selector, s.be.dkimKey)
}

// dedupeRecipients enforces invariant 3 of spec §8: no message is
// delivered to the same resolved target twice per session.
func dedupeRecipients(recipients []ResolvedRecipient) []string {
	seen := make(map[string]bool, len(recipients))
	var out []string
	for _, r := range recipients {
		key := strings.ToLower(r.Resolved)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.Resolved)
	}
	return out
}

// deliverAll fans out delivery across every unique resolved recipient
// concurrently (spec §5: "Outbound deliveries execute concurrently").
func (s *Session) deliverAll(targets []string, msg []byte) []deliveryResult {
	results := make([]deliveryResult, len(targets))
	var g errgroup.Group
	for i, rcpt := range targets {
		i, rcpt := i, rcpt
		g.Go(func() error {
			err := s.be.deliverer.Deliver(s.envelope.MailFrom, rcpt, msg)
			results[i] = deliveryResult{recipient: rcpt, err: err}
			return nil // errors are aggregated by the caller, not by errgroup
		})
	}
	_ = g.Wait()
	return results
}

// aggregateDeliveryErrors implements spec §4.I step 5: if all deliveries
// succeeded, nil (250); otherwise the most severe failure — a fatal 5xx
// takes precedence over a transient 4xx.
func aggregateDeliveryErrors(results []deliveryResult) error {
	var worst error
	worstCode := -1
	for _, res := range results {
		if res.err == nil {
			continue
		}
		code := codeOf(res.err)
		if code >= 500 && (worstCode < 500 || code > worstCode) {
			worst, worstCode = res.err, code
		} else if worstCode < 0 {
			worst, worstCode = res.err, code
		}
	}
	return worst
}

func codeOf(err error) int {
	if re, ok := err.(*RelayError); ok {
		return re.Code
	}
	return 421
}

// toSMTPError is the single translation point from a *RelayError (or any
// other error) to an smtp.SMTPError reply code, per spec §7.
func toSMTPError(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RelayError); ok {
		return &smtp.SMTPError{Code: re.Code, Message: re.Message}
	}
	return &smtp.SMTPError{Code: 421, Message: err.Error()}
}
