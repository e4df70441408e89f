package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

// DeliveryClient submits one resolved recipient's message directly to its
// domain's MX hosts, per spec §4.H. It shares the emersion/go-smtp library
// with the inbound server (Component I) instead of pulling in a second
// SMTP client stack — the same unification foxcpp/maddy's remote delivery
// target uses net/smtp for, but this relay already depends on go-smtp for
// the server side.
type DeliveryClient struct {
	resolver       *Resolver
	heloName       string
	insecureTLS    bool // test-mode escape hatch, never an env-string check (spec §9)
	connectTimeout time.Duration
}

func NewDeliveryClient(resolver *Resolver, heloName string, insecureTLS bool) *DeliveryClient {
	return &DeliveryClient{
		resolver:       resolver,
		heloName:       heloName,
		insecureTLS:    insecureTLS,
		connectTimeout: 30 * time.Second,
	}
}

// Deliver submits one message to one resolved recipient, falling through
// the recipient domain's MX list in priority order on connection failure.
func (dc *DeliveryClient) Deliver(mailFrom, rcptTo string, msg []byte) error {
	domain := domainOf(rcptTo)
	if domain == "" {
		return newKindErr(KindInvalidDomain, "malformed recipient: "+rcptTo)
	}

	mxs, err := dc.resolver.resolveMX(domain)
	if err != nil {
		return err
	}

	var lastErr error
	for _, mx := range mxs {
		if err := dc.deliverToHost(mx.Exchange, mailFrom, rcptTo, msg); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (dc *DeliveryClient) deliverToHost(host, mailFrom, rcptTo string, msg []byte) error {
	addr := net.JoinHostPort(host, "25")

	conn, err := net.DialTimeout("tcp", addr, dc.connectTimeout)
	if err != nil {
		return newErr(KindDownstreamSMTP, 421, fmt.Sprintf("connection failed to %s: %v", addr, err))
	}

	c := smtp.NewClient(conn)

	if err := c.Hello(dc.heloName); err != nil {
		c.Close()
		return classifyDownstream(err)
	}

	if ok, _ := c.Extension("STARTTLS"); ok {
		// go-smtp no longer exposes a method to STARTTLS an already-Hello'd
		// Client, so the upgrade requires a fresh connection handled end to
		// end by NewClientStartTLS.
		c.Close()

		tlsConn, err := net.DialTimeout("tcp", addr, dc.connectTimeout)
		if err != nil {
			return newErr(KindDownstreamSMTP, 421, fmt.Sprintf("connection failed to %s: %v", addr, err))
		}

		tlsConfig := &tls.Config{ServerName: host, InsecureSkipVerify: dc.insecureTLS}
		tlsClient, err := smtp.NewClientStartTLS(tlsConn, tlsConfig)
		if err != nil {
			// Opportunistic TLS only covers a peer that never advertises
			// STARTTLS. Once it's advertised, a failed or untrusted
			// handshake in non-test mode must fail the delivery rather
			// than downgrade to cleartext.
			if !dc.insecureTLS {
				return classifyDownstream(err)
			}

			conn, err = net.DialTimeout("tcp", addr, dc.connectTimeout)
			if err != nil {
				return newErr(KindDownstreamSMTP, 421, fmt.Sprintf("connection failed to %s: %v", addr, err))
			}
			c = smtp.NewClient(conn)
		} else {
			c = tlsClient
		}

		if err := c.Hello(dc.heloName); err != nil {
			c.Close()
			return classifyDownstream(err)
		}
	}
	defer c.Close()

	if err := c.Mail(mailFrom, nil); err != nil {
		return classifyDownstream(err)
	}
	if err := c.Rcpt(rcptTo, nil); err != nil {
		return classifyDownstream(err)
	}

	w, err := c.Data()
	if err != nil {
		return classifyDownstream(err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return classifyDownstream(err)
	}
	if err := w.Close(); err != nil {
		return classifyDownstream(err)
	}

	return c.Quit()
}

// classifyDownstream surfaces a downstream MX's SMTP reply code as-is, per
// spec §4.H step 5 ("errors ... are surfaced with responseCode = NNN so
// the client driving this relay receives an equivalent code").
func classifyDownstream(err error) error {
	if smtpErr, ok := err.(*smtp.SMTPError); ok {
		return newErr(KindDownstreamSMTP, smtpErr.Code, smtpErr.Message)
	}
	return newErr(KindDownstreamSMTP, 421, err.Error())
}
