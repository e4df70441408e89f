package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	emmail "github.com/emersion/go-message/mail"
)

// ParsedMessage is the result of streaming a DATA-phase body through the
// MIME parser (spec §4.G / §3 "Parsed message").
type ParsedMessage struct {
	Subject     string
	From        string
	To          string
	Cc          string
	Bcc         string
	Date        string
	MessageID   string
	InReplyTo   string
	ReplyTo     string
	References  string
	Headers     map[string]string // remaining headers, verbatim, lower-cased keys
	Text        string
	HTML        string
	Attachments []Attachment

	// Raw holds the exact bytes read from the client, before any
	// stripping. verifyDKIM must run against this, never against a
	// reconstruction.
	Raw []byte
}

// Attachment is one fully-buffered MIME part that isn't a text/html
// alternative.
type Attachment struct {
	Filename    string
	ContentType string
	Disposition string
	Data        []byte
}

var promotedHeaders = map[string]bool{
	"subject":     true,
	"references":  true,
	"date":        true,
	"to":          true,
	"from":        true,
	"cc":          true,
	"bcc":         true,
	"message-id":  true,
	"in-reply-to": true,
	"reply-to":    true,
}

// sizeCappedReader enforces spec §3's 25 MiB on-wire ceiling. Reading past
// the cap returns errMessageTooLarge instead of silently truncating, so
// the DATA phase fails before delivery is attempted (spec §4.G).
type sizeCappedReader struct {
	r  io.Reader
	n  int64
	ex bool
}

var errMessageTooLarge = errors.New("message exceeds configured maximum size")

func (s *sizeCappedReader) Read(p []byte) (int, error) {
	if s.ex {
		return 0, errMessageTooLarge
	}
	if int64(len(p)) > s.n+1 {
		p = p[:s.n+1]
	}
	n, err := s.r.Read(p)
	s.n -= int64(n)
	if s.n < 0 {
		s.ex = true
		return n, errMessageTooLarge
	}
	return n, err
}

// parseMessage streams r (already limited to maxSize+1 bytes by
// sizeCappedReader) into a ParsedMessage. Headers are read incrementally by
// mail.CreateReader as parts arrive; only attachment bodies are fully
// buffered, per spec §5 ("must not buffer the entire message before
// beginning header extraction, though attachments are materialized fully
// to allow DKIM to verify the canonical bytes").
func parseMessage(r io.Reader, maxSize int64) (*ParsedMessage, error) {
	capped := &sizeCappedReader{r: r, n: maxSize}

	var raw bytes.Buffer
	tee := io.TeeReader(capped, &raw)

	mr, err := emmail.CreateReader(tee)
	if err != nil {
		if errors.Is(err, errMessageTooLarge) {
			return nil, newKindErr(KindMessageTooLarge, "message exceeds maximum size")
		}
		return nil, fmt.Errorf("failed to parse message headers: %w", err)
	}

	msg := &ParsedMessage{Headers: make(map[string]string)}
	msg.Subject = mr.Header.Get("Subject")
	msg.From = mr.Header.Get("From")
	msg.To = mr.Header.Get("To")
	msg.Cc = mr.Header.Get("Cc")
	msg.Bcc = mr.Header.Get("Bcc")
	msg.Date = mr.Header.Get("Date")
	msg.MessageID = mr.Header.Get("Message-Id")
	msg.InReplyTo = mr.Header.Get("In-Reply-To")
	msg.ReplyTo = mr.Header.Get("Reply-To")
	msg.References = mr.Header.Get("References")

	fields := mr.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if promotedHeaders[key] {
			continue
		}
		if v, ok := msg.Headers[key]; ok {
			msg.Headers[key] = v + "; " + fields.Value()
		} else {
			msg.Headers[key] = fields.Value()
		}
	}

	for {
		p, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			if errors.Is(perr, errMessageTooLarge) {
				return nil, newKindErr(KindMessageTooLarge, "message exceeds maximum size")
			}
			break
		}

		ct := p.Header.Get("Content-Type")
		mediaType, _, _ := mime.ParseMediaType(ct)

		switch h := p.Header.(type) {
		case *emmail.InlineHeader:
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, p.Body); err != nil {
				if errors.Is(err, errMessageTooLarge) {
					return nil, newKindErr(KindMessageTooLarge, "message exceeds maximum size")
				}
				continue
			}
			switch mediaType {
			case "text/html":
				msg.HTML += buf.String()
			default:
				msg.Text += buf.String()
			}
		case *emmail.AttachmentHeader:
			var buf bytes.Buffer
			if _, err := io.Copy(&buf, p.Body); err != nil {
				if errors.Is(err, errMessageTooLarge) {
					return nil, newKindErr(KindMessageTooLarge, "message exceeds maximum size")
				}
				continue
			}
			filename, _ := h.Filename()
			disposition, _, _ := h.ContentDisposition()
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Disposition: disposition,
				Data:        buf.Bytes(),
			})
		}
	}

	msg.Raw = raw.Bytes()
	return msg, nil
}
