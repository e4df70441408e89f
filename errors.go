package main

import "fmt"

// Kind identifies which error condition a RelayError represents. The SMTP
// session is the single place that translates a Kind into a reply code —
// no other component is allowed to pick a code directly.
type Kind int

const (
	KindBadClientHostname Kind = iota
	KindInvalidDomain
	KindInvalidTXT
	KindInvalidMX
	KindRateLimited
	KindMessageTooLarge
	KindProvenanceFailed
	KindTransientDNS
	KindTransientSPF
	KindTransientDKIM
	KindDownstreamSMTP
)

func (k Kind) String() string {
	switch k {
	case KindBadClientHostname:
		return "BadClientHostname"
	case KindInvalidDomain:
		return "InvalidDomain"
	case KindInvalidTXT:
		return "InvalidTXT"
	case KindInvalidMX:
		return "InvalidMX"
	case KindRateLimited:
		return "RateLimited"
	case KindMessageTooLarge:
		return "MessageTooLarge"
	case KindProvenanceFailed:
		return "ProvenanceFailed"
	case KindTransientDNS:
		return "TransientDNS"
	case KindTransientSPF:
		return "TransientSPF"
	case KindTransientDKIM:
		return "TransientDKIM"
	case KindDownstreamSMTP:
		return "DownstreamSMTP"
	default:
		return "Unknown"
	}
}

// RelayError is the typed error every component in this relay raises
// instead of an ad hoc error string. Code is the SMTP reply code the
// session state machine surfaces for this Kind.
type RelayError struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Code, e.Message)
}

func (e *RelayError) Unwrap() error { return e.Err }

func newErr(kind Kind, code int, msg string) *RelayError {
	return &RelayError{Kind: kind, Code: code, Message: msg}
}

func wrapErr(kind Kind, code int, msg string, err error) *RelayError {
	return &RelayError{Kind: kind, Code: code, Message: msg, Err: err}
}

// default reply codes per Kind, per spec §7.
var defaultCode = map[Kind]int{
	KindBadClientHostname: 550,
	KindInvalidDomain:     550,
	KindInvalidTXT:        550,
	KindInvalidMX:         550,
	KindRateLimited:       451,
	KindMessageTooLarge:   450,
	KindProvenanceFailed:  550,
	KindTransientDNS:      421,
	KindTransientSPF:      421,
	KindTransientDKIM:     421,
	KindDownstreamSMTP:    0, // pass-through, set explicitly per occurrence
}

func newKindErr(kind Kind, msg string) *RelayError {
	return newErr(kind, defaultCode[kind], msg)
}
