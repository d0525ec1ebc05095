/*
Package request implements the polymorphic SMTP command model of spec.md
§4.2: a tagged-variant Request interface covering every verb the engine
knows how to encode, including the multi-step SASL AUTH mechanisms and
streaming DATA. The variant form (rather than a capability interface with
many small implementations) is the shape spec.md §9's design notes
recommend, and matches the enum-plus-table style of
daemon/smtpd/smtp/protocol.go in the teacher module.
*/
package request

import (
	"fmt"
	"io"
	"strings"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Kind names a concrete command variant.
type Kind int

const (
	KindEHLO Kind = iota
	KindHELO
	KindMAIL
	KindRCPT
	KindDATA
	KindRSET
	KindNOOP
	KindQUIT
	KindHELP
	KindEXPN
	KindVRFY
	KindSTARTTLS
	KindAuthPlain
	KindAuthLogin
	KindAuthXOAUTH2
)

// Payload is what the session engine should write to the wire: either an
// in-memory byte slice or a streaming reader (used only by DATA, whose
// message body may be arbitrarily large and is never fully buffered).
type Payload struct {
	Bytes  []byte
	Stream io.Reader
}

// Request is implemented by every concrete SMTP command.
type Request interface {
	// Kind identifies the concrete command, mostly useful for metrics labels.
	Kind() Kind
	// EncodeInitial renders the full first wire line together with the redacted text that should be logged in its place
	// when IsSensitive is true.
	EncodeInitial() (payload Payload, debugText string, err error)
	// EncodeAfterContinuation handles multi-step commands (AUTH LOGIN,
	// AUTH XOAUTH2, DATA). It is only ever invoked by the session engine
	// when the server's response IsContinuation(). Every other command
	// returns OPERATION_NOT_SUPPORTED_FOR_COMMAND.
	EncodeAfterContinuation(resp response.Response) (payload Payload, debugText string, err error)
	// IsSensitive reports whether this command's wire data must never be
	// logged verbatim.
	IsSensitive() bool
}

func noCRLF(field, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return smtperr.New(smtperr.InvalidInput, fmt.Sprintf("%s must not contain CR or LF", field), nil)
	}
	return nil
}

func line(format string, args ...interface{}) Payload {
	return Payload{Bytes: []byte(fmt.Sprintf(format+"\r\n", args...))}
}

func notSupported(kind Kind) (Payload, string, error) {
	return Payload{}, "", smtperr.New(smtperr.OperationNotSupportedForCommand,
		fmt.Sprintf("command kind %d has no continuation", kind), nil)
}

// ---- simple, single-line, non-continuation commands ----

// EHLO identifies the client and requests capability advertisement.
type EHLO struct{ Name string }

func (r EHLO) Kind() Kind { return KindEHLO }
func (r EHLO) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("EHLO name", r.Name); err != nil {
		return Payload{}, "", err
	}
	return line("EHLO %s", r.Name), fmt.Sprintf("EHLO %s", r.Name), nil
}
func (r EHLO) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (r EHLO) IsSensitive() bool                                                  { return false }

// HELO is the legacy, non-ESMTP greeting command.
type HELO struct{ Name string }

func (r HELO) Kind() Kind { return KindHELO }
func (r HELO) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("HELO name", r.Name); err != nil {
		return Payload{}, "", err
	}
	return line("HELO %s", r.Name), fmt.Sprintf("HELO %s", r.Name), nil
}
func (r HELO) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (r HELO) IsSensitive() bool                                                  { return false }

// MAIL begins a mail transaction. Params is the optional ESMTP parameter
// string (e.g. "SIZE=12345"), sent verbatim after the reverse-path.
type MAIL struct {
	Sender string
	Params string
}

func (r MAIL) Kind() Kind { return KindMAIL }
func (r MAIL) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("MAIL sender", r.Sender); err != nil {
		return Payload{}, "", err
	}
	if r.Params == "" {
		return line("MAIL FROM:<%s>", r.Sender), fmt.Sprintf("MAIL FROM:<%s>", r.Sender), nil
	}
	if err := noCRLF("MAIL params", r.Params); err != nil {
		return Payload{}, "", err
	}
	text := fmt.Sprintf("MAIL FROM:<%s> %s", r.Sender, r.Params)
	return line("%s", text), text, nil
}
func (r MAIL) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (r MAIL) IsSensitive() bool                                                  { return false }

// RCPT names one recipient of the mail transaction in progress.
type RCPT struct{ Recipient string }

func (r RCPT) Kind() Kind { return KindRCPT }
func (r RCPT) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("RCPT recipient", r.Recipient); err != nil {
		return Payload{}, "", err
	}
	return line("RCPT TO:<%s>", r.Recipient), fmt.Sprintf("RCPT TO:<%s>", r.Recipient), nil
}
func (r RCPT) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (r RCPT) IsSensitive() bool                                                  { return false }

// RSET aborts any mail transaction in progress.
type RSET struct{}

func (RSET) Kind() Kind                                                        { return KindRSET }
func (RSET) EncodeInitial() (Payload, string, error)                           { return line("RSET"), "RSET", nil }
func (r RSET) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (RSET) IsSensitive() bool                                                  { return false }

// NOOP does nothing but elicits a reply, useful as a keep-alive.
type NOOP struct{}

func (NOOP) Kind() Kind                                                        { return KindNOOP }
func (NOOP) EncodeInitial() (Payload, string, error)                           { return line("NOOP"), "NOOP", nil }
func (r NOOP) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (NOOP) IsSensitive() bool                                                  { return false }

// QUIT requests the server close the connection.
type QUIT struct{}

func (QUIT) Kind() Kind                                                        { return KindQUIT }
func (QUIT) EncodeInitial() (Payload, string, error)                           { return line("QUIT"), "QUIT", nil }
func (r QUIT) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (QUIT) IsSensitive() bool                                                  { return false }

// HELP asks the server for help text, optionally about a specific topic.
type HELP struct{ Topic string }

func (r HELP) Kind() Kind { return KindHELP }
func (r HELP) EncodeInitial() (Payload, string, error) {
	if r.Topic == "" {
		return line("HELP"), "HELP", nil
	}
	if err := noCRLF("HELP topic", r.Topic); err != nil {
		return Payload{}, "", err
	}
	return line("HELP %s", r.Topic), fmt.Sprintf("HELP %s", r.Topic), nil
}
func (r HELP) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (HELP) IsSensitive() bool                                                  { return false }

// EXPN asks the server to expand a mailing list address. Absent from the
// teacher's own verb table; given the same shape as VRFY per RFC 5321,
// since both commands share identical framing (a single address, no
// continuation).
type EXPN struct{ Address string }

func (r EXPN) Kind() Kind { return KindEXPN }
func (r EXPN) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("EXPN address", r.Address); err != nil {
		return Payload{}, "", err
	}
	return line("EXPN %s", r.Address), fmt.Sprintf("EXPN %s", r.Address), nil
}
func (r EXPN) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (EXPN) IsSensitive() bool                                                  { return false }

// VRFY asks the server to confirm a mailbox address is deliverable.
type VRFY struct{ Address string }

func (r VRFY) Kind() Kind { return KindVRFY }
func (r VRFY) EncodeInitial() (Payload, string, error) {
	if err := noCRLF("VRFY address", r.Address); err != nil {
		return Payload{}, "", err
	}
	return line("VRFY %s", r.Address), fmt.Sprintf("VRFY %s", r.Address), nil
}
func (r VRFY) EncodeAfterContinuation(response.Response) (Payload, string, error) { return notSupported(r.Kind()) }
func (VRFY) IsSensitive() bool                                                  { return false }

// STARTTLS requests the in-place TLS upgrade. The bring-up pipeline issues
// this itself during its own STARTTLS dialog; a caller may also submit it
// through Session.Execute once a session is live, but the session engine
// only ever reports the server's reply — swapping the live transport to
// TLS mid-session is the bring-up pipeline's responsibility alone, exactly
// as spec.md §4.4 scopes the upgrade to bring-up.
type STARTTLS struct{}

func (STARTTLS) Kind() Kind                                              { return KindSTARTTLS }
func (STARTTLS) EncodeInitial() (Payload, string, error)                 { return line("STARTTLS"), "STARTTLS", nil }
func (r STARTTLS) EncodeAfterContinuation(response.Response) (Payload, string, error) {
	return notSupported(r.Kind())
}
func (STARTTLS) IsSensitive() bool { return false }
