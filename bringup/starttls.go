package bringup

import (
	"strings"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// reconnectionEHLOName is the implementation-chosen EHLO/HELO identity used
// by the STARTTLS dialog driver; spec.md §4.4 allows any constant.
const reconnectionEHLOName = "Reconnection"

// starttlsOutcome is the dialog driver's four-state result.
type starttlsOutcome struct {
	// ready is true once POST_STARTTLS has received its terminal 220 and
	// the caller should now perform the TLS handshake in place.
	ready    bool
	greeting response.Response
}

// runSTARTTLSDialog drives the PRE_EHLO -> PRE_STARTTLS -> POST_STARTTLS
// state machine described in spec.md §4.4. On any non-2xx reply, or a
// capability-less EHLO/HELO exchange, it returns STARTTLS_FAILED carrying
// the last server response.
func runSTARTTLSDialog(l *lineReader) (starttlsOutcome, *smtperr.Error) {
	// PRE_EHLO: the server's initial greeting must be a terminal 2xx (220).
	greeting, err := l.readResponse()
	if err != nil {
		return starttlsOutcome{}, err
	}
	if !greeting.IsLastLine() || greeting.ReplyClass() != response.ReplyClassPositiveCompletion {
		return starttlsOutcome{}, failed(greeting)
	}

	caps, rejected, err := sendGreetingCommand(l, "EHLO "+reconnectionEHLOName)
	if err != nil {
		return starttlsOutcome{}, err
	}
	if rejected {
		// HELO fallback: keeps the conversation alive, but HELO carries no
		// capability lines, so this path can only ever end in FAILURE.
		heloReply, helloRejected, err := sendGreetingCommand(l, "HELO "+reconnectionEHLOName)
		if err != nil {
			return starttlsOutcome{}, err
		}
		if helloRejected {
			return starttlsOutcome{}, smtperr.New(smtperr.STARTTLSFailed, "EHLO and HELO were both rejected, last reply "+heloReply.Last().String(), nil)
		}
		return starttlsOutcome{}, smtperr.New(smtperr.STARTTLSFailed, "HELO fallback exposes no STARTTLS capability, last reply "+heloReply.Last().String(), nil)
	}
	if !hasSTARTTLSCapability(caps) {
		return starttlsOutcome{}, smtperr.New(smtperr.STARTTLSFailed, "server did not advertise STARTTLS, last reply "+caps.Last().String(), nil)
	}

	// PRE_STARTTLS -> POST_STARTTLS.
	if writeErr := l.write("STARTTLS"); writeErr != nil {
		return starttlsOutcome{}, writeErr
	}
	postResp, err := l.readResponse()
	if err != nil {
		return starttlsOutcome{}, err
	}
	if !postResp.IsLastLine() || postResp.ReplyClass() != response.ReplyClassPositiveCompletion {
		return starttlsOutcome{}, failed(postResp)
	}
	return starttlsOutcome{ready: true, greeting: postResp}, nil
}

// sendGreetingCommand writes line and collects the full reply, reporting
// whether the reply's terminal class is non-2xx (a rejection of the
// command itself, as opposed to a rejection the driver can still recover).
func sendGreetingCommand(l *lineReader, line string) (response.Sequence, bool, *smtperr.Error) {
	if err := l.write(line); err != nil {
		return nil, false, err
	}
	seq, err := l.readFullReply()
	if err != nil {
		return nil, false, err
	}
	return seq, seq.Last().ReplyClass() != response.ReplyClassPositiveCompletion, nil
}

// hasSTARTTLSCapability reports whether the first whitespace-delimited token
// of any reply line's tail equals "STARTTLS", compared case-insensitively.
func hasSTARTTLSCapability(seq response.Sequence) bool {
	for _, resp := range seq {
		tail := strings.TrimSpace(resp.Tail)
		fields := strings.Fields(tail)
		if len(fields) > 0 && strings.EqualFold(fields[0], "STARTTLS") {
			return true
		}
	}
	return false
}

func failed(last response.Response) *smtperr.Error {
	return smtperr.New(smtperr.STARTTLSFailed, "server replied "+last.String()+" during the STARTTLS dialog", nil)
}
