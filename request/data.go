package request

import (
	"bytes"
	"io"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// DATA streams a mail message. Source is any lazily-produced, 8-bit-clean
// byte source; it is consumed exactly once. The message is not required to
// be restartable.
type DATA struct {
	Source io.Reader

	answeredChallenge bool
}

func (r *DATA) Kind() Kind { return KindDATA }

func (r *DATA) EncodeInitial() (Payload, string, error) {
	r.answeredChallenge = false
	return line("DATA"), "DATA", nil
}

// EncodeAfterContinuation is invoked once, on the 354 "start mail input"
// reply. It streams the message body through a dot-stuffing filter and
// appends the CRLF "." CRLF terminator, per RFC 5321 §4.5.2. spec.md §9
// notes the source implementation this engine is modeled on appears to
// skip dot-stuffing; this module mandates it at the producer regardless.
func (r *DATA) EncodeAfterContinuation(resp response.Response) (Payload, string, error) {
	if !resp.IsContinuation() {
		return Payload{}, "", smtperr.New(smtperr.CommandNotAllowed, "DATA received a non-continuation response before completion", nil)
	}
	if r.answeredChallenge {
		return Payload{}, "", smtperr.New(smtperr.MoreInputThanExpected, "DATA received more challenges than the mechanism defines", nil)
	}
	r.answeredChallenge = true
	return Payload{Stream: newDotStuffReader(r.Source)}, "DATA stream", nil
}

func (*DATA) IsSensitive() bool { return true }

// dotStuffReader byte-stuffs a message body (doubling any '.' that begins a
// line) and appends the CRLF "." CRLF end-of-DATA terminator exactly once,
// regardless of how many times Read is called after the underlying source
// is exhausted.
type dotStuffReader struct {
	src       io.Reader
	atLineStart bool
	pending   bytes.Buffer
	srcDone   bool
	terminated bool
}

func newDotStuffReader(src io.Reader) *dotStuffReader {
	return &dotStuffReader{src: src, atLineStart: true}
}

func (d *dotStuffReader) Read(p []byte) (int, error) {
	for d.pending.Len() == 0 {
		if d.terminated {
			return 0, io.EOF
		}
		if d.srcDone {
			d.pending.WriteString("\r\n.\r\n")
			d.terminated = true
			break
		}
		buf := make([]byte, 4096)
		n, err := d.src.Read(buf)
		if n > 0 {
			d.stuff(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				return 0, err
			}
			d.srcDone = true
		}
	}
	return d.pending.Read(p)
}

// stuff appends chunk to the pending buffer, doubling any '.' found at the
// start of a line (tracked across Read calls via atLineStart).
func (d *dotStuffReader) stuff(chunk []byte) {
	for _, b := range chunk {
		if d.atLineStart && b == '.' {
			d.pending.WriteByte('.')
		}
		d.pending.WriteByte(b)
		d.atLineStart = b == '\n'
	}
}
