package bringup

import (
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/yahoo/smtp-client-nio-sub000/future"
	"github.com/yahoo/smtp-client-nio-sub000/lalog"
	"github.com/yahoo/smtp-client-nio-sub000/metrics"
	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/session"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Result is what a successful bring-up delivers to the caller's
// session-creation completion: the live session plus the reply that stood
// in as its greeting (the 220 banner, or the STARTTLS 220 when the session
// was reached via the dialog driver).
type Result struct {
	Session  *session.Session
	Greeting response.Response
}

// Options carries everything Run needs to bring one connection up. Host,
// Port and Mode are mandatory, and so is either AssignID or a non-zero
// SessionID; everything else has a usable zero value.
type Options struct {
	Host           string
	Port           int
	LocalAddress   string // optional "host:port", passed to net.Dialer.LocalAddr
	SNINames       []string
	TLSConfig      *tls.Config // caller override; a default is built when nil
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	SessionContext interface{}
	Logger         *lalog.Logger
	Metrics        *metrics.Registry
	DebugMode      bool
	Mode           Mode

	// AssignID is invoked once this call's dial succeeds, and only when
	// SessionID is zero. Set it on the first attempt of a connection;
	// leave it nil and set SessionID instead on the SSL_WITH_STARTTLS
	// fallback retry, so the id assigned to the abandoned TLS attempt
	// carries over to the plaintext reconnect, per spec.md §4.4's "the
	// session id is only assigned on the first successful connection".
	AssignID func() int64
	SessionID int64

	// Reconnect, consulted only in SSL_WITH_STARTTLS mode, lets the TLS probe ask
	// the client to open a fresh PLAIN_STARTTLS connection reusing this
	// same completion and the session id already assigned to the
	// abandoned TLS attempt.
	Reconnect func(sessionID int64, completion *future.Completion[Result])
}

// Run brings one connection up according to opts.Mode and resolves the
// returned completion with the live session, or with the bring-up failure.
func Run(opts Options) *future.Completion[Result] {
	completion := future.New[Result]()
	RunInto(opts, completion)
	return completion
}

// RunInto is Run's entry point for a caller that already holds the
// completion it wants resolved — used by package client to reuse the
// original completion across the SSL_WITH_STARTTLS fallback reconnect.
func RunInto(opts Options, completion *future.Completion[Result]) {
	conn, err := dial(opts)
	if err != nil {
		fail(opts, 0, completion, err)
		return
	}

	id := opts.SessionID
	if id == 0 {
		id = opts.AssignID()
	}

	switch opts.Mode {
	case SSLWithStartTLS:
		bringUpSSLProbe(opts, id, conn, completion)
	case SSLNoStartTLS:
		bringUpDirectTLS(opts, id, conn, completion)
	case PlainStartTLS:
		bringUpPlainStartTLS(opts, id, conn, completion)
	case NonSSL:
		bringUpPlain(opts, id, conn, completion)
	default:
		_ = conn.Close()
		fail(opts, id, completion, smtperr.New(smtperr.InvalidInput, "unknown bring-up mode", nil))
	}
}

func dial(opts Options) (net.Conn, *smtperr.Error) {
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	if opts.LocalAddress != "" {
		localAddr, err := net.ResolveTCPAddr("tcp", opts.LocalAddress)
		if err != nil {
			return nil, smtperr.New(smtperr.InvalidInput, "invalid local address", err)
		}
		dialer.LocalAddr = localAddr
	}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, smtperr.New(smtperr.WriteToServerFailed, "failed to connect to "+addr, err)
	}
	return conn, nil
}

func tlsConfig(opts Options) *tls.Config {
	if opts.TLSConfig != nil {
		return opts.TLSConfig.Clone()
	}
	cfg := &tls.Config{ServerName: opts.Host}
	if len(opts.SNINames) > 0 {
		cfg.ServerName = opts.SNINames[0]
	}
	return cfg
}

// bringUpSSLProbe implements the SSL_WITH_STARTTLS pipeline: TLS first,
// with a plaintext STARTTLS fallback if the first bytes aren't a TLS
// record at all.
func bringUpSSLProbe(opts Options, id int64, conn net.Conn, completion *future.Completion[Result]) {
	if opts.ReadTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.ReadTimeout))
	}
	tlsConn := tls.Client(conn, tlsConfig(opts))
	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		var recordErr tls.RecordHeaderError
		if errors.As(err, &recordErr) && opts.Reconnect != nil {
			// Not a TLS record at all: ask the client to retry plaintext,
			// reusing this same completion and session id, per spec.md
			// §4.4(b).
			opts.Reconnect(id, completion)
			return
		}
		if errors.As(err, &recordErr) {
			completion.SetError(smtperr.New(smtperr.NotSSLRecord, "first bytes were not a TLS record", err).WithSession(id, opts.SessionContext))
			return
		}
		completion.SetError(smtperr.New(smtperr.ConnectionFailedException, "TLS handshake failed", err).WithSession(id, opts.SessionContext))
		return
	}
	_ = tlsConn.SetDeadline(time.Time{})
	finishWithGreeting(opts, id, tlsConn, completion)
}

// bringUpDirectTLS implements SSL_NO_STARTTLS: TLS handshake, no fallback.
func bringUpDirectTLS(opts Options, id int64, conn net.Conn, completion *future.Completion[Result]) {
	if opts.ReadTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.ReadTimeout))
	}
	tlsConn := tls.Client(conn, tlsConfig(opts))
	if err := tlsConn.Handshake(); err != nil {
		_ = conn.Close()
		completion.SetError(smtperr.New(smtperr.ConnectionFailedException, "TLS handshake failed", err).WithSession(id, opts.SessionContext))
		return
	}
	_ = tlsConn.SetDeadline(time.Time{})
	finishWithGreeting(opts, id, tlsConn, completion)
}

// bringUpPlain implements NON_SSL: framing straight to the greeting reader.
func bringUpPlain(opts Options, id int64, conn net.Conn, completion *future.Completion[Result]) {
	finishWithGreeting(opts, id, conn, completion)
}

// bringUpPlainStartTLS implements PLAIN_STARTTLS and the fallback path of
// SSL_WITH_STARTTLS: the four-state STARTTLS dialog driver followed by an
// in-place TLS upgrade.
func bringUpPlainStartTLS(opts Options, id int64, conn net.Conn, completion *future.Completion[Result]) {
	reader := newLineReader(conn, opts.ReadTimeout)
	outcome, err := runSTARTTLSDialog(reader)
	if err != nil {
		_ = conn.Close()
		completion.SetError(err.WithSession(id, opts.SessionContext))
		return
	}

	// TLS upgrade in place: the TLS layer is inserted after the framing
	// layer already in the pipeline, and the handshake result feeds this
	// same session-creation completion per spec.md §4.4.
	if opts.ReadTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.ReadTimeout))
	}
	tlsConn := tls.Client(conn, tlsConfig(opts))
	if handshakeErr := tlsConn.Handshake(); handshakeErr != nil {
		_ = conn.Close()
		completion.SetError(smtperr.New(smtperr.ConnectionFailedException, "STARTTLS handshake failed", handshakeErr).WithSession(id, opts.SessionContext))
		return
	}
	_ = tlsConn.SetDeadline(time.Time{})
	installSession(opts, id, tlsConn, outcome.greeting, completion)
}

// finishWithGreeting reads the initial 220 banner and, on success,
// constructs the live session. The banner is a full reply, not a single
// line: a server may send hyphen-continued intermediate lines before the
// terminal 220, so this reads to the terminal line the same way the
// STARTTLS dialog driver reads its replies.
func finishWithGreeting(opts Options, id int64, conn net.Conn, completion *future.Completion[Result]) {
	reader := newLineReader(conn, opts.ReadTimeout)
	seq, err := reader.readFullReply()
	if err != nil {
		_ = conn.Close()
		completion.SetError(err.WithSession(id, opts.SessionContext))
		return
	}
	greeting := seq.Last()
	if greeting.Code != response.CodeGreeting {
		_ = conn.Close()
		completion.SetError(smtperr.New(smtperr.ConnectionFailedInvalidGreetingCode,
			"expected a terminal 220 greeting, got "+greeting.String(), nil).WithSession(id, opts.SessionContext))
		return
	}
	installSession(opts, id, conn, greeting, completion)
}

func installSession(opts Options, id int64, conn net.Conn, greeting response.Response, completion *future.Completion[Result]) {
	sess := session.New(session.Config{
		ID:             id,
		SessionContext: opts.SessionContext,
		Conn:           conn,
		ReadTimeout:    opts.ReadTimeout,
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
		DebugMode:      opts.DebugMode,
	})
	if opts.Metrics != nil {
		opts.Metrics.ObserveBringUpOutcome("ok")
	}
	completion.SetValue(Result{Session: sess, Greeting: greeting})
}

// fail resolves completion with err, annotated with the session id once one
// has been assigned, and records the outcome metric by failure kind.
func fail(opts Options, id int64, completion *future.Completion[Result], err *smtperr.Error) {
	tagged := err
	if id != 0 {
		tagged = err.WithSession(id, opts.SessionContext)
	}
	if opts.Metrics != nil {
		opts.Metrics.ObserveBringUpOutcome(tagged.Kind.String())
	}
	completion.SetError(tagged)
}
