/*
Package session implements the live command/response pipeline of spec.md
§4.5: an in-flight queue bounded to one outstanding command, a single
goroutine that owns the connection for the session's lifetime (the Go
translation of "every per-session handler runs pinned to one event-loop
worker"), and orderly close semantics.

Grounded on daemon/smtpd/smtp/connection.go in the teacher module: that
file drives a server-side SMTP conversation off a single goroutine's
blocking reads with a stage-based state machine (CarryOn); this package is
the client-side mirror of the same idiom, with the command entry's
REQUEST_IN_PREPARATION/REQUEST_SENT/RESPONSES_DONE states standing in for
the teacher's commandStage enumeration.
*/
package session

import (
	"errors"
	"io"
	"net"
	"net/textproto"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yahoo/smtp-client-nio-sub000/future"
	"github.com/yahoo/smtp-client-nio-sub000/lalog"
	"github.com/yahoo/smtp-client-nio-sub000/metrics"
	"github.com/yahoo/smtp-client-nio-sub000/request"
	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Conn is the subset of net.Conn the session engine needs. Both a plain
// *net.TCPConn and a *tls.Conn satisfy it, which is how the bring-up
// pipeline hands off either a plaintext or a freshly upgraded TLS socket
// without this package knowing which.
type Conn interface {
	net.Conn
}

// Session is the live, caller-facing handle for one SMTP connection past
// bring-up. Construct one via New, normally called only by package
// bringup once the server's greeting has been observed.
type Session struct {
	id             int64
	sessionContext interface{}
	conn           Conn
	reader         *textproto.Reader
	readTimeout    time.Duration
	logger         *lalog.Logger
	metrics        *metrics.Registry

	debugMode int32 // atomic bool
	closed    atomic.Bool
	inFlight  atomic.Bool
	submitCh  chan *commandEntry

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	doneCh       chan struct{}
}

// Config carries everything New needs that isn't the socket itself.
type Config struct {
	ID             int64
	SessionContext interface{}
	Conn           Conn
	ReadTimeout    time.Duration
	Logger         *lalog.Logger
	Metrics        *metrics.Registry
	DebugMode      bool
}

// New constructs a live Session and starts its owning goroutine. The
// caller must not touch cfg.Conn after this call; the session owns it.
func New(cfg Config) *Session {
	s := &Session{
		id:             cfg.ID,
		sessionContext: cfg.SessionContext,
		conn:           cfg.Conn,
		reader:         textproto.NewReader(newBufReader(cfg.Conn)),
		readTimeout:    cfg.ReadTimeout,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		submitCh:       make(chan *commandEntry),
		shutdownCh:     make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	if cfg.Logger != nil {
		// Scope the session's log lines to it: each carries the session id
		// and, when known, the session context.
		fields := append([]lalog.IDField{}, cfg.Logger.ComponentID...)
		fields = append(fields, lalog.IDField{Key: "sId", Value: cfg.ID})
		if cfg.SessionContext != nil {
			fields = append(fields, lalog.IDField{Key: "uId", Value: cfg.SessionContext})
		}
		s.logger = &lalog.Logger{ComponentName: cfg.Logger.ComponentName, ComponentID: fields}
	}
	if cfg.DebugMode {
		atomic.StoreInt32(&s.debugMode, 1)
	}
	if s.metrics != nil {
		s.metrics.SessionEstablished()
	}
	go s.pump()
	return s
}

// ID is this session's process-unique identifier.
func (s *Session) ID() int64 { return s.id }

// SetDebugMode atomically toggles per-session wire activity logging.
func (s *Session) SetDebugMode(on bool) {
	if on {
		atomic.StoreInt32(&s.debugMode, 1)
	} else {
		atomic.StoreInt32(&s.debugMode, 0)
	}
}

func (s *Session) debugEnabled() bool {
	return atomic.LoadInt32(&s.debugMode) != 0
}

func (s *Session) err(kind smtperr.Kind, message string, cause error) *smtperr.Error {
	return smtperr.New(kind, message, cause).WithSession(s.id, s.sessionContext)
}

// Execute submits a command. It fails synchronously if the channel is
// already closed or another command is still in flight (the in-flight
// queue is bounded to one occupant per spec.md §4.5); otherwise it returns
// immediately with a Completion that resolves once the terminal response
// (or a failure) arrives.
func (s *Session) Execute(req request.Request) *future.Completion[response.Sequence] {
	completion := future.New[response.Sequence]()
	if s.closed.Load() {
		completion.SetError(s.err(smtperr.OperationProhibitedOnClosedChannel, "session is closed", nil))
		return completion
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		completion.SetError(s.err(smtperr.CommandNotAllowed, "a command is already in flight", nil))
		return completion
	}
	entry := &commandEntry{request: req, completion: completion, state: stateInPreparation}
	select {
	case s.submitCh <- entry:
	case <-s.doneCh:
		s.inFlight.Store(false)
		completion.SetError(s.err(smtperr.OperationProhibitedOnClosedChannel, "session is closed", nil))
	}
	return completion
}

// Close issues an orderly shutdown. If the session is already closed this
// resolves immediately with true and performs no I/O. Closing drains any
// in-flight command with CHANNEL_DISCONNECTED.
func (s *Session) Close() *future.Completion[bool] {
	completion := future.New[bool]()
	if !s.closed.CompareAndSwap(false, true) {
		completion.SetValue(true)
		return completion
	}
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	if s.metrics != nil {
		s.metrics.SessionClosed()
	}
	err := s.conn.Close()
	if err != nil {
		completion.SetError(s.err(smtperr.ClosingConnectionFailed, "failed to close connection", err))
	} else {
		completion.SetValue(true)
	}
	return completion
}

// markFailed is the shared tail of every pump-side failure path: it marks
// the session closed (a no-op if Close was already called concurrently)
// and closes the socket so any blocked read unblocks.
func (s *Session) markFailed() {
	if s.closed.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.SessionClosed()
		}
		s.shutdownOnce.Do(func() { close(s.shutdownCh) })
		_ = s.conn.Close()
	}
}

func (s *Session) observeError(kind smtperr.Kind) {
	if s.metrics != nil {
		s.metrics.ObserveError(kind)
	}
}

// pump is the session's sole owning goroutine: every read, write and state
// transition below happens only here, so no lock is needed to protect the
// command entry's fields.
func (s *Session) pump() {
	defer close(s.doneCh)
	for {
		var entry *commandEntry
		select {
		case entry = <-s.submitCh:
		case <-s.shutdownCh:
			return
		}
		started := time.Now()
		ok := s.runCommand(entry)
		if s.metrics != nil {
			if kind, isCmd := commandMetricLabel(entry.request); isCmd {
				s.metrics.ObserveCommand(kind, time.Since(started))
			}
		}
		s.inFlight.Store(false)
		if !ok {
			return
		}
	}
}

// runCommand drives one command entry from REQUEST_IN_PREPARATION through
// to RESPONSES_DONE (or failure). It returns false if the channel must now
// be considered dead.
func (s *Session) runCommand(entry *commandEntry) bool {
	payload, debugText, err := entry.request.EncodeInitial()
	if err != nil {
		entry.completion.SetError(err)
		return true // caller's mistake, channel is still healthy
	}
	s.logWire(">", debugText)
	if !s.write(entry, payload) {
		return false
	}

	for {
		line, err := s.readLine()
		if err != nil {
			s.failEntry(entry, err)
			return false
		}
		resp, parseErr := response.Parse(line)
		if parseErr != nil {
			s.failEntry(entry, s.err(smtperr.ChannelException, "malformed reply line", parseErr))
			return false
		}
		entry.collected = append(entry.collected, resp)
		s.logWire("<", resp.String())

		switch {
		case resp.IsContinuation():
			// Conceptually passes through RESPONSES_DONE before returning to
			// REQUEST_IN_PREPARATION for the next leg of the exchange.
			entry.state = stateInPreparation
			nextPayload, nextDebug, encodeErr := entry.request.EncodeAfterContinuation(resp)
			if encodeErr != nil {
				s.failEntry(entry, s.err(smtperr.ChannelException, "continuation encoding failed", encodeErr))
				return false
			}
			s.logWire(">", nextDebug)
			if !s.write(entry, nextPayload) {
				return false
			}
		case resp.IsLastLine():
			entry.state = stateResponsesDone
			entry.completion.SetValue(entry.collected)
			return true
		default:
			// Intermediate hyphen-continued line of a multi-line, non-continuation reply (e.g. EHLO). Keep collecting.
		}
	}
}

func (s *Session) write(entry *commandEntry, payload request.Payload) bool {
	entry.state = stateSent // transitions regardless of the write's outcome
	var writeErr error
	if payload.Stream != nil {
		_, writeErr = io.Copy(s.conn, payload.Stream)
	} else if len(payload.Bytes) > 0 {
		_, writeErr = s.conn.Write(payload.Bytes)
	}
	if writeErr != nil {
		kind := smtperr.WriteToServerFailed
		if s.closed.Load() || errors.Is(writeErr, net.ErrClosed) || errors.Is(writeErr, io.ErrClosedPipe) {
			kind = smtperr.ChannelDisconnected
		}
		s.failEntry(entry, s.err(kind, "write to server failed", writeErr))
		return false
	}
	return true
}

func (s *Session) failEntry(entry *commandEntry, err error) {
	entry.completion.SetError(err)
	var smtpErr *smtperr.Error
	if errors.As(err, &smtpErr) {
		s.observeError(smtpErr.Kind)
	}
	s.markFailed()
}

// readLine reads one CRLF-framed reply line, translating a read-deadline
// expiry into CHANNEL_TIMEOUT and a closed/reset socket into
// CHANNEL_DISCONNECTED, matching spec.md §4.5's "channel idle" and
// "channel inactive" events respectively. A local Close() unblocks a
// pump blocked here by closing the socket out from under it, which
// surfaces as io.ErrClosedPipe/net.ErrClosed rather than io.EOF; s.closed
// is set before that close happens, so checking it catches this path too.
func (s *Session) readLine() (string, error) {
	if s.readTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return "", s.err(smtperr.ChannelException, "failed to set read deadline", err)
		}
	}
	line, err := s.reader.ReadLine()
	if err == nil {
		return line, nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "", s.err(smtperr.ChannelTimeout, "no response within the read timeout", err)
	}
	if errors.Is(err, io.EOF) || s.closed.Load() || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return "", s.err(smtperr.ChannelDisconnected, "connection closed", err)
	}
	return "", s.err(smtperr.ChannelException, "read from server failed", err)
}

func (s *Session) logWire(direction, text string) {
	if s.logger == nil || !s.debugEnabled() {
		return
	}
	s.logger.Info("wire", direction, nil, "%s", text)
}

// commandMetricLabel names the metrics label for a request, or reports
// false for kinds with no stable label (there are none today, but this
// keeps the call site defensive against a future unlabeled variant).
func commandMetricLabel(req request.Request) (string, bool) {
	switch req.Kind() {
	case request.KindEHLO:
		return "EHLO", true
	case request.KindHELO:
		return "HELO", true
	case request.KindMAIL:
		return "MAIL", true
	case request.KindRCPT:
		return "RCPT", true
	case request.KindDATA:
		return "DATA", true
	case request.KindRSET:
		return "RSET", true
	case request.KindNOOP:
		return "NOOP", true
	case request.KindQUIT:
		return "QUIT", true
	case request.KindHELP:
		return "HELP", true
	case request.KindEXPN:
		return "EXPN", true
	case request.KindVRFY:
		return "VRFY", true
	case request.KindSTARTTLS:
		return "STARTTLS", true
	case request.KindAuthPlain, request.KindAuthLogin, request.KindAuthXOAUTH2:
		return "AUTH", true
	default:
		return "", false
	}
}
