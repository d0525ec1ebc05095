/*
Package smtperr defines the structured error kind and error value returned
by every other package in this module. Every failure the engine raises
carries its Kind, the session id and session context when known, a
free-text message, and an optional wrapped cause, per spec.md §7.
*/
package smtperr

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates every failure kind the engine can raise.
type Kind int

const (
	// InvalidInput means the caller supplied malformed arguments.
	InvalidInput Kind = iota
	// InvalidServerResponse means the reply-line parser rejected a line.
	InvalidServerResponse
	// WriteToServerFailed means a transport write (including the initial
	// connect) returned failure.
	WriteToServerFailed
	// ConnectionFailedException is a generic bring-up or TLS handshake failure.
	ConnectionFailedException
	// ConnectionFailedExceedIdleMax means read-idle fired during bring-up.
	ConnectionFailedExceedIdleMax
	// ConnectionFailedInvalidGreetingCode means the initial reply was not 220.
	ConnectionFailedInvalidGreetingCode
	// ConnectionInactive means the socket closed during bring-up before completion.
	ConnectionInactive
	// NotSSLRecord means the TLS probe saw a plaintext reply and STARTTLS fallback is disabled.
	NotSSLRecord
	// STARTTLSFailed means the STARTTLS dialog terminated without a TLS upgrade.
	STARTTLSFailed
	// ChannelException means a transport or encoding error occurred during a live command.
	ChannelException
	// ChannelTimeout means read-idle fired while awaiting a live command's response.
	ChannelTimeout
	// ChannelDisconnected means the socket closed during a live command.
	ChannelDisconnected
	// ClosingConnectionFailed means an orderly close attempt failed.
	ClosingConnectionFailed
	// OperationProhibitedOnClosedChannel means Execute was called on a closed session.
	OperationProhibitedOnClosedChannel
	// CommandNotAllowed means a command was submitted while another was
	// in flight, or the server's response forbids a requested continuation.
	CommandNotAllowed
	// OperationNotSupportedForCommand means a continuation was requested
	// for a command that defines none.
	OperationNotSupportedForCommand
	// MoreInputThanExpected means the server asked for more challenge
	// steps than the chosen mechanism provides.
	MoreInputThanExpected
	// Cancelled means a Completion was cancelled by its caller.
	Cancelled
	// Timeout means a bounded Completion.WaitFor call expired.
	Timeout
)

var kindNames = map[Kind]string{
	InvalidInput:                        "INVALID_INPUT",
	InvalidServerResponse:                "INVALID_SERVER_RESPONSE",
	WriteToServerFailed:                  "WRITE_TO_SERVER_FAILED",
	ConnectionFailedException:            "CONNECTION_FAILED_EXCEPTION",
	ConnectionFailedExceedIdleMax:        "CONNECTION_FAILED_EXCEED_IDLE_MAX",
	ConnectionFailedInvalidGreetingCode:  "CONNECTION_FAILED_INVALID_GREETING_CODE",
	ConnectionInactive:                   "CONNECTION_INACTIVE",
	NotSSLRecord:                         "NOT_SSL_RECORD",
	STARTTLSFailed:                       "STARTTLS_FAILED",
	ChannelException:                     "CHANNEL_EXCEPTION",
	ChannelTimeout:                       "CHANNEL_TIMEOUT",
	ChannelDisconnected:                  "CHANNEL_DISCONNECTED",
	ClosingConnectionFailed:              "CLOSING_CONNECTION_FAILED",
	OperationProhibitedOnClosedChannel:   "OPERATION_PROHIBITED_ON_CLOSED_CHANNEL",
	CommandNotAllowed:                    "COMMAND_NOT_ALLOWED",
	OperationNotSupportedForCommand:      "OPERATION_NOT_SUPPORTED_FOR_COMMAND",
	MoreInputThanExpected:                "MORE_INPUT_THAN_EXPECTED",
	Cancelled:                            "CANCELLED",
	Timeout:                              "TIMEOUT",
}

// String renders the kind's wire name, e.g. "CHANNEL_TIMEOUT".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN_" + strconv.Itoa(int(k))
}

// Error is the error value raised by every package in this module.
type Error struct {
	Kind           Kind
	SessionID      int64 // 0 means unknown/not yet assigned
	SessionContext interface{}
	Message        string
	Cause          error
}

// New builds an Error with no session id or context known yet (bring-up
// failures before a socket is obtained).
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithSession returns a copy of e annotated with a session id and context.
func (e *Error) WithSession(sessionID int64, sessionContext interface{}) *Error {
	cp := *e
	cp.SessionID = sessionID
	cp.SessionContext = sessionContext
	return &cp
}

// Error renders failureType=<kind>[,sId=<id>][,uId=<ctx>][,message=<msg>],
// exactly the format spec.md §7 mandates.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failureType=%s", e.Kind.String())
	if e.SessionID != 0 {
		fmt.Fprintf(&b, ",sId=%d", e.SessionID)
	}
	if e.SessionContext != nil {
		fmt.Fprintf(&b, ",uId=%v", e.SessionContext)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ",message=%s", e.Message)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, smtperr.New(smtperr.ChannelTimeout, "", nil)).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
