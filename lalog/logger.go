/*
Package lalog provides the structured, rate-limited logger shared by every
component of the SMTP client engine (bring-up pipeline, session engine,
client factory). It is a direct port of the logging style used throughout
the teacher module: a Logger carries a component name plus an ordered set
of identifying fields, formats a message deterministically, keeps the
latest entries (and latest warnings) in an in-memory ring buffer for
inspection, and throttles any single logger from flooding stderr.
*/
package lalog

import (
	"bytes"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// MaxLogMessageLen truncates any single formatted message.
	MaxLogMessageLen = 4096
	// maxRetainedEntries bounds the in-memory ring buffers.
	maxRetainedEntries = 2048
	// maxMessagesPerSecPerLogger throttles a single logger instance.
	maxMessagesPerSecPerLogger = 200
	// dedupCapacity bounds how many distinct recent warning actors are tracked.
	dedupCapacity = 512
)

var (
	// LatestLogs retains the most recent formatted log lines of any
	// severity, across every Logger instance in the process.
	LatestLogs = NewRingBuffer(maxRetainedEntries)
	// LatestWarnings retains the most recent warning-level lines only.
	LatestWarnings = NewRingBuffer(maxRetainedEntries)

	warningDedup = newDedupBuffer(dedupCapacity)
)

// IDField is a single key/value pair contributing to a Logger's identity in
// its formatted output, e.g. {"sId", 42} or {"host", "smtp.example.com"}.
type IDField struct {
	Key   string
	Value interface{}
}

// Logger formats and emits log messages in the form:
//
//	ComponentName[field1=value1,field2=value2].FunctionName(actor): error "cause" - message
//
// Any of the bracketed/parenthesized/error segments are omitted when empty.
type Logger struct {
	ComponentName string
	ComponentID   []IDField

	initOnce  sync.Once
	rateLimit *RateLimit
}

func (l *Logger) init() {
	l.initOnce.Do(func() {
		l.rateLimit = &RateLimit{WindowSecs: 1, MaxCount: maxMessagesPerSecPerLogger}
	})
}

func (l *Logger) componentID() string {
	if len(l.ComponentID) == 0 {
		return ""
	}
	var buf bytes.Buffer
	for i, field := range l.ComponentID {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%s=%v", field.Key, field.Value)
	}
	return buf.String()
}

// Format renders a log message without emitting it.
func (l *Logger) Format(functionName, actor string, err error, template string, values ...interface{}) string {
	var msg bytes.Buffer
	if l.ComponentName != "" {
		msg.WriteString(l.ComponentName)
	}
	if id := l.componentID(); id != "" {
		fmt.Fprintf(&msg, "[%s]", id)
	}
	if msg.Len() > 0 {
		msg.WriteByte('.')
	}
	if functionName != "" {
		msg.WriteString(functionName)
	}
	if actor != "" {
		fmt.Fprintf(&msg, "(%s)", actor)
	}
	if msg.Len() > 0 {
		msg.WriteString(": ")
	}
	if err != nil {
		fmt.Fprintf(&msg, "error %q - ", err.Error())
	}
	fmt.Fprintf(&msg, template, values...)
	out := msg.String()
	if len(out) > MaxLogMessageLen {
		out = out[:MaxLogMessageLen] + "...(truncated)..."
	}
	return out
}

func (l *Logger) emit(retainAsWarning bool, functionName, actor string, err error, template string, values ...interface{}) {
	l.init()
	msg := l.Format(functionName, actor, err, template, values...)
	stamped := time.Now().Format("2006-01-02 15:04:05 ") + msg
	if retainAsWarning {
		if warningDedup.SeenRecently(msg) {
			return
		}
		LatestWarnings.Push(stamped)
	}
	LatestLogs.Push(stamped)
	if !l.rateLimit.Add(time.Now()) {
		return
	}
	log.Print(msg)
}

// Info logs at informational level. If err is non-nil the message is also
// retained among recent warnings, and is dropped entirely if an identical
// warning was seen recently.
func (l *Logger) Info(functionName, actor string, err error, template string, values ...interface{}) {
	l.emit(err != nil, functionName, actor, err, template, values...)
}

// Warning logs at warning level and retains the message among recent
// warnings. A message identical to a recently seen warning is dropped
// entirely: neither retained nor printed.
func (l *Logger) Warning(functionName, actor string, err error, template string, values ...interface{}) {
	l.emit(true, functionName, actor, err, template, values...)
}

// MaybeMinorError logs err as a warning if it is non-nil, otherwise does
// nothing. Convenient for ignorable cleanup-path errors such as a second
// Close() call.
func (l *Logger) MaybeMinorError(err error) {
	if err == nil {
		return
	}
	l.Warning("MaybeMinorError", "", err, "ignored minor error")
}
