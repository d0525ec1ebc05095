/*
Package client implements the Client factory of spec.md §4.6: a bounded
pool of bring-up workers standing in for the "small, fixed-size pool of I/O
worker threads" of spec.md §5, the atomic session-id counter, and graceful
shutdown.

Grounded on daemon/smtpd/smtpd.go's Daemon in the teacher module:
StartAndBlock's accept loop spawning one goroutine per connection is this
package's CreateSession spawning one bring-up goroutine per session
request, and Stop's listener-close-to-unblock-the-loop idiom is mirrored
here as a shutdown flag plus a WaitGroup drain (a client has no listener of
its own to close, since every connection it makes is outbound).
*/
package client

import (
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yahoo/smtp-client-nio-sub000/bringup"
	"github.com/yahoo/smtp-client-nio-sub000/future"
	"github.com/yahoo/smtp-client-nio-sub000/lalog"
	"github.com/yahoo/smtp-client-nio-sub000/metrics"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// Client is the top-level entry point: one Client owns a bounded pool of
// bring-up workers and the process-unique session-id counter shared by
// every session it creates.
type Client struct {
	logger    *lalog.Logger
	metrics   *metrics.Registry
	tlsConfig *tls.Config

	sem chan struct{}
	wg  sync.WaitGroup

	sessionCounter int64 // atomic; the id that will be handed out to the NEXT caller
	shuttingDown   atomic.Bool
}

// New builds a Client backed by numThreads concurrent bring-up workers —
// the Go translation of spec.md §4.6's "builds the event-loop group".
// numThreads below 1 is treated as 1.
func New(numThreads int) *Client {
	if numThreads < 1 {
		numThreads = 1
	}
	return &Client{
		logger:         &lalog.Logger{ComponentName: "smtpclient"},
		metrics:        metrics.NewRegistry(),
		tlsConfig:      &tls.Config{},
		sem:            make(chan struct{}, numThreads),
		sessionCounter: 1,
	}
}

// Metrics returns the registry every session of this client reports into.
func (c *Client) Metrics() *metrics.Registry { return c.metrics }

// nextSessionID atomically claims the next session id and advances the
// counter, wrapping to 1 on overflow, per spec.md §4.6. i64::MAX is itself
// a legal id (spec.md §8): the assignment that claims it still returns it,
// and only the assignment after that wraps back to 1.
func (c *Client) nextSessionID() int64 {
	for {
		cur := atomic.LoadInt64(&c.sessionCounter)
		next := cur + 1
		if next <= 0 {
			next = 1
		}
		if atomic.CompareAndSwapInt64(&c.sessionCounter, cur, next) {
			return cur
		}
	}
}

// CreateSession initiates a connection to data.Host:data.Port and brings
// it up according to the mode derived from (data.SSL, config.EnableStartTLS).
func (c *Client) CreateSession(data SessionData, config SessionConfig, debugMode DebugMode) *future.Completion[bringup.Result] {
	completion := future.New[bringup.Result]()
	if err := data.validate(); err != nil {
		completion.SetError(err)
		return completion
	}
	if c.shuttingDown.Load() {
		completion.SetError(smtperr.New(smtperr.OperationProhibitedOnClosedChannel, "client is shutting down", nil))
		return completion
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.sem <- struct{}{}
		defer func() { <-c.sem }()

		opts := c.buildOptions(data, config, debugMode, bringup.DeriveMode(data.SSL, config.EnableStartTLS))
		opts.AssignID = c.nextSessionID
		opts.Reconnect = func(sessionID int64, completion *future.Completion[bringup.Result]) {
			c.createSTARTTLSSession(data, config, debugMode, sessionID, completion)
		}
		bringup.RunInto(opts, completion)
	}()
	return completion
}

// createSTARTTLSSession is the internal-only entry point spec.md §4.6
// describes: identical to CreateSession except it forces a plain connect
// and PLAIN_STARTTLS bring-up, reuses the caller-provided completion, and
// carries over the session id already assigned to the abandoned TLS
// attempt. It runs on the same goroutine as the TLS probe that triggered
// it, so it does not take another worker slot.
func (c *Client) createSTARTTLSSession(data SessionData, config SessionConfig, debugMode DebugMode, sessionID int64, completion *future.Completion[bringup.Result]) {
	opts := c.buildOptions(data, config, debugMode, bringup.PlainStartTLS)
	opts.SessionID = sessionID
	bringup.RunInto(opts, completion)
}

func (c *Client) buildOptions(data SessionData, config SessionConfig, debugMode DebugMode, mode bringup.Mode) bringup.Options {
	cfg := config.withDefaults()
	tlsConfig := data.TLSContext
	if tlsConfig == nil {
		tlsConfig = c.tlsConfig
	}
	return bringup.Options{
		Host:           data.Host,
		Port:           data.Port,
		LocalAddress:   data.LocalAddress,
		SNINames:       data.SNINames,
		TLSConfig:      tlsConfig,
		ConnectTimeout: time.Duration(cfg.ConnectionTimeoutMS) * time.Millisecond,
		ReadTimeout:    time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		SessionContext: data.SessionContext,
		Logger:         c.logger,
		Metrics:        c.metrics,
		DebugMode:      debugMode == DebugOn,
		Mode:           mode,
	}
}

// Shutdown rejects any further CreateSession call and blocks until every
// in-flight bring-up has resolved its completion, then returns.
func (c *Client) Shutdown() {
	c.shuttingDown.Store(true)
	c.wg.Wait()
}
