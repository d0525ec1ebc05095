package client

import (
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

func TestNextSessionID_MonotonicAndWrapsOnOverflow(t *testing.T) {
	c := New(1)
	assert.Equal(t, int64(1), c.nextSessionID())
	assert.Equal(t, int64(2), c.nextSessionID())

	atomic.StoreInt64(&c.sessionCounter, 9223372036854775807) // math.MaxInt64
	assert.Equal(t, int64(9223372036854775807), c.nextSessionID())
	assert.Equal(t, int64(1), c.nextSessionID())
}

func TestCreateSession_RejectsEmptyHost(t *testing.T) {
	c := New(1)
	completion := c.CreateSession(SessionData{Port: 25, SSL: false}, SessionConfig{}, DebugOff)
	_, err := completion.WaitFor(time.Second)
	require.Error(t, err)
	smtpErr, ok := err.(*smtperr.Error)
	require.True(t, ok)
	assert.Equal(t, smtperr.InvalidInput, smtpErr.Kind)
}

func TestCreateSession_RejectsInvalidPort(t *testing.T) {
	c := New(1)
	completion := c.CreateSession(SessionData{Host: "localhost", Port: 0}, SessionConfig{}, DebugOff)
	_, err := completion.WaitFor(time.Second)
	require.Error(t, err)
	smtpErr, ok := err.(*smtperr.Error)
	require.True(t, ok)
	assert.Equal(t, smtperr.InvalidInput, smtpErr.Kind)
}

func startFakeSMTPServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("220 smtp.test ESMTP ready\r\n"))
	}()
	return listener.Addr().String()
}

func TestCreateSession_NonSSLEndToEnd(t *testing.T) {
	addr := startFakeSMTPServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := New(2)
	completion := c.CreateSession(SessionData{Host: host, Port: port, SSL: false}, SessionConfig{}, DebugOff)
	result, err2 := completion.WaitFor(2 * time.Second)
	require.NoError(t, err2)
	require.NotNil(t, result.Session)
	assert.Equal(t, int64(1), result.Session.ID())
	_, _ = result.Session.Close().WaitFor(time.Second)
}

func TestShutdown_RejectsFurtherCreateSessionAndDrains(t *testing.T) {
	addr := startFakeSMTPServer(t)
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := New(1)
	completion := c.CreateSession(SessionData{Host: host, Port: port, SSL: false}, SessionConfig{}, DebugOff)
	result, err2 := completion.WaitFor(2 * time.Second)
	require.NoError(t, err2)
	_, _ = result.Session.Close().WaitFor(time.Second)

	c.Shutdown()

	rejected := c.CreateSession(SessionData{Host: host, Port: port, SSL: false}, SessionConfig{}, DebugOff)
	_, err3 := rejected.WaitFor(time.Second)
	require.Error(t, err3)
	smtpErr, ok := err3.(*smtperr.Error)
	require.True(t, ok)
	assert.Equal(t, smtperr.OperationProhibitedOnClosedChannel, smtpErr.Kind)
}

func TestSessionConfig_Defaults(t *testing.T) {
	cfg := SessionConfig{}.withDefaults()
	assert.Equal(t, defaultConnectionTimeoutMS, cfg.ConnectionTimeoutMS)
	assert.Equal(t, defaultReadTimeoutMS, cfg.ReadTimeoutMS)

	cfg = SessionConfig{ConnectionTimeoutMS: 1000, ReadTimeoutMS: 5000}.withDefaults()
	assert.Equal(t, 1000, cfg.ConnectionTimeoutMS)
	assert.Equal(t, 5000, cfg.ReadTimeoutMS)
}
