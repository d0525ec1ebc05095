package session

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/smtp-client-nio-sub000/lalog"
	"github.com/yahoo/smtp-client-nio-sub000/request"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// fakeServer is a minimal hand-driven SMTP peer over a net.Pipe, used to
// script exact reply sequences without a real socket.
type fakeServer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{conn: conn, reader: bufio.NewReader(conn)}
}

func (f *fakeServer) expect(t *testing.T) string {
	t.Helper()
	line, err := f.reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func (f *fakeServer) reply(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		_, err := f.conn.Write([]byte(line + "\r\n"))
		require.NoError(t, err)
	}
}

func newTestSession(t *testing.T) (*Session, *fakeServer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := newFakeServer(serverConn)
	sess := New(Config{
		ID:          1,
		Conn:        clientConn,
		ReadTimeout: time.Second,
		Logger:      &lalog.Logger{ComponentName: "test"},
	})
	t.Cleanup(func() {
		_ = serverConn.Close()
	})
	return sess, srv
}

func TestSession_SimpleNOOP(t *testing.T) {
	sess, srv := newTestSession(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, "NOOP\r\n", srv.expect(t))
		srv.reply(t, "250 OK")
	}()

	completion := sess.Execute(request.NOOP{})
	seq, err := completion.WaitFor(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, seq, 1)
	assert.Equal(t, "250 OK", seq.Last().String())
	<-done
}

func TestSession_EHLOMultiLine(t *testing.T) {
	sess, srv := newTestSession(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, "EHLO client.example\r\n", srv.expect(t))
		srv.reply(t, "250-smtp.test Hello", "250-SIZE 10485760", "250 STARTTLS")
	}()

	completion := sess.Execute(request.EHLO{Name: "client.example"})
	seq, err := completion.WaitFor(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.False(t, seq[0].IsLastLine())
	assert.False(t, seq[1].IsLastLine())
	assert.True(t, seq[2].IsLastLine())
	<-done
}

func TestSession_AuthLoginFullSequence(t *testing.T) {
	sess, srv := newTestSession(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Equal(t, "AUTH LOGIN\r\n", srv.expect(t))
		srv.reply(t, "334 VXNlcm5hbWU6")
		assert.Equal(t, "dQ==\r\n", srv.expect(t))
		srv.reply(t, "334 UGFzc3dvcmQ6")
		assert.Equal(t, "cA==\r\n", srv.expect(t))
		srv.reply(t, "235 OK")
	}()

	completion := sess.Execute(&request.AuthLogin{Username: "u", Password: "p"})
	seq, err := completion.WaitFor(2 * time.Second)
	require.NoError(t, err)
	require.Len(t, seq, 3)
	assert.Equal(t, "235 OK", seq.Last().String())
	<-done
}

func TestSession_RejectsOverlappingExecute(t *testing.T) {
	sess, srv := newTestSession(t)
	go func() {
		_ = srv.expect(t)
		time.Sleep(50 * time.Millisecond)
		srv.reply(t, "250 OK")
	}()

	first := sess.Execute(request.NOOP{})
	second := sess.Execute(request.NOOP{})
	_, err := second.WaitFor(time.Second)
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.CommandNotAllowed, smtpErr.Kind)

	_, err = first.WaitFor(time.Second)
	require.NoError(t, err)
}

func TestSession_CloseResolvesTrueAndDrainsInFlight(t *testing.T) {
	sess, srv := newTestSession(t)
	go func() {
		_ = srv.expect(t)
		// Never reply; the close below should unblock the pending read.
	}()

	pending := sess.Execute(request.NOOP{})
	closeCompletion := sess.Close()
	ok, err := closeCompletion.WaitFor(time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = pending.WaitFor(time.Second)
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.ChannelDisconnected, smtpErr.Kind)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	sess, _ := newTestSession(t)
	first := sess.Close()
	v, err := first.WaitFor(time.Second)
	require.NoError(t, err)
	assert.True(t, v)

	second := sess.Close()
	v, err = second.WaitFor(time.Second)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestSession_ExecuteOnClosedChannelFailsSynchronously(t *testing.T) {
	sess, _ := newTestSession(t)
	_, err := sess.Close().WaitFor(time.Second)
	require.NoError(t, err)

	completion := sess.Execute(request.NOOP{})
	assert.True(t, completion.Done())
	_, err = completion.Wait()
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.OperationProhibitedOnClosedChannel, smtpErr.Kind)
}

func TestSession_ReadIdleDuringLiveCommand(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	sess := New(Config{
		ID:          1,
		Conn:        clientConn,
		ReadTimeout: 50 * time.Millisecond,
		Logger:      &lalog.Logger{ComponentName: "test"},
	})
	srv := newFakeServer(serverConn)
	go func() {
		_ = srv.expect(t) // QUIT, then say nothing
	}()

	completion := sess.Execute(request.QUIT{})
	_, err := completion.WaitFor(2 * time.Second)
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.ChannelTimeout, smtpErr.Kind)
}
