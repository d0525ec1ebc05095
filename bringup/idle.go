package bringup

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// lineReader wraps the not-yet-live socket with the same bufio+textproto
// idiom session.newBufReader uses for the live command pipeline, so the
// bring-up handlers share its idle/inactive/exception classification.
type lineReader struct {
	conn        net.Conn
	reader      *textproto.Reader
	readTimeout time.Duration
}

func newLineReader(conn net.Conn, readTimeout time.Duration) *lineReader {
	return &lineReader{
		conn:        conn,
		reader:      textproto.NewReader(bufio.NewReaderSize(conn, readBufferSize)),
		readTimeout: readTimeout,
	}
}

const readBufferSize = 4096

// readResponse reads one reply line and parses it, translating read-idle
// into CONNECTION_FAILED_EXCEED_IDLE_MAX and a closed/reset socket into
// CONNECTION_INACTIVE, per spec.md §4.4's "every handler must observe
// reader-idle and channel-inactive" requirement.
func (l *lineReader) readResponse() (response.Response, *smtperr.Error) {
	if l.readTimeout > 0 {
		if err := l.conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
			return response.Response{}, smtperr.New(smtperr.ConnectionFailedException, "failed to set read deadline", err)
		}
	}
	line, err := l.reader.ReadLine()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return response.Response{}, smtperr.New(smtperr.ConnectionFailedExceedIdleMax, "no response from server within the read timeout", err)
		}
		if errors.Is(err, io.EOF) {
			return response.Response{}, smtperr.New(smtperr.ConnectionInactive, "connection closed by peer during bring-up", err)
		}
		return response.Response{}, smtperr.New(smtperr.ConnectionFailedException, "read from server failed during bring-up", err)
	}
	resp, parseErr := response.Parse(line)
	if parseErr != nil {
		var smtpErr *smtperr.Error
		if errors.As(parseErr, &smtpErr) {
			return response.Response{}, smtpErr
		}
		return response.Response{}, smtperr.New(smtperr.ConnectionFailedException, "malformed reply line during bring-up", parseErr)
	}
	return resp, nil
}

// readFullReply reads an entire reply, including any hyphen-continued
// intermediate lines, stopping once the terminal (non-hyphen) line arrives.
func (l *lineReader) readFullReply() (response.Sequence, *smtperr.Error) {
	var seq response.Sequence
	for {
		resp, err := l.readResponse()
		if err != nil {
			return nil, err
		}
		seq = append(seq, resp)
		if resp.IsLastLine() {
			return seq, nil
		}
	}
}

func (l *lineReader) write(line string) *smtperr.Error {
	_, err := l.conn.Write([]byte(line + "\r\n"))
	if err != nil {
		return smtperr.New(smtperr.WriteToServerFailed, "write to server failed during bring-up", err)
	}
	return nil
}
