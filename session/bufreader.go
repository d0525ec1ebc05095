package session

import (
	"bufio"
	"io"
)

const readBufferSize = 4096

// newBufReader wraps the connection for line-oriented reads, matching
// daemon/smtpd/smtp/connection.go's use of bufio.NewReader ahead of a
// net/textproto.Reader.
func newBufReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, readBufferSize)
}
