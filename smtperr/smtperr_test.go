package smtperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Format(t *testing.T) {
	err := New(ChannelTimeout, "read timed out", nil).WithSession(42, "user-123")
	assert.Equal(t, "failureType=CHANNEL_TIMEOUT,sId=42,uId=user-123,message=read timed out", err.Error())
}

func TestError_FormatOmitsUnknownFields(t *testing.T) {
	err := New(NotSSLRecord, "", nil)
	assert.Equal(t, "failureType=NOT_SSL_RECORD", err.Error())
}

func TestError_IsMatchesByKind(t *testing.T) {
	a := New(CommandNotAllowed, "first", nil)
	b := New(CommandNotAllowed, "second", nil).WithSession(1, nil)
	assert.True(t, errors.Is(a, b))

	c := New(ChannelTimeout, "", nil)
	assert.False(t, errors.Is(a, c))
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("EOF")
	err := New(ChannelException, "write failed", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}
