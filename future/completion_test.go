package future

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

func TestCompletion_SetValueThenWait(t *testing.T) {
	c := New[int]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.SetValue(42)
	}()
	v, err := c.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, c.Done())
}

func TestCompletion_SecondSetValueIsNoOp(t *testing.T) {
	c := New[string]()
	c.SetValue("first")
	c.SetValue("second")
	c.SetError(errors.New("ignored"))
	v, err := c.Wait()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestCompletion_SetError(t *testing.T) {
	c := New[int]()
	wantErr := smtperr.New(smtperr.ChannelTimeout, "timed out", nil)
	c.SetError(wantErr)
	_, err := c.Wait()
	assert.Equal(t, wantErr, err)
}

func TestCompletion_Cancel(t *testing.T) {
	c := New[int]()
	assert.True(t, c.Cancel())
	assert.False(t, c.Cancel())
	_, err := c.Wait()
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.Cancelled, smtpErr.Kind)
	assert.True(t, c.Cancelled())
}

func TestCompletion_WaitForTimeout(t *testing.T) {
	c := New[int]()
	_, err := c.WaitFor(10 * time.Millisecond)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.Timeout, smtpErr.Kind)
}

func TestCompletion_WaitForResolvesBeforeDeadline(t *testing.T) {
	c := New[int]()
	c.SetValue(7)
	v, err := c.WaitFor(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestResolved(t *testing.T) {
	c := Resolved(true)
	assert.True(t, c.Done())
	v, err := c.Wait()
	require.NoError(t, err)
	assert.True(t, v)
}
