package request

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

func mustParse(t *testing.T, line string) response.Response {
	t.Helper()
	r, err := response.Parse(line)
	require.NoError(t, err)
	return r
}

func TestEHLO_EncodeInitial(t *testing.T) {
	payload, debug, err := EHLO{Name: "client.example"}.EncodeInitial()
	require.NoError(t, err)
	assert.Equal(t, "EHLO client.example\r\n", string(payload.Bytes))
	assert.Equal(t, "EHLO client.example", debug)
}

func TestMAIL_WithAndWithoutParams(t *testing.T) {
	payload, _, err := MAIL{Sender: "a@b.com"}.EncodeInitial()
	require.NoError(t, err)
	assert.Equal(t, "MAIL FROM:<a@b.com>\r\n", string(payload.Bytes))

	payload, _, err = MAIL{Sender: "a@b.com", Params: "SIZE=100"}.EncodeInitial()
	require.NoError(t, err)
	assert.Equal(t, "MAIL FROM:<a@b.com> SIZE=100\r\n", string(payload.Bytes))
}

func TestRequest_RejectsCRLFInjection(t *testing.T) {
	_, _, err := EHLO{Name: "evil\r\nRCPT TO:<x>"}.EncodeInitial()
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.InvalidInput, smtpErr.Kind)
}

func TestAuthLogin_FullSequence(t *testing.T) {
	auth := &AuthLogin{Username: "u", Password: "p"}
	payload, debug, err := auth.EncodeInitial()
	require.NoError(t, err)
	assert.Equal(t, "AUTH LOGIN\r\n", string(payload.Bytes))
	assert.Equal(t, "AUTH LOGIN", debug)
	assert.True(t, auth.IsSensitive())

	payload, debug, err = auth.EncodeAfterContinuation(mustParse(t, "334 VXNlcm5hbWU6"))
	require.NoError(t, err)
	assert.Equal(t, "dQ==\r\n", string(payload.Bytes)) // base64("u")
	assert.Equal(t, "<username>", debug)

	payload, debug, err = auth.EncodeAfterContinuation(mustParse(t, "334 UGFzc3dvcmQ6"))
	require.NoError(t, err)
	assert.Equal(t, "cA==\r\n", string(payload.Bytes)) // base64("p")
	assert.Equal(t, "<password>", debug)

	_, _, err = auth.EncodeAfterContinuation(mustParse(t, "334 more?"))
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.MoreInputThanExpected, smtpErr.Kind)
}

func TestAuthXOAUTH2_SendsDummyOnChallenge(t *testing.T) {
	auth := &AuthXOAUTH2{Username: "u", Token: "tok"}
	_, debug, err := auth.EncodeInitial()
	require.NoError(t, err)
	assert.Contains(t, debug, "<secret>")

	payload, debug, err := auth.EncodeAfterContinuation(mustParse(t, "334 ZXJyb3I="))
	require.NoError(t, err)
	assert.Equal(t, "\r\n", string(payload.Bytes))
	assert.Equal(t, "<dummy>", debug)

	_, _, err = auth.EncodeAfterContinuation(mustParse(t, "334 again"))
	require.Error(t, err)
}

func TestDATA_DebugDataAndTerminator(t *testing.T) {
	d := &DATA{Source: strings.NewReader("hello\r\nworld\r\n")}
	_, debug, err := d.EncodeInitial()
	require.NoError(t, err)
	assert.Equal(t, "DATA", debug)

	payload, debug, err := d.EncodeAfterContinuation(mustParse(t, "354 Start mail input"))
	require.NoError(t, err)
	assert.Equal(t, "DATA stream", debug)
	out, err := io.ReadAll(payload.Stream)
	require.NoError(t, err)
	assert.Equal(t, "hello\r\nworld\r\n\r\n.\r\n", string(out))
}

func TestDATA_DotStuffing(t *testing.T) {
	body := ".leading dot\r\nnormal\r\n..already stuffed\r\n"
	d := &DATA{Source: strings.NewReader(body)}
	_, _, _ = d.EncodeInitial()
	payload, _, err := d.EncodeAfterContinuation(mustParse(t, "354 go"))
	require.NoError(t, err)
	out, err := io.ReadAll(payload.Stream)
	require.NoError(t, err)
	assert.Equal(t, "..leading dot\r\nnormal\r\n...already stuffed\r\n\r\n.\r\n", string(out))
}

func TestDATA_RejectsSecondContinuation(t *testing.T) {
	d := &DATA{Source: bytes.NewReader(nil)}
	_, _, _ = d.EncodeInitial()
	_, _, err := d.EncodeAfterContinuation(mustParse(t, "354 go"))
	require.NoError(t, err)
	_, _, err = d.EncodeAfterContinuation(mustParse(t, "354 again"))
	require.Error(t, err)
	var smtpErr *smtperr.Error
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, smtperr.MoreInputThanExpected, smtpErr.Kind)
}

func TestSimpleCommands_NoContinuation(t *testing.T) {
	for _, req := range []Request{RSET{}, NOOP{}, QUIT{}, VRFY{Address: "a@b"}, EXPN{Address: "a@b"}, HELP{}} {
		_, _, err := req.EncodeAfterContinuation(mustParse(t, "334 x"))
		require.Error(t, err)
		var smtpErr *smtperr.Error
		require.True(t, errors.As(err, &smtpErr))
		assert.Equal(t, smtperr.OperationNotSupportedForCommand, smtpErr.Kind)
		assert.False(t, req.IsSensitive())
	}
}
