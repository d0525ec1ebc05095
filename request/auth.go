package request

import (
	"encoding/base64"
	"fmt"

	"github.com/yahoo/smtp-client-nio-sub000/response"
	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

const sensitivePlaceholder = "<secret>"

// AuthPlain authenticates with RFC 4616 PLAIN in a single initial-response
// line; it never expects a continuation.
type AuthPlain struct {
	Username string
	Password string
}

func (r AuthPlain) Kind() Kind { return KindAuthPlain }

func (r AuthPlain) EncodeInitial() (Payload, string, error) {
	raw := fmt.Sprintf("\x00%s\x00%s", r.Username, r.Password)
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	return line("AUTH PLAIN %s", encoded), fmt.Sprintf("AUTH PLAIN %s", sensitivePlaceholder), nil
}

func (r AuthPlain) EncodeAfterContinuation(response.Response) (Payload, string, error) {
	return notSupported(r.Kind())
}

func (AuthPlain) IsSensitive() bool { return true }

// AuthLogin authenticates with the draft-murchison-sasl-login mechanism: a
// 334 challenge requests the base64 username, a second 334 requests the
// base64 password. *AuthLogin tracks which challenge it is answering since
// the same Request value is reused across both continuation calls.
type AuthLogin struct {
	Username string
	Password string

	step int
}

func (r *AuthLogin) Kind() Kind { return KindAuthLogin }

func (r *AuthLogin) EncodeInitial() (Payload, string, error) {
	r.step = 0
	return line("AUTH LOGIN"), "AUTH LOGIN", nil
}

func (r *AuthLogin) EncodeAfterContinuation(resp response.Response) (Payload, string, error) {
	if !resp.IsContinuation() {
		return Payload{}, "", smtperr.New(smtperr.CommandNotAllowed, "AUTH LOGIN received a non-continuation response before completion", nil)
	}
	switch r.step {
	case 0:
		r.step = 1
		encoded := base64.StdEncoding.EncodeToString([]byte(r.Username))
		return Payload{Bytes: []byte(encoded + "\r\n")}, "<username>", nil
	case 1:
		r.step = 2
		encoded := base64.StdEncoding.EncodeToString([]byte(r.Password))
		return Payload{Bytes: []byte(encoded + "\r\n")}, "<password>", nil
	default:
		return Payload{}, "", smtperr.New(smtperr.MoreInputThanExpected, "AUTH LOGIN received more challenges than the mechanism defines", nil)
	}
}

func (*AuthLogin) IsSensitive() bool { return true }

// AuthXOAUTH2 authenticates with RFC 7628 XOAUTH2: a single 334 triggers a
// bare CRLF "dummy" response that finalizes the negotiation and lets
// the server either accept or close with a base64-encoded failure detail.
type AuthXOAUTH2 struct {
	Username string
	Token    string

	answeredChallenge bool
}

func (r *AuthXOAUTH2) Kind() Kind { return KindAuthXOAUTH2 }

func (r *AuthXOAUTH2) EncodeInitial() (Payload, string, error) {
	r.answeredChallenge = false
	raw := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", r.Username, r.Token)
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	return line("AUTH XOAUTH2 %s", encoded), fmt.Sprintf("AUTH XOAUTH2 %s", sensitivePlaceholder), nil
}

func (r *AuthXOAUTH2) EncodeAfterContinuation(resp response.Response) (Payload, string, error) {
	if !resp.IsContinuation() {
		return Payload{}, "", smtperr.New(smtperr.CommandNotAllowed, "AUTH XOAUTH2 received a non-continuation response before completion", nil)
	}
	if r.answeredChallenge {
		return Payload{}, "", smtperr.New(smtperr.MoreInputThanExpected, "AUTH XOAUTH2 received more challenges than the mechanism defines", nil)
	}
	r.answeredChallenge = true
	return Payload{Bytes: []byte("\r\n")}, "<dummy>", nil
}

func (*AuthXOAUTH2) IsSensitive() bool { return true }
