package session

import (
	"github.com/yahoo/smtp-client-nio-sub000/future"
	"github.com/yahoo/smtp-client-nio-sub000/request"
	"github.com/yahoo/smtp-client-nio-sub000/response"
)

// entryState is the command entry's forward-only lifecycle, per spec.md §3.
type entryState int

const (
	stateInPreparation entryState = iota
	stateSent
	stateResponsesDone
)

// commandEntry is the in-flight queue's single occupant: a submitted
// request together with every reply line collected so far and the
// completion the caller is waiting on.
type commandEntry struct {
	request    request.Request
	collected  response.Sequence
	completion *future.Completion[response.Sequence]
	state      entryState
}
