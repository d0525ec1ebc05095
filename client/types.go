package client

import (
	"crypto/tls"

	"github.com/yahoo/smtp-client-nio-sub000/smtperr"
)

// DebugMode toggles per-session wire activity logging, per spec.md §6.
type DebugMode int

const (
	DebugOff DebugMode = iota
	DebugOn
)

// SessionData identifies what to connect to, per spec.md §6.
type SessionData struct {
	Host           string
	Port           int
	SSL            bool
	SNINames       []string
	LocalAddress   string // optional "host:port"
	SessionContext interface{}
	// TLSContext overrides the client's default TLS trust configuration
	// for this one session.
	TLSContext *tls.Config
}

func (d SessionData) validate() *smtperr.Error {
	if d.Host == "" {
		return smtperr.New(smtperr.InvalidInput, "host must not be empty", nil)
	}
	if d.Port <= 0 || d.Port > 65535 {
		return smtperr.New(smtperr.InvalidInput, "port must be between 1 and 65535", nil)
	}
	return nil
}

// SessionConfig recognizes the options of spec.md §6; zero values fall
// back to the documented defaults via withDefaults.
type SessionConfig struct {
	ConnectionTimeoutMS int
	ReadTimeoutMS       int
	EnableStartTLS      bool
}

const (
	defaultConnectionTimeoutMS = 500
	defaultReadTimeoutMS       = 10_000
)

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ConnectionTimeoutMS <= 0 {
		c.ConnectionTimeoutMS = defaultConnectionTimeoutMS
	}
	if c.ReadTimeoutMS <= 0 {
		c.ReadTimeoutMS = defaultReadTimeoutMS
	}
	return c
}
