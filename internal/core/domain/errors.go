package domain

import "errors"

var (
	ErrClosed            = errors.New("client closed")
	ErrSessionClosed     = errors.New("session closed")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrHealthTimeout     = errors.New("session did not become healthy before deadline")
	ErrUnknownChannel    = errors.New("unknown logical channel")
	ErrChannelNotBound   = errors.New("logical channel not bound")
	ErrUnmappableKey     = errors.New("unmappable key")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrTransportClosed   = errors.New("signaling transport closed")
)
