package chat

import "errors"

var (
	// ErrUnauthenticated means the handshake carried no credential or an invalid one.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotAMember means the authenticated user does not belong to the chat.
	ErrNotAMember = errors.New("not a member of this chat")

	// ErrMalformedPayload means an inbound frame could not be decoded.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrValidation means an inbound event decoded but failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownEvent means an inbound frame carried an unrecognised type tag.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrPersistence wraps storage failures surfaced by the core.
	ErrPersistence = errors.New("persistence failure")

	// ErrAlreadyRegistered is returned when a peer is registered twice.
	ErrAlreadyRegistered = errors.New("peer already registered")

	// ErrRegistryClosed is returned by Register after the registry was drained.
	ErrRegistryClosed = errors.New("registry closed")

	// ErrHubClosed is returned by Serve once shutdown has begun.
	ErrHubClosed = errors.New("hub is shutting down")

	// ErrPeerClosed is returned by Deliver on a closed session.
	ErrPeerClosed = errors.New("peer closed")

	// ErrSendQueueFull is returned by Deliver when the outbound queue is saturated.
	ErrSendQueueFull = errors.New("send queue full")
)

// ProtocolError is an in-session failure reported to the sender as an Error event.
// Kind is one of ErrMalformedPayload, ErrValidation, ErrUnknownEvent or ErrPersistence.
type ProtocolError struct {
	Kind   error
	Reason string
}

func (e *ProtocolError) Error() string {
	return e.Kind.Error() + ": " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Kind
}

func protocolError(kind error, reason string) *ProtocolError {
	return &ProtocolError{Kind: kind, Reason: reason}
}
