package chat

import "errors"

var (
	// ErrProtocol ends a connection that did not open with a text username.
	ErrProtocol = errors.New("chat: protocol violation")

	// ErrTargetAbsent means a private message named a user who is not connected.
	ErrTargetAbsent = errors.New("chat: target user not connected")

	// ErrPersistence is wrapped around store failures. They are logged, never
	// sent to clients.
	ErrPersistence = errors.New("chat: failed to persist message")

	// ErrDelivery means one or more recipients' outboxes were already closed.
	ErrDelivery = errors.New("chat: recipient gone")
)
