// Package services defines the business logic for users, conversations and
// messages. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer; the real-time hub only logs them.
package services

import "errors"

// User errors.
var (
	// ErrHandleTaken is returned when a username is already in use.
	ErrHandleTaken = errors.New("username already taken")

	// ErrUserNotFound indicates that the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrPasswordTooShort is returned by Register for passwords below the
	// configured minimum length.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrHandleExhausted is returned when no free generated handle was found
	// within the configured number of attempts.
	ErrHandleExhausted = errors.New("could not allocate a username")
)

// Conversation errors.
var (
	// ErrConversationNotFound indicates that the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")

	// ErrNotParticipant is returned when a user acts on a conversation they
	// are not part of.
	ErrNotParticipant = errors.New("user is not a participant of this conversation")
)

// Message errors.
var (
	// ErrEmptyMessage is returned when the text is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when the text exceeds the configured
	// maximum rune length.
	ErrMessageTooLong = errors.New("message too long")
)
