// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable: clients branch on them, while the
// message stays human-readable. Every error response carries one of these
// codes next to the HTTP status, for example:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_participant",
//	  "message": "user is not a participant of this conversation"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeSelfConversation = "self_conversation"
	ErrCodeNotParticipant   = "not_participant"
	ErrCodeMessageTooLong   = "message_too_long"
	ErrCodeEmptyMessage     = "empty_message"
	ErrCodeWeakPassword     = "weak_password"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
