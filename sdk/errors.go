package sdk

import "errors"

// Local precondition failures. They are returned before any network call.
var (
	// ErrNotConfigured is returned by operations called before Configure.
	ErrNotConfigured = errors.New("feddy SDK is not configured")

	// ErrMissingUserID is returned by votes and comments when no user id can be resolved.
	ErrMissingUserID = errors.New("user id is required")

	// ErrInvalidSubmission is returned when a submission lacks a title or description.
	ErrInvalidSubmission = errors.New("invalid feedback submission")

	// ErrMissingFeedbackID is returned when a feedback id is empty.
	ErrMissingFeedbackID = errors.New("feedback id is required")

	// ErrEmptyComment is returned for a blank comment.
	ErrEmptyComment = errors.New("comment cannot be empty")

	// ErrCommentTooLong is returned for a comment over MaxCommentLength characters.
	ErrCommentTooLong = errors.New("comment is too long")
)
