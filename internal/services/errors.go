// Package services defines the business logic of the relay: link management,
// message intake, and the outbound dispatcher with its protocol paths,
// attachment translation and error classification.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

// Link errors.
var (
	// ErrLinkNotFound indicates that the user has no link on the platform.
	ErrLinkNotFound = errors.New("link not found")

	// ErrInvalidSyncFlags is returned when sync flags carry undefined bits.
	ErrInvalidSyncFlags = errors.New("sync flags contain unknown bits")

	// ErrEmptyRemoteID is returned when a link has no remote account id.
	ErrEmptyRemoteID = errors.New("remote id is empty")

	// ErrEmptyPlatform is returned when no platform name was given.
	ErrEmptyPlatform = errors.New("platform is empty")

	// ErrUnknownPlatform is returned for a platform the relay does not serve.
	ErrUnknownPlatform = errors.New("unknown platform")
)

// Message errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyContent is returned when a message has no text.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when a message exceeds the configured length.
	ErrTooLong = errors.New("content too long")

	// ErrInvalidAttachment is returned for attachments without a URL.
	ErrInvalidAttachment = errors.New("attachment url is empty")

	// ErrTooManyAttachments is returned when a message carries more
	// attachments than allowed.
	ErrTooManyAttachments = errors.New("too many attachments")
)

// Job errors.
var (
	// ErrInvalidStatus is returned when filtering jobs by an unknown status.
	ErrInvalidStatus = errors.New("invalid job status")
)
