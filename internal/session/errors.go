// Package session stores recording sessions as one directory per capture,
// named by the capture start time.
package session

import "errors"

var (
	// ErrMalformedKey indicates a session directory name that does not split
	// into six numeric fields.
	ErrMalformedKey = errors.New("malformed session key")

	// ErrSessionExists indicates a session for the same second already exists.
	ErrSessionExists = errors.New("session already exists")

	// ErrNotFound indicates the session directory does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrTitleExists indicates the session already has a title.
	ErrTitleExists = errors.New("session already has a title")

	// ErrEmptyTitle indicates a blank title was submitted.
	ErrEmptyTitle = errors.New("title is empty")
)
