// Package capture turns a live browser audio stream into a growing recording
// and a transcript that is extended every few seconds.
package capture

import "github.com/fmueller/meetscribe/internal/audio"

// Event names on the capture websocket.
const (
	// browser -> server
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"

	// server -> browser
	EventSession    = "session"
	EventTranscript = "transcript"
	EventError      = "error"
	EventStopped    = "stopped"
)

// Websocket opcodes (RFC 6455).
const (
	textMessage   = 1
	binaryMessage = 2
)

// Event is one JSON message on the capture websocket, in either direction.
type Event struct {
	Event   string        `json:"event"`
	Format  *audio.Format `json:"format,omitempty"`
	Media   *Media        `json:"media,omitempty"`
	Session string        `json:"session,omitempty"`
	Label   string        `json:"label,omitempty"`
	Text    string        `json:"text,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Media carries base64 PCM. Format overrides the stream format when set.
type Media struct {
	Payload string        `json:"payload"`
	Format  *audio.Format `json:"format,omitempty"`
}
