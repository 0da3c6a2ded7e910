package session

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fmueller/meetscribe/internal/textfile"
)

const (
	transcriptFile = "transcricao.txt"
	titleFile      = "titulo.txt"
	audioBase      = "audio"
	chunkBase      = "audio_temp"
)

// Session is one recording directory.
type Session struct {
	Key string
	Dir string
}

// AudioPath is the cumulative recording, with the exporter's extension.
func (s *Session) AudioPath(ext string) string {
	return filepath.Join(s.Dir, audioBase+ext)
}

// ChunkPath is the last flushed chunk, overwritten every cycle.
func (s *Session) ChunkPath(ext string) string {
	return filepath.Join(s.Dir, chunkBase+ext)
}

func (s *Session) TranscriptPath() string {
	return filepath.Join(s.Dir, transcriptFile)
}

func (s *Session) TitlePath() string {
	return filepath.Join(s.Dir, titleFile)
}

// Transcript returns the stored transcript, "" when nothing was saved yet.
func (s *Session) Transcript() (string, error) {
	return textfile.Read(s.TranscriptPath())
}

// SaveTranscript replaces the stored transcript.
func (s *Session) SaveTranscript(text string) error {
	return textfile.Save(s.TranscriptPath(), text)
}

// HasTitle reports whether the title artifact exists.
func (s *Session) HasTitle() (bool, error) {
	return textfile.Exists(s.TitlePath())
}

// Title returns the stored title, "" when the session is untitled.
func (s *Session) Title() (string, error) {
	return textfile.Read(s.TitlePath())
}

// SetTitle stores a title for an untitled session. Titles are single-line.
func (s *Session) SetTitle(title string) error {
	title = normalizeTitle(title)
	if title == "" {
		return ErrEmptyTitle
	}

	titled, err := s.HasTitle()
	if err != nil {
		return err
	}
	if titled {
		return fmt.Errorf("%w: %s", ErrTitleExists, s.Key)
	}

	return textfile.Save(s.TitlePath(), title)
}

func normalizeTitle(title string) string {
	title = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(title)
	return strings.TrimSpace(title)
}
