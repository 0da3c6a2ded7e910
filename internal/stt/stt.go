// Package stt calls the speech-to-text API for recorded audio files.
package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	DefaultModel    = openai.Whisper1
	DefaultLanguage = "pt"
)

// ParseFormat validates a response format name.
func ParseFormat(name string) (openai.AudioResponseFormat, error) {
	switch f := openai.AudioResponseFormat(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return openai.AudioResponseFormatText, nil
	case openai.AudioResponseFormatText,
		openai.AudioResponseFormatJSON,
		openai.AudioResponseFormatVerboseJSON,
		openai.AudioResponseFormatSRT,
		openai.AudioResponseFormatVTT:
		return f, nil
	default:
		return "", fmt.Errorf("unknown response format %q (want text|json|verbose_json|srt|vtt)", name)
	}
}

type Request struct {
	AudioPath string
	// Language is an ISO-639-1 code; empty lets the service detect it.
	Language string
	Format   openai.AudioResponseFormat
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the service response. Language, Duration and Segments are only
// filled for verbose_json.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

type Options struct {
	Model    string
	Language string
	Format   openai.AudioResponseFormat
	Logger   *zap.Logger
}

type Client struct {
	api  *openai.Client
	opts Options
}

func New(api *openai.Client, opts Options) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Format == "" {
		opts.Format = openai.AudioResponseFormatText
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{api: api, opts: opts}
}

// Transcribe sends one audio file to the service. There is no retry.
func (c *Client) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if _, err := os.Stat(req.AudioPath); err != nil {
		return Result{}, fmt.Errorf("audio file not found: %w", err)
	}

	format := req.Format
	if format == "" {
		format = c.opts.Format
	}

	started := time.Now()
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.opts.Model,
		FilePath: req.AudioPath,
		Language: req.Language,
		Format:   format,
	})
	if err != nil {
		return Result{}, fmt.Errorf("transcribe %s: %w", filepath.Base(req.AudioPath), err)
	}

	c.opts.Logger.Debug("transcription finished",
		zap.String("audio", req.AudioPath),
		zap.String("format", string(format)),
		zap.Duration("elapsed", time.Since(started)),
	)

	result := Result{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return result, nil
}

// TranscribeFile transcribes with the client's default language and format
// and returns only the text.
func (c *Client) TranscribeFile(ctx context.Context, path string) (string, error) {
	res, err := c.Transcribe(ctx, Request{
		AudioPath: path,
		Language:  c.opts.Language,
		Format:    c.opts.Format,
	})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
