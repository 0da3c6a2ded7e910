// Package audio models captured PCM audio: frames, growable segments, level
// metrics and exporters that write segments to disk.
package audio

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrFormatMismatch    = errors.New("audio format mismatch")
	ErrPartialSample     = errors.New("frame data is not a whole number of samples")
	ErrInvalidWAV        = errors.New("invalid wav file")
)

// Format describes interleaved little-endian integer PCM. SampleWidth is in
// bytes; width 1 is unsigned, wider samples are signed.
type Format struct {
	SampleRate  int `json:"sampleRate"`
	Channels    int `json:"channels"`
	SampleWidth int `json:"sampleWidth"`
}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, f.Channels)
	}
	switch f.SampleWidth {
	case 1, 2, 3, 4:
		return nil
	default:
		return fmt.Errorf("%w: sample width %d", ErrUnsupportedFormat, f.SampleWidth)
	}
}

// BlockAlign is the size of one sample across all channels.
func (f Format) BlockAlign() int {
	return f.Channels * f.SampleWidth
}

func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// BitDepth is the sample width in bits.
func (f Format) BitDepth() int {
	return f.SampleWidth * 8
}

// DurationOf returns the play time of n bytes in this format.
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Frame is one batch of samples received from a capture source.
type Frame struct {
	Format Format
	Data   []byte
}

func (fr Frame) Validate() error {
	if err := fr.Format.Validate(); err != nil {
		return err
	}
	if len(fr.Data)%fr.Format.BlockAlign() != 0 {
		return fmt.Errorf("%w: %d bytes with block align %d", ErrPartialSample, len(fr.Data), fr.Format.BlockAlign())
	}
	return nil
}

func (fr Frame) Duration() time.Duration {
	return fr.Format.DurationOf(len(fr.Data))
}
