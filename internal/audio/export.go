package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

// Exporter writes a segment to an audio file.
type Exporter interface {
	Name() string
	// Ext is the file extension including the dot.
	Ext() string
	Export(ctx context.Context, seg *Segment, path string) error
}

// NewExporter picks an exporter by name: "wav", "mp3", or "auto", which
// prefers mp3 when ffmpeg is on PATH.
func NewExporter(kind string, logger *zap.Logger) (Exporter, error) {
	return selectExporter(kind, ffmpegAvailable(), logger)
}

func selectExporter(kind string, haveFFmpeg bool, logger *zap.Logger) (Exporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "auto":
		if haveFFmpeg {
			return &MP3Exporter{Logger: logger}, nil
		}
		logger.Info("ffmpeg not found on PATH; saving recordings as wav")
		return WAVExporter{}, nil
	case "wav":
		return WAVExporter{}, nil
	case "mp3":
		if !haveFFmpeg {
			return nil, errors.New("mp3 export requires ffmpeg on PATH")
		}
		return &MP3Exporter{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown audio format %q (want auto|mp3|wav)", kind)
	}
}

func ffmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// WAVExporter writes RIFF/WAVE files.
type WAVExporter struct{}

func (WAVExporter) Name() string { return "wav" }
func (WAVExporter) Ext() string  { return ".wav" }

func (WAVExporter) Export(_ context.Context, seg *Segment, path string) error {
	f := seg.Format()
	if err := f.Validate(); err != nil {
		return err
	}

	return writeReplacing(path, func(tmp *os.File) error {
		enc := wav.NewEncoder(tmp, f.SampleRate, f.BitDepth(), f.Channels, 1)
		if err := enc.Write(intBuffer(seg)); err != nil {
			_ = enc.Close()
			return fmt.Errorf("encode wav: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finish wav: %w", err)
		}
		return nil
	})
}

func intBuffer(seg *Segment) *goaudio.IntBuffer {
	f := seg.Format()
	data := seg.Bytes()
	width := f.SampleWidth

	samples := make([]int, 0, len(data)/width)
	for i := 0; i+width <= len(data); i += width {
		s := data[i : i+width]
		switch width {
		case 1:
			samples = append(samples, int(s[0]))
		case 2:
			samples = append(samples, int(int16(uint16(s[0])|uint16(s[1])<<8)))
		case 3:
			v := int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF
			}
			samples = append(samples, int(v))
		default:
			samples = append(samples, int(int32(uint32(s[0])|uint32(s[1])<<8|uint32(s[2])<<16|uint32(s[3])<<24)))
		}
	}

	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: f.Channels,
			SampleRate:  f.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: f.BitDepth(),
	}
}

// MP3Exporter pipes raw PCM through ffmpeg.
type MP3Exporter struct {
	Executable string
	Logger     *zap.Logger
}

func (e *MP3Exporter) Name() string { return "mp3" }
func (e *MP3Exporter) Ext() string  { return ".mp3" }

func (e *MP3Exporter) Export(ctx context.Context, seg *Segment, path string) error {
	f := seg.Format()
	if err := f.Validate(); err != nil {
		return err
	}

	inputFormat, err := ffmpegSampleFormat(f.SampleWidth)
	if err != nil {
		return err
	}

	exe := e.Executable
	if exe == "" {
		exe = "ffmpeg"
	}

	return writeReplacing(path, func(tmp *os.File) error {
		// ffmpeg opens the output itself
		tmpPath := tmp.Name()
		if err := tmp.Close(); err != nil {
			return err
		}

		args := []string{
			"-hide_banner", "-loglevel", "error", "-y",
			"-f", inputFormat,
			"-ar", strconv.Itoa(f.SampleRate),
			"-ac", strconv.Itoa(f.Channels),
			"-i", "pipe:0",
			"-f", "mp3",
			tmpPath,
		}
		cmd := exec.CommandContext(ctx, exe, args...)
		cmd.Stdin = bytes.NewReader(seg.Bytes())
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("ffmpeg: %w (%s)", err, msg)
			}
			return fmt.Errorf("ffmpeg: %w", err)
		}
		if e.Logger != nil {
			e.Logger.Debug("exported mp3", zap.String("path", path), zap.Duration("duration", seg.Duration()))
		}
		return nil
	})
}

func ffmpegSampleFormat(width int) (string, error) {
	switch width {
	case 1:
		return "u8", nil
	case 2:
		return "s16le", nil
	case 3:
		return "s24le", nil
	case 4:
		return "s32le", nil
	default:
		return "", fmt.Errorf("%w: sample width %d", ErrUnsupportedFormat, width)
	}
}

// writeReplacing writes through a temp file next to path and renames it into
// place, so readers never see a half-written file.
func writeReplacing(path string, write func(tmp *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	// already closed by exporters that hand the path to another process
	_ = tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
