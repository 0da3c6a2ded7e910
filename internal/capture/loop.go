package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultFlushInterval = 5 * time.Second
	DefaultPollTimeout   = time.Second
	DefaultIdleDelay     = 100 * time.Millisecond
	DefaultSilenceDBFS   = -65.0
)

var errLoopStarted = errors.New("capture loop already started")

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateRecording
	StateFlushing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRecording:
		return "recording"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

type Options struct {
	Session     *session.Session
	Source      FrameSource
	Transcriber Transcriber
	Exporter    audio.Exporter

	// OnTranscript receives the whole transcript after every flush.
	OnTranscript func(text string)

	FlushInterval time.Duration
	PollTimeout   time.Duration
	IdleDelay     time.Duration

	// FlushOnStop transcribes the pending chunk when the source disconnects.
	FlushOnStop bool

	// SilenceGate skips the speech API for chunks quieter than SilenceDBFS.
	SilenceGate bool
	SilenceDBFS float64

	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// Loop accumulates frames into the session recording and transcribes the
// pending chunk once FlushInterval has elapsed since the last flush.
type Loop struct {
	opts  Options
	state atomic.Int32

	full  audio.Segment
	chunk audio.Segment

	transcript string
	lastFlush  time.Time
	flushes    int
}

func NewLoop(opts Options) (*Loop, error) {
	switch {
	case opts.Session == nil:
		return nil, errors.New("capture loop requires a session")
	case opts.Source == nil:
		return nil, errors.New("capture loop requires a frame source")
	case opts.Transcriber == nil:
		return nil, errors.New("capture loop requires a transcriber")
	case opts.Exporter == nil:
		return nil, errors.New("capture loop requires an exporter")
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = DefaultIdleDelay
	}
	if opts.SilenceDBFS == 0 {
		opts.SilenceDBFS = DefaultSilenceDBFS
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.OnTranscript == nil {
		opts.OnTranscript = func(string) {}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Loop{opts: opts}, nil
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Transcript is the text accumulated so far. Read it from OnTranscript or
// after Run returns.
func (l *Loop) Transcript() string {
	return l.transcript
}

// Pending is the duration of audio waiting for the next flush.
func (l *Loop) Pending() time.Duration {
	return l.chunk.Duration()
}

func (l *Loop) Flushes() int {
	return l.flushes
}

// Run drives the capture until the source disconnects or ctx ends. A clean
// disconnect returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return errLoopStarted
	}
	defer l.setState(StateStopped)

	logger := l.opts.Logger.With(zap.String("session", l.opts.Session.Key))

	existing, err := l.opts.Session.Transcript()
	if err != nil {
		return err
	}
	l.transcript = existing
	l.lastFlush = l.opts.Now()

	audioPath := l.opts.Session.AudioPath(l.opts.Exporter.Ext())

	for {
		frames, err := l.opts.Source.Frames(ctx, l.opts.PollTimeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoFrames):
			if err := l.opts.Sleep(ctx, l.opts.IdleDelay); err != nil {
				return err
			}
			continue
		case errors.Is(err, ErrDisconnected):
			logger.Info("audio source disconnected",
				zap.Duration("recorded", l.full.Duration()),
				zap.Int("flushes", l.flushes),
			)
			return l.stop(ctx)
		default:
			return fmt.Errorf("read frames: %w", err)
		}

		if len(frames) == 0 {
			continue
		}
		if l.State() == StateConnecting {
			l.setState(StateRecording)
			logger.Info("recording started", zap.Int("sample_rate", frames[0].Format.SampleRate))
		}

		if err := l.full.Append(frames...); err != nil {
			return fmt.Errorf("append to recording: %w", err)
		}
		if err := l.chunk.Append(frames...); err != nil {
			return fmt.Errorf("append to chunk: %w", err)
		}

		if err := l.opts.Exporter.Export(ctx, &l.full, audioPath); err != nil {
			return fmt.Errorf("export recording: %w", err)
		}

		now := l.opts.Now()
		if now.Sub(l.lastFlush) < l.opts.FlushInterval {
			continue
		}
		l.lastFlush = now
		if err := l.flush(ctx, logger); err != nil {
			return err
		}
	}
}

func (l *Loop) stop(ctx context.Context) error {
	if !l.opts.FlushOnStop || l.chunk.Empty() {
		return nil
	}
	return l.flush(ctx, l.opts.Logger.With(zap.String("session", l.opts.Session.Key)))
}

func (l *Loop) flush(ctx context.Context, logger *zap.Logger) error {
	l.setState(StateFlushing)
	defer l.setState(StateRecording)

	pending := l.chunk.Duration()

	if l.opts.SilenceGate {
		silent, metrics, err := audio.IsSilent(&l.chunk, l.opts.SilenceDBFS)
		if err != nil {
			logger.Warn("silence check failed", zap.Error(err))
		} else if silent {
			logger.Debug("skipping silent chunk",
				zap.Duration("chunk", pending),
				zap.Float64("rms_dbfs", metrics.RMSdBFS),
				zap.Float64("peak_dbfs", metrics.PeakdBFS),
			)
			l.chunk.Reset()
			return nil
		}
	}

	chunkPath := l.opts.Session.ChunkPath(l.opts.Exporter.Ext())
	if err := l.opts.Exporter.Export(ctx, &l.chunk, chunkPath); err != nil {
		return fmt.Errorf("export chunk: %w", err)
	}

	started := l.opts.Now()
	text, err := l.opts.Transcriber.TranscribeFile(ctx, chunkPath)
	if err != nil {
		return fmt.Errorf("transcribe chunk: %w", err)
	}

	l.transcript += text
	if err := l.opts.Session.SaveTranscript(l.transcript); err != nil {
		return err
	}
	l.chunk.Reset()
	l.flushes++

	logger.Debug("chunk transcribed",
		zap.Duration("chunk", pending),
		zap.Duration("elapsed", l.opts.Now().Sub(started)),
		zap.Int("chars", len(text)),
	)

	l.opts.OnTranscript(l.transcript)
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
