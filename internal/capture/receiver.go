package capture

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"go.uber.org/zap"
)

var (
	// ErrNoFrames means nothing arrived within the wait; poll again.
	ErrNoFrames = errors.New("no audio frames within timeout")

	// ErrDisconnected means the source stopped sending and its queue is drained.
	ErrDisconnected = errors.New("audio source disconnected")

	errNoFormat      = errors.New("media received before start event")
	errFormatChanged = errors.New("audio format changed after recording started")
)

// FrameSource is polled by the capture loop. Frames waits at most timeout for
// audio and returns everything queued so far.
type FrameSource interface {
	Frames(ctx context.Context, timeout time.Duration) ([]audio.Frame, error)
}

// MessageReader is the read half of a websocket connection.
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// StreamReceiver reads the browser's capture messages and queues the frames.
type StreamReceiver struct {
	conn   MessageReader
	logger *zap.Logger

	frames chan audio.Frame
	done   chan struct{}
	quit   chan struct{}
	once   sync.Once

	// format is set by start events; active is fixed by the first queued
	// frame and every later frame must match it.
	format audio.Format
	active audio.Format

	mu  sync.Mutex
	err error
}

func NewStreamReceiver(conn MessageReader, queueSize int, logger *zap.Logger) *StreamReceiver {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamReceiver{
		conn:   conn,
		logger: logger,
		frames: make(chan audio.Frame, queueSize),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
}

// Run reads messages until the browser sends stop, the connection fails, or
// Close is called. It returns the read error, nil on a clean stop.
func (r *StreamReceiver) Run() error {
	defer close(r.done)

	for {
		messageType, msg, err := r.conn.ReadMessage()
		if err != nil {
			r.setErr(err)
			return err
		}

		stop, err := r.handle(messageType, msg)
		if err != nil {
			r.logger.Warn("dropping capture message", zap.Error(err))
			continue
		}
		if stop {
			r.logger.Debug("capture stream stopped by client")
			return nil
		}

		select {
		case <-r.quit:
			return nil
		default:
		}
	}
}

func (r *StreamReceiver) handle(messageType int, msg []byte) (bool, error) {
	switch messageType {
	case binaryMessage:
		return false, r.push(r.format, msg)
	case textMessage:
	default:
		return false, nil
	}

	var ev Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		return false, fmt.Errorf("decode event: %w", err)
	}

	switch ev.Event {
	case EventStart:
		if ev.Format == nil {
			return false, errors.New("start event without format")
		}
		if err := ev.Format.Validate(); err != nil {
			return false, err
		}
		if r.active != (audio.Format{}) && *ev.Format != r.active {
			return false, fmt.Errorf("%w: %+v, recording %+v", errFormatChanged, *ev.Format, r.active)
		}
		r.format = *ev.Format
		r.logger.Debug("capture stream started",
			zap.Int("sample_rate", r.format.SampleRate),
			zap.Int("channels", r.format.Channels),
			zap.Int("sample_width", r.format.SampleWidth),
		)
		return false, nil
	case EventMedia:
		if ev.Media == nil {
			return false, errors.New("media event without payload")
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			return false, fmt.Errorf("decode media payload: %w", err)
		}
		format := r.format
		if ev.Media.Format != nil {
			format = *ev.Media.Format
		}
		return false, r.push(format, pcm)
	case EventStop:
		return true, nil
	default:
		return false, fmt.Errorf("unknown event %q", ev.Event)
	}
}

func (r *StreamReceiver) push(format audio.Format, pcm []byte) error {
	if format == (audio.Format{}) {
		return errNoFormat
	}
	if len(pcm) == 0 {
		return nil
	}

	if r.active != (audio.Format{}) && format != r.active {
		return fmt.Errorf("%w: %+v, recording %+v", errFormatChanged, format, r.active)
	}

	frame := audio.Frame{Format: format, Data: pcm}
	if err := frame.Validate(); err != nil {
		return err
	}
	r.active = format

	select {
	case r.frames <- frame:
	case <-r.quit:
	}
	return nil
}

// Frames waits up to timeout for the first frame, then drains the queue
// without blocking. Once Run has returned and the queue is empty it reports
// ErrDisconnected.
func (r *StreamReceiver) Frames(ctx context.Context, timeout time.Duration) ([]audio.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var first audio.Frame
	select {
	case first = <-r.frames:
	case <-r.done:
		select {
		case first = <-r.frames:
		default:
			return nil, ErrDisconnected
		}
	case <-timer.C:
		return nil, ErrNoFrames
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	batch := []audio.Frame{first}
	for {
		select {
		case fr := <-r.frames:
			batch = append(batch, fr)
		default:
			return batch, nil
		}
	}
}

// Close unblocks Run if it is waiting on a full queue.
func (r *StreamReceiver) Close() {
	r.once.Do(func() { close(r.quit) })
}

// Done is closed when Run returns.
func (r *StreamReceiver) Done() <-chan struct{} {
	return r.done
}

// Err is the read error that ended Run, if any.
func (r *StreamReceiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *StreamReceiver) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}
