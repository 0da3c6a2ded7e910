// Package feed streams recorded audio into a running server's capture
// websocket, the same way the browser does.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultFrame is how much audio goes into one websocket message.
const DefaultFrame = 100 * time.Millisecond

// CapturePath is the websocket route of the capture endpoint.
const CapturePath = "/ws/record"

// ErrRejected is returned when the server answers with an error event.
var ErrRejected = errors.New("server rejected capture")

type Options struct {
	// URL is the server base (http://host:port) or a full ws:// URL.
	URL   string
	Frame time.Duration
	// Fast sends frames back to back instead of in real time.
	Fast bool

	OnEvent    func(capture.Event)
	OnProgress func(sent time.Duration)

	Dialer *websocket.Dialer
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

type Result struct {
	Session    string
	Label      string
	Transcript string
	Sent       time.Duration
}

// CaptureURL turns a server base URL into the capture websocket URL.
func CaptureURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", base)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = CapturePath
	}
	return u.String(), nil
}

// Stream sends seg as a capture and waits until the server reports it has
// stopped. The returned transcript is the last one the server published.
func Stream(ctx context.Context, seg *audio.Segment, opts Options) (Result, error) {
	opts = withDefaults(opts)

	target, err := CaptureURL(opts.URL)
	if err != nil {
		return Result{}, err
	}

	conn, _, err := opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return Result{}, fmt.Errorf("connect to %s: %w", target, err)
	}
	defer conn.Close()

	opts.Logger.Debug("connected to capture endpoint", zap.String("url", target))

	var (
		mu     sync.Mutex
		result Result
	)
	sendCtx, stopSending := context.WithCancel(ctx)
	defer stopSending()

	readDone := make(chan error, 1)
	go func() {
		defer stopSending()
		readDone <- readEvents(conn, opts, func(ev capture.Event) {
			mu.Lock()
			defer mu.Unlock()
			switch ev.Event {
			case capture.EventSession:
				result.Session, result.Label = ev.Session, ev.Label
			case capture.EventTranscript:
				result.Transcript = ev.Text
			}
		})
	}()

	sent, sendErr := send(sendCtx, conn, seg, opts)

	var readErr error
	select {
	case readErr = <-readDone:
	case <-ctx.Done():
		readErr = ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	result.Sent = sent

	if readErr != nil {
		return result, readErr
	}
	if sendErr != nil {
		return result, sendErr
	}
	return result, nil
}

func withDefaults(opts Options) Options {
	if opts.Frame <= 0 {
		opts.Frame = DefaultFrame
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(capture.Event) {}
	}
	if opts.OnProgress == nil {
		opts.OnProgress = func(time.Duration) {}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

func send(ctx context.Context, conn *websocket.Conn, seg *audio.Segment, opts Options) (time.Duration, error) {
	format := seg.Format()
	if err := conn.WriteJSON(capture.Event{Event: capture.EventStart, Format: &format}); err != nil {
		return 0, fmt.Errorf("send start: %w", err)
	}

	var sent time.Duration
	for _, fr := range seg.Split(opts.Frame) {
		if err := conn.WriteMessage(websocket.BinaryMessage, fr.Data); err != nil {
			return sent, fmt.Errorf("send audio: %w", err)
		}
		sent += fr.Duration()
		opts.OnProgress(sent)

		if opts.Fast {
			continue
		}
		if err := opts.Sleep(ctx, fr.Duration()); err != nil {
			return sent, err
		}
	}

	if err := conn.WriteJSON(capture.Event{Event: capture.EventStop}); err != nil {
		return sent, fmt.Errorf("send stop: %w", err)
	}
	return sent, nil
}

func readEvents(conn *websocket.Conn, opts Options, record func(capture.Event)) error {
	for {
		var ev capture.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read server event: %w", err)
		}

		record(ev)
		opts.OnEvent(ev)

		switch ev.Event {
		case capture.EventError:
			return fmt.Errorf("%w: %s", ErrRejected, ev.Error)
		case capture.EventStopped:
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
