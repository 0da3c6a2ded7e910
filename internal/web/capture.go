package web

import (
	"errors"

	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/fmueller/meetscribe/internal/session"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errCaptureBusy = errors.New("another capture is already running")

// handleCapture runs one capture for the lifetime of the websocket. The
// receiver goroutine reads the socket; this goroutine runs the loop and is
// the only writer.
func (s *Server) handleCapture(conn *websocket.Conn) {
	logger := s.logger.With(zap.String("conn_id", uuid.NewString()))
	defer conn.Close()

	if !s.capturing.CompareAndSwap(false, true) {
		logger.Warn("rejecting capture", zap.Error(errCaptureBusy))
		s.send(conn, logger, capture.Event{Event: capture.EventError, Error: errCaptureBusy.Error()})
		return
	}
	defer s.capturing.Store(false)

	transcriber, err := s.opts.NewTranscriber()
	if err != nil {
		logger.Error("transcription unavailable", zap.Error(err))
		s.send(conn, logger, capture.Event{Event: capture.EventError, Error: err.Error()})
		return
	}

	sess, err := s.opts.Store.Create(s.opts.Now())
	if err != nil {
		logger.Error("create session", zap.Error(err))
		s.send(conn, logger, capture.Event{Event: capture.EventError, Error: err.Error()})
		return
	}
	logger = logger.With(zap.String("session", sess.Key))

	label, _ := session.Label(sess.Key)
	s.send(conn, logger, capture.Event{Event: capture.EventSession, Session: sess.Key, Label: label})

	receiver := capture.NewStreamReceiver(conn, s.opts.Capture.QueueSize, logger)
	loop, err := capture.NewLoop(capture.Options{
		Session:     sess,
		Source:      receiver,
		Transcriber: transcriber,
		Exporter:    s.opts.Exporter,
		OnTranscript: func(text string) {
			s.send(conn, logger, capture.Event{Event: capture.EventTranscript, Text: text})
		},
		FlushInterval: s.opts.Capture.FlushInterval,
		PollTimeout:   s.opts.Capture.PollTimeout,
		IdleDelay:     s.opts.Capture.IdleDelay,
		FlushOnStop:   s.opts.Capture.FlushOnStop,
		SilenceGate:   s.opts.Capture.SilenceGate,
		SilenceDBFS:   s.opts.Capture.SilenceDBFS,
		Now:           s.opts.Now,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("start capture loop", zap.Error(err))
		s.send(conn, logger, capture.Event{Event: capture.EventError, Error: err.Error()})
		return
	}

	go func() {
		if err := receiver.Run(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.Debug("capture socket closed", zap.Error(err))
		}
	}()
	// The connection is recycled once this handler returns, so the reader
	// must be gone first.
	defer func() {
		_ = conn.Close()
		receiver.Close()
		<-receiver.Done()
	}()

	logger.Info("capture connected")
	if err := loop.Run(s.ctx); err != nil {
		logger.Error("capture failed", zap.Error(err))
		s.send(conn, logger, capture.Event{Event: capture.EventError, Error: err.Error()})
	}

	s.send(conn, logger, capture.Event{Event: capture.EventStopped})
	logger.Info("capture finished",
		zap.Int("flushes", loop.Flushes()),
		zap.Int("transcript_chars", len(loop.Transcript())),
	)
}

func (s *Server) send(conn *websocket.Conn, logger *zap.Logger, ev capture.Event) {
	if err := conn.WriteJSON(ev); err != nil {
		logger.Debug("send capture event", zap.String("event", ev.Event), zap.Error(err))
	}
}
