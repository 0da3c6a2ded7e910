// Package web serves the browser UI: live capture over a websocket and the
// saved-session browser.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/fmueller/meetscribe/internal/config"
	"github.com/fmueller/meetscribe/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

//go:embed templates/*.html static/*
var assets embed.FS

// TranscriberFactory builds the speech client when a capture starts, so the
// browser can be served before an API key is configured.
type TranscriberFactory func() (capture.Transcriber, error)

type Options struct {
	Store          *session.Store
	NewTranscriber TranscriberFactory
	Exporter       audio.Exporter
	Capture        config.CaptureConfig
	Version        string
	Now            func() time.Time
	Logger         *zap.Logger
}

type Server struct {
	app    *fiber.App
	opts   Options
	pages  *template.Template
	logger *zap.Logger

	capturing atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) (*Server, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("web server requires a session store")
	case opts.NewTranscriber == nil:
		return nil, errors.New("web server requires a transcriber factory")
	case opts.Exporter == nil:
		return nil, errors.New("web server requires an audio exporter")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pages, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		pages:  pages,
		logger: opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "meetscribe",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/", s.recordPage)
	s.app.Get("/sessions", s.sessionsPage)
	s.app.Post("/sessions/:key/title", s.saveTitle)
	s.app.Get("/healthz", s.healthz)
	s.app.Get("/static/record.js", s.asset("static/record.js", "js"))

	s.app.Use("/ws/record", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/record", websocket.New(s.handleCapture))
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("serving meetscribe", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("serving meetscribe", zap.String("addr", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops an active capture and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.app.ShutdownWithContext(ctx)
}

// Capturing reports whether a capture is running.
func (s *Server) Capturing() bool {
	return s.capturing.Load()
}

type page struct {
	Tab     string
	Version string
}

type sessionsData struct {
	Tab      string
	Version  string
	Sessions session.Listing
	View     *session.View
}

func (s *Server) recordPage(c *fiber.Ctx) error {
	return s.render(c, "record.html", page{Tab: "record", Version: s.opts.Version})
}

func (s *Server) sessionsPage(c *fiber.Ctx) error {
	listing, err := s.opts.Store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	data := sessionsData{
		Tab:      "sessions",
		Version:  s.opts.Version,
		Sessions: listing,
	}

	key := c.Query("session")
	if k, ok := listing.KeyFor(key); ok {
		key = k
	}
	if key == "" && len(listing) > 0 {
		key = listing[0].Key
	}
	if key != "" {
		view, err := s.opts.Store.View(key)
		if err != nil {
			return requestedSessionError(err)
		}
		data.View = &view
	}

	return s.render(c, "sessions.html", data)
}

func (s *Server) saveTitle(c *fiber.Ctx) error {
	key := c.Params("key")
	sess, err := s.opts.Store.Open(key)
	if err != nil {
		return requestedSessionError(err)
	}

	if err := sess.SetTitle(c.FormValue("title")); err != nil {
		return err
	}
	s.logger.Info("session titled", zap.String("session", key))

	return c.Redirect("/sessions?session="+url.QueryEscape(key), fiber.StatusSeeOther)
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"version":   s.opts.Version,
		"capturing": s.Capturing(),
	})
}

func (s *Server) asset(name, kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, err := assets.ReadFile(name)
		if err != nil {
			return err
		}
		c.Type(kind, "utf-8")
		return c.Send(data)
	}
}

func (s *Server) render(c *fiber.Ctx, name string, data any) error {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

// requestedSessionError maps a bad key in the URL to 404; a malformed
// directory already on disk stays a server error.
func requestedSessionError(err error) error {
	if errors.Is(err, session.ErrMalformedKey) || errors.Is(err, session.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, session.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, session.ErrEmptyTitle):
		code = fiber.StatusBadRequest
	case errors.Is(err, session.ErrTitleExists):
		code = fiber.StatusConflict
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(code).SendString(err.Error())
}
