package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/fmueller/meetscribe/internal/config"
	"github.com/fmueller/meetscribe/internal/feed"
	"github.com/fmueller/meetscribe/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type stubTranscriber struct {
	text string
	err  error
}

func (s stubTranscriber) TranscribeFile(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return s.text, s.err
}

func newTestServer(t *testing.T, factory TranscriberFactory) (*Server, *session.Store) {
	t.Helper()

	store, err := session.OpenStore(t.TempDir())
	require.NoError(t, err)

	if factory == nil {
		factory = func() (capture.Transcriber, error) { return stubTranscriber{text: "hello "}, nil }
	}

	captureCfg := config.Default().Capture
	captureCfg.FlushInterval = 50 * time.Millisecond
	captureCfg.PollTimeout = 50 * time.Millisecond
	captureCfg.IdleDelay = 10 * time.Millisecond
	captureCfg.SilenceGate = false

	srv, err := New(Options{
		Store:          store,
		NewTranscriber: factory,
		Exporter:       audio.WAVExporter{},
		Capture:        captureCfg,
		Version:        "0.1.0-test",
	})
	require.NoError(t, err)
	return srv, store
}

func createSession(t *testing.T, store *session.Store, key, title, transcript string) {
	t.Helper()

	at, err := time.ParseInLocation(session.KeyLayout, key, time.Local)
	require.NoError(t, err)
	sess, err := store.Create(at)
	require.NoError(t, err)
	if transcript != "" {
		require.NoError(t, sess.SaveTranscript(transcript))
	}
	if title != "" {
		require.NoError(t, sess.SetTitle(title))
	}
}

func get(t *testing.T, srv *Server, target string) (*http.Response, string) {
	t.Helper()

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func postTitle(t *testing.T, srv *Server, key, title string) *http.Response {
	t.Helper()

	form := url.Values{"title": {title}}
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+key+"/title", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRecordPage(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	resp, body := get(t, srv, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	require.Contains(t, body, "Record a meeting")
	require.Contains(t, body, "Saved transcripts")
	require.Contains(t, body, `<script src="/static/record.js">`)

	resp, body = get(t, srv, "/static/record.js")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	require.Contains(t, body, "/ws/record")
}

func TestSessionsPageShowsTitleAndTranscript(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "Standup", "Hello world")

	resp, body := get(t, srv, "/sessions?session=2024_01_02_10_00_00")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "<h2>Standup</h2>")
	require.Contains(t, body, "Hello world")
	require.Contains(t, body, "2024/01/02 10:00:00")
	require.NotContains(t, body, "Add a title")
}

func TestSessionsPageSelectsByLabel(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "Standup", "old")
	createSession(t, store, "2024_03_05_16_30_00", "Retro", "new")

	resp, body := get(t, srv, "/sessions?session="+url.QueryEscape("2024/01/02 10:00:00"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "<h2>Standup</h2>")
	require.Contains(t, body, `<option value="2024_01_02_10_00_00" selected>`)
}

func TestSessionsPagePromptsForMissingTitle(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "", "Hello world")

	resp, body := get(t, srv, "/sessions?session=2024_01_02_10_00_00")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Add a title")
	require.Contains(t, body, `action="/sessions/2024_01_02_10_00_00/title"`)
	require.NotContains(t, body, "Hello world")
}

func TestSessionsPageSelectsMostRecentByDefault(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "Standup", "old")
	createSession(t, store, "2024_03_05_16_30_00", "Retro", "new")

	_, body := get(t, srv, "/sessions")
	require.Contains(t, body, "<h2>Retro</h2>")
	require.Contains(t, body, `<option value="2024_03_05_16_30_00" selected>`)
	require.Less(t, strings.Index(body, "2024/03/05 16:30:00"), strings.Index(body, "2024/01/02 10:00:00"))
}

func TestSessionsPageWithoutSessions(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	resp, body := get(t, srv, "/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "No meetings recorded yet.")
}

func TestSessionsPageUnknownSession(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "Standup", "")

	for _, key := range []string{"2023_01_01_00_00_00", "not-a-session"} {
		resp, _ := get(t, srv, "/sessions?session="+key)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, key)
	}
}

func TestSessionsPageMalformedDirectoryIsServerError(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	require.NoError(t, os.Mkdir(filepath.Join(store.Root(), "backup"), 0o755))

	resp, _ := get(t, srv, "/sessions")
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSaveTitle(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "", "Hello world")

	resp := postTitle(t, srv, "2024_01_02_10_00_00", "Standup")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/sessions?session=2024_01_02_10_00_00", resp.Header.Get("Location"))

	_, body := get(t, srv, "/sessions?session=2024_01_02_10_00_00")
	require.Contains(t, body, "<h2>Standup</h2>")
	require.Contains(t, body, "Hello world")

	resp = postTitle(t, srv, "2024_01_02_10_00_00", "Renamed")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSaveTitleRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	createSession(t, store, "2024_01_02_10_00_00", "", "")

	require.Equal(t, http.StatusBadRequest, postTitle(t, srv, "2024_01_02_10_00_00", "   ").StatusCode)
	require.Equal(t, http.StatusNotFound, postTitle(t, srv, "2023_01_01_00_00_00", "Standup").StatusCode)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	resp, body := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, "0.1.0-test", payload["version"])
	require.Equal(t, false, payload["capturing"])
}

func TestCaptureEndpointRequiresUpgrade(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	resp, _ := get(t, srv, "/ws/record")
	require.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.ErrorContains(t, err, "session store")
}

func serve(t *testing.T, srv *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return "http://" + ln.Addr().String()
}

func tone(t *testing.T, d time.Duration) *audio.Segment {
	t.Helper()

	format := audio.Format{SampleRate: 16000, Channels: 1, SampleWidth: 2}
	data := make([]byte, format.BytesPerSecond()*int(d/time.Millisecond)/1000)
	for i := 0; i+1 < len(data); i += 4 {
		data[i], data[i+1] = 0x00, 0x40
	}

	var seg audio.Segment
	require.NoError(t, seg.Append(audio.Frame{Format: format, Data: data}))
	return &seg
}

func TestCaptureOverWebsocket(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t, nil)
	base := serve(t, srv)

	res, err := feed.Stream(context.Background(), tone(t, 300*time.Millisecond), feed.Options{URL: base, Fast: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Session)
	require.True(t, strings.HasPrefix(res.Transcript, "hello "))

	sess, err := store.Open(res.Session)
	require.NoError(t, err)

	saved, err := sess.Transcript()
	require.NoError(t, err)
	require.Equal(t, res.Transcript, saved)
	require.FileExists(t, sess.AudioPath(".wav"))

	recorded, err := audio.LoadWAV(sess.AudioPath(".wav"))
	require.NoError(t, err)
	require.Equal(t, 300*time.Millisecond, recorded.Duration())

	view, err := store.View(res.Session)
	require.NoError(t, err)
	require.False(t, view.Titled)

	require.Eventually(t, func() bool { return !srv.Capturing() }, 2*time.Second, 10*time.Millisecond)
}

func TestCaptureReportsTranscriberFailure(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, func() (capture.Transcriber, error) {
		return nil, errors.New("OPENAI_API_KEY is not set")
	})
	base := serve(t, srv)

	_, err := feed.Stream(context.Background(), tone(t, 100*time.Millisecond), feed.Options{URL: base, Fast: true})
	require.ErrorIs(t, err, feed.ErrRejected)
	require.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestCaptureAllowsOneAtATime(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	base := serve(t, srv)

	wsURL, err := feed.CaptureURL(base)
	require.NoError(t, err)
	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer first.Close()

	var ev capture.Event
	require.NoError(t, first.ReadJSON(&ev))
	require.Equal(t, capture.EventSession, ev.Event)
	require.True(t, srv.Capturing())

	_, err = feed.Stream(context.Background(), tone(t, 100*time.Millisecond), feed.Options{URL: base, Fast: true})
	require.ErrorIs(t, err, feed.ErrRejected)
	require.ErrorContains(t, err, "already running")

	require.NoError(t, first.WriteJSON(capture.Event{Event: capture.EventStop}))
	for ev.Event != capture.EventStopped {
		require.NoError(t, first.ReadJSON(&ev))
	}
	require.Eventually(t, func() bool { return !srv.Capturing() }, 2*time.Second, 10*time.Millisecond)
}

func TestCaptureTranscriptionFailureWhileClientStreams(t *testing.T) {
	t.Parallel()

	var captures atomic.Int32
	srv, _ := newTestServer(t, func() (capture.Transcriber, error) {
		if captures.Add(1) == 1 {
			return stubTranscriber{err: errors.New("speech service unavailable")}, nil
		}
		return stubTranscriber{text: "hello "}, nil
	})
	base := serve(t, srv)

	wsURL, err := feed.CaptureURL(base)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev capture.Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, capture.EventSession, ev.Event)

	seg := tone(t, 20*time.Millisecond)
	format := seg.Format()
	require.NoError(t, conn.WriteJSON(capture.Event{Event: capture.EventStart, Format: &format}))

	quit := make(chan struct{})
	sent := make(chan struct{})
	go func() {
		defer close(sent)
		for {
			select {
			case <-quit:
				return
			case <-time.After(5 * time.Millisecond):
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, seg.Bytes()); err != nil {
				return
			}
		}
	}()

	var events []string
	var failure string
	for {
		if err := conn.ReadJSON(&ev); err != nil {
			break
		}
		events = append(events, ev.Event)
		if ev.Event == capture.EventError {
			failure = ev.Error
		}
		if ev.Event == capture.EventStopped {
			break
		}
	}
	close(quit)
	<-sent

	require.Contains(t, events, capture.EventError)
	require.Contains(t, failure, "speech service unavailable")
	require.Eventually(t, func() bool { return !srv.Capturing() }, 2*time.Second, 10*time.Millisecond)

	res, err := feed.Stream(context.Background(), tone(t, 200*time.Millisecond), feed.Options{URL: base, Fast: true})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.Transcript, "hello "))
}
