package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/fmueller/meetscribe/internal/version"
	"github.com/fmueller/meetscribe/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI for recording and browsing meetings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}
	bindServeFlags(cmd, app)
	return cmd
}

func (a *appState) runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}

	exporter, err := audio.NewExporter(a.cfg.AudioFormat, a.log())
	if err != nil {
		return err
	}

	srv, err := web.New(web.Options{
		Store: store,
		NewTranscriber: func() (capture.Transcriber, error) {
			speech, err := a.speechClient()
			if err != nil {
				return nil, err
			}
			return speech, nil
		},
		Exporter: exporter,
		Capture:  a.cfg.Capture,
		Version:  version.Resolve(),
		Now:      a.now,
		Logger:   a.log(),
	})
	if err != nil {
		return err
	}

	a.log().Info("sessions stored in", zap.String("dir", store.Root()), zap.String("audio_format", exporter.Name()))
	if a.cfg.OpenAI.APIKey == "" {
		a.log().Warn("OPENAI_API_KEY is not set; browsing works but recording will fail")
	}

	serveFn := a.serveFn
	if serveFn == nil {
		serveFn = serveUntilDone
	}
	return serveFn(ctx, srv, a.cfg.Listen)
}

// serveUntilDone runs the server until it fails or ctx is cancelled.
func serveUntilDone(ctx context.Context, srv *web.Server, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
