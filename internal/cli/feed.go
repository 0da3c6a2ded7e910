package cli

import (
	"fmt"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/capture"
	"github.com/fmueller/meetscribe/internal/feed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newFeedCmd(app *appState) *cobra.Command {
	var (
		serverURL string
		fast      bool
		frame     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "feed <wav-file>",
		Short: "Stream a WAV file into a running server as if it were the microphone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				serverURL = "http://" + app.cfg.Listen
			}

			seg, err := audio.LoadWAV(args[0])
			if err != nil {
				return err
			}

			feedFn := app.feedFn
			if feedFn == nil {
				feedFn = feed.Stream
			}

			var updateProgress progressFunc = func(time.Duration) {}
			stopProgress := func() {}
			if !fast {
				updateProgress, stopProgress = startDurationProgress(app.progressEnabled(), "Streaming", seg.Duration())
			}

			res, err := feedFn(cmd.Context(), seg, feed.Options{
				URL:        serverURL,
				Frame:      frame,
				Fast:       fast,
				OnProgress: func(sent time.Duration) { updateProgress(sent) },
				OnEvent: func(ev capture.Event) {
					switch ev.Event {
					case capture.EventSession:
						app.log().Info("capture started", zap.String("session", ev.Session), zap.String("label", ev.Label))
					case capture.EventTranscript:
						app.log().Debug("transcript updated", zap.Int("chars", len(ev.Text)))
					}
				},
				Logger: app.log(),
			})
			stopProgress()
			if err != nil {
				return err
			}

			app.log().Info("capture finished", zap.String("session", res.Session), zap.Duration("sent", res.Sent))
			fmt.Fprintln(cmd.OutOrStdout(), res.Transcript)
			if isBlankTranscript(res.Transcript) {
				app.log().Warn(noSpeechHint())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "Server base URL (default: http://<listen address>)")
	cmd.Flags().BoolVar(&fast, "fast", false, "Send audio as fast as possible instead of in real time")
	cmd.Flags().DurationVar(&frame, "frame", feed.DefaultFrame, "Audio per websocket message")
	return cmd
}
