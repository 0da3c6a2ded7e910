package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/stt"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeAudio
			}

			transcript, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), transcript)
			if isBlankTranscript(transcript) {
				app.log().Warn(noSpeechHint())
			}
			return nil
		},
	}

	bindLanguageFlag(cmd, app)
	bindSilenceFlags(cmd, app)
	cmd.Flags().StringVar(&app.responseFormat, "format", app.responseFormat, "Response format: text|json|verbose_json|srt|vtt")
	return cmd
}

func (a *appState) transcribeAudio(ctx context.Context, audioPath string) (string, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return "", fmt.Errorf("audio file not found: %w", err)
	}

	if transcript, skipped, err := a.silenceGateTranscript(audioPath); err != nil {
		return "", err
	} else if skipped {
		return transcript, nil
	}

	format, err := stt.ParseFormat(a.cfg.ResponseFormat)
	if err != nil {
		return "", err
	}
	speech, err := a.speechClient()
	if err != nil {
		return "", err
	}

	a.log().Info("transcribing...", zap.String("audio", audioPath), zap.String("language", a.cfg.Language), zap.String("format", string(format)))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	res, err := speech.Transcribe(ctx, stt.Request{
		AudioPath: audioPath,
		Language:  a.cfg.Language,
		Format:    format,
	})
	stopSpinner()
	if err != nil {
		a.log().Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return "", err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)))

	return renderTranscription(res, format)
}

func renderTranscription(res stt.Result, format openai.AudioResponseFormat) (string, error) {
	switch format {
	case openai.AudioResponseFormatJSON, openai.AudioResponseFormatVerboseJSON:
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode transcription: %w", err)
		}
		return string(data), nil
	default:
		return strings.TrimRight(res.Text, "\n"), nil
	}
}

func (a *appState) silenceGateTranscript(audioPath string) (string, bool, error) {
	if !a.cfg.Capture.SilenceGate {
		return "", false, nil
	}

	if !strings.EqualFold(filepath.Ext(audioPath), ".wav") {
		return "", false, nil
	}

	threshold := a.cfg.Capture.SilenceDBFS
	silent, metrics, err := audio.IsSilentWAV(audioPath, threshold)
	if err != nil {
		a.log().Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", audioPath))
		return "", false, nil
	}

	if !silent {
		return "", false, nil
	}

	a.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Float64("rms_dbfs", metrics.RMSdBFS),
		zap.Float64("peak_dbfs", metrics.PeakdBFS),
		zap.Float64("threshold_dbfs", threshold),
	)

	return blankAudioToken, true, nil
}
