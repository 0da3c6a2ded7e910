package cli

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fmueller/meetscribe/internal/audio"
	"github.com/fmueller/meetscribe/internal/config"
	"github.com/fmueller/meetscribe/internal/feed"
	"github.com/fmueller/meetscribe/internal/llm"
	"github.com/fmueller/meetscribe/internal/logging"
	"github.com/fmueller/meetscribe/internal/platform"
	"github.com/fmueller/meetscribe/internal/session"
	"github.com/fmueller/meetscribe/internal/stt"
	"github.com/fmueller/meetscribe/internal/version"
	"github.com/fmueller/meetscribe/internal/web"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool
	configPath string
	envFiles   []string

	// Flag values; applied over the loaded config only when set explicitly.
	sessionDir     string
	listen         string
	language       string
	responseFormat string
	audioFormat    string
	chatModel      string
	flushInterval  time.Duration
	silenceGate    bool
	silenceDBFS    float64

	cfg    config.Config
	logger *zap.Logger
	now    func() time.Time
	getenv func(string) string

	mu     sync.Mutex
	api    *openai.Client
	speech *stt.Client

	transcribeFn func(ctx context.Context, audioPath string) (string, error)
	chatFn       func(ctx context.Context, prompt, model string) (string, error)
	feedFn       func(ctx context.Context, seg *audio.Segment, opts feed.Options) (feed.Result, error)
	serveFn      func(ctx context.Context, srv *web.Server, addr string) error
}

func newAppState() *appState {
	defaults := config.Default()
	return &appState{
		envFiles:       []string{".env"},
		listen:         defaults.Listen,
		language:       defaults.Language,
		responseFormat: defaults.ResponseFormat,
		audioFormat:    defaults.AudioFormat,
		chatModel:      defaults.ChatModel,
		flushInterval:  defaults.Capture.FlushInterval,
		silenceGate:    defaults.Capture.SilenceGate,
		silenceDBFS:    defaults.Capture.SilenceDBFS,
		cfg:            defaults,
		now:            time.Now,
		getenv:         os.Getenv,
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "meetscribe",
		Short:         "Record meetings in the browser and transcribe them as you talk",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return app.loadConfig(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runServe(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindGlobalFlags(cmd, app)
	bindServeFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newSessionsCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newTitleCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newChatCmd(app))
	cmd.AddCommand(newFeedCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindGlobalFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
	flags.StringVar(&app.configPath, "config", app.configPath, "Path to config.yaml (default: per-user config directory)")
	flags.StringVar(&app.sessionDir, "session-dir", app.sessionDir, "Directory holding one folder per recorded session")
}

func bindServeFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.listen, "listen", app.listen, "Address the web UI listens on")
	cmd.Flags().StringVar(&app.audioFormat, "audio-format", app.audioFormat, "Recording format: auto|mp3|wav")
	cmd.Flags().DurationVar(&app.flushInterval, "flush-interval", app.flushInterval, "Minimum time between transcription calls while recording")
	bindLanguageFlag(cmd, app)
	bindSilenceFlags(cmd, app)
}

func bindLanguageFlag(cmd *cobra.Command, app *appState) {
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code passed to the speech API (pt|en|de|...)")
}

func bindSilenceFlags(cmd *cobra.Command, app *appState) {
	cmd.Flags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip the speech API for near-silent audio")
	cmd.Flags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
}

// loadConfig layers defaults, config file, .env, environment and explicitly
// set flags, in that order.
func (a *appState) loadConfig(cmd *cobra.Command) error {
	path, err := platform.ResolveConfigFile(a.configPath)
	if err != nil {
		a.log().Debug("no default config location", zap.Error(err))
		path = ""
	}

	cfg, err := config.Load(config.LoadOptions{
		Path:     path,
		Required: a.configPath != "",
		EnvFiles: a.envFiles,
		Getenv:   a.getenv,
	})
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("session-dir") {
		cfg.SessionDir = a.sessionDir
	}
	if flags.Changed("listen") {
		cfg.Listen = a.listen
	}
	if flags.Changed("language") {
		cfg.Language = a.language
	}
	if flags.Changed("format") {
		cfg.ResponseFormat = a.responseFormat
	}
	if flags.Changed("audio-format") {
		cfg.AudioFormat = a.audioFormat
	}
	if flags.Changed("model") {
		cfg.ChatModel = a.chatModel
	}
	if flags.Changed("flush-interval") {
		cfg.Capture.FlushInterval = a.flushInterval
	}
	if flags.Changed("silence-gate") {
		cfg.Capture.SilenceGate = a.silenceGate
	}
	if flags.Changed("silence-threshold-dbfs") {
		cfg.Capture.SilenceDBFS = a.silenceDBFS
	}
	cfg.Language = sanitizeLanguage(cfg.Language)
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir, err := platform.ResolveSessionDir(cfg.SessionDir)
	if err != nil {
		return err
	}
	cfg.SessionDir = dir

	a.cfg = cfg
	a.log().Debug("configuration loaded",
		zap.String("config", path),
		zap.String("session_dir", cfg.SessionDir),
		zap.String("language", cfg.Language),
	)
	return nil
}

func (a *appState) openStore() (*session.Store, error) {
	return session.OpenStore(a.cfg.SessionDir)
}

// apiClient builds the process-wide OpenAI client on first use so commands
// that never call the API run without a key.
func (a *appState) apiClient() (*openai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.api != nil {
		return a.api, nil
	}
	api, err := llm.NewAPIClient(llm.APIConfig{APIKey: a.cfg.OpenAI.APIKey, BaseURL: a.cfg.OpenAI.BaseURL})
	if err != nil {
		return nil, err
	}
	a.api = api
	return api, nil
}

func (a *appState) speechClient() (*stt.Client, error) {
	api, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	format, err := stt.ParseFormat(a.cfg.ResponseFormat)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speech == nil {
		a.speech = stt.New(api, stt.Options{
			Model:    a.cfg.TranscriptionModel,
			Language: a.cfg.Language,
			Format:   format,
			Logger:   a.log(),
		})
	}
	return a.speech, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
