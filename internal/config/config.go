// Package config resolves settings from defaults, an optional YAML file,
// .env files and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server and CLI need.
type Config struct {
	// SessionDir holds one directory per recording. Empty means the
	// per-user data directory.
	SessionDir string `yaml:"session_dir"`
	Listen     string `yaml:"listen"`

	Language           string `yaml:"language"`
	ResponseFormat     string `yaml:"response_format"`
	TranscriptionModel string `yaml:"transcription_model"`
	ChatModel          string `yaml:"chat_model"`

	// AudioFormat is auto, mp3 or wav.
	AudioFormat string `yaml:"audio_format"`

	Capture CaptureConfig `yaml:"capture"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
}

type CaptureConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	IdleDelay     time.Duration `yaml:"idle_delay"`
	QueueSize     int           `yaml:"queue_size"`
	FlushOnStop   bool          `yaml:"flush_on_stop"`
	SilenceGate   bool          `yaml:"silence_gate"`
	SilenceDBFS   float64       `yaml:"silence_threshold_dbfs"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

func Default() Config {
	return Config{
		Listen:             "127.0.0.1:8501",
		Language:           "pt",
		ResponseFormat:     "text",
		TranscriptionModel: "whisper-1",
		ChatModel:          "gpt-3.5-turbo-1106",
		AudioFormat:        "auto",
		Capture: CaptureConfig{
			FlushInterval: 5 * time.Second,
			PollTimeout:   time.Second,
			IdleDelay:     100 * time.Millisecond,
			QueueSize:     1024,
			FlushOnStop:   true,
			SilenceGate:   true,
			SilenceDBFS:   -65,
		},
	}
}

type LoadOptions struct {
	// Path of the YAML file. A missing file is skipped unless Required.
	Path     string
	Required bool

	// EnvFiles are dotenv files consulted after the process environment.
	// Missing files are skipped.
	EnvFiles []string

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load resolves defaults, then the YAML file, then the environment.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		if err := mergeFile(&cfg, opts.Path, opts.Required); err != nil {
			return Config{}, err
		}
	}

	lookup, err := newLookup(opts.Getenv, opts.EnvFiles)
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func newLookup(getenv func(string) string, envFiles []string) (func(string) string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	fileEnv := map[string]string{}
	if len(existing) > 0 {
		var err error
		fileEnv, err = godotenv.Read(existing...)
		if err != nil {
			return nil, fmt.Errorf("read env files: %w", err)
		}
	}

	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fileEnv[key]
	}, nil
}

func applyEnv(cfg *Config, lookup func(string) string) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			*dst = v
		}
	}

	setString("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	setString("OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	setString("MEETSCRIBE_SESSION_DIR", &cfg.SessionDir)
	setString("MEETSCRIBE_LISTEN", &cfg.Listen)
	setString("MEETSCRIBE_LANGUAGE", &cfg.Language)
	setString("MEETSCRIBE_AUDIO_FORMAT", &cfg.AudioFormat)
	setString("MEETSCRIBE_CHAT_MODEL", &cfg.ChatModel)

	if v := strings.TrimSpace(lookup("MEETSCRIBE_FLUSH_INTERVAL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEETSCRIBE_FLUSH_INTERVAL: %w", err)
		}
		cfg.Capture.FlushInterval = d
	}
	if v := strings.TrimSpace(lookup("MEETSCRIBE_SILENCE_GATE")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEETSCRIBE_SILENCE_GATE: %w", err)
		}
		cfg.Capture.SilenceGate = b
	}
	return nil
}

// Validate rejects settings the capture loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.Capture.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("capture.flush_interval must be positive, got %s", c.Capture.FlushInterval))
	}
	if c.Capture.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capture.poll_timeout must be positive, got %s", c.Capture.PollTimeout))
	}
	if c.Capture.IdleDelay < 0 {
		errs = append(errs, fmt.Errorf("capture.idle_delay must not be negative, got %s", c.Capture.IdleDelay))
	}
	if c.Capture.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.queue_size must be positive, got %d", c.Capture.QueueSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
