package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/stretch"
	"github.com/snarg/narrator/internal/textstat"
)

type Config struct {
	ScriptsDir string `env:"SCRIPTS_DIR" envDefault:"./scripts"`
	AudioDir   string `env:"AUDIO_DIR" envDefault:"./audio"`
	OutputDir  string `env:"OUTPUT_DIR" envDefault:"./output"`

	// Fragment pipeline
	ExtendSilenceMs   int     `env:"EXTEND_SILENCE_MS" envDefault:"500"`
	MinSilenceMs      int     `env:"MIN_SILENCE_MS" envDefault:"250"`
	SilenceThreshDBFS float64 `env:"SILENCE_THRESH_DBFS" envDefault:"-70"`
	NoiseScale        float64 `env:"NOISE_SCALE" envDefault:"0.1"`
	TargetSpeechRate  float64 `env:"TARGET_SPEECH_RATE" envDefault:"3.0"`
	SpeechRateUnit    string  `env:"SPEECH_RATE_UNIT" envDefault:"syllables"`
	MinRetimePct      int     `env:"MIN_RETIME_PCT" envDefault:"-30"`
	ShiftMs           int     `env:"SHIFT_MS" envDefault:"-50"`
	TargetDBFS        float64 `env:"TARGET_DBFS" envDefault:"-20"`
	TailTrimMs        int     `env:"TAIL_TRIM_MS" envDefault:"25"`
	FragmentWorkers   int     `env:"FRAGMENT_WORKERS" envDefault:"1"`

	StretchBackend string        `env:"STRETCH_BACKEND" envDefault:"soundstretch"`
	StretchBinary  string        `env:"STRETCH_BINARY"`
	StretchTimeout time.Duration `env:"STRETCH_TIMEOUT" envDefault:"60s"`

	Aligner       string        `env:"ALIGNER" envDefault:"aeneas"`
	AeneasPython  string        `env:"AENEAS_PYTHON" envDefault:"python3"`
	AlignLanguage string        `env:"ALIGN_LANGUAGE" envDefault:"eng"`
	AlignTimeout  time.Duration `env:"ALIGN_TIMEOUT" envDefault:"5m"`

	ElevenLabsAPIKey  string        `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoice   string        `env:"ELEVENLABS_VOICE" envDefault:"Sleepy Sister"`
	ElevenLabsModel   string        `env:"ELEVENLABS_MODEL" envDefault:"eleven_multilingual_v1"`
	ElevenLabsTimeout time.Duration `env:"ELEVENLABS_TIMEOUT" envDefault:"2m"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"narrator"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"narrator"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	RenderWorkers   int  `env:"RENDER_WORKERS" envDefault:"1"`
	RenderQueueSize int  `env:"RENDER_QUEUE_SIZE" envDefault:"16"`
	WatchScripts    bool `env:"WATCH_SCRIPTS" envDefault:"false"`

	S3 S3Config

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// S3Config configures the optional S3 artifact store.
type S3Config struct {
	Bucket        string        `env:"S3_BUCKET"`
	Endpoint      string        `env:"S3_ENDPOINT"`
	Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKey     string        `env:"S3_ACCESS_KEY"`
	SecretKey     string        `env:"S3_SECRET_KEY"`
	Prefix        string        `env:"S3_PREFIX"`
	LocalCache    bool          `env:"S3_LOCAL_CACHE" envDefault:"true"`
	PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether an S3 bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile          string
	HTTPAddr         string
	LogLevel         string
	ScriptsDir       string
	AudioDir         string
	OutputDir        string
	MQTTBrokerURL    string
	StretchBackend   string
	Aligner          string
	TargetSpeechRate float64
	FragmentWorkers  int
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.ScriptsDir != "" {
		cfg.ScriptsDir = overrides.ScriptsDir
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.OutputDir != "" {
		cfg.OutputDir = overrides.OutputDir
	}
	if overrides.MQTTBrokerURL != "" {
		cfg.MQTTBrokerURL = overrides.MQTTBrokerURL
	}
	if overrides.StretchBackend != "" {
		cfg.StretchBackend = overrides.StretchBackend
	}
	if overrides.Aligner != "" {
		cfg.Aligner = overrides.Aligner
	}
	if overrides.TargetSpeechRate != 0 {
		cfg.TargetSpeechRate = overrides.TargetSpeechRate
	}
	if overrides.FragmentWorkers != 0 {
		cfg.FragmentWorkers = overrides.FragmentWorkers
	}

	return cfg, nil
}

// FragmentParams returns the pipeline parameters. The rate unit is passed
// through as given; Validate rejects unknown units.
func (c *Config) FragmentParams() fragment.Params {
	return fragment.Params{
		ExtendSilenceMs:   c.ExtendSilenceMs,
		MinSilenceMs:      c.MinSilenceMs,
		SilenceThreshDBFS: c.SilenceThreshDBFS,
		NoiseScale:        c.NoiseScale,
		TargetSpeechRate:  c.TargetSpeechRate,
		RateUnit:          textstat.Unit(strings.ToLower(strings.TrimSpace(c.SpeechRateUnit))),
		MinRetimePct:      c.MinRetimePct,
		ShiftMs:           c.ShiftMs,
		TargetDBFS:        c.TargetDBFS,
		TailTrimMs:        c.TailTrimMs,
		Workers:           c.FragmentWorkers,
	}
}

// Validate rejects invalid combinations before any processing starts. The
// error matches fragment.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	var fe *fragment.Error
	if err := c.FragmentParams().Validate(); errors.As(err, &fe) {
		errs = append(errs, fe.Err)
	}
	switch c.StretchBackend {
	case stretch.BackendSoundStretch, stretch.BackendSox:
	default:
		errs = append(errs, fmt.Errorf("unknown STRETCH_BACKEND %q", c.StretchBackend))
	}
	if c.StretchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STRETCH_TIMEOUT must be positive, got %s", c.StretchTimeout))
	}
	switch c.Aligner {
	case "aeneas":
	case "elevenlabs":
		if c.ElevenLabsAPIKey == "" {
			errs = append(errs, errors.New("ALIGNER=elevenlabs requires ELEVENLABS_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ALIGNER %q", c.Aligner))
	}
	if c.RenderWorkers < 1 {
		errs = append(errs, fmt.Errorf("RENDER_WORKERS must be >= 1, got %d", c.RenderWorkers))
	}
	if c.RenderQueueSize < 1 {
		errs = append(errs, fmt.Errorf("RENDER_QUEUE_SIZE must be >= 1, got %d", c.RenderQueueSize))
	}
	if len(errs) > 0 {
		return fragment.NewError(fragment.KindConfiguration, -1, -1, -1, errors.Join(errs...))
	}
	return nil
}
