package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/textstat"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"SCRIPTS_DIR":     "/srv/scripts",
		"MQTT_BROKER_URL": "tcp://localhost:1883",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.AudioDir != "./audio" {
			t.Errorf("AudioDir = %q, want ./audio", cfg.AudioDir)
		}
		if cfg.MQTTClientID != "narrator" {
			t.Errorf("MQTTClientID = %q, want narrator", cfg.MQTTClientID)
		}
		if cfg.StretchBackend != "soundstretch" {
			t.Errorf("StretchBackend = %q, want soundstretch", cfg.StretchBackend)
		}
		if cfg.StretchTimeout != time.Minute {
			t.Errorf("StretchTimeout = %s, want 1m", cfg.StretchTimeout)
		}
		if cfg.ElevenLabsVoice != "Sleepy Sister" {
			t.Errorf("ElevenLabsVoice = %q", cfg.ElevenLabsVoice)
		}
		if cfg.S3.Enabled() {
			t.Error("S3 enabled without a bucket")
		}
		if !cfg.S3.LocalCache {
			t.Error("S3.LocalCache = false, want true")
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("defaults_match_pipeline_defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got, want := cfg.FragmentParams(), fragment.DefaultParams(); got != want {
			t.Errorf("FragmentParams = %+v, want %+v", got, want)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:          "nonexistent.env",
			HTTPAddr:         ":9090",
			LogLevel:         "debug",
			ScriptsDir:       "/tmp/scripts",
			MQTTBrokerURL:    "tcp://override:1883",
			AudioDir:         "/tmp/audio",
			StretchBackend:   "sox",
			TargetSpeechRate: 2.5,
			FragmentWorkers:  4,
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.ScriptsDir != "/tmp/scripts" {
			t.Errorf("ScriptsDir = %q, want override", cfg.ScriptsDir)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
		if cfg.AudioDir != "/tmp/audio" {
			t.Errorf("AudioDir = %q, want /tmp/audio", cfg.AudioDir)
		}
		p := cfg.FragmentParams()
		if p.TargetSpeechRate != 2.5 || p.Workers != 4 {
			t.Errorf("FragmentParams = %+v", p)
		}
		if cfg.StretchBackend != "sox" {
			t.Errorf("StretchBackend = %q", cfg.StretchBackend)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.ScriptsDir != "/srv/scripts" {
			t.Errorf("ScriptsDir = %q, want /srv/scripts", cfg.ScriptsDir)
		}
		if cfg.MQTTBrokerURL != "tcp://localhost:1883" {
			t.Errorf("MQTTBrokerURL = %q, want tcp://localhost:1883", cfg.MQTTBrokerURL)
		}
	})
}

func TestLoadEnvFile(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"SPEECH_RATE_UNIT": ""})
	defer cleanup()
	os.Unsetenv("SPEECH_RATE_UNIT")

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("SPEECH_RATE_UNIT=Words\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SPEECH_RATE_UNIT") })

	cfg, err := Load(Overrides{EnvFile: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.FragmentParams().RateUnit; got != textstat.UnitWords {
		t.Errorf("RateUnit = %q, want words", got)
	}
}

func TestLoadBadValue(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"EXTEND_SILENCE_MS": "lots"})
	defer cleanup()

	if _, err := Load(Overrides{EnvFile: "nonexistent.env"}); err == nil {
		t.Error("expected parse error for EXTEND_SILENCE_MS")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_target_rate", func(c *Config) { c.TargetSpeechRate = 0 }},
		{"negative_noise_scale", func(c *Config) { c.NoiseScale = -1 }},
		{"unknown_unit", func(c *Config) { c.SpeechRateUnit = "phonemes" }},
		{"unknown_backend", func(c *Config) { c.StretchBackend = "rubberband" }},
		{"zero_stretch_timeout", func(c *Config) { c.StretchTimeout = 0 }},
		{"unknown_aligner", func(c *Config) { c.Aligner = "gentle" }},
		{"elevenlabs_without_key", func(c *Config) { c.Aligner = "elevenlabs"; c.ElevenLabsAPIKey = "" }},
		{"no_render_workers", func(c *Config) { c.RenderWorkers = 0 }},
		{"no_queue", func(c *Config) { c.RenderQueueSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, fragment.ErrConfiguration) {
				t.Errorf("err = %v, want configuration error", err)
			}
		})
	}

	cfg := base()
	cfg.Aligner = "elevenlabs"
	cfg.ElevenLabsAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("elevenlabs with key: %v", err)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
