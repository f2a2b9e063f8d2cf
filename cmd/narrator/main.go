package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/align"
	"github.com/snarg/narrator/internal/api"
	"github.com/snarg/narrator/internal/config"
	"github.com/snarg/narrator/internal/fragment"
	"github.com/snarg/narrator/internal/ingest"
	"github.com/snarg/narrator/internal/metrics"
	"github.com/snarg/narrator/internal/mqttclient"
	"github.com/snarg/narrator/internal/render"
	"github.com/snarg/narrator/internal/script"
	"github.com/snarg/narrator/internal/storage"
	"github.com/snarg/narrator/internal/stretch"
	"github.com/snarg/narrator/internal/tts"
)

var version = "dev"

// errClauseFailures marks a run that finished with failed clauses.
var errClauseFailures = errors.New("one or more clauses failed")

// CLI defines the command-line interface. Flags override environment
// variables and the .env file.
type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version information"`

	EnvFile        string  `name:"env-file" type:"path" help:"Path to .env file" default:".env"`
	LogLevel       string  `name:"log-level" help:"Log level (debug, info, warn, error)"`
	ScriptsDir     string  `name:"scripts-dir" type:"path" help:"Directory holding script files"`
	AudioDir       string  `name:"audio-dir" type:"path" help:"Directory holding {script}/raw clause recordings"`
	OutputDir      string  `name:"output-dir" type:"path" help:"Directory for rendered artifacts"`
	StretchBackend string  `name:"stretch" help:"Time-stretch backend (soundstretch, sox)"`
	Aligner        string  `name:"aligner" help:"Forced aligner (aeneas, elevenlabs)"`
	Rate           float64 `name:"rate" help:"Target speech rate in units per second"`
	Workers        int     `name:"workers" help:"Fragments processed concurrently per clause"`

	Render RenderCmd `cmd:"" help:"Render scripts to narration audio and reports"`
	Fetch  FetchCmd  `cmd:"" help:"Synthesize missing clause recordings with ElevenLabs"`
	Serve  ServeCmd  `cmd:"" help:"Run the render HTTP API"`
}

type RenderCmd struct {
	Fetch   bool     `help:"Fetch missing clause audio before rendering"`
	Scripts []string `arg:"" optional:"" help:"Script names or files; every script in the scripts directory when empty"`
}

type FetchCmd struct {
	Scripts []string `arg:"" optional:"" help:"Script names or files; every script in the scripts directory when empty"`
}

type ServeCmd struct {
	Addr  string `help:"HTTP listen address"`
	MQTT  string `name:"mqtt-broker" help:"MQTT broker URL for render events"`
	Watch bool   `help:"Render scripts when their files change"`
}

// app carries what every command needs.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	startTime time.Time
}

func main() {
	startTime := time.Now()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("narrator"),
		kong.Description("Narration renderer: align, normalize, retime and pace recorded clauses"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	// Config
	cfg, err := config.Load(config.Overrides{
		EnvFile:          cli.EnvFile,
		HTTPAddr:         cli.Serve.Addr,
		LogLevel:         cli.LogLevel,
		ScriptsDir:       cli.ScriptsDir,
		AudioDir:         cli.AudioDir,
		OutputDir:        cli.OutputDir,
		MQTTBrokerURL:    cli.Serve.MQTT,
		StretchBackend:   cli.StretchBackend,
		Aligner:          cli.Aligner,
		TargetSpeechRate: cli.Rate,
		FragmentWorkers:  cli.Workers,
	})
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}
	if cli.Serve.Watch {
		cfg.WatchScripts = true
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, startTime: startTime}
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(a)
	stop()
	switch {
	case errors.Is(err, errClauseFailures):
		os.Exit(2)
	case err != nil:
		log.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		os.Exit(1)
	}
}

// pipeline holds the render stack shared by render and serve.
type pipeline struct {
	service  *render.Service
	store    storage.ArtifactStore
	stretch  *stretch.Process
	services []storage.BackgroundService
}

func (p *pipeline) close() {
	for _, s := range p.services {
		s.Stop()
	}
}

func (a *app) buildPipeline(publish render.EventFunc) (*pipeline, error) {
	cfg := a.cfg

	stretcher, err := stretch.New(cfg.StretchBackend, cfg.StretchBinary, cfg.StretchTimeout)
	if err != nil {
		return nil, err
	}
	if !stretch.Available(stretcher.Binary()) {
		a.log.Warn().Str("binary", stretcher.Binary()).Msg("time-stretch binary not found in PATH")
	}

	var aligner align.Aligner
	switch cfg.Aligner {
	case "elevenlabs":
		aligner = align.NewElevenLabsAligner(cfg.ElevenLabsAPIKey, "", cfg.ElevenLabsTimeout)
	default:
		aligner = align.NewAeneasAligner(cfg.AeneasPython, cfg.AlignLanguage, cfg.AlignTimeout, a.log)
	}

	processor, err := fragment.NewProcessor(fragment.Options{
		Params:    cfg.FragmentParams(),
		Stretcher: stretcher,
		Backend:   stretcher.Backend(),
		Log:       a.log,
	})
	if err != nil {
		return nil, err
	}

	storeLog := a.log.With().Str("component", "storage").Logger()
	store, services, err := storage.New(cfg.S3, cfg.OutputDir, storeLog)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		s.Start()
	}

	renderer := render.NewRenderer(render.Options{
		Aligner:      aligner,
		Processor:    processor,
		AudioDir:     cfg.AudioDir,
		PublishEvent: publish,
		Log:          a.log,
	})

	a.log.Info().
		Str("aligner", aligner.Name()).
		Str("stretch", stretcher.Backend()).
		Str("store", store.Type()).
		Float64("target_rate", cfg.TargetSpeechRate).
		Str("rate_unit", cfg.SpeechRateUnit).
		Int("fragment_workers", cfg.FragmentWorkers).
		Msg("render pipeline ready")

	return &pipeline{
		service:  render.NewService(renderer, render.NewExporter(store, a.log)),
		store:    store,
		stretch:  stretcher,
		services: services,
	}, nil
}

// connectMQTT returns nil when no broker is configured.
func (a *app) connectMQTT() (*mqttclient.Client, error) {
	if a.cfg.MQTTBrokerURL == "" {
		return nil, nil
	}
	return mqttclient.Connect(mqttclient.Options{
		BrokerURL:   a.cfg.MQTTBrokerURL,
		ClientID:    a.cfg.MQTTClientID,
		TopicPrefix: a.cfg.MQTTTopicPrefix,
		Username:    a.cfg.MQTTUsername,
		Password:    a.cfg.MQTTPassword,
		Log:         a.log,
	})
}

// resolveScripts maps command arguments to script files. An argument is a
// file path if it exists, otherwise a script name under the scripts dir.
func (a *app) resolveScripts(args []string) ([]string, error) {
	if len(args) == 0 {
		paths, err := script.Discover(a.cfg.ScriptsDir)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no scripts found in %s", a.cfg.ScriptsDir)
		}
		return paths, nil
	}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if fi, err := os.Stat(arg); err == nil && !fi.IsDir() {
			paths = append(paths, arg)
			continue
		}
		p, err := script.Find(a.cfg.ScriptsDir, arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (a *app) fetch(ctx context.Context, paths []string) error {
	if a.cfg.ElevenLabsAPIKey == "" {
		return errors.New("fetch requires ELEVENLABS_API_KEY")
	}
	client := tts.NewElevenLabsClient(a.cfg.ElevenLabsAPIKey, a.cfg.ElevenLabsModel, "", a.cfg.ElevenLabsTimeout)
	fetcher := tts.NewFetcher(client, a.cfg.ElevenLabsVoice, a.log)

	for _, p := range paths {
		s, err := script.Load(p)
		if err != nil {
			return err
		}
		res, err := fetcher.Fetch(ctx, s, render.RawDir(a.cfg.AudioDir, s.Name))
		if err != nil {
			return fmt.Errorf("fetch %s: %w", s.Name, err)
		}
		a.log.Info().Str("script", s.Name).Int("fetched", res.Fetched).Int("skipped", res.Skipped).Msg("fetch complete")
	}
	return nil
}

func (c *FetchCmd) Run(ctx context.Context, a *app) error {
	paths, err := a.resolveScripts(c.Scripts)
	if err != nil {
		return err
	}
	return a.fetch(ctx, paths)
}

func (c *RenderCmd) Run(ctx context.Context, a *app) error {
	paths, err := a.resolveScripts(c.Scripts)
	if err != nil {
		return err
	}
	if c.Fetch {
		if err := a.fetch(ctx, paths); err != nil {
			return err
		}
	}

	mqtt, err := a.connectMQTT()
	if err != nil {
		a.log.Warn().Err(err).Msg("mqtt unavailable, render events stay local")
	}
	var sinks []ingest.EventSink
	if mqtt != nil {
		defer mqtt.Close()
		sinks = append(sinks, mqtt)
	}
	bus := ingest.NewEventBus(64)

	p, err := a.buildPipeline(bus.RenderEvents(a.log, sinks...))
	if err != nil {
		return err
	}
	defer p.close()

	failed := 0
	for _, path := range paths {
		out, err := p.service.RenderFile(ctx, path)
		if err != nil {
			return fmt.Errorf("render %s: %w", filepath.Base(path), err)
		}
		ev := a.log.Info()
		if out.Result.Failed() {
			failed++
			ev = a.log.Warn()
		}
		ev.Str("script", out.Result.Script).
			Int("fragments", out.Result.Fragments).
			Int("failures", len(out.Result.Failures)).
			Str("report", out.Manifest.Report).
			Dur("elapsed", out.Result.Elapsed).
			Msg("script rendered")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts: %w", failed, len(paths), errClauseFailures)
	}
	return nil
}

func (c *ServeCmd) Run(ctx context.Context, a *app) error {
	cfg := a.cfg
	a.log.Info().Str("version", version).Msg("narrator starting")

	// MQTT is optional; events still reach the SSE bus without it.
	mqtt, err := a.connectMQTT()
	if err != nil {
		a.log.Warn().Err(err).Msg("mqtt unavailable")
	}
	var sinks []ingest.EventSink
	var mqttStatus api.ConnectionStatus
	if mqtt != nil {
		defer mqtt.Close()
		sinks = append(sinks, mqtt)
		mqttStatus = mqtt
	}

	bus := ingest.NewEventBus(1024)
	p, err := a.buildPipeline(bus.RenderEvents(a.log, sinks...))
	if err != nil {
		return err
	}
	defer p.close()

	queue := render.NewQueue(render.QueueOptions{
		Workers:   cfg.RenderWorkers,
		QueueSize: cfg.RenderQueueSize,
		Render:    p.service.RenderFile,
		Log:       a.log,
	})
	queue.Start()
	defer queue.Stop()

	prometheus.MustRegister(metrics.NewCollector(queue, bus))

	if cfg.WatchScripts {
		watcher := ingest.NewScriptWatcher(cfg.ScriptsDir, func(name, path string) error {
			_, err := queue.Enqueue(name, path, "watcher")
			return err
		}, a.log)
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("script watcher: %w", err)
		}
		defer watcher.Stop()
		bus.SetWatcher(watcher)
	}

	srv := api.NewServer(api.ServerOptions{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		AuthToken:    cfg.AuthToken,
		ScriptsDir:   cfg.ScriptsDir,
		Queue:        queue,
		Live:         bus,
		MQTT:         mqttStatus,
		Store:        p.store,
		Stretch: api.StretchInfo{
			Backend:   p.stretch.Backend(),
			Binary:    p.stretch.Binary(),
			Available: stretch.Available,
		},
		Version:   version,
		StartTime: a.startTime,
		Log:       a.log.With().Str("component", "http").Logger(),
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown error")
	}

	a.log.Info().Msg("narrator stopped")
	return serveErr
}
