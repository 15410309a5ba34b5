// Package assistant wires the voice loop, lab telemetry, device control,
// history and control API into one application.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-jarvis/internal/config"
	"github.com/teslashibe/go-jarvis/pkg/audioio"
	"github.com/teslashibe/go-jarvis/pkg/command"
	"github.com/teslashibe/go-jarvis/pkg/conversation"
	"github.com/teslashibe/go-jarvis/pkg/hub"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/iot"
	"github.com/teslashibe/go-jarvis/pkg/journal"
	"github.com/teslashibe/go-jarvis/pkg/knowledge"
	"github.com/teslashibe/go-jarvis/pkg/session"
	"github.com/teslashibe/go-jarvis/pkg/speech"
	"github.com/teslashibe/go-jarvis/pkg/store"
	"github.com/teslashibe/go-jarvis/pkg/telemetry"
	"github.com/teslashibe/go-jarvis/pkg/tts"
	"github.com/teslashibe/go-jarvis/pkg/web"
)

// App is the main application orchestrator.
// It owns every component and their lifecycle.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer

	// history
	store  *store.SQLite
	async  *journal.Async
	logHub *hub.Hub
	sink   journal.Sink

	// core
	knowledge *knowledge.Client
	conv      *conversation.Context
	listener  session.Listener
	speaker   session.Speaker
	router    *command.Router
	ctrl      *session.Controller

	// integrations
	lab    *telemetry.HTTPClient
	poller *telemetry.Poller
	iot    *iot.Client
	web    *web.Server

	closers []func() error
}

// Option configures an App.
type Option func(*App)

// WithIO sets where console mode reads commands and prints replies.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.stdin = in
		a.stdout = out
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New builds every component from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"history", a.initHistory},
		{"knowledge", a.initKnowledge},
		{"speech", a.initSpeech},
		{"tts", a.initTTS},
		{"integrations", a.initIntegrations},
		{"router", a.initRouter},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("%s init: %w", step.name, err)
		}
	}

	a.ctrl = session.New(a.listener, a.speaker, a.router, a.conv,
		session.WithGreeting(cfg.Assistant.Greeting),
		session.WithListenTimeout(cfg.Assistant.ListenTimeout),
		session.WithSink(a.sink),
		session.WithLogger(a.logger),
	)

	if cfg.Dashboard.Enabled {
		a.web = web.NewServer(cfg.Dashboard.Addr, a.ctrl, a.logHub,
			web.WithAsk(a.Ask),
			web.WithMessages(a.store),
			web.WithConversation(a.conv),
			web.WithTelemetry(a.pollerOrNil()),
			web.WithRequestLog(cfg.LogLevel == "debug"),
			web.WithLogger(a.logger),
		)
	}
	return a, nil
}

func (a *App) initHistory() error {
	db, err := store.Open(a.cfg.Store.Path, a.logger)
	if err != nil {
		return err
	}
	a.store = db
	a.closers = append(a.closers, db.Close)

	a.async = journal.NewAsync(db.JournalSink(), 0, a.logger)
	a.logHub = hub.New("logs", hub.WithLogger(a.logger))
	a.sink = journal.Multi(journal.NewLogger(a.logger), a.logHub, a.async)
	return nil
}

func (a *App) initKnowledge() error {
	k := a.cfg.Knowledge
	opts := []inference.Option{
		inference.WithBaseURL(k.BaseURL),
		inference.WithAPIKey(k.APIKey),
		inference.WithModel(k.Model),
		inference.WithTimeout(k.Timeout),
		inference.WithLogger(a.logger),
	}

	var (
		transport inference.Transport
		err       error
	)
	switch k.Transport {
	case "openai":
		transport, err = inference.NewOpenAI(opts...)
	default:
		transport, err = inference.NewClient(opts...)
	}
	if err != nil {
		return err
	}

	a.knowledge = knowledge.New(transport,
		knowledge.WithPolicy(knowledge.Policy{
			MaxAttempts: k.MaxAttempts,
			BaseDelay:   k.BaseDelay,
			Multiplier:  k.Multiplier,
		}),
		knowledge.WithCredential(k.APIKey),
		knowledge.WithSink(a.sink),
		knowledge.WithLogger(a.logger),
	)
	a.conv = conversation.New(a.cfg.Assistant.SystemPrompt)
	return nil
}

func (a *App) initSpeech() error {
	s := a.cfg.Speech
	if s.Mode == "console" {
		a.listener = speech.NewListener(speech.NewConsoleCapturer(a.stdin, a.stdout), speech.TranscriptRecognizer{}, a.logger)
		return nil
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.SampleRate = s.SampleRate
	audioCfg.Device = s.Device
	src, err := audioio.NewSource(audioCfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, src.Close)

	capturer, err := speech.NewVADCapturer(src, speech.VADConfig{
		SilenceThreshold: s.SilenceThreshold,
		SilenceDuration:  s.SilenceDuration,
		MaxUtterance:     s.MaxUtterance,
	}, a.logger)
	if err != nil {
		return err
	}

	whisper, err := speech.NewWhisper(a.cfg.Knowledge.APIKey,
		speech.WithWhisperModel(s.Model),
		speech.WithLanguage(s.Language),
		speech.WithWhisperBaseURL(a.cfg.Knowledge.BaseURL),
		speech.WithWhisperLogger(a.logger),
	)
	if err != nil {
		return err
	}

	a.listener = speech.NewListener(capturer, whisper, a.logger)
	return nil
}

func (a *App) initTTS() error {
	t := a.cfg.TTS
	if t.Provider == "console" {
		a.speaker = tts.NewConsole(a.stdout)
		return nil
	}

	provider, err := tts.NewOpenAI(
		tts.WithAPIKey(a.cfg.Knowledge.APIKey),
		tts.WithBaseURL(a.cfg.Knowledge.BaseURL),
		tts.WithVoice(t.Voice),
		tts.WithModel(t.Model),
		tts.WithLogger(a.logger),
	)
	if err != nil {
		// Without a synthesizer the assistant still answers in text.
		a.logger.Warn("speech synthesis unavailable, printing replies", "error", err)
		a.speaker = tts.NewConsole(a.stdout)
		return nil
	}
	a.closers = append(a.closers, provider.Close)

	sinkCfg := audioio.DefaultConfig()
	sinkCfg.SampleRate = tts.OpenAISampleRate
	sinkCfg.Device = a.cfg.Speech.Device
	out, err := audioio.NewSink(sinkCfg, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, out.Close)

	a.speaker = tts.NewSpeaker(provider, out, tts.WithFallback(a.stdout), tts.WithSpeakerLogger(a.logger))
	return nil
}

func (a *App) initIntegrations() error {
	if a.cfg.Lab.Enabled {
		lab, err := telemetry.NewHTTPClient(a.cfg.Lab.URL, telemetry.WithLogger(a.logger))
		if err != nil {
			return err
		}
		a.lab = lab
		a.poller = telemetry.NewPoller(lab, a.cfg.Lab.PollInterval,
			telemetry.WithRecorder(a.store),
			telemetry.WithSink(a.sink),
			telemetry.WithPollerLogger(a.logger),
		)
	}

	if a.cfg.MQTT.Enabled {
		m := a.cfg.MQTT
		a.iot = iot.New(iot.Config{
			Broker:       m.Host,
			Port:         m.Port,
			ClientID:     m.ClientID,
			CommandTopic: m.CommandTopic,
			StatusTopic:  m.StatusTopic,
		}, iot.WithSink(a.sink), iot.WithLogger(a.logger))
	}
	return nil
}

func (a *App) initRouter() error {
	gate := command.NewAuthGate(a.cfg.Assistant.Password, a.speaker, a.listener,
		command.WithAuthTimeout(a.cfg.Assistant.AuthTimeout),
		command.WithAuthSink(a.sink),
		command.WithAuthLogger(a.logger),
	)

	opts := []command.RouterOption{
		command.WithShutdown(a.cfg.Assistant.ShutdownKeyword, command.Shutdown),
		command.WithGate(gate),
		command.WithRouterLogger(a.logger),
	}

	var deviceOpts []command.DeviceOption
	var publisher command.Publisher
	if a.lab != nil {
		deviceOpts = append(deviceOpts, command.WithPump(a.lab))
	}
	if a.iot != nil {
		publisher = a.iot
		deviceOpts = append(deviceOpts, command.WithStatus(a.iot))
	}
	if publisher != nil || a.lab != nil {
		opts = append(opts, command.WithRoute("device", command.DeviceMatch, command.NewDevice(publisher, a.logger, deviceOpts...)))
	}

	opts = append(opts, command.WithRoute("average", command.AverageMatch, command.NewAverage(a.store, a.logger)))
	if a.lab != nil {
		opts = append(opts, command.WithRoute("telemetry", command.TelemetryMatch, command.NewTelemetry(a.lab, a.logger)))
	}

	a.router = command.NewRouter(command.NewChat(a.knowledge, a.conv), opts...)
	return nil
}

func (a *App) pollerOrNil() web.LatestSource {
	if a.poller == nil {
		return nil
	}
	return a.poller
}

// Ask answers one question without touching the session history.
func (a *App) Ask(ctx context.Context, question string) string {
	return session.Ask(ctx, a.knowledge, a.cfg.Assistant.SystemPrompt, question)
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller {
	return a.ctrl
}

// Store returns the history database.
func (a *App) Store() *store.SQLite {
	return a.store
}

// Run starts background services and, when listen is true, a listening
// session. Without the dashboard Run returns once that session ends; with
// it Run blocks until ctx is done.
func (a *App) Run(ctx context.Context, listen bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logHub.Run(gctx)
		return nil
	})
	if a.poller != nil {
		g.Go(func() error { return ignoreCanceled(a.poller.Run(gctx)) })
	}
	if a.iot != nil {
		if err := a.iot.Connect(gctx); err != nil {
			a.logger.Warn("device control unavailable", "error", err)
		}
	}
	if a.web != nil {
		g.Go(func() error { return a.web.Run(gctx) })
	}

	if listen {
		if err := a.ctrl.Start(gctx); err != nil {
			cancel()
			g.Wait()
			return err
		}
	}

	g.Go(func() error {
		if a.web == nil {
			// Console and voice-only runs end with the session.
			if err := a.ctrl.Wait(gctx); err == nil {
				cancel()
			}
			return nil
		}
		<-gctx.Done()
		return nil
	})

	<-gctx.Done()
	if err := a.ctrl.Stop(); err != nil && !errors.Is(err, session.ErrNotRunning) {
		a.logger.Warn("stop listening", "error", err)
	}
	return g.Wait()
}

// Shutdown releases every component. It is safe to call more than once.
func (a *App) Shutdown() {
	if a.iot != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.iot.Close(ctx); err != nil {
			a.logger.Warn("iot close", "error", err)
		}
		cancel()
	}
	if a.async != nil {
		a.async.Close()
		a.async = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
