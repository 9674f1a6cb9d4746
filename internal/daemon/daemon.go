package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/harun/fablebot/internal/config"
	"github.com/harun/fablebot/internal/logger"
	"github.com/harun/fablebot/internal/observability"
	"github.com/harun/fablebot/internal/telegram"
	"github.com/harun/fablebot/internal/tracing"
	"github.com/harun/fablebot/pkg/commandqueue"
	"github.com/harun/fablebot/pkg/cron"
	"github.com/harun/fablebot/pkg/game"
	"github.com/harun/fablebot/pkg/llm"
	"github.com/harun/fablebot/pkg/moderation"
	"github.com/harun/fablebot/pkg/prompt"
	"github.com/harun/fablebot/pkg/reply"
	"github.com/harun/fablebot/pkg/session"
	"github.com/harun/fablebot/pkg/speech"
)

// Daemon represents the fablebot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	queue       *commandqueue.CommandQueue
	store       session.Store
	prompts     prompt.Source
	promptFile  *prompt.FileSource
	generator   llm.Generator
	transcriber speech.Transcriber
	synthesizer speech.Synthesizer
	pipeline    *reply.Pipeline
	engine      *game.Engine
	filter      *moderation.ContentFilter

	// Services
	scheduler     *cron.Scheduler
	metricsServer *http.Server

	// Telegram
	telegramBot      *telegram.Bot
	telegramCmd      *telegram.Commands
	telegramHandler  *telegram.Handler
	telegramMedia    *telegram.Media
	telegramPresence *telegram.Presence
	sender           reply.Sender

	// Internal
	eventLoop *EventLoop
	router    *Router
	lifecycle *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
	version        string
	journal        *observability.Journal
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithSender replaces the Telegram reply transport
func WithSender(sender reply.Sender) Option {
	return func(d *Daemon) {
		d.sender = sender
	}
}

// WithVersion sets the build version reported in traces
func WithVersion(version string) Option {
	return func(d *Daemon) {
		d.version = version
	}
}

var newTelegramBot = func(cfg *config.TelegramConfig, log *logger.Logger) (*telegram.Bot, error) {
	return telegram.New(cfg, log)
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config: cfg,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(d)
	}

	observability.EnsureRegistered()
	if cfg.Observability.Tracing {
		if err := tracing.Init(tracing.ProviderConfig{
			ServiceVersion: d.version,
			SampleRatio:    cfg.Observability.TraceSampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().
				Float64("sample_ratio", cfg.Observability.TraceSampleRatio).
				Msg("Tracing initialized")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.router = NewRouter(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// abort releases what a failed New already opened
func (d *Daemon) abort() {
	d.cancel()
	if d.queue != nil {
		_ = d.queue.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.tracingEnabled {
		_ = tracing.Shutdown(context.Background())
		d.tracingEnabled = false
	}
	d.closeJournal()
}

func (d *Daemon) closeJournal() {
	if d.journal == nil {
		return
	}
	observability.SetJournal(nil)
	if err := d.journal.Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close game journal")
	}
	d.journal = nil
}

// initializeCoreModules builds everything that does not talk to Telegram
func (d *Daemon) initializeCoreModules() error {
	cfg := d.config

	if cfg.Observability.Journal != "" {
		journal, err := observability.OpenJournal(cfg.Observability.Journal)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to open game journal, game events are not journaled")
		} else {
			d.journal = journal
			observability.SetJournal(journal)
			d.logger.Info().Str("path", cfg.Observability.Journal).Msg("Game journal opened")
		}
	}

	d.queue = commandqueue.New(commandqueue.WithLogger(d.logger.Component("commandqueue")))
	d.logger.Info().Msg("Command queue initialized")

	store, err := session.Open(session.Config{
		Driver: cfg.Storage.Driver,
		Dir:    cfg.Storage.Dir,
		Path:   cfg.Storage.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	d.store = store
	d.logger.Info().Str("driver", cfg.Storage.Driver).Msg("Session store initialized")

	if cfg.Prompt.File != "" {
		source, err := prompt.NewFileSource(cfg.Prompt.File, d.logger.Component("prompt"))
		if err != nil {
			return fmt.Errorf("failed to load prompt: %w", err)
		}
		d.promptFile = source
		d.prompts = source
		d.logger.Info().Str("path", cfg.Prompt.File).Msg("Game-master prompt loaded")
	} else {
		d.prompts = prompt.Static(prompt.Default())
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider: cfg.AI.Provider,
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		Options: llm.Options{
			Model:       cfg.AI.Model,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create generation backend: %w", err)
	}
	d.generator = llm.NewPromptedGenerator(provider, d.prompts)
	d.logger.Info().Str("provider", provider.Name()).Msg("Generation backend initialized")

	filter, err := moderation.New(cfg.Moderation)
	if err != nil {
		return fmt.Errorf("failed to create input filter: %w", err)
	}
	d.filter = filter

	apiKey, baseURL := cfg.SpeechCredentials()
	if apiKey != "" {
		speechCfg := speech.OpenAIConfig{
			APIKey:          apiKey,
			BaseURL:         baseURL,
			SpeechModel:     cfg.Speech.SpeechModel,
			TranscribeModel: cfg.Speech.TranscribeModel,
			NarratorVoice:   cfg.Speech.NarratorVoice,
			DefaultVoice:    cfg.Speech.DefaultVoice,
			Logger:          d.logger.GetZerolog(),
		}
		d.transcriber = speech.NewOpenAITranscriber(speechCfg)
		d.synthesizer = speech.NewOpenAISynthesizer(speechCfg)
		d.logger.Info().Msg("Speech backends initialized")
	} else {
		d.logger.Warn().Msg("No speech credentials, voice notes and voice replies are disabled")
	}

	return nil
}

// initializeServices builds the transport, the reply pipeline, the engine and housekeeping
func (d *Daemon) initializeServices() error {
	cfg := d.config

	if cfg.Telegram.BotToken != "" {
		bot, err := newTelegramBot(&cfg.Telegram, d.logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		d.telegramBot = bot
		d.telegramCmd = telegram.NewCommands(bot)
		d.telegramHandler = telegram.NewHandler(bot)
		d.telegramMedia = telegram.NewMedia(bot)
		d.telegramPresence = telegram.NewPresence(bot)
		if d.sender == nil {
			d.sender = bot
		}
	}
	if d.sender == nil {
		d.sender = newLogSender(d.logger.Component("outbox"))
		d.logger.Warn().Msg("No telegram bot token, replies are only logged")
	}

	if err := os.MkdirAll(cfg.Reply.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create reply temp dir: %w", err)
	}

	voiceEnabled := cfg.Reply.VoiceEnabled && d.synthesizer != nil
	d.pipeline = reply.NewPipeline(reply.Config{
		Synthesizer:  d.synthesizer,
		Sender:       d.sender,
		TempDir:      cfg.Reply.TempDir,
		TextEnabled:  cfg.Reply.TextEnabled,
		VoiceEnabled: voiceEnabled,
		MaxParallel:  cfg.Reply.MaxParallel,
		Logger:       d.logger.GetZerolog(),
	})

	dice := game.Roller(game.NewRandomRoller())
	if cfg.Game.DiceSeed != 0 {
		dice = game.NewSeededRoller(cfg.Game.DiceSeed)
	}

	engine, err := game.New(game.Config{
		Store:       d.store,
		Generator:   d.generator,
		Transcriber: d.transcriber,
		Replier:     d.pipeline,
		Queue:       d.queue,
		Dice:        dice,
		MaxDepth:    cfg.Game.MaxDepth,
		Fallback:    cfg.Game.FallbackMessage,
		TempDir:     cfg.Reply.TempDir,
		Logger:      d.logger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create game engine: %w", err)
	}
	d.engine = engine
	d.logger.Info().
		Bool("text", cfg.Reply.TextEnabled).
		Bool("voice", voiceEnabled).
		Msg("Game engine initialized")

	if err := d.initializeHousekeeping(); err != nil {
		return err
	}

	if cfg.Observability.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		d.metricsServer = &http.Server{
			Addr:              cfg.Observability.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return nil
}

// Start starts the daemon service
func (d *Daemon) Start() (err error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	defer func() {
		if err != nil {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
		}
	}()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting fablebot daemon")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.promptFile != nil && d.config.Prompt.Watch {
		if err := d.promptFile.Watch(); err != nil {
			logger.Warn().Err(err).Msg("Failed to watch prompt file, edits need a restart")
		} else {
			logger.Info().Msg("Prompt watcher started")
		}
	}

	d.scheduler.Start()
	logger.Info().Msg("Housekeeping scheduler started")

	if d.metricsServer != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		logger.Info().Str("addr", d.metricsServer.Addr).Msg("Metrics server started")
	}

	if d.telegramBot != nil {
		d.router.Bind()
		if err := d.telegramBot.Start(); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		if err := d.telegramCmd.Publish(); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish bot commands")
		}
		logger.Info().Msg("Telegram bot started")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping fablebot daemon")

	// No new updates; in-flight handlers are cancelled and drained
	if d.telegramBot != nil {
		if err := d.telegramBot.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	d.eventLoop.HandleShutdown()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()

	if err := d.scheduler.Stop(stopCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop housekeeping scheduler")
	}

	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	logger.Info().Msg("Command queue stopped")

	if d.promptFile != nil {
		if err := d.promptFile.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop prompt watcher")
		}
	}

	if d.metricsServer != nil {
		if err := d.metricsServer.Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server")
		}
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if err := d.store.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close session store")
	}

	if d.tracingEnabled {
		if err := tracing.Shutdown(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		d.tracingEnabled = false
	}

	d.closeJournal()

	logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetStore returns the session store
func (d *Daemon) GetStore() session.Store {
	return d.store
}

// GetEngine returns the game engine
func (d *Daemon) GetEngine() *game.Engine {
	return d.engine
}

// GetRouter returns the message router
func (d *Daemon) GetRouter() *Router {
	return d.router
}

// GetTelegramBot returns the Telegram bot, nil when running without one
func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}
