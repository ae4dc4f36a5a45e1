package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	orchestration "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/config"
	"github.com/koscakluka/ema-realtime/core/logsink"
	"github.com/koscakluka/ema-realtime/core/session"
	"github.com/koscakluka/ema-realtime/core/telemetry"
	"github.com/koscakluka/ema-realtime/core/tools"
	"github.com/koscakluka/ema-realtime/internal/control"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		shutdownTracer, err = telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
	}

	queueOpts := []logsink.QueueOption{
		logsink.WithLimit(cfg.Sink.QueueLimit),
		logsink.WithOverflow(logsink.Overflow(cfg.Sink.Overflow)),
	}
	var (
		pending logsink.PendingQueue = logsink.NewMemoryQueue(queueOpts...)
		spool   *logsink.Spool
	)
	if cfg.Sink.SpoolPath != "" {
		spool, err = logsink.OpenSpool(cfg.Sink.SpoolPath, queueOpts...)
		if err != nil {
			log.Fatalf("Failed to open log spool: %v", err)
		}
		pending = spool
	}

	registry := tools.NewRegistry()
	if cfg.Tools.SearchURL != "" {
		search := tools.NewWebSearchClient(cfg.Tools.SearchURL, cfg.Tools.Timeout, tools.WithAPIKey(cfg.Tools.APIKey))
		registry.Register(tools.WebSearch(search, cfg.Tools.DefaultRecencyDays))
	}

	client := session.NewClient(cfg.Session.URL,
		session.WithAPIKey(cfg.Session.APIKey),
		session.WithModel(cfg.Session.Model),
	)

	engineOpts := []orchestration.EngineOption{
		orchestration.WithSession(client),
		orchestration.WithTools(registry),
		orchestration.WithPendingLogQueue(pending),
		orchestration.WithLogRetryInterval(cfg.Sink.RetryInterval),
		orchestration.WithBargeInOnSpeech(cfg.Session.BargeInOnSpeech),
		orchestration.WithRatingScale(cfg.Feedback.MinRating, cfg.Feedback.MaxRating),
		orchestration.WithSessionConfig(cfg.Session.Instructions, cfg.Session.Voice,
			session.TurnDetectionMode(cfg.Session.TurnDetection)),
	}
	if cfg.Sink.URL != "" {
		engineOpts = append(engineOpts, orchestration.WithLogDeliverer(
			logsink.NewHTTPDeliverer(cfg.Sink.URL, cfg.Sink.Timeout, logsink.WithAPIKey(cfg.Sink.APIKey)),
		))
	} else {
		logger.Warn("no log store configured, conversation records will be discarded")
	}
	engine := orchestration.New(engineOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect session: %v", err)
	}

	if err := engine.Start(ctx,
		orchestration.WithAssistantTurnCallback(func(turn orchestration.AssistantTurn) {
			logger.Info("assistant turn", slog.String("event_id", turn.EventID), slog.String("pair_id", turn.PairID))
		}),
		orchestration.WithToolCallCallback(func(call orchestration.ToolCall) {
			logger.Info("tool call", slog.String("call_id", call.CallID), slog.String("name", call.Name))
		}),
		orchestration.WithErrorCallback(func(err error) {
			logger.Error("engine error", slog.String("error", err.Error()))
		}),
	); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	if err := engine.ConfigureSession(ctx); err != nil {
		log.Fatalf("Failed to configure session: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Control.Addr,
		Handler:           control.NewServer(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("control server listening", slog.String("addr", cfg.Control.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	go func() {
		if err := client.Run(ctx, func(frame []byte) {
			if err := engine.Handle(frame); err != nil {
				logger.Warn("frame dropped", slog.String("error", err.Error()))
			}
		}); err != nil {
			logger.Error("session closed", slog.String("error", err.Error()))
		}
		stop()
	}()

	logger.Info("engine started", slog.String("session", cfg.Session.URL), slog.Int("tools", len(registry.Tools())))
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	engine.Close()
	errs := []error{
		server.Shutdown(shutdownCtx),
		client.Close(),
		shutdownTracer(shutdownCtx),
	}
	if spool != nil {
		errs = append(errs, spool.Close())
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
