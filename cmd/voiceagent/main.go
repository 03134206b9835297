package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-agent/internal/appointments"
	"voice-agent/internal/audit"
	"voice-agent/internal/auth"
	"voice-agent/internal/calls"
	"voice-agent/internal/campaign"
	"voice-agent/internal/config"
	"voice-agent/internal/httpapi"
	"voice-agent/internal/knowledge"
	"voice-agent/internal/leads"
	"voice-agent/internal/llm"
	"voice-agent/internal/metrics"
	"voice-agent/internal/notify"
	"voice-agent/internal/reporting"
	"voice-agent/internal/routing"
	"voice-agent/internal/scheduling"
	"voice-agent/internal/session"
	"voice-agent/internal/speech"
	"voice-agent/internal/telephony"
	"voice-agent/internal/timezone"
	"voice-agent/pkg/logger"
	"voice-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := metrics.NewRegistry()

	resolver, err := timezone.NewResolver(cfg.Scheduling.ReferenceZone)
	if err != nil {
		log.Error("timezone init failed", "err", err)
		os.Exit(1)
	}
	trunks, err := routing.ParseTrunks(cfg.ARI.Trunks)
	if err != nil {
		log.Error("trunk config invalid", "err", err)
		os.Exit(1)
	}

	// Storage
	leadRepo := leads.NewPostgresRepo(db)
	callRepo := calls.NewPostgresRepo(db)
	apptRepo := appointments.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Collaborators
	chat := llm.NewOpenAIClient(cfg.LLM)
	llmClient := llm.NewClient(chat, cfg.LLM, logger.Component(log, "llm"))
	learner := llm.NewLearner(chat, cfg.LLM.Model, llm.NewRedisLearnings(rdb), logger.Component(log, "learner"))

	transcriber, closeSTT := newTranscriber(cfg, log)
	defer closeSTT()
	synthesizer := newSynthesizer(cfg)

	ariClient, err := telephony.DialARI(cfg.ARI)
	if err != nil {
		log.Error("ari connect failed", "err", err)
		os.Exit(1)
	}
	ctrl := telephony.NewARIController(ariClient, cfg.ARI.Application, cfg.Paths.RecordingDir, logger.Component(log, "ari"))
	defer ctrl.Close()

	selector := routing.NewSelector(trunks, rand.New(rand.NewSource(time.Now().UnixNano())))
	originator := campaign.NewOriginator(ctrl, selector, leadRepo, apptRepo, resolver, cfg.ARI, logger.Component(log, "originator"))

	var notifier scheduling.Notifier = notify.Noop{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(cfg.SMTP, logger.Component(log, "mailer"))
	}

	policy := scheduling.DefaultPolicy(resolver.Reference())
	policy.OpenHour, policy.CloseHour = cfg.Scheduling.OpenHour, cfg.Scheduling.CloseHour
	policy.Buffer = cfg.Scheduling.Buffer

	callbacks := scheduling.NewCallbackScheduler(apptRepo, originator, auditSvc, scheduling.SystemClock, logger.Component(log, "callbacks"))
	booker := scheduling.NewBooker(apptRepo, policy, resolver, auditSvc, notifier, callbacks, logger.Component(log, "booker"))

	registry := session.NewRegistry(ctrl, auditSvc, cfg.Session.MaxCallDuration, logger.Component(log, "registry"))
	engine := session.NewEngine(session.Deps{
		Controller:  ctrl,
		Registry:    registry,
		Leads:       leadRepo,
		Calls:       callRepo,
		Knowledge:   knowledge.NewStore(cfg.Paths.KnowledgeDir),
		Resolver:    resolver,
		LLM:         llmClient,
		Learner:     learner,
		Booker:      booker,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
	}, session.SettingsFrom(cfg), log)

	janitor := session.NewJanitor([]string{cfg.Paths.RecordingDir, cfg.Paths.SoundsDir}, cfg.Session.ArtifactRetention, logger.Component(log, "janitor"))
	dialer := campaign.NewDialer(leadRepo, originator, cfg.Dialer, rdb, logger.Component(log, "dialer"))

	if n, err := callbacks.RecoverPending(rootCtx); err != nil {
		log.Error("pending callbacks not recovered", "err", err)
	} else if n > 0 {
		log.Info("pending callbacks re-armed", "count", n)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, db, reg)
	httpapi.Handlers{
		Auth:     authManager,
		Dialer:   dialer,
		Reports:  reporting.NewService(callRepo, leadRepo),
		Registry: registry,
		BaseCtx:  rootCtx,
	}.Routes(r, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		return ctrl.Run(gctx, engine)
	})
	g.Go(func() error {
		registry.RunWatchdog(gctx, cfg.Session.WatchdogInterval)
		return nil
	})
	g.Go(func() error {
		callbacks.RunSweeper(gctx, cfg.Scheduling.SweepInterval)
		return nil
	})
	g.Go(func() error {
		janitor.Run(gctx, cfg.Session.JanitorInterval)
		return nil
	})
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "ari_app", cfg.ARI.Application)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent stopped with error", "err", err)
	}
	stop()

	// Sessions finalize (report, booking, call log) after their contexts end.
	callbacks.Stop()
	dialer.Wait()
	engine.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

func newTranscriber(cfg config.Config, log *slog.Logger) (speech.Transcriber, func()) {
	if cfg.STT.Provider == "openai" {
		client := speech.NewOpenAIClient(cfg.LLM.APIKey, cfg.STT.URL)
		return speech.NewOpenAITranscriber(client, cfg.STT.Model), func() {}
	}
	ws := speech.NewWSTranscriber(cfg.STT.URL, cfg.STT.PoolSize, logger.Component(log, "stt"))
	return ws, func() { _ = ws.Close() }
}

func newSynthesizer(cfg config.Config) speech.Synthesizer {
	if cfg.TTS.Provider == "openai" {
		client := speech.NewOpenAIClient(cfg.LLM.APIKey, "")
		return speech.NewOpenAISynthesizer(client, cfg.TTS.Model, cfg.TTS.Voice, cfg.Session.MinRecordingBytes)
	}
	return speech.NewPiperSynthesizer(cfg.TTS.PiperPath, cfg.TTS.PiperModel, cfg.Session.MinRecordingBytes)
}
