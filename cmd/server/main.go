// Command server runs the companion bot backend: the HTTP API, the proactive
// outreach scheduler, and the retention janitor, all sharing one SQLite
// database and one cancellation context.
//
// Startup order: env + config, logging, database, tracing, collaborators,
// services, background loops, HTTP server. Shutdown reverses it: stop
// accepting requests, cancel the loops, wait for them, flush traces, close
// the database.
package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkurilov/go-companion-backend/internal/config"
	"github.com/dkurilov/go-companion-backend/internal/delivery"
	"github.com/dkurilov/go-companion-backend/internal/domain"
	httpapi "github.com/dkurilov/go-companion-backend/internal/http"
	"github.com/dkurilov/go-companion-backend/internal/janitor"
	"github.com/dkurilov/go-companion-backend/internal/llm"
	"github.com/dkurilov/go-companion-backend/internal/observability"
	"github.com/dkurilov/go-companion-backend/internal/outreach"
	"github.com/dkurilov/go-companion-backend/internal/repo"
	"github.com/dkurilov/go-companion-backend/internal/services"
	"github.com/dkurilov/go-companion-backend/internal/sysutil"
	"github.com/dkurilov/go-companion-backend/internal/wiki"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// noopDeliverer drops outbound messages. Used when no delivery channel is
// configured so the scheduler loop still runs and logs what it would send.
type noopDeliverer struct{}

func (noopDeliverer) Send(ctx context.Context, chatID, text string) error {
	log.Debug().Str("chat_id", chatID).Msg("delivery disabled, message dropped")
	return nil
}

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	// Logging
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}
	gin.SetMode(cfg.GinMode)

	// Database
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	// Tracing
	otelShutdown, err := observability.SetupOTel(context.Background(), cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Fatal().Err(err).Msg("instrument database")
		}
	}

	// Collaborators. Each one degrades independently: no LLM key means
	// fallback replies, no token means outreach is logged but not sent.
	fetcher := wiki.NewClient(cfg.WikiLang, cfg.WikiBaseURL)

	var generator services.Generator
	if cfg.LLM.APIKey != "" {
		gen, err := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
			llm.WithTemperature(cfg.LLM.Temperature),
			llm.WithMaxTokens(cfg.LLM.MaxTokens),
			llm.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("llm client")
		}
		generator = gen
	} else {
		log.Warn().Msg("LLM_API_KEY not set, replies degrade to the fallback message")
	}

	var deliver outreach.Deliverer = noopDeliverer{}
	if cfg.TelegramToken != "" {
		tg, err := delivery.NewTelegram(cfg.TelegramToken)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram client")
		}
		deliver = tg
	} else {
		log.Warn().Msg("TELEGRAM_TOKEN not set, proactive messages will not be delivered")
	}

	// Services
	dialogSvc := services.NewDialogService(db, cfg.RetentionWindow, cfg.MaxContentRunes)
	knowledgeSvc := &services.KnowledgeService{
		DB:              db,
		Fetcher:         fetcher,
		TTL:             cfg.CacheTTL,
		MaxContentRunes: cfg.MaxContentRunes,
	}
	engagementSvc := &services.EngagementService{
		DB: db,
		Thresholds: domain.EngagementThresholds{
			Offended:   cfg.Engagement.OffendedThreshold,
			Angry:      cfg.Engagement.AngryThreshold,
			SeenWindow: cfg.Engagement.SeenWindow,
		},
		OutreachInterval: cfg.Engagement.OutreachInterval,
	}
	replySvc := &services.ReplyService{
		DB:             db,
		Dialog:         dialogSvc,
		Knowledge:      knowledgeSvc,
		Generator:      generator,
		SystemPrompt:   cfg.LLM.SystemPrompt,
		ContextTail:    cfg.ContextTail,
		MaxPromptRunes: cfg.MaxContentRunes,
		FallbackReply:  cfg.FallbackReply,
	}

	// Background loops share one cancellation context.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sched := outreach.New(outreach.Config{
		Tick:          cfg.Outreach.ScanTick,
		ErrorBackoff:  cfg.Outreach.ErrorBackoff,
		BatchSize:     cfg.Outreach.ScanBatch,
		DispatchDelay: cfg.Outreach.DispatchDelay,
		EmbellishProb: cfg.Outreach.EmbellishProb,
	}, engagementSvc, dialogSvc, deliver, rand.New(rand.NewSource(time.Now().UnixNano())))
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(bgCtx)
	}()

	jan := janitor.New(db, dialogSvc, knowledgeSvc, cfg.PruneInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		jan.Run(bgCtx)
	}()

	// HTTP server
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Services{
		Reply:      replySvc,
		Dialog:     dialogSvc,
		Engagement: engagementSvc,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	// Block until SIGINT/SIGTERM.
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info().Msg("shutting down")

	// Stop accepting HTTP first, then the background loops.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	bgCancel()
	wg.Wait()

	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
