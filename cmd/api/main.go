package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-voice-agent/cmd/mainconfig"
	"github.com/wolfman30/clinic-voice-agent/internal/api/router"
	"github.com/wolfman30/clinic-voice-agent/internal/app/bootstrap"
	"github.com/wolfman30/clinic-voice-agent/internal/archive"
	"github.com/wolfman30/clinic-voice-agent/internal/audit"
	"github.com/wolfman30/clinic-voice-agent/internal/calendar"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
	"github.com/wolfman30/clinic-voice-agent/internal/http/handlers"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/internal/session"
	"github.com/wolfman30/clinic-voice-agent/internal/voice"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic voice agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		logger.Error("failed to listen", "port", cfg.Port, "error", err)
		os.Exit(1)
	}
	if err := run(ctx, cfg, logger, ln); err != nil {
		logger.Error("server exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}

// run serves on ln until ctx is cancelled or the listener fails, then drains
// in-flight requests and background work.
func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, ln net.Listener) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer srv.close()

	evictorDone := make(chan struct{})
	go func() {
		defer close(evictorDone)
		srv.evictor.Start(ctx)
	}()

	httpServer := &http.Server{
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			result = err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-evictorDone

	// Transcript uploads run in the background; let them land.
	srv.recorder.Wait()
	logger.Info("server stopped")
	return result
}

// server is the fully wired process.
type server struct {
	handler  http.Handler
	evictor  *session.Evictor
	recorder *archive.Recorder
	closers  []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*server, error) {
	srv := &server{}
	fail := func(err error) (*server, error) {
		srv.close()
		return nil, err
	}

	clinic, err := calendar.LoadClinic(cfg.ClinicDataPath)
	if err != nil {
		return fail(err)
	}
	logger.Info("clinic directory loaded", "clinic", clinic.Name, "doctors", len(clinic.Doctors), "locations", len(clinic.Locations))

	var awsCfg aws.Config
	if bootstrap.NeedsAWS(cfg) {
		awsCfg, err = mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(err)
		}
	}

	checks := map[string]router.HealthCheck{}

	// Appointments and the turn audit log live in Postgres when configured.
	var repo calendar.Repository = calendar.NewMemoryRepository()
	var turnLog *audit.TurnLog
	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fail(err)
	}
	if pool != nil {
		srv.closers = append(srv.closers, pool.Close)
		repo = calendar.NewPostgresRepository(pool)
		db := bootstrap.SQLDB(pool)
		srv.closers = append(srv.closers, func() { _ = db.Close() })
		turnLog = audit.NewTurnLog(db, logger)
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
	}

	rdb := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if rdb != nil {
		srv.closers = append(srv.closers, func() { _ = rdb.Close() })
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	store := bootstrap.BuildSessionStore(rdb, cfg, logger)

	calendarSvc := calendar.NewService(clinic, repo, logger)
	if strings.TrimSpace(cfg.GoogleCalendarCredentialsJSON) != "" {
		sink, err := calendar.NewGoogleCalendarSink(ctx, cfg.GoogleCalendarCredentialsJSON, cfg.GoogleCalendarID, clinic.Timezone)
		if err != nil {
			return fail(err)
		}
		calendarSvc = calendarSvc.WithEventSink(sink)
		logger.Info("google calendar sync enabled", "calendar_id", cfg.GoogleCalendarID)
	}
	var ses *sesv2.Client
	if cfg.NotifyProvider == "ses" {
		ses = sesv2.NewFromConfig(awsCfg)
	}
	if notifier := bootstrap.BuildBookingNotifier(cfg, clinic, ses, logger); notifier != nil {
		calendarSvc = calendarSvc.WithNotifier(notifier)
	}

	extractor, closeExtractor, err := bootstrap.BuildExtractor(ctx, cfg, awsCfg, logger)
	if err != nil {
		return fail(err)
	}
	srv.closers = append(srv.closers, func() { _ = closeExtractor() })

	metricsHandler, dialogueMetrics := setupMetrics()

	if bucket := strings.TrimSpace(cfg.TranscriptBucket); bucket != "" {
		srv.recorder = archive.NewRecorder(archive.NewStore(mainconfig.S3Client(awsCfg, cfg), bucket, logger), logger)
		logger.Info("call transcripts archived to s3", "bucket", bucket)
	}

	machine := dialogue.NewMachine(dialogue.Config{
		Store:        store,
		Extractor:    extractor,
		Availability: calendarSvc,
		Booker:       calendarSvc,
		Observers:    []dialogue.TurnObserver{dialogueMetrics},
		Logger:       logger,
		Location:     clinic.Location(),
		MaxOffers:    cfg.MaxOffers,
		SearchDays:   cfg.SearchDays,
	})
	if turnLog != nil {
		machine.AddObserver(turnLog)
	}
	if srv.recorder != nil {
		machine.AddObserver(srv.recorder)
	}

	srv.evictor = session.NewEvictor(store, logger).
		WithInterval(cfg.EvictionInterval).
		WithMaxAge(cfg.SessionTTL).
		WithReporter(dialogueMetrics)
	if srv.recorder != nil {
		srv.evictor = srv.evictor.WithPruner(srv.recorder)
	}

	voiceCfg := voice.Config{
		Conversation:  machine,
		Sessions:      store,
		Metrics:       dialogueMetrics,
		Logger:        logger,
		ClinicName:    clinic.Name,
		PublicBaseURL: cfg.PublicBaseURL,
	}
	if srv.recorder != nil {
		voiceCfg.Calls = srv.recorder
	}
	if cfg.TwilioValidateRequest {
		if cfg.TwilioAuthToken == "" {
			logger.Warn("TWILIO_AUTH_TOKEN not set; voice webhooks are not signature checked")
		}
		voiceCfg.AuthToken = cfg.TwilioAuthToken
	}

	var adminHandler *handlers.AdminSessionsHandler
	if cfg.AdminJWTSecret != "" {
		adminCfg := handlers.AdminSessionsConfig{
			Sessions:     store,
			Sweeper:      srv.evictor,
			Appointments: calendarSvc,
			Logger:       logger,
		}
		if turnLog != nil {
			adminCfg.Turns = turnLog
		}
		adminHandler = handlers.NewAdminSessionsHandler(adminCfg)
	} else {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	srv.handler = router.New(&router.Config{
		Logger:         logger,
		Voice:          voice.NewHandler(voiceCfg),
		AdminSessions:  adminHandler,
		AdminSecret:    cfg.AdminJWTSecret,
		MetricsHandler: metricsHandler,
		HealthChecks:   checks,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	return srv, nil
}

func setupMetrics() (http.Handler, *metrics.DialogueMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewDialogueMetrics(reg)
}
