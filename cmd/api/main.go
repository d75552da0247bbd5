package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"leadbridge/internal/agentstream"
	"leadbridge/internal/archive"
	"leadbridge/internal/audit"
	"leadbridge/internal/auth"
	"leadbridge/internal/bridge"
	"leadbridge/internal/callstore"
	"leadbridge/internal/config"
	"leadbridge/internal/httpapi"
	"leadbridge/internal/leads"
	"leadbridge/internal/notify"
	"leadbridge/internal/reporting"
	"leadbridge/internal/telephony"
	"leadbridge/pkg/logger"
	"leadbridge/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine outside local runs.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		return fmt.Errorf("open redis: %w", err)
	}
	defer rdb.Close()

	publisher, err := notify.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
	if err != nil {
		return fmt.Errorf("open amqp: %w", err)
	}
	defer publisher.Close()

	authMgr, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth manager: %w", err)
	}

	provider := telephony.NewTwilioProviderFromCredentials(
		cfg.Twilio.AccountSID, cfg.Twilio.AuthToken,
		telephony.TwilioConfig{FromNumber: cfg.Twilio.FromNumber},
	)

	store := callstore.New()
	archiveRepo := archive.NewPostgresRepo(db)
	auditSvc := audit.NewService(audit.NewMemoryRepo(0), log)

	leadSvc := leads.NewService(
		store, provider,
		leads.NewRedisCapacity(rdb, cfg.Bridge.MaxConcurrentLeads),
		leads.Config{
			PublicBaseURL:   cfg.App.PublicBaseURL,
			SalesTeamNumber: cfg.Bridge.SalesTeamNumber,
		},
		log,
		leads.WithNotifier(publisher),
		leads.WithArchive(archiveRepo),
	)

	streamURL := wsURL(cfg.App.PublicBaseURL) + "/agent/stream"
	coord := bridge.NewCoordinator(store, provider, bridge.Config{
		JoinDeadline:          cfg.Bridge.JoinDeadline,
		MinContactTurns:       cfg.Bridge.MinContactTurns,
		HoldMusicURL:          cfg.Bridge.HoldMusicURL,
		ConferenceCallbackURL: cfg.App.PublicBaseURL + "/webhooks/voice/conference",
		AgentStreamURL:        streamURL,
	},
		bridge.WithLogger(log),
		bridge.WithAuditor(auditSvc),
		bridge.WithLeadDoneHook(leadSvc.Complete),
	)

	hub := agentstream.NewHub(
		agentstream.Config{
			ServiceURL:     cfg.Agent.ServiceURL,
			SilenceTimeout: cfg.Agent.SilenceTimeout,
		},
		store, coord, log,
	)
	coord.SetAgentNotifier(hub)

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Log:  log,
		Auth: authMgr,
		Handlers: &httpapi.Handlers{
			Leads:          leadSvc,
			Snapshots:      archiveRepo,
			Reports:        reporting.NewService(archiveRepo),
			Audit:          auditSvc,
			AgentStreamURL: streamURL,
		},
		Webhooks: telephony.WebhookHandler{
			Sink:  coord,
			Dedup: telephony.NewRedisDeduper(rdb),
		},
		AgentStream: hub.HandleStream,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// wsURL converts the public http(s) base URL into its websocket form.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
