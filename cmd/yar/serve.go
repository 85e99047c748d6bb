package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/yar/internal/api"
	"github.com/ashureev/yar/internal/config"
	"github.com/ashureev/yar/internal/engine"
	"github.com/ashureev/yar/internal/health"
	"github.com/ashureev/yar/internal/identity"
	"github.com/ashureev/yar/internal/session"
	"github.com/ashureev/yar/internal/worker"
	"github.com/ashureev/yar/web"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout     = 10 * time.Second
	deregisterTimeout   = 5 * time.Second
	healthProbeInterval = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Register this process as a session and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	slog.Info("Starting server", "port", cfg.Port, "db_path", cfg.DBPath, "dev", cfg.IsDevelopment())

	eng, closeRepo, err := openEngine(setupDI(cfg))
	if err != nil {
		return err
	}
	defer closeRepo()
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auto-register this process. The heartbeat worker re-registers if it expires.
	params := selfRegistration(cfg)
	self := identity.NewSelf("")
	heartbeat := worker.NewHeartbeat(eng, self, params, cfg.Engine.HeartbeatInterval)
	if err := heartbeat.Beat(ctx); err != nil {
		return err
	}
	heartbeat.Start(ctx)
	defer deregisterSelf(eng, self)

	gc := worker.NewGC(eng, cfg.Engine.GCInterval)
	gc.RunOnce(ctx)
	gc.Start(ctx)

	if cfg.GRPCHealthAddr != "" {
		healthSrv, err := startHealth(ctx, eng, cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		defer healthSrv.Stop()
	}

	router := api.NewRouter(api.RouterConfig{
		Engine:      eng,
		Self:        self,
		FrontendURL: cfg.FrontendURL,
		IsDev:       cfg.IsDevelopment(),
		Frontend:    web.MonitorHandler(),
	})

	// Long-poll and WebSocket responses outlive any write deadline.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}

func selfRegistration(cfg *config.Config) session.RegisterParams {
	wd, err := os.Getwd()
	if err != nil {
		slog.Debug("Failed to resolve working directory", "error", err)
	}
	return session.RegisterParams{
		Name:             cfg.SessionName,
		WorkingDirectory: wd,
		Metadata:         map[string]any{"auto_registered": true, "pid": os.Getpid()},
	}
}

// deregisterSelf is best-effort: the session expires by TTL if this fails.
func deregisterSelf(eng *engine.Engine, self *identity.Self) {
	id := self.SessionID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
	defer cancel()
	if err := eng.DeregisterSession(ctx, id); err != nil {
		slog.Warn("Failed to deregister session", "error", err, "session_id", id)
		return
	}
	slog.Info("Session deregistered", "session_id", id)
}

func startHealth(ctx context.Context, eng *engine.Engine, addr string) (*health.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := health.NewServer(eng, healthProbeInterval)
	srv.Start(ctx)
	go func() {
		if err := srv.Serve(lis); err != nil {
			slog.Error("gRPC health server failed", "error", err)
		}
	}()
	return srv, nil
}
