package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"firewatch.org/internal/auth"
	"firewatch.org/internal/config"
	"firewatch.org/internal/facility"
	"firewatch.org/internal/httpapi"
	"firewatch.org/internal/migrate"
	"firewatch.org/internal/obs"
	"firewatch.org/internal/store/pg"
	"firewatch.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := pflag.String("config", os.Getenv("FIREWATCH_CONFIG"), "path to a YAML config file")
	autoMigrate := pflag.Bool("migrate", false, "apply pending schema migrations before serving")
	pflag.Parse()

	log := obs.Component("firewatch-api")
	if err := run(*configPath, *autoMigrate); err != nil {
		log.Error("exit", "error", err.Error())
		os.Exit(1)
	}
}

func run(configPath string, autoMigrate bool) error {
	log := obs.Component("firewatch-api")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Server.Validate(); err != nil {
		return err
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		users  auth.UserStore = auth.NewMemoryUsers()
		places facility.Store = facility.NewInMemory()
		probe                 = httpapi.ReadyProbe{}
	)
	if cfg.Server.DatabaseURL != "" {
		store, err := pg.Open(ctx, cfg.Server.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		if autoMigrate {
			applied, err := migrate.NewManager(store.DB(), nil).Up(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "count", len(applied))
		}
		users, places, probe = store, store, httpapi.ReadyProbe{DB: store.DB()}
	} else {
		log.Warn("no database configured; using in-memory stores")
	}

	issuer, err := auth.NewTokenIssuer(cfg.Server.AuthSecret,
		auth.WithIssuer(cfg.Server.TokenIssuer),
		auth.WithAccessTTL(cfg.Server.AccessTTL),
		auth.WithRefreshTTL(cfg.Server.RefreshTTL),
	)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(users, issuer, auth.WithHasher(auth.NewHasher(cfg.Server.BcryptCost)))

	broker := stream.New()
	facilitySvc := facility.NewService(places, facility.WithPublisher(broker))

	api := httpapi.New(probe, authSvc, facilitySvc,
		httpapi.WithVersion(version),
		httpapi.WithEvents(broker),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
		httpapi.WithRateLimit(cfg.Server.RateBurst, cfg.Server.RatePerSecond),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	grpcSrv := grpc.NewServer()
	httpapi.NewGRPCServer(probe).Register(grpcSrv)

	errCh := make(chan error, 2)
	go func() {
		log.Info("http listening", "addr", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			log.Info("grpc listening", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		stop()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	grpcSrv.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
