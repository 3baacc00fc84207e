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

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"kinhelp.org/internal/audit"
	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
	"kinhelp.org/internal/config"
	"kinhelp.org/internal/httpapi"
	"kinhelp.org/internal/ids"
	"kinhelp.org/internal/notify"
	"kinhelp.org/internal/obs"
	"kinhelp.org/internal/store/pg"
	"kinhelp.org/internal/store/sqlite"
	"kinhelp.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "none"
)

type backend interface {
	care.Store
	Ping(ctx context.Context) error
	Close() error
}

type memoryBackend struct{ *care.InMemory }

func (memoryBackend) Ping(context.Context) error { return nil }
func (memoryBackend) Close() error               { return nil }

func openStore(cfg config.Config) (backend, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return pg.Open(cfg.PGDSN)
	case config.StoreSQLite:
		return sqlite.Open(cfg.SQLitePath)
	default:
		return memoryBackend{care.NewInMemory()}, nil
	}
}

func main() {
	log := obs.Logger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)
	auth.Configure(cfg.AuthSecret)

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal("open store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer store.Close()

	checks := []httpapi.Check{{Name: "store", Ping: store.Ping}}
	hub := stream.New[care.Notification]()
	defer hub.Close()
	sinks := []notify.Sink{notify.HubSink{Hub: hub}}

	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := notify.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass)
		cancel()
		if err != nil {
			log.Fatal("connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		pub := notify.NewRedisPublisher(rdb)
		sinks = append(sinks, pub)
		checks = append(checks, httpapi.Check{Name: "redis", Ping: pub.Ping})
	}

	svc := care.NewService(store,
		care.WithEmitter(notify.New(store, ids.New, sinks...)),
		care.WithCommitHook(audit.Transition),
	)
	sessions := auth.NewSessions()
	defer sessions.Close()
	ready := httpapi.ReadyProbe{Checks: checks}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go audit.WatchSessions(rootCtx, sessions)

	api := httpapi.New(httpapi.Options{
		Service:         svc,
		Notifications:   hub,
		Sessions:        sessions,
		Ready:           ready,
		Version:         version,
		TokenTTL:        cfg.TokenTTL,
		TokenClientHash: cfg.TokenClientHash,
		RateBurst:       cfg.RateBurst,
		RatePerSec:      cfg.RatePerSec,
		CORSOrigins:     cfg.CORSOrigins,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		StreamBuffer:    cfg.StreamBufferSize,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// no WriteTimeout: notification streams are long-lived
	}
	// streams never go idle; closing the hubs ends them so Shutdown can drain
	srv.RegisterOnShutdown(hub.Close)
	srv.RegisterOnShutdown(sessions.Close)

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(ready)
	health.Register(grpcSrv)
	go health.Run(rootCtx, 10*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("grpc listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	log.Info("starting kinhelp-api", append(cfg.Fields(), zap.String("version", version))...)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	log.Info("stopped")
}
