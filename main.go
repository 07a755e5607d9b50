package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ChatHub/global"
	"ChatHub/global/config"
	"ChatHub/logger"
	"ChatHub/middleware"
	"ChatHub/service/chat"
	"ChatHub/service/chat/handlers"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default $HUB_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("[boot] load config", zap.Error(err))
		logger.Sync()
		return
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("[boot] exit", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rt, err := global.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Closer.Close()

	srv, err := newHub(cfg, rt.Deps)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newEngine(cfg, srv, rt.Presence),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var gs *grpc.Server
	var hs *health.Server
	if cfg.GRPC.Addr != "" {
		gs = grpc.NewServer()
		hs = health.NewServer()
		healthpb.RegisterHealthServer(gs, hs)
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		hs.SetServingStatus("chathub.Hub", healthpb.HealthCheckResponse_SERVING)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("[http] listening", zap.String("addr", cfg.HTTP.Addr), zap.String("ws", cfg.HTTP.WSPath))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if gs != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return err
			}
			logger.Info("[grpc] health listening", zap.String("addr", cfg.GRPC.Addr))
			return gs.Serve(lis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[boot] shutting down")
		if hs != nil {
			hs.Shutdown()
		}

		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// 先停止接新连接，再断开已有连接
		herr := httpSrv.Shutdown(sctx)
		if serr := srv.Shutdown(sctx); serr != nil {
			logger.Warn("[hub] shutdown", zap.Error(serr))
		}
		if gs != nil {
			gs.GracefulStop()
		}
		return herr
	})
	return g.Wait()
}

func newHub(cfg *config.Config, deps chat.Deps) (*chat.Server, error) {
	srv, err := chat.NewServer(chat.Options{
		NodeID: cfg.Node.ID,
		Manager: chat.ManagerConf{
			SendQueue:   cfg.Hub.SendQueue,
			IdleTimeout: cfg.Hub.IdleTimeout,
			SweepEvery:  cfg.Hub.SweepEvery,
			NodeID:      cfg.Node.Snowflake,
		},
		OpTimeout:       cfg.Storage.OpTimeout,
		PublishTimeout:  cfg.Events.Timeout,
		WriteWait:       cfg.Hub.WriteWait,
		ReadLimit:       cfg.HTTP.ReadLimit,
		PresenceRefresh: cfg.Redis.PresenceTTL / 2,
		CheckOrigin:     middleware.OriginAllowed(cfg.HTTP.AllowedOrigins),
	}, deps)
	if err != nil {
		return nil, err
	}
	handlers.RegisterAll(srv)
	return srv, nil
}
