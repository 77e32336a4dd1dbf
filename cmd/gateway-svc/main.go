package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/gridgate/internal/config"
	"github.com/dropDatabas3/gridgate/internal/directory"
	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/http/router"
	"github.com/dropDatabas3/gridgate/internal/metrics"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/rate"
	"github.com/dropDatabas3/gridgate/internal/rpc"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "gateway-svc",
		Short: "Gateway worker del mesh gridgate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", os.Getenv("CONFIG_PATH"), "ruta del config.yaml")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "gateway-svc",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	if err := metrics.Register(nil); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := directory.New(ctx, directory.Options{
		ListenPort:       cfg.Mesh.ListenPort,
		BootstrapPeers:   cfg.Mesh.BootstrapPeers,
		CacheTTL:         cfg.LookupCacheTTL(),
		AnnounceInterval: cfg.AnnounceInterval(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()

	redisClient := rdb.NewClient(&rdb.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	defer func() { _ = redisClient.Close() }()

	limiter := rate.New(
		rate.NewRedisStore(redisClient, cfg.Redis.Prefix),
		cfg.Rate.MaxRequests,
		cfg.RateWindow(),
	)
	tokens := token.NewValidator(cfg.JWT.Secret)
	calls := rpc.New(dir, transport.NewDialer(dir.Host()), rpc.Options{
		Timeout:     cfg.CallTimeout(),
		MaxAttempts: cfg.Call.MaxAttempts,
		BaseDelay:   cfg.CallBaseDelay(),
	})
	gw := gateway.New(calls, limiter, tokens)

	srv := transport.NewServer(dir.Host(), gateway.TopicGateway, cfg.CallTimeout())
	for _, op := range []string{gateway.OpRegister, gateway.OpLogin, gateway.OpVerifySession, gateway.OpProcessPrompt} {
		op := op
		srv.Handle(op, func(ctx context.Context, env transport.Envelope) (any, error) {
			out, _ := gw.Handle(ctx, op, env)
			return out, nil
		})
	}
	defer srv.Close()

	if err := dir.Announce(ctx, gateway.TopicGateway); err != nil {
		return err
	}
	defer dir.Unannounce(gateway.TopicGateway)

	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router.New(gw)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gateway worker up",
			logger.Topic(gateway.TopicGateway), logger.Peer(dir.Host().ID().String()))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info("gateway worker stopped")
	return err
}
