package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gridgate/internal/account"
	"github.com/dropDatabas3/gridgate/internal/config"
	"github.com/dropDatabas3/gridgate/internal/directory"
	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/token"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "account-svc",
		Short: "Account worker del mesh gridgate",
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
		ServiceName: "account-svc",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

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

	svc := account.NewService(store, token.NewIssuer(cfg.JWT.Secret, cfg.JWTTTL()))

	srv := transport.NewServer(dir.Host(), gateway.TopicAccount, cfg.CallTimeout())
	srv.Handle("register", svc.Register)
	srv.Handle("login", svc.Login)
	defer srv.Close()

	if err := dir.Announce(ctx, gateway.TopicAccount); err != nil {
		return err
	}
	defer dir.Unannounce(gateway.TopicAccount)

	log.Info("account worker up",
		logger.Topic(gateway.TopicAccount), logger.Peer(dir.Host().ID().String()))
	<-ctx.Done()
	log.Info("account worker stopped")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (account.Store, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		s, err := account.NewPGStore(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "redis":
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		return account.NewRedisStore(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil
	case "memory", "":
		return account.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("storage driver desconocido: %s", cfg.Storage.Driver)
	}
}
