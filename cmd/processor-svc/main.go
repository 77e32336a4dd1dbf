package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/gridgate/internal/config"
	"github.com/dropDatabas3/gridgate/internal/directory"
	"github.com/dropDatabas3/gridgate/internal/gateway"
	"github.com/dropDatabas3/gridgate/internal/observability/logger"
	"github.com/dropDatabas3/gridgate/internal/processor"
	"github.com/dropDatabas3/gridgate/internal/transport"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "processor-svc",
		Short: "Processing worker del mesh gridgate",
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
		ServiceName: "processor-svc",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

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

	svc := processor.NewService(processor.NewHTTPEngine(cfg.Engine.URL, cfg.EngineTimeout()))

	srv := transport.NewServer(dir.Host(), gateway.TopicProcessing, cfg.CallTimeout())
	srv.Handle("processRequest", svc.ProcessRequest)
	defer srv.Close()

	if err := dir.Announce(ctx, gateway.TopicProcessing); err != nil {
		return err
	}
	defer dir.Unannounce(gateway.TopicProcessing)

	log.Info("processing worker up",
		logger.Topic(gateway.TopicProcessing), logger.Peer(dir.Host().ID().String()))
	<-ctx.Done()
	log.Info("processing worker stopped")
	return nil
}
