package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/socialfeed/cmd/server"
	"example.com/socialfeed/cmd/worker"
	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/cache"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/metrics"
	"example.com/socialfeed/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context(), appCfg)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the feed cache invalidation worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context(), appCfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd, workerCmd)
}

var errNoJWTSecret = errors.New("JWT_SECRET must be set to run the server")

func runServer(ctx context.Context, cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errNoJWTSecret
	}

	st, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	writer, err := appkafka.NewKafkaWriter(ctx, kafkaConfig(cfg))
	if err != nil {
		return err
	}
	defer writer.Close()

	fc := cache.New(cfg)
	defer fc.Close()

	reg := prometheus.NewRegistry()
	s := server.New(server.Deps{
		Store:     st,
		Writer:    writer,
		Cache:     fc,
		Metrics:   metrics.NewCollector(reg),
		Gatherer:  reg,
		JWTSecret: []byte(cfg.JWTSecret),
		TokenTTL:  cfg.JWTTTL,
	})

	err = server.Run(ctx, s, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
	logg.Info("cmd", "Shutdown completed")
	return err
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	st, err := store.New(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	w := worker.New(st, appkafka.NewKafkaReader(kafkaConfig(cfg)), cache.New(cfg), metrics.NewCollector(reg), cfg.WorkerCount, cfg.WorkerQueueSize)
	defer w.Close()

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logg.Info("cmd", "Serving worker metrics on "+cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("cmd", "Metrics server stopped", err)
		}
	}()

	w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logg.Error("cmd", "Error during metrics server shutdown", err)
	}
	logg.Info("cmd", "Shutdown completed")
	return nil
}
