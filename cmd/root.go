package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	appkafka "example.com/socialfeed/internal/broker"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	appCfg  *config.Config
	logg    = logger.New()
)

// rootCmd runs the service selected by MODE when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:           "socialfeed",
	Short:         "Home feed service",
	Long:          "Serves follow/post/repost APIs and composes home feeds; MODE selects server or worker.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch appCfg.Mode {
		case "server":
			return runServer(cmd.Context(), appCfg)
		case "worker":
			return runWorker(cmd.Context(), appCfg)
		default:
			return fmt.Errorf("unknown mode: %s", appCfg.Mode)
		}
	},
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logg.Error("cmd", "Command failed", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	appCfg = config.Init(cfgFile)
	logger.SetLevel(appCfg.LogLevel)
}

func kafkaConfig(cfg *config.Config) appkafka.KafkaConfig {
	return appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}
}
