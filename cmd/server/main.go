package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"geoindex/pkg/api"
	"geoindex/pkg/config"
	"geoindex/pkg/layer"
	"geoindex/pkg/log"
)

var (
	configPath string
	listenAddr string
)

// rootCmd loads the configured layers and serves them over HTTP.
var rootCmd = &cobra.Command{
	Use:          "server",
	Short:        "Serve geoindex layers over HTTP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Server.Address = listenAddr
		}

		logger, err := log.New(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			return err
		}
		log.ReplaceGlobals(logger)
		defer func() { _ = log.Sync() }()

		db, err := layer.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn("close database", zap.Error(err))
			}
		}()

		srv, err := api.NewServer(db, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.Start(ctx, cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: configs/geoindex.yaml or geoindex.yaml)")
	rootCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address, overrides server.address")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
